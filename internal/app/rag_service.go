package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"notebookrag/internal/model"
	"notebookrag/internal/observability"
	"notebookrag/internal/pkg/apperr"
	"notebookrag/internal/repository"
	"notebookrag/internal/retrieval"
	"notebookrag/internal/stage"
)

// TurnState is a step of the question turn.
type TurnState string

const (
	StateAwaitingQuestion    TurnState = "awaiting_question"
	StatePersistUserMsg      TurnState = "persist_user_msg"
	StateRewrite             TurnState = "rewrite"
	StateRetrieve            TurnState = "retrieve"
	StateGenerate            TurnState = "generate"
	StatePersistAssistantMsg TurnState = "persist_assistant_msg"
	StateDone                TurnState = "done"
	StateAborted             TurnState = "aborted"
)

// ErrAnswerUnavailable is what callers see when retrieval or generation
// fails. The backend error is logged, not surfaced.
var ErrAnswerUnavailable = &apperr.Error{Kind: apperr.KindExternalService, Msg: "could not generate an answer"}

var ragTracer = otel.Tracer("notebookrag/app")

type Retriever interface {
	Retrieve(ctx context.Context, scope retrieval.Scope, query string) (retrieval.Result, error)
}

type QueryRewriter interface {
	Rewrite(ctx context.Context, history []model.ChatMessage, question string) (string, bool)
}

type AnswerGenerator interface {
	Complete(ctx context.Context, query string, fragments []retrieval.Fragment) (string, error)
}

type RAGOptions struct {
	// CallTimeout bounds every external call of a turn.
	CallTimeout  time.Duration
	SourceURLTTL time.Duration
}

// RAGService drives one question through the turn state machine.
type RAGService struct {
	stores    *repository.Stores
	messages  *MessageService
	retriever Retriever
	rewriter  QueryRewriter
	generator AnswerGenerator
	stage     stage.Gateway
	opts      RAGOptions
	metrics   *observability.Metrics
	log       *zap.Logger
}

func NewRAGService(
	stores *repository.Stores,
	messages *MessageService,
	retriever Retriever,
	rewriter QueryRewriter,
	generator AnswerGenerator,
	gw stage.Gateway,
	opts RAGOptions,
	metrics *observability.Metrics,
	log *zap.Logger,
) *RAGService {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.SourceURLTTL <= 0 {
		opts.SourceURLTTL = DefaultSourceURLTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RAGService{
		stores:    stores,
		messages:  messages,
		retriever: retriever,
		rewriter:  rewriter,
		generator: generator,
		stage:     gw,
		opts:      opts,
		metrics:   metrics,
		log:       log.Named("rag"),
	}
}

type AskInput struct {
	SessionID string
	Question  string
}

type SourceLink struct {
	Path           string  `json:"path"`
	URL            string  `json:"url,omitempty"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Turn is the outcome of Ask. Visited lists every state entered, in order.
type Turn struct {
	State            TurnState            `json:"state"`
	Visited          []TurnState          `json:"visited"`
	Query            string               `json:"query"`
	Rewritten        bool                 `json:"rewritten"`
	Answer           string               `json:"answer,omitempty"`
	Sources          []string             `json:"sources"`
	SourceLinks      []SourceLink         `json:"source_links"`
	Fragments        []retrieval.Fragment `json:"fragments,omitempty"`
	UserMessage      *model.ChatMessage   `json:"user_message,omitempty"`
	AssistantMessage *model.ChatMessage   `json:"assistant_message,omitempty"`

	entered time.Time
}

func (t *Turn) enter(state TurnState, m *observability.Metrics) {
	now := time.Now()
	if len(t.Visited) > 0 {
		m.ObserveState(string(t.State), now.Sub(t.entered))
	}
	t.State = state
	t.Visited = append(t.Visited, state)
	t.entered = now
}

// Ask runs one turn. On failure the returned Turn is in StateAborted (or
// still awaiting the question when the input was rejected) and carries no
// answer.
func (s *RAGService) Ask(ctx context.Context, input AskInput) (*Turn, error) {
	ctx, span := ragTracer.Start(ctx, "ask")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", input.SessionID))

	turn := &Turn{Sources: []string{}, SourceLinks: []SourceLink{}}
	turn.enter(StateAwaitingQuestion, s.metrics)

	question := strings.TrimSpace(input.Question)
	if question == "" {
		return turn, apperr.Validation("ask", "question must not be blank")
	}
	session, err := s.stores.Sessions.GetByID(ctx, input.SessionID)
	if err != nil {
		return turn, apperr.Persistence("ask", err)
	}
	if session == nil {
		return turn, apperr.NotFound("ask", "session not found")
	}

	turn.enter(StatePersistUserMsg, s.metrics)
	var userMsg *model.ChatMessage
	err = s.bounded(ctx, func(ctx context.Context) error {
		var appendErr error
		userMsg, appendErr = s.messages.Append(ctx, AppendMessageInput{SessionID: session.ID, Role: model.RoleUser, Content: question})
		return appendErr
	})
	if err != nil {
		return s.abort(turn, "persist user message", err, err)
	}
	turn.UserMessage = userMsg

	var history []model.ChatMessage
	err = s.bounded(ctx, func(ctx context.Context) error {
		var histErr error
		history, histErr = s.messages.History(ctx, session.ID)
		return histErr
	})
	if err != nil {
		s.log.Warn("read history failed, answering without it", zap.String("session_id", session.ID), zap.Error(err))
		history = nil
	}

	turn.Query = question
	if len(history) > 0 {
		turn.enter(StateRewrite, s.metrics)
		rctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
		turn.Query, turn.Rewritten = s.rewriter.Rewrite(rctx, history, question)
		cancel()
	}

	turn.enter(StateRetrieve, s.metrics)
	var result retrieval.Result
	err = s.bounded(ctx, func(ctx context.Context) error {
		paths, err := s.stores.Files.ListPaths(ctx, session.ID)
		if err != nil {
			return err
		}
		result, err = s.retriever.Retrieve(ctx, retrieval.Scope{Namespace: session.ID, Paths: paths}, turn.Query)
		return err
	})
	if err != nil {
		return s.abort(turn, "retrieve", err, ErrAnswerUnavailable)
	}
	turn.Fragments = result.Fragments

	turn.enter(StateGenerate, s.metrics)
	var answer string
	err = s.bounded(ctx, func(ctx context.Context) error {
		var genErr error
		answer, genErr = s.generator.Complete(ctx, turn.Query, result.Fragments)
		return genErr
	})
	if err == nil && strings.TrimSpace(answer) == "" {
		err = apperr.External("generate", errEmptyAnswer)
	}
	if err != nil {
		return s.abort(turn, "generate", err, ErrAnswerUnavailable)
	}

	turn.enter(StatePersistAssistantMsg, s.metrics)
	var assistantMsg *model.ChatMessage
	err = s.bounded(ctx, func(ctx context.Context) error {
		var appendErr error
		assistantMsg, appendErr = s.messages.Append(ctx, AppendMessageInput{SessionID: session.ID, Role: model.RoleAssistant, Content: answer})
		return appendErr
	})
	if err != nil {
		return s.abort(turn, "persist assistant message", err, err)
	}
	turn.AssistantMessage = assistantMsg
	turn.Answer = assistantMsg.Content
	turn.Sources = result.Sources

	s.recordSources(ctx, session.ID, assistantMsg.ID, result)
	turn.SourceLinks = s.sourceLinks(ctx, session.ID, result)

	turn.enter(StateDone, s.metrics)
	s.metrics.ObserveTurn(string(StateDone))
	return turn, nil
}

var errEmptyAnswer = errors.New("model returned an empty answer")

func (s *RAGService) bounded(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	return fn(ctx)
}

func (s *RAGService) abort(turn *Turn, step string, cause, surfaced error) (*Turn, error) {
	s.log.Error("turn aborted",
		zap.String("step", step),
		zap.String("state", string(turn.State)),
		zap.Error(cause),
	)
	turn.enter(StateAborted, s.metrics)
	s.metrics.ObserveTurn(string(StateAborted))
	turn.Answer = ""
	turn.AssistantMessage = nil
	return turn, surfaced
}

func (s *RAGService) recordSources(ctx context.Context, sessionID, messageID string, result retrieval.Result) {
	if len(result.Sources) == 0 {
		return
	}
	best := result.BestScores()
	rows := make([]model.RagSource, 0, len(result.Sources))
	for _, path := range result.Sources {
		rows = append(rows, model.RagSource{
			ID:             uuid.NewString(),
			MessageID:      messageID,
			SessionID:      sessionID,
			DocumentPath:   path,
			RelevanceScore: best[path],
		})
	}
	err := s.bounded(ctx, func(ctx context.Context) error {
		return s.stores.Sources.CreateBatch(ctx, rows)
	})
	if err != nil {
		s.log.Warn("record rag sources failed", zap.String("message_id", messageID), zap.Error(err))
	}
}

func (s *RAGService) sourceLinks(ctx context.Context, sessionID string, result retrieval.Result) []SourceLink {
	best := result.BestScores()
	links := make([]SourceLink, 0, len(result.Sources))
	for _, path := range result.Sources {
		link := SourceLink{Path: path, RelevanceScore: best[path]}
		if objectPath, err := stage.ObjectPath(sessionID, path); err == nil {
			err = s.bounded(ctx, func(ctx context.Context) error {
				var signErr error
				link.URL, signErr = s.stage.PresignedURL(ctx, objectPath, s.opts.SourceURLTTL)
				return signErr
			})
			if err != nil {
				s.log.Warn("presign source url failed", zap.String("path", path), zap.Error(err))
			}
		}
		links = append(links, link)
	}
	return links
}
