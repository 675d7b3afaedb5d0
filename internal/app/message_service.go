package app

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"notebookrag/internal/model"
	"notebookrag/internal/pkg/apperr"
	"notebookrag/internal/rag"
	"notebookrag/internal/repository"
)

const maxWindowSize = 200

type MessageService struct {
	stores     *repository.Stores
	history    HistoryCache
	windowSize int
	policy     rag.WindowPolicy
	log        *zap.Logger
}

func NewMessageService(stores *repository.Stores, history HistoryCache, windowSize int, policy rag.WindowPolicy, log *zap.Logger) *MessageService {
	if windowSize <= 0 {
		windowSize = rag.DefaultWindowSize
	}
	if policy == "" {
		policy = rag.WindowExcludeLatest
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MessageService{
		stores:     stores,
		history:    history,
		windowSize: windowSize,
		policy:     policy,
		log:        log.Named("message"),
	}
}

type AppendMessageInput struct {
	SessionID string
	Role      model.Role
	Content   string
}

// Append persists a message on an active session.
func (s *MessageService) Append(ctx context.Context, input AppendMessageInput) (*model.ChatMessage, error) {
	if !input.Role.Valid() {
		return nil, apperr.Validation("append message", "role must be user or assistant")
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, apperr.Validation("append message", "content must not be blank")
	}

	session, err := s.stores.Sessions.GetByID(ctx, input.SessionID)
	if err != nil {
		return nil, apperr.Persistence("append message", err)
	}
	if session == nil {
		return nil, apperr.Validation("append message", "unresolvable session reference")
	}

	msg := &model.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: input.SessionID,
		Role:      input.Role,
		Content:   content,
		CreatedAt: utcNow(),
	}
	s.invalidate(ctx, input.SessionID)
	if err := s.stores.Messages.Create(ctx, msg); err != nil {
		return nil, apperr.Persistence("append message", err)
	}
	s.invalidate(ctx, input.SessionID)
	return msg, nil
}

// Recent returns up to window newest messages, oldest first. Inactive or
// unknown sessions yield an empty slice.
func (s *MessageService) Recent(ctx context.Context, sessionID string, window int) ([]model.ChatMessage, error) {
	if window <= 0 {
		window = s.windowSize
	}
	if window > maxWindowSize {
		return nil, apperr.Validation("recent messages", "window too large")
	}

	cacheable := s.history != nil && window == s.windowSize
	if cacheable {
		if dirty, err := s.history.IsDirty(ctx, sessionID); err == nil && !dirty {
			if cached, hit, err := s.history.GetHistory(ctx, sessionID); err == nil && hit {
				return cached, nil
			}
		}
	}

	messages, err := s.stores.Messages.Recent(ctx, sessionID, window)
	if err != nil {
		return nil, apperr.Persistence("recent messages", err)
	}
	if cacheable {
		if dirty, err := s.history.IsDirty(ctx, sessionID); err == nil && !dirty {
			if err := s.history.SetHistory(ctx, sessionID, messages); err != nil {
				s.log.Warn("cache history failed", zap.String("session_id", sessionID), zap.Error(err))
			}
		}
	}
	return messages, nil
}

// History is the conversational context handed to the rewriter: the
// configured window with the configured read policy applied.
func (s *MessageService) History(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	window, err := s.Recent(ctx, sessionID, s.windowSize)
	if err != nil {
		return nil, err
	}
	return s.policy.Apply(window), nil
}

func (s *MessageService) invalidate(ctx context.Context, sessionID string) {
	if s.history == nil {
		return
	}
	if err := s.history.MarkDirty(ctx, sessionID); err != nil {
		s.log.Warn("mark history dirty failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	if err := s.history.DeleteHistory(ctx, sessionID); err != nil {
		s.log.Warn("drop cached history failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}
