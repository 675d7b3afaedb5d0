package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"notebookrag/internal/model"
	"notebookrag/internal/observability"
	"notebookrag/internal/pkg/apperr"
	"notebookrag/internal/repository"
	"notebookrag/internal/retrieval"
	"notebookrag/internal/stage"
)

type SessionService struct {
	stores  *repository.Stores
	stage   stage.Gateway
	indexer retrieval.Indexer
	history HistoryCache
	metrics *observability.Metrics
	log     *zap.Logger
	now     func() time.Time
}

func NewSessionService(
	stores *repository.Stores,
	gw stage.Gateway,
	indexer retrieval.Indexer,
	history HistoryCache,
	metrics *observability.Metrics,
	log *zap.Logger,
) *SessionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionService{
		stores:  stores,
		stage:   gw,
		indexer: indexer,
		history: history,
		metrics: metrics,
		log:     log.Named("session"),
		now:     utcNow,
	}
}

type CreateSessionInput struct {
	Title    string
	Category *string
}

type UpdateSessionInput struct {
	ID       string
	Title    *string
	Category *string
}

// SessionStats summarizes a notebook's conversation and sources.
type SessionStats struct {
	MessageCount     int64            `json:"message_count"`
	FileCount        int              `json:"file_count"`
	ChunkBytes       map[string]int64 `json:"chunk_bytes"`
	UniqueSources    int64            `json:"unique_sources"`
	AverageRelevance float64          `json:"average_relevance"`
}

func (s *SessionService) CreateSession(ctx context.Context, input CreateSessionInput) (*model.ChatSession, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperr.Validation("create session", "title must not be blank")
	}

	now := s.now()
	session := &model.ChatSession{
		ID:        uuid.NewString(),
		Title:     title,
		Category:  normalizeCategory(input.Category),
		CreatedAt: now,
		UpdatedAt: now,
		IsActive:  true,
	}
	if err := s.stores.Sessions.Create(ctx, session); err != nil {
		return nil, apperr.Persistence("create session", err)
	}
	return session, nil
}

func (s *SessionService) ListSessions(ctx context.Context, activeOnly bool) ([]model.ChatSession, error) {
	sessions, err := s.stores.Sessions.List(ctx, activeOnly)
	if err != nil {
		return nil, apperr.Persistence("list sessions", err)
	}
	return sessions, nil
}

func (s *SessionService) GetSession(ctx context.Context, id string) (*model.ChatSession, error) {
	session, err := s.stores.Sessions.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Persistence("get session", err)
	}
	if session == nil {
		return nil, apperr.NotFound("get session", "session not found")
	}
	return session, nil
}

// UpdateSession writes the given fields. With no field given it is a no-op
// and reports false.
func (s *SessionService) UpdateSession(ctx context.Context, input UpdateSessionInput) (bool, error) {
	if input.Title == nil && input.Category == nil {
		return false, nil
	}

	fields := make(map[string]any, 2)
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return false, apperr.Validation("update session", "title must not be blank")
		}
		fields["title"] = title
	}
	if input.Category != nil {
		fields["category"] = normalizeCategory(input.Category)
	}

	ok, err := s.stores.Sessions.Update(ctx, input.ID, fields, s.now())
	if err != nil {
		return false, apperr.Persistence("update session", err)
	}
	if !ok {
		return false, apperr.NotFound("update session", "session not found")
	}
	return true, nil
}

// SoftDeleteSession hides the session from every read. An already inactive
// session reports false.
func (s *SessionService) SoftDeleteSession(ctx context.Context, id string) (bool, error) {
	ok, err := s.stores.Sessions.SoftDelete(ctx, id, s.now())
	if err != nil {
		return false, apperr.Persistence("soft delete session", err)
	}
	if !ok {
		existing, err := s.stores.Sessions.GetAny(ctx, id)
		if err != nil {
			return false, apperr.Persistence("soft delete session", err)
		}
		if existing == nil {
			return false, apperr.NotFound("soft delete session", "session not found")
		}
		return false, nil
	}
	s.dropHistory(ctx, id)
	return true, nil
}

// DeleteSession removes the session and everything it owns. Database rows go
// in one transaction; stage, search index and cache are cleaned afterwards,
// each step idempotent, so a failed cleanup is repaired by calling again.
func (s *SessionService) DeleteSession(ctx context.Context, id string) error {
	existing, err := s.stores.Sessions.GetAny(ctx, id)
	if err != nil {
		return apperr.Persistence("delete session", err)
	}
	if existing == nil {
		return apperr.NotFound("delete session", "session not found")
	}

	now := s.now()
	err = s.stores.Transaction(ctx, func(tx *repository.Stores) error {
		if err := tx.Chunks.DeleteBySessionID(ctx, id); err != nil {
			return err
		}
		if err := tx.Sources.DeleteBySessionID(ctx, id); err != nil {
			return err
		}
		if _, err := tx.Messages.DeleteBySessionID(ctx, id); err != nil {
			return err
		}
		if err := tx.Files.DeleteBySessionID(ctx, id); err != nil {
			return err
		}
		_, err := tx.Sessions.SoftDelete(ctx, id, now)
		return err
	})
	if err != nil {
		return apperr.Persistence("delete session", err)
	}
	s.dropHistory(ctx, id)

	var cleanup []error
	if err := s.stage.Remove(ctx, id, ""); err != nil {
		s.metrics.ObserveCleanupError("stage")
		cleanup = append(cleanup, err)
	}
	if err := s.indexer.DeleteNamespace(ctx, id); err != nil {
		s.metrics.ObserveCleanupError("index")
		cleanup = append(cleanup, err)
	}
	if len(cleanup) > 0 {
		joined := errors.Join(cleanup...)
		s.log.Error("session cleanup incomplete", zap.String("session_id", id), zap.Error(joined))
		return apperr.External("delete session cleanup", joined)
	}

	s.log.Info("session deleted", zap.String("session_id", id))
	return nil
}

func (s *SessionService) SessionStats(ctx context.Context, id string) (*SessionStats, error) {
	if _, err := s.GetSession(ctx, id); err != nil {
		return nil, err
	}

	count, err := s.stores.Messages.CountBySessionID(ctx, id)
	if err != nil {
		return nil, apperr.Persistence("session stats", err)
	}
	paths, err := s.stores.Files.ListPaths(ctx, id)
	if err != nil {
		return nil, apperr.Persistence("session stats", err)
	}
	chunkBytes, err := s.stores.Chunks.Statistics(ctx, id)
	if err != nil {
		return nil, apperr.Persistence("session stats", err)
	}
	unique, avg, err := s.stores.Sources.SourceStats(ctx, id)
	if err != nil {
		return nil, apperr.Persistence("session stats", err)
	}

	return &SessionStats{
		MessageCount:     count,
		FileCount:        len(paths),
		ChunkBytes:       chunkBytes,
		UniqueSources:    unique,
		AverageRelevance: avg,
	}, nil
}

func (s *SessionService) dropHistory(ctx context.Context, id string) {
	if s.history == nil {
		return
	}
	if err := s.history.MarkDirty(ctx, id); err != nil {
		s.log.Warn("mark history dirty failed", zap.String("session_id", id), zap.Error(err))
	}
	if err := s.history.DeleteHistory(ctx, id); err != nil {
		s.log.Warn("drop cached history failed", zap.String("session_id", id), zap.Error(err))
	}
}

func normalizeCategory(category *string) *string {
	if category == nil {
		return nil
	}
	c := strings.TrimSpace(*category)
	if c == "" {
		return nil
	}
	return &c
}
