package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"notebookrag/internal/ingest"
	"notebookrag/internal/model"
	"notebookrag/internal/pkg/apperr"
	"notebookrag/internal/repository"
	"notebookrag/internal/retrieval"
	"notebookrag/internal/stage"
)

const DefaultSourceURLTTL = 360 * time.Second

// SourceService manages the files attached to a session: stage objects,
// session links, chunk rows and index entries.
type SourceService struct {
	stores    *repository.Stores
	stage     stage.Gateway
	indexer   retrieval.Indexer
	publisher ingest.Publisher
	log       *zap.Logger
}

func NewSourceService(
	stores *repository.Stores,
	gw stage.Gateway,
	indexer retrieval.Indexer,
	publisher ingest.Publisher,
	log *zap.Logger,
) *SourceService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SourceService{
		stores:    stores,
		stage:     gw,
		indexer:   indexer,
		publisher: publisher,
		log:       log.Named("source"),
	}
}

type UploadFileInput struct {
	SessionID string
	// LocalPath is a temporary file whose base name becomes the file path.
	LocalPath string
	Category  string
}

type UploadResult struct {
	File     model.StageFile `json:"file"`
	FilePath string          `json:"file_path"`
}

// UploadFile stages the file, links it to the session and hands it to
// ingestion. Re-uploading a file name replaces its content and chunks.
func (s *SourceService) UploadFile(ctx context.Context, input UploadFileInput) (*UploadResult, error) {
	if err := s.requireSession(ctx, "upload file", input.SessionID); err != nil {
		return nil, err
	}
	name := filepath.Base(input.LocalPath)
	if _, err := stage.ObjectPath(input.SessionID, name); err != nil {
		return nil, apperr.Validation("upload file", "invalid file name")
	}

	file, err := s.stage.Put(ctx, input.LocalPath, input.SessionID)
	if err != nil {
		return nil, apperr.External("upload file", err)
	}
	if err := s.stores.Files.Link(ctx, input.SessionID, name); err != nil {
		if rmErr := s.stage.Remove(ctx, input.SessionID, name); rmErr != nil {
			s.log.Warn("remove unlinked upload failed", zap.String("file", name), zap.Error(rmErr))
		}
		return nil, apperr.Persistence("upload file", err)
	}

	job := model.IngestJob{SessionID: input.SessionID, FileName: name, Category: strings.TrimSpace(input.Category)}
	if err := s.publisher.Publish(ctx, job); err != nil {
		// a file that never made it into the index must not stay in scope
		if cleanupErr := s.discardFile(ctx, input.SessionID, name); cleanupErr != nil {
			s.log.Warn("discard failed upload failed", zap.String("file", name), zap.Error(cleanupErr))
		}
		switch {
		case errors.Is(err, ingest.ErrNoText):
			return nil, apperr.Validation("upload file", "document has no extractable text")
		case errors.Is(err, ingest.ErrUnsupported):
			return nil, apperr.Validation("upload file", "unsupported document format")
		}
		return nil, apperr.External("ingest file", err)
	}

	s.log.Info("file uploaded", zap.String("session_id", input.SessionID), zap.String("file", name))
	return &UploadResult{File: file, FilePath: name}, nil
}

// LinkFile adds filePath to the session's retrieval scope. Linking twice is a
// no-op.
func (s *SourceService) LinkFile(ctx context.Context, sessionID, filePath string) error {
	if err := s.requireSession(ctx, "link file", sessionID); err != nil {
		return err
	}
	if strings.TrimSpace(filePath) == "" {
		return apperr.Validation("link file", "file path must not be blank")
	}
	if err := s.stores.Files.Link(ctx, sessionID, filePath); err != nil {
		return apperr.Persistence("link file", err)
	}
	return nil
}

// FilesForSession is exactly the retrieval scope of the session.
func (s *SourceService) FilesForSession(ctx context.Context, sessionID string) ([]string, error) {
	paths, err := s.stores.Files.ListPaths(ctx, sessionID)
	if err != nil {
		return nil, apperr.Persistence("files for session", err)
	}
	return paths, nil
}

func (s *SourceService) ChunkStatistics(ctx context.Context, sessionID string) (map[string]int64, error) {
	stats, err := s.stores.Chunks.Statistics(ctx, sessionID)
	if err != nil {
		return nil, apperr.Persistence("chunk statistics", err)
	}
	return stats, nil
}

func (s *SourceService) UnlinkSession(ctx context.Context, sessionID string) error {
	if err := s.stores.Files.DeleteBySessionID(ctx, sessionID); err != nil {
		return apperr.Persistence("unlink session", err)
	}
	return nil
}

func (s *SourceService) ListStageFiles(ctx context.Context, sessionID string) ([]model.StageFile, error) {
	if err := s.requireSession(ctx, "list stage files", sessionID); err != nil {
		return nil, err
	}
	files, err := s.stage.List(ctx, sessionID)
	if err != nil {
		return nil, apperr.External("list stage files", err)
	}
	return files, nil
}

func (s *SourceService) StageStats(ctx context.Context, sessionID string) (model.StageStats, error) {
	files, err := s.ListStageFiles(ctx, sessionID)
	if err != nil {
		return model.StageStats{}, err
	}
	return stage.Stats(files), nil
}

// SourceURL presigns a download link for a file linked to the session.
func (s *SourceService) SourceURL(ctx context.Context, sessionID, filePath string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultSourceURLTTL
	}
	linked, err := s.stores.Files.Exists(ctx, sessionID, filePath)
	if err != nil {
		return "", apperr.Persistence("source url", err)
	}
	if !linked {
		return "", apperr.NotFound("source url", "file not linked to session")
	}
	objectPath, err := stage.ObjectPath(sessionID, filePath)
	if err != nil {
		return "", apperr.Validation("source url", "invalid file name")
	}
	url, err := s.stage.PresignedURL(ctx, objectPath, ttl)
	if err != nil {
		return "", apperr.External("source url", err)
	}
	return url, nil
}

// RemoveFile drops one file from the session. The stage object and index
// entries go first and both are attempted; the link and chunk rows are only
// deleted once they succeeded, so a failed removal can be re-issued.
func (s *SourceService) RemoveFile(ctx context.Context, sessionID, filePath string) error {
	if err := s.requireSession(ctx, "remove file", sessionID); err != nil {
		return err
	}
	linked, err := s.stores.Files.Exists(ctx, sessionID, filePath)
	if err != nil {
		return apperr.Persistence("remove file", err)
	}
	if !linked {
		return apperr.NotFound("remove file", "file not linked to session")
	}
	return s.discardFile(ctx, sessionID, filePath)
}

func (s *SourceService) discardFile(ctx context.Context, sessionID, filePath string) error {
	var errs []error
	if err := s.stage.Remove(ctx, sessionID, filePath); err != nil {
		errs = append(errs, fmt.Errorf("remove stage object: %w", err))
	}
	if err := s.indexer.DeleteFile(ctx, sessionID, filePath); err != nil {
		errs = append(errs, fmt.Errorf("delete index entries: %w", err))
	}
	if len(errs) > 0 {
		return apperr.External("remove file", errors.Join(errs...))
	}

	err := s.stores.Transaction(ctx, func(tx *repository.Stores) error {
		if err := tx.Chunks.DeleteByFile(ctx, sessionID, filePath); err != nil {
			return err
		}
		return tx.Files.Delete(ctx, sessionID, filePath)
	})
	if err != nil {
		return apperr.Persistence("remove file", err)
	}
	return nil
}

func (s *SourceService) requireSession(ctx context.Context, op, sessionID string) error {
	session, err := s.stores.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return apperr.Persistence(op, err)
	}
	if session == nil {
		return apperr.NotFound(op, "session not found")
	}
	return nil
}
