// Package stage stores uploaded source files in per-session namespaces of a
// blob store.
package stage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"notebookrag/internal/model"
)

var (
	ErrNotFound    = errors.New("stage object not found")
	ErrInvalidName = errors.New("invalid stage object name")
)

// Gateway is a namespaced blob store. Namespace is the session id.
type Gateway interface {
	// Put uploads the file at localPath as <namespace>/<base name>, overwriting.
	Put(ctx context.Context, localPath, namespace string) (model.StageFile, error)
	List(ctx context.Context, namespace string) ([]model.StageFile, error)
	// Remove deletes one file, or the whole namespace when fileName is empty.
	// Absent targets are not an error.
	Remove(ctx context.Context, namespace, fileName string) error
	Open(ctx context.Context, namespace, fileName string) (io.ReadCloser, error)
	// PresignedURL returns a time-limited download URL for "<namespace>/<name>".
	PresignedURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error)
	// URI is the stable, non-expiring address stored on chunk rows.
	URI(namespace, fileName string) string
	Ping(ctx context.Context) error
	Close() error
}

// ObjectPath joins namespace and file name after validating both.
func ObjectPath(namespace, fileName string) (string, error) {
	if err := validSegment(namespace); err != nil {
		return "", err
	}
	if err := validSegment(fileName); err != nil {
		return "", err
	}
	return namespace + "/" + fileName, nil
}

// SplitObjectPath is the inverse of ObjectPath.
func SplitObjectPath(objectPath string) (namespace, fileName string, err error) {
	namespace, fileName, ok := strings.Cut(strings.TrimPrefix(objectPath, "/"), "/")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidName, objectPath)
	}
	if _, err := ObjectPath(namespace, fileName); err != nil {
		return "", "", err
	}
	return namespace, fileName, nil
}

func validSegment(s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) || path.Clean(s) != s {
		return fmt.Errorf("%w: %q", ErrInvalidName, s)
	}
	return nil
}

// Stats summarizes a namespace listing.
func Stats(files []model.StageFile) model.StageStats {
	stats := model.StageStats{TotalFiles: len(files)}
	for _, f := range files {
		stats.TotalBytes += f.Size
	}
	if stats.TotalFiles > 0 {
		stats.AverageSize = float64(stats.TotalBytes) / float64(stats.TotalFiles)
	}
	return stats
}
