package stage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"notebookrag/internal/model"
)

type GCSGateway struct {
	client *storage.Client
	bucket string
}

func NewGCSGateway(ctx context.Context, bucket, credentialsFile string) (*GCSGateway, error) {
	if bucket == "" {
		return nil, errors.New("stage bucket is required")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err != nil {
			return nil, fmt.Errorf("stage credentials file: %w", err)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client failed: %w", err)
	}
	return &GCSGateway{client: client, bucket: bucket}, nil
}

func (g *GCSGateway) Put(ctx context.Context, localPath, namespace string) (model.StageFile, error) {
	name := filepath.Base(localPath)
	key, err := ObjectPath(namespace, name)
	if err != nil {
		return model.StageFile{}, err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return model.StageFile{}, fmt.Errorf("open local file failed: %w", err)
	}
	defer f.Close()

	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return model.StageFile{}, fmt.Errorf("upload %s failed: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return model.StageFile{}, fmt.Errorf("finalize upload %s failed: %w", key, err)
	}
	return toStageFile(w.Attrs(), namespace), nil
}

func (g *GCSGateway) List(ctx context.Context, namespace string) ([]model.StageFile, error) {
	if err := validSegment(namespace); err != nil {
		return nil, err
	}
	files := []model.StageFile{}
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: namespace + "/"})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list stage %s failed: %w", namespace, err)
		}
		files = append(files, toStageFile(attrs, namespace))
	}
	return files, nil
}

func (g *GCSGateway) Remove(ctx context.Context, namespace, fileName string) error {
	if fileName != "" {
		key, err := ObjectPath(namespace, fileName)
		if err != nil {
			return err
		}
		return g.deleteObject(ctx, key)
	}

	files, err := g.List(ctx, namespace)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := g.deleteObject(ctx, namespace+"/"+f.Name); err != nil {
			return err
		}
	}
	return nil
}

func (g *GCSGateway) deleteObject(ctx context.Context, key string) error {
	err := g.client.Bucket(g.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete %s failed: %w", key, err)
	}
	return nil
}

func (g *GCSGateway) Open(ctx context.Context, namespace, fileName string) (io.ReadCloser, error) {
	key, err := ObjectPath(namespace, fileName)
	if err != nil {
		return nil, err
	}
	r, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open %s failed: %w", key, err)
	}
	return r, nil
}

func (g *GCSGateway) PresignedURL(_ context.Context, objectPath string, ttl time.Duration) (string, error) {
	if _, _, err := SplitObjectPath(objectPath); err != nil {
		return "", err
	}
	url, err := g.client.Bucket(g.bucket).SignedURL(strings.TrimPrefix(objectPath, "/"), &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("sign url for %s failed: %w", objectPath, err)
	}
	return url, nil
}

func (g *GCSGateway) URI(namespace, fileName string) string {
	return fmt.Sprintf("gs://%s/%s/%s", g.bucket, namespace, fileName)
}

func (g *GCSGateway) Ping(ctx context.Context) error {
	if _, err := g.client.Bucket(g.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("gcs bucket %s: %w", g.bucket, err)
	}
	return nil
}

func (g *GCSGateway) Close() error {
	return g.client.Close()
}

func toStageFile(attrs *storage.ObjectAttrs, namespace string) model.StageFile {
	if attrs == nil {
		return model.StageFile{}
	}
	return model.StageFile{
		Name:         strings.TrimPrefix(attrs.Name, namespace+"/"),
		Size:         attrs.Size,
		MD5:          hex.EncodeToString(attrs.MD5),
		LastModified: attrs.Updated,
	}
}
