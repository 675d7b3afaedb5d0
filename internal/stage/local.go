package stage

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"notebookrag/internal/model"
)

var ErrBadSignature = errors.New("invalid or expired download signature")

// LocalGateway keeps namespaces as directories under root and hands out
// HMAC-signed download links served by this service.
type LocalGateway struct {
	root       string
	publicURL  string
	signingKey []byte
	now        func() time.Time
}

func NewLocalGateway(root, publicURL, signingKey string) (*LocalGateway, error) {
	if signingKey == "" {
		return nil, errors.New("stage signing key is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create stage dir failed: %w", err)
	}
	return &LocalGateway{
		root:       root,
		publicURL:  strings.TrimRight(publicURL, "/"),
		signingKey: []byte(signingKey),
		now:        time.Now,
	}, nil
}

func (g *LocalGateway) Put(_ context.Context, localPath, namespace string) (model.StageFile, error) {
	name := filepath.Base(localPath)
	key, err := ObjectPath(namespace, name)
	if err != nil {
		return model.StageFile{}, err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return model.StageFile{}, fmt.Errorf("open local file failed: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Join(g.root, namespace), 0o755); err != nil {
		return model.StageFile{}, fmt.Errorf("create namespace failed: %w", err)
	}
	dst := filepath.Join(g.root, filepath.FromSlash(key))
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return model.StageFile{}, fmt.Errorf("create stage file failed: %w", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return model.StageFile{}, fmt.Errorf("write stage file failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return model.StageFile{}, fmt.Errorf("write stage file failed: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return model.StageFile{}, fmt.Errorf("commit stage file failed: %w", err)
	}
	return statFile(dst)
}

func (g *LocalGateway) List(_ context.Context, namespace string) ([]model.StageFile, error) {
	if err := validSegment(namespace); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(g.root, namespace))
	if errors.Is(err, fs.ErrNotExist) {
		return []model.StageFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list stage %s failed: %w", namespace, err)
	}

	files := make([]model.StageFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".upload-") {
			continue
		}
		f, err := statFile(filepath.Join(g.root, namespace, e.Name()))
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func (g *LocalGateway) Remove(_ context.Context, namespace, fileName string) error {
	target := filepath.Join(g.root, namespace)
	if fileName == "" {
		if err := validSegment(namespace); err != nil {
			return err
		}
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("remove namespace %s failed: %w", namespace, err)
		}
		return nil
	}

	key, err := ObjectPath(namespace, fileName)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(g.root, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s failed: %w", key, err)
	}
	return nil
}

func (g *LocalGateway) Open(_ context.Context, namespace, fileName string) (io.ReadCloser, error) {
	key, err := ObjectPath(namespace, fileName)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(g.root, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open %s failed: %w", key, err)
	}
	return f, nil
}

func (g *LocalGateway) PresignedURL(_ context.Context, objectPath string, ttl time.Duration) (string, error) {
	namespace, fileName, err := SplitObjectPath(objectPath)
	if err != nil {
		return "", err
	}
	expires := g.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", g.sign(namespace+"/"+fileName, expires))
	return fmt.Sprintf("%s/api/v1/stage/%s/%s?%s",
		g.publicURL, url.PathEscape(namespace), url.PathEscape(fileName), q.Encode()), nil
}

// Verify checks a download link produced by PresignedURL.
func (g *LocalGateway) Verify(namespace, fileName, expires, signature string) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || g.now().Unix() > exp {
		return ErrBadSignature
	}
	want := g.sign(namespace+"/"+fileName, exp)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}

func (g *LocalGateway) sign(objectPath string, expires int64) string {
	mac := hmac.New(sha256.New, g.signingKey)
	fmt.Fprintf(mac, "%s\n%d", objectPath, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *LocalGateway) URI(namespace, fileName string) string {
	return "stage://" + namespace + "/" + fileName
}

func (g *LocalGateway) Ping(context.Context) error {
	_, err := os.Stat(g.root)
	return err
}

func (g *LocalGateway) Close() error { return nil }

func statFile(p string) (model.StageFile, error) {
	f, err := os.Open(p)
	if err != nil {
		return model.StageFile{}, fmt.Errorf("stat stage file failed: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return model.StageFile{}, fmt.Errorf("stat stage file failed: %w", err)
	}
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return model.StageFile{}, fmt.Errorf("hash stage file failed: %w", err)
	}
	return model.StageFile{
		Name:         info.Name(),
		Size:         info.Size(),
		MD5:          hex.EncodeToString(h.Sum(nil)),
		LastModified: info.ModTime().UTC(),
	}, nil
}
