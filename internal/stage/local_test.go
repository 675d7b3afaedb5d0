package stage

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) *LocalGateway {
	t.Helper()
	g, err := NewLocalGateway(filepath.Join(t.TempDir(), "stage"), "http://notes.local/", "secret")
	require.NoError(t, err)
	return g
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLocalPutListOpen(t *testing.T) {
	ctx := context.Background()
	g := newLocal(t)

	f, err := g.Put(ctx, writeTemp(t, "thermo.pdf", "heat"), "s-1")
	require.NoError(t, err)
	assert.Equal(t, "thermo.pdf", f.Name)
	assert.EqualValues(t, 4, f.Size)
	assert.Len(t, f.MD5, 32)

	_, err = g.Put(ctx, writeTemp(t, "notes.txt", "ab"), "s-1")
	require.NoError(t, err)

	files, err := g.List(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, files, 2)

	stats := Stats(files)
	assert.Equal(t, 2, stats.TotalFiles)
	assert.EqualValues(t, 6, stats.TotalBytes)
	assert.InDelta(t, 3.0, stats.AverageSize, 1e-9)

	other, err := g.List(ctx, "s-2")
	require.NoError(t, err)
	assert.Empty(t, other)

	rc, err := g.Open(ctx, "s-1", "thermo.pdf")
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "heat", string(body))

	_, err = g.Open(ctx, "s-2", "thermo.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalRemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	g := newLocal(t)
	_, err := g.Put(ctx, writeTemp(t, "a.txt", "a"), "s-1")
	require.NoError(t, err)

	require.NoError(t, g.Remove(ctx, "s-1", "a.txt"))
	require.NoError(t, g.Remove(ctx, "s-1", "a.txt"))

	_, err = g.Put(ctx, writeTemp(t, "b.txt", "b"), "s-1")
	require.NoError(t, err)
	require.NoError(t, g.Remove(ctx, "s-1", ""))
	require.NoError(t, g.Remove(ctx, "s-1", ""))

	files, err := g.List(ctx, "s-1")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestLocalRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	g := newLocal(t)
	assert.ErrorIs(t, g.Remove(ctx, "..", ""), ErrInvalidName)
	_, err := g.Open(ctx, "s-1", "../secret")
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = g.PresignedURL(ctx, "s-1", time.Minute)
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestLocalPresignedURL(t *testing.T) {
	g := newLocal(t)
	now := time.Unix(1_700_000_000, 0)
	g.now = func() time.Time { return now }

	raw, err := g.PresignedURL(context.Background(), "s-1/thermo.pdf", 360*time.Second)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "http://notes.local/api/v1/stage/s-1/thermo.pdf?"))

	u, err := url.Parse(raw)
	require.NoError(t, err)
	exp, sig := u.Query().Get("expires"), u.Query().Get("signature")
	assert.Equal(t, "1700000360", exp)

	require.NoError(t, g.Verify("s-1", "thermo.pdf", exp, sig))
	assert.ErrorIs(t, g.Verify("s-2", "thermo.pdf", exp, sig), ErrBadSignature)
	assert.ErrorIs(t, g.Verify("s-1", "thermo.pdf", "1700000999", sig), ErrBadSignature)

	now = now.Add(361 * time.Second)
	assert.ErrorIs(t, g.Verify("s-1", "thermo.pdf", exp, sig), ErrBadSignature)
}
