package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"notebookrag/internal/ingest"
	"notebookrag/internal/model"
	"notebookrag/internal/platform/database"
	"notebookrag/internal/rag"
	"notebookrag/internal/repository"
	"notebookrag/internal/retrieval"
	"notebookrag/internal/stage"
)

type corpusHit struct {
	namespace string
	fragment  retrieval.Fragment
}

// fakeSearcher honors the namespace and path filter like a real backend.
type fakeSearcher struct {
	mu      sync.Mutex
	corpus  []corpusHit
	calls   int
	queries []string
	err     error
}

func (f *fakeSearcher) Search(_ context.Context, q retrieval.Query) ([]retrieval.Fragment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.queries = append(f.queries, q.Text)
	if f.err != nil {
		return nil, f.err
	}
	allowed := map[string]bool{}
	for _, p := range q.Filter.Paths {
		allowed[p] = true
	}
	var out []retrieval.Fragment
	for _, h := range f.corpus {
		if h.namespace == q.Filter.Namespace && allowed[h.fragment.RelativePath] {
			out = append(out, h.fragment)
		}
	}
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

type fakeIndexer struct {
	mu             sync.Mutex
	indexed        []model.DocChunk
	deletedFiles   []string
	deletedSpaces  []string
	namespaceError error
	indexError     error
}

func (f *fakeIndexer) Index(_ context.Context, chunks []model.DocChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexError != nil {
		return f.indexError
	}
	f.indexed = append(f.indexed, chunks...)
	return nil
}

func (f *fakeIndexer) DeleteFile(_ context.Context, namespace, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedFiles = append(f.deletedFiles, namespace+"/"+path)
	return nil
}

func (f *fakeIndexer) DeleteNamespace(_ context.Context, namespace string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedSpaces = append(f.deletedSpaces, namespace)
	return f.namespaceError
}

type stubLLM struct {
	reply string
	err   error
	block bool
	hook  func()
	calls int
}

func (s *stubLLM) Complete(ctx context.Context, _ string) (string, error) {
	s.calls++
	if s.hook != nil {
		s.hook()
	}
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.reply, s.err
}

type fixture struct {
	db       *gorm.DB
	stores   *repository.Stores
	stage    *stage.LocalGateway
	searcher *fakeSearcher
	indexer  *fakeIndexer
	rewriter *stubLLM
	answerer *stubLLM
	sessions *SessionService
	messages *MessageService
	sources  *SourceService
	rag      *RAGService
}

func newFixture(t *testing.T, policy rag.WindowPolicy) *fixture {
	t.Helper()
	db, err := database.New(context.Background(), "sqlite", ":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })

	gw, err := stage.NewLocalGateway(t.TempDir(), "http://localhost:8080", "test-key")
	require.NoError(t, err)

	f := &fixture{
		db:       db,
		stores:   repository.NewStores(db),
		stage:    gw,
		searcher: &fakeSearcher{},
		indexer:  &fakeIndexer{},
		rewriter: &stubLLM{reply: "standalone query"},
		answerer: &stubLLM{reply: "I don't have that information."},
	}
	log := zap.NewNop()
	f.sessions = NewSessionService(f.stores, gw, f.indexer, nil, nil, log)
	f.messages = NewMessageService(f.stores, nil, 7, policy, log)
	ingestSvc := ingest.NewService(gw, f.stores.Chunks, f.indexer, ingest.Options{ChunkSize: 200, ChunkOverlap: 20}, nil, log)
	f.sources = NewSourceService(f.stores, gw, f.indexer, ingest.NewInlinePublisher(ingestSvc), log)
	f.rag = NewRAGService(
		f.stores,
		f.messages,
		retrieval.NewEngine(f.searcher, retrieval.DefaultTopK, log),
		rag.NewRewriter(f.rewriter, log),
		rag.NewGenerator(f.answerer),
		gw,
		RAGOptions{CallTimeout: time.Second},
		nil,
		log,
	)
	return f
}

func (f *fixture) createSession(t *testing.T, title string) *model.ChatSession {
	t.Helper()
	s, err := f.sessions.CreateSession(context.Background(), CreateSessionInput{Title: title})
	require.NoError(t, err)
	return s
}

func (f *fixture) upload(t *testing.T, sessionID, name, content string) {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	_, err := f.sources.UploadFile(context.Background(), UploadFileInput{SessionID: sessionID, LocalPath: p})
	require.NoError(t, err)
}

// clock returns a now func that advances one second per call.
func clock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
}
