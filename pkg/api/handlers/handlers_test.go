package handlers

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/mnemod/mnemod/pkg/llm"
	"github.com/mnemod/mnemod/pkg/memory"
)

type nopLogger struct{}

func (n *nopLogger) Debug(msg string, args ...any) {}
func (n *nopLogger) Info(msg string, args ...any)  {}
func (n *nopLogger) Warn(msg string, args ...any)  {}
func (n *nopLogger) Error(msg string, args ...any) {}

// stubEmbedder returns a fixed vector for any input.
type stubEmbedder struct {
	fail error
}

func (e *stubEmbedder) Name() string { return "stub" }

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.fail != nil {
		return nil, e.fail
	}
	return []float32{1, 0, 0}, nil
}

// stubChat returns a fixed reply or error.
type stubChat struct {
	reply string
	err   error
}

func (c *stubChat) Name() string { return "stub" }

func (c *stubChat) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &llm.Response{Text: c.reply, Model: "stub-model", InputTokens: 10, OutputTokens: 5}, nil
}

func setupStore(t *testing.T) (*memory.Store, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", "mnemod-handler-*")
	if err != nil {
		t.Fatal(err)
	}
	opts := dgbadger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := dgbadger.Open(opts)
	if err != nil {
		os.RemoveAll(dir)
		t.Fatal(err)
	}

	ts := memory.NewTieredStorage(memory.NewL1Cache(100), memory.NewL2Badger(db))
	store := memory.NewStore(ts, memory.NewInMemoryIndex(3), &stubEmbedder{})

	cleanup := func() {
		db.Close()        //nolint:errcheck
		os.RemoveAll(dir) //nolint:errcheck
	}
	return store, cleanup
}

func setupFailingEmbedStore(t *testing.T) (*memory.Store, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", "mnemod-handler-*")
	if err != nil {
		t.Fatal(err)
	}
	opts := dgbadger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := dgbadger.Open(opts)
	if err != nil {
		os.RemoveAll(dir)
		t.Fatal(err)
	}

	embedder := &stubEmbedder{fail: &llm.ProviderError{
		Provider:   "stub",
		StatusCode: http.StatusInternalServerError,
		Err:        errors.New("embeddings unavailable"),
	}}
	ts := memory.NewTieredStorage(memory.NewL1Cache(100), memory.NewL2Badger(db))
	store := memory.NewStore(ts, memory.NewInMemoryIndex(3), embedder)

	cleanup := func() {
		db.Close()        //nolint:errcheck
		os.RemoveAll(dir) //nolint:errcheck
	}
	return store, cleanup
}

func setupOrchestrator(t *testing.T, chat llm.ChatProvider) (*memory.Orchestrator, *memory.Store, func()) {
	t.Helper()

	store, cleanup := setupStore(t)
	buffer := memory.NewBuffer(4)
	summarizer := memory.NewSummarizer(&stubChat{reply: `{"topics": ["greeting"], "facts": ["the user said hello"], "open_threads": []}`}, "")
	orch := memory.NewOrchestrator(store, buffer, summarizer, chat, memory.OrchestratorConfig{})
	return orch, store, cleanup
}

func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
