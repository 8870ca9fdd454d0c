package index

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RobMal123/ai-helpdesk-chatbot/internal/engine"
	cerr "github.com/RobMal123/ai-helpdesk-chatbot/internal/errors"
	"github.com/RobMal123/ai-helpdesk-chatbot/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func docsNamed(ids ...string) []engine.Document {
	docs := make([]engine.Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, engine.Document{
			ID:         id,
			SourceURI:  "kb/" + id + ".md",
			Text:       "Answer text for " + id + " covering password reset steps.",
			IngestedAt: time.Now(),
		})
	}
	return docs
}

func TestRebuild_PublishesSnapshot(t *testing.T) {
	m := NewManager(store.NewBleveEngine(), t.TempDir(), testLogger())
	defer m.Close()

	require.Nil(t, m.Current())
	assert.False(t, m.Available())

	snap, err := m.Rebuild(context.Background(), docsNamed("a", "b"))
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Same(t, snap, m.Current())
	assert.Equal(t, 2, snap.DocumentCount())
	assert.True(t, m.Available())
}

func TestRebuild_EmptyDocsSkipsAndKeepsCurrent(t *testing.T) {
	m := NewManager(store.NewBleveEngine(), t.TempDir(), testLogger())
	defer m.Close()

	first, err := m.Rebuild(context.Background(), docsNamed("a"))
	require.NoError(t, err)

	snap, err := m.Rebuild(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.Same(t, first, m.Current(), "skipped rebuild must not touch the published snapshot")
}

func TestRebuild_WritesPointerFile(t *testing.T) {
	dataDir := t.TempDir()
	m := NewManager(store.NewBleveEngine(), dataDir, testLogger())
	defer m.Close()

	snap, err := m.Rebuild(context.Background(), docsNamed("a"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dataDir, "index", "CURRENT"))
	require.NoError(t, err)
	assert.Equal(t, snap.ID(), strings.TrimSpace(string(data)))
}

func TestLoadOrInitialize_RestoresPublishedGeneration(t *testing.T) {
	dataDir := t.TempDir()

	m1 := NewManager(store.NewBleveEngine(), dataDir, testLogger())
	published, err := m1.Rebuild(context.Background(), docsNamed("a", "b", "c"))
	require.NoError(t, err)
	require.NoError(t, m1.Close())

	m2 := NewManager(store.NewBleveEngine(), dataDir, testLogger())
	defer m2.Close()
	require.NoError(t, m2.LoadOrInitialize(context.Background()))

	restored := m2.Current()
	require.NotNil(t, restored)
	assert.Equal(t, published.ID(), restored.ID())
	assert.Equal(t, 3, restored.DocumentCount())
}

func TestLoadOrInitialize_MissingPointerStartsDegraded(t *testing.T) {
	m := NewManager(store.NewBleveEngine(), t.TempDir(), testLogger())
	defer m.Close()

	require.NoError(t, m.LoadOrInitialize(context.Background()))
	assert.Nil(t, m.Current())
}

func TestLoadOrInitialize_CorruptGenerationStartsDegraded(t *testing.T) {
	dataDir := t.TempDir()
	indexDir := filepath.Join(dataDir, "index")
	require.NoError(t, os.MkdirAll(filepath.Join(indexDir, "gen-broken"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(indexDir, "CURRENT"), []byte("gen-broken\n"), 0o644))

	var alerted bool
	m := NewManager(store.NewBleveEngine(), dataDir, testLogger(),
		WithDegradedFunc(func(ctx context.Context, title, message string) { alerted = true }))
	defer m.Close()

	require.NoError(t, m.LoadOrInitialize(context.Background()))
	assert.Nil(t, m.Current(), "corrupt generation must not be published")
	assert.True(t, alerted)
}

// failingDiskEngine fails persisted builds but allows in-memory ones.
type failingDiskEngine struct {
	inner engine.Engine
}

func (f *failingDiskEngine) Build(ctx context.Context, docs []engine.Document, dir string) (*engine.Snapshot, error) {
	if dir != "" {
		return nil, cerr.BuildError("disk full", fmt.Errorf("disk full"))
	}
	return f.inner.Build(ctx, docs, dir)
}

func (f *failingDiskEngine) Retrieve(ctx context.Context, snap *engine.Snapshot, query string, limit int) ([]engine.Passage, error) {
	return f.inner.Retrieve(ctx, snap, query, limit)
}

func (f *failingDiskEngine) Load(ctx context.Context, dir string) (*engine.Snapshot, error) {
	return f.inner.Load(ctx, dir)
}

func (f *failingDiskEngine) Close(snap *engine.Snapshot) error {
	return f.inner.Close(snap)
}

func TestRebuild_PersistFailureFallsBackToMemory(t *testing.T) {
	var alerts []string
	m := NewManager(&failingDiskEngine{inner: store.NewBleveEngine()}, t.TempDir(), testLogger(),
		WithDegradedFunc(func(ctx context.Context, title, message string) {
			alerts = append(alerts, title)
		}))
	defer m.Close()

	snap, err := m.Rebuild(context.Background(), docsNamed("a"))
	require.NoError(t, err, "persistence failure must not fail the rebuild")
	require.NotNil(t, snap)

	assert.Empty(t, snap.Dir(), "fallback snapshot is in-memory")
	assert.Same(t, snap, m.Current())
	require.NotEmpty(t, alerts)
	assert.Contains(t, alerts[0], "persistence")
}

func TestRebuild_ReadersNeverSeeTornState(t *testing.T) {
	eng := store.NewBleveEngine()
	m := NewManager(eng, t.TempDir(), testLogger())
	defer m.Close()

	_, err := m.Rebuild(context.Background(), docsNamed("a", "b"))
	require.NoError(t, err)

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := m.Current()
				if !assert.NotNil(t, snap) {
					return
				}
				count := snap.DocumentCount()
				assert.True(t, count == 2 || count == 3,
					"snapshot must be a complete generation, got %d docs", count)
				_, err := eng.Retrieve(context.Background(), snap, "password reset", 2)
				assert.NoError(t, err)
			}
		}()
	}

	for i := 0; i < 3; i++ {
		_, err := m.Rebuild(context.Background(), docsNamed("a", "b", "c"))
		require.NoError(t, err)
	}
	close(done)
	wg.Wait()
}

func TestRebuild_PrunesStaleGenerations(t *testing.T) {
	dataDir := t.TempDir()
	m := NewManager(store.NewBleveEngine(), dataDir, testLogger())
	defer m.Close()

	for i := 0; i < 4; i++ {
		_, err := m.Rebuild(context.Background(), docsNamed("a", "b"))
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(filepath.Join(dataDir, "index"))
	require.NoError(t, err)

	var gens int
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "gen-") {
			gens++
		}
	}
	assert.LessOrEqual(t, gens, 1+retainedGenerations)
}
