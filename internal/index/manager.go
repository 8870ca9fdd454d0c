// Package index owns the lifecycle of searchable snapshots: building
// new generations, publishing them atomically, and recovering the last
// published generation on startup.
//
// Publication follows a single-writer, many-reader discipline. Readers
// grab the current snapshot with one atomic load and keep using it for
// the whole query even if a rebuild publishes a newer one mid-flight.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/renameio"
	"github.com/google/uuid"

	"github.com/RobMal123/ai-helpdesk-chatbot/internal/engine"
	cerr "github.com/RobMal123/ai-helpdesk-chatbot/internal/errors"
)

const (
	// currentFileName is the pointer file naming the published generation.
	currentFileName = "CURRENT"
	// lockFileName guards rebuilds across processes.
	lockFileName = "rebuild.lock"
	// genPrefix prefixes generation directory names.
	genPrefix = "gen-"
	// retainedGenerations is how many superseded generation dirs survive
	// pruning, beyond the published one.
	retainedGenerations = 1
)

// DegradedFunc is called when the manager enters or continues a
// degraded condition that should reach an operator.
type DegradedFunc func(ctx context.Context, title, message string)

// Manager publishes and serves index snapshots.
type Manager struct {
	engine  engine.Engine
	dataDir string
	logger  *slog.Logger

	current atomic.Pointer[engine.Snapshot]

	// retired holds superseded snapshots. They stay open because
	// in-flight queries may still hold them; they are closed together
	// when the manager shuts down.
	mu      sync.Mutex
	retired []*engine.Snapshot

	lock     *flock.Flock
	degraded DegradedFunc
}

// Option configures a Manager.
type Option func(*Manager)

// WithDegradedFunc installs a callback for degraded conditions.
func WithDegradedFunc(fn DegradedFunc) Option {
	return func(m *Manager) { m.degraded = fn }
}

// NewManager creates a snapshot manager rooted at dataDir. Generation
// directories live under dataDir/index.
func NewManager(eng engine.Engine, dataDir string, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		engine:  eng,
		dataDir: dataDir,
		logger:  logger.With(slog.String("component", "index")),
		lock:    flock.New(filepath.Join(dataDir, lockFileName)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// indexDir returns the directory holding generation dirs and CURRENT.
func (m *Manager) indexDir() string {
	return filepath.Join(m.dataDir, "index")
}

func (m *Manager) currentPath() string {
	return filepath.Join(m.indexDir(), currentFileName)
}

// Current returns the published snapshot, or nil when no generation
// has been published yet. Callers must treat nil as "index
// unavailable", not as an error.
func (m *Manager) Current() *engine.Snapshot {
	return m.current.Load()
}

// Available reports whether a snapshot is published.
func (m *Manager) Available() bool {
	return m.current.Load() != nil
}

// LoadOrInitialize restores the last published generation from disk.
// A missing or unreadable CURRENT pointer is not an error: the manager
// starts without a snapshot and serving proceeds degraded until the
// first rebuild.
func (m *Manager) LoadOrInitialize(ctx context.Context) error {
	if err := os.MkdirAll(m.indexDir(), 0o755); err != nil {
		return cerr.InternalError(fmt.Sprintf("create index directory: %v", err), err)
	}

	data, err := os.ReadFile(m.currentPath())
	if err != nil {
		if os.IsNotExist(err) {
			m.logger.Info("no published generation, starting without index")
			return nil
		}
		m.logger.Warn("cannot read generation pointer, starting without index",
			slog.String("error", err.Error()))
		return nil
	}

	genName := strings.TrimSpace(string(data))
	if genName == "" || !strings.HasPrefix(genName, genPrefix) {
		m.logger.Warn("generation pointer is malformed, starting without index",
			slog.String("pointer", genName))
		m.notifyDegraded(ctx, "Index pointer malformed",
			fmt.Sprintf("CURRENT contains %q; serving degraded until next rebuild", genName))
		return nil
	}

	snap, err := m.engine.Load(ctx, filepath.Join(m.indexDir(), genName))
	if err != nil {
		m.logger.Warn("published generation failed to load, starting without index",
			slog.String("generation", genName),
			slog.String("error", err.Error()))
		m.notifyDegraded(ctx, "Index load failed",
			fmt.Sprintf("generation %s did not load: %v", genName, err))
		return nil
	}

	m.current.Store(snap)
	m.logger.Info("restored published generation",
		slog.String("generation", snap.ID()),
		slog.Int("documents", snap.DocumentCount()))
	return nil
}

// Rebuild builds a fresh generation from docs and publishes it. The
// previously published snapshot stays valid for readers that already
// hold it.
//
// An empty document set skips the rebuild entirely and leaves the
// current snapshot untouched; the returned snapshot is nil with no
// error. Persistence failures degrade to an in-memory build rather
// than failing the rebuild.
func (m *Manager) Rebuild(ctx context.Context, docs []engine.Document) (*engine.Snapshot, error) {
	if len(docs) == 0 {
		m.logger.Warn("no documents to index, rebuild skipped")
		return nil, nil
	}

	locked, err := m.lock.TryLock()
	if err != nil {
		return nil, cerr.InternalError(fmt.Sprintf("acquire rebuild lock: %v", err), err)
	}
	if !locked {
		return nil, cerr.New(cerr.ErrCodeJobBusy, "another rebuild holds the lock", nil)
	}
	defer func() {
		if err := m.lock.Unlock(); err != nil {
			m.logger.Warn("release rebuild lock", slog.String("error", err.Error()))
		}
	}()

	genName := genPrefix + uuid.NewString()
	genDir := filepath.Join(m.indexDir(), genName)

	start := time.Now()
	snap, err := m.engine.Build(ctx, docs, genDir)
	if err != nil {
		m.logger.Warn("persistent build failed, falling back to in-memory index",
			slog.String("generation", genName),
			slog.String("error", err.Error()))
		m.notifyDegraded(ctx, "Index persistence failed",
			fmt.Sprintf("generation %s could not be persisted: %v; serving from memory", genName, err))
		_ = os.RemoveAll(genDir)

		snap, err = m.engine.Build(ctx, docs, "")
		if err != nil {
			return nil, err
		}
	}

	m.publish(snap)
	m.logger.Info("published generation",
		slog.String("generation", snap.ID()),
		slog.Int("documents", snap.DocumentCount()),
		slog.Duration("elapsed", time.Since(start)))

	if snap.Dir() != "" {
		if err := m.writePointer(snap.ID()); err != nil {
			// Pointer failure loses durability, not availability.
			m.logger.Error("generation pointer write failed",
				slog.String("generation", snap.ID()),
				slog.String("error", err.Error()))
			m.notifyDegraded(ctx, "Index pointer write failed",
				fmt.Sprintf("generation %s is live but will not survive a restart: %v", snap.ID(), err))
		}
		m.pruneGenerations(snap.ID())
	}

	return snap, nil
}

// publish swaps in the new snapshot and retires the old one.
func (m *Manager) publish(snap *engine.Snapshot) {
	old := m.current.Swap(snap)
	if old != nil {
		m.mu.Lock()
		m.retired = append(m.retired, old)
		m.mu.Unlock()
	}
}

// writePointer atomically replaces CURRENT with the generation name.
func (m *Manager) writePointer(genName string) error {
	if err := renameio.WriteFile(m.currentPath(), []byte(genName+"\n"), 0o644); err != nil {
		return cerr.New(cerr.ErrCodeIndexPersist, fmt.Sprintf("write generation pointer: %v", err), err)
	}
	return nil
}

// pruneGenerations removes generation directories that are no longer
// published, keeping the newest retained ones as a rollback cushion.
func (m *Manager) pruneGenerations(currentGen string) {
	entries, err := os.ReadDir(m.indexDir())
	if err != nil {
		m.logger.Warn("prune scan failed", slog.String("error", err.Error()))
		return
	}

	type gen struct {
		name string
		mod  time.Time
	}
	var stale []gen
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), genPrefix) || e.Name() == currentGen {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		stale = append(stale, gen{name: e.Name(), mod: info.ModTime()})
	}

	if len(stale) <= retainedGenerations {
		return
	}

	// Oldest first.
	for i := 0; i < len(stale); i++ {
		for j := i + 1; j < len(stale); j++ {
			if stale[j].mod.Before(stale[i].mod) {
				stale[i], stale[j] = stale[j], stale[i]
			}
		}
	}

	for _, g := range stale[:len(stale)-retainedGenerations] {
		dir := filepath.Join(m.indexDir(), g.name)
		if err := os.RemoveAll(dir); err != nil {
			m.logger.Warn("prune generation failed",
				slog.String("generation", g.name),
				slog.String("error", err.Error()))
			continue
		}
		m.logger.Debug("pruned generation", slog.String("generation", g.name))
	}
}

// Close releases the current and all retired snapshots.
func (m *Manager) Close() error {
	var first error

	if snap := m.current.Swap(nil); snap != nil {
		if err := m.engine.Close(snap); err != nil && first == nil {
			first = err
		}
	}

	m.mu.Lock()
	retired := m.retired
	m.retired = nil
	m.mu.Unlock()

	for _, snap := range retired {
		if err := m.engine.Close(snap); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *Manager) notifyDegraded(ctx context.Context, title, message string) {
	if m.degraded != nil {
		m.degraded(ctx, title, message)
	}
}
