// Package engine defines the pluggable index engine port: building a
// searchable snapshot from documents and retrieving ranked passages
// from it. The production adapter lives in internal/store.
package engine

import (
	"context"
	"time"
)

// Document is a normalized source document ready for indexing.
// Immutable once created.
type Document struct {
	ID         string    `json:"id"`
	SourceURI  string    `json:"source_uri"`
	Text       string    `json:"text"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Passage is a ranked retrieval result with provenance. Ephemeral,
// produced per query.
type Passage struct {
	Text      string  `json:"text"`
	SourceURI string  `json:"source_uri"`
	Score     float64 `json:"score"`
}

// Snapshot is an immutable handle to one built index generation.
// Once published it is never mutated; superseded snapshots stay valid
// for readers that still hold them.
type Snapshot struct {
	id            string
	createdAt     time.Time
	documentCount int
	dir           string
	handle        any
}

// NewSnapshot creates a snapshot handle. The handle value is owned by
// the engine that built it and is opaque to everyone else.
func NewSnapshot(id string, createdAt time.Time, documentCount int, dir string, handle any) *Snapshot {
	return &Snapshot{
		id:            id,
		createdAt:     createdAt,
		documentCount: documentCount,
		dir:           dir,
		handle:        handle,
	}
}

// ID returns the snapshot's unique identifier.
func (s *Snapshot) ID() string { return s.id }

// CreatedAt returns when the snapshot was built.
func (s *Snapshot) CreatedAt() time.Time { return s.createdAt }

// DocumentCount returns the number of documents in the snapshot.
func (s *Snapshot) DocumentCount() int { return s.documentCount }

// Dir returns the backing storage directory. Empty for in-memory
// snapshots that were never persisted.
func (s *Snapshot) Dir() string { return s.dir }

// Handle returns the engine-owned backing handle.
func (s *Snapshot) Handle() any { return s.handle }

// Engine builds, loads, and queries index snapshots.
type Engine interface {
	// Build creates a new snapshot from the full document set. When dir
	// is non-empty the snapshot is persisted there; an empty dir builds
	// in memory only. The returned snapshot is immutable.
	Build(ctx context.Context, docs []Document, dir string) (*Snapshot, error)

	// Retrieve returns up to limit passages ranked by relevance to the
	// query, drawn entirely from the given snapshot.
	Retrieve(ctx context.Context, snap *Snapshot, query string, limit int) ([]Passage, error)

	// Load opens a previously persisted snapshot from dir.
	Load(ctx context.Context, dir string) (*Snapshot, error)

	// Close releases the snapshot's resources.
	Close(snap *Snapshot) error
}
