// Package store provides the Bleve-backed index engine adapter.
// Each snapshot generation is a standalone Bleve index directory;
// snapshots are built once and never mutated afterwards.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/RobMal123/ai-helpdesk-chatbot/internal/engine"
	cerr "github.com/RobMal123/ai-helpdesk-chatbot/internal/errors"
)

// BleveEngine implements engine.Engine on Bleve BM25 full-text search.
type BleveEngine struct{}

// NewBleveEngine creates a new Bleve-backed engine.
func NewBleveEngine() *BleveEngine {
	return &BleveEngine{}
}

// bleveDocument is the document structure for Bleve indexing.
type bleveDocument struct {
	Text      string `json:"text"`
	SourceURI string `json:"source_uri"`
}

// createIndexMapping builds the mapping for helpdesk documents: the
// text body is analyzed for BM25 ranking, the source URI is stored
// verbatim for provenance.
func createIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()

	textField := bleve.NewTextFieldMapping()
	textField.Store = true
	docMapping.AddFieldMappingsAt("text", textField)

	uriField := bleve.NewKeywordFieldMapping()
	uriField.Store = true
	docMapping.AddFieldMappingsAt("source_uri", uriField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// Build creates a new snapshot from the full document set.
func (e *BleveEngine) Build(ctx context.Context, docs []engine.Document, dir string) (*engine.Snapshot, error) {
	m := createIndexMapping()

	var idx bleve.Index
	var err error
	if dir == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(dir), 0o755); mkErr != nil {
			return nil, cerr.BuildError(fmt.Sprintf("create generation parent: %v", mkErr), mkErr)
		}
		idx, err = bleve.New(dir, m)
	}
	if err != nil {
		return nil, cerr.BuildError(fmt.Sprintf("create index: %v", err), err)
	}

	batch := idx.NewBatch()
	for _, doc := range docs {
		if ctx.Err() != nil {
			_ = idx.Close()
			return nil, cerr.BuildError("build cancelled", ctx.Err())
		}
		if err := batch.Index(doc.ID, bleveDocument{
			Text:      doc.Text,
			SourceURI: doc.SourceURI,
		}); err != nil {
			_ = idx.Close()
			return nil, cerr.BuildError(fmt.Sprintf("index document %s: %v", doc.ID, err), err)
		}
	}

	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return nil, cerr.BuildError(fmt.Sprintf("apply batch: %v", err), err)
	}

	id := "mem"
	if dir != "" {
		id = filepath.Base(dir)
	}
	return engine.NewSnapshot(id, time.Now(), len(docs), dir, idx), nil
}

// Retrieve returns the top passages for the query, drawn entirely from
// the given snapshot.
func (e *BleveEngine) Retrieve(ctx context.Context, snap *engine.Snapshot, query string, limit int) ([]engine.Passage, error) {
	idx, ok := snap.Handle().(bleve.Index)
	if !ok {
		return nil, cerr.RetrieveError("snapshot has no bleve backing index", nil)
	}

	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{"text", "source_uri"}

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, cerr.RetrieveError(fmt.Sprintf("search: %v", err), err)
	}

	passages := make([]engine.Passage, 0, len(res.Hits))
	for _, hit := range res.Hits {
		p := engine.Passage{Score: hit.Score}
		if text, ok := hit.Fields["text"].(string); ok {
			p.Text = text
		}
		if uri, ok := hit.Fields["source_uri"].(string); ok {
			p.SourceURI = uri
		}
		passages = append(passages, p)
	}
	return passages, nil
}

// Load opens a previously persisted snapshot directory.
func (e *BleveEngine) Load(ctx context.Context, dir string) (*engine.Snapshot, error) {
	if err := validateIndexIntegrity(dir); err != nil {
		return nil, cerr.New(cerr.ErrCodeIndexCorrupt, fmt.Sprintf("snapshot %s: %v", dir, err), err)
	}

	idx, err := bleve.Open(dir)
	if err != nil {
		return nil, cerr.LoadError(fmt.Sprintf("open index %s: %v", dir, err), err)
	}

	count, err := idx.DocCount()
	if err != nil {
		_ = idx.Close()
		return nil, cerr.LoadError(fmt.Sprintf("doc count %s: %v", dir, err), err)
	}

	createdAt := time.Now()
	if info, statErr := os.Stat(dir); statErr == nil {
		createdAt = info.ModTime()
	}

	return engine.NewSnapshot(filepath.Base(dir), createdAt, int(count), dir, idx), nil
}

// Close releases the snapshot's backing index.
func (e *BleveEngine) Close(snap *engine.Snapshot) error {
	if snap == nil {
		return nil
	}
	if idx, ok := snap.Handle().(bleve.Index); ok {
		return idx.Close()
	}
	return nil
}

// validateIndexIntegrity checks if a Bleve index directory is intact
// before opening. A half-written generation (crash mid-build) is
// detected here rather than surfacing as a confusing open error.
func validateIndexIntegrity(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("snapshot directory missing")
	}

	metaPath := filepath.Join(dir, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (incomplete build)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}

	return nil
}
