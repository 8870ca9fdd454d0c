// Package etl ingests helpdesk source material: downloading raw
// files, normalizing them into plain text, and loading the processed
// corpus for indexing. Ingestion runs as a scheduled job owned by the
// Controller.
package etl

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/RobMal123/ai-helpdesk-chatbot/internal/engine"
)

// textExtensions are the processed-file extensions loaded for indexing.
var textExtensions = map[string]bool{
	".txt": true,
	".md":  true,
}

// Source provides the current document set for a rebuild.
type Source interface {
	Load(ctx context.Context) ([]engine.Document, error)
}

// DirSource loads documents from a directory of processed text files.
// Each file becomes one document; the relative path is its source URI.
type DirSource struct {
	dir string
}

// NewDirSource creates a source over the given processed directory.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// Load reads every processed text file. A missing directory yields an
// empty set rather than an error, so a fresh install rebuilds cleanly.
func (s *DirSource) Load(ctx context.Context) ([]engine.Document, error) {
	var docs []engine.Document

	err := filepath.WalkDir(s.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !textExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read document %s: %w", path, err)
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			return nil
		}

		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			rel = filepath.Base(path)
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat document %s: %w", path, err)
		}

		docs = append(docs, engine.Document{
			ID:         docID(rel),
			SourceURI:  filepath.ToSlash(rel),
			Text:       text,
			IngestedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].SourceURI < docs[j].SourceURI })
	return docs, nil
}

// docID derives a stable document ID from the relative path.
func docID(rel string) string {
	sum := sha256.Sum256([]byte(filepath.ToSlash(rel)))
	return hex.EncodeToString(sum[:8])
}
