package knowledge

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const ingestBatch = 64

// migrator is implemented by indexes that create their schema on demand.
type migrator interface {
	Migrate(ctx context.Context, dim int) error
}

// Ingest upserts docs into index in batches. Indexes with a schema are
// migrated first using the embedder's vector size.
func Ingest(ctx context.Context, index Index, embedder Embedder, docs []Document) error {
	w, ok := index.(Writer)
	if !ok {
		return fmt.Errorf("%w: backend does not accept ingestion", ErrIndexUnavailable)
	}
	if m, ok := index.(migrator); ok {
		probe, err := embedOne(ctx, embedder, "probe")
		if err != nil {
			return err
		}
		if err := m.Migrate(ctx, len(probe)); err != nil {
			return err
		}
	}
	for start := 0; start < len(docs); start += ingestBatch {
		end := min(start+ingestBatch, len(docs))
		if err := w.Upsert(ctx, docs[start:end]); err != nil {
			return fmt.Errorf("upsert documents %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// LoadDocuments walks dir for .md and .txt files. A document may start with
// a YAML frontmatter block carrying Metadata fields. Without an explicit
// doc_type the parent directory name is mapped through the source table,
// so docs/work_instructions/wi-07.md becomes a work_instruction.
func LoadDocuments(dir string) ([]Document, error) {
	var docs []Document
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".md" && ext != ".txt" {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		meta, body, err := splitFrontmatter(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		text := strings.TrimSpace(string(body))
		if text == "" {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)
		if meta.DocType == "" {
			meta.DocType = DocType(filepath.Base(filepath.Dir(path)))
		} else {
			meta.DocType = DocType(meta.DocType)
		}
		if meta.Source == "" {
			meta.Source = rel
		}
		docs = append(docs, Document{ID: rel, Text: text, Metadata: meta})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// splitFrontmatter separates an optional leading "---" YAML block from the
// body. Documents without one return empty metadata and the whole input.
func splitFrontmatter(data []byte) (Metadata, []byte, error) {
	var meta Metadata
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	const delim = "---\n"
	if !bytes.HasPrefix(data, []byte(delim)) {
		return meta, data, nil
	}
	rest := data[len(delim):]
	idx := bytes.Index(rest, []byte("\n---"))
	if idx < 0 {
		return meta, nil, fmt.Errorf("frontmatter: missing closing --- delimiter")
	}
	if err := yaml.Unmarshal(rest[:idx], &meta); err != nil {
		return meta, nil, fmt.Errorf("frontmatter: %w", err)
	}
	tail := rest[idx+4:]
	if len(tail) > 0 && tail[0] == '\n' {
		tail = tail[1:]
	}
	return meta, tail, nil
}
