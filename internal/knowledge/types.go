// Package knowledge retrieves procedures, records and logs relevant to a
// diagnostic, ranked by the active profile's source preferences.
package knowledge

import (
	"context"
	"errors"
)

// ErrIndexUnavailable marks a vector index that could not be queried.
// Callers degrade to an empty result instead of failing.
var ErrIndexUnavailable = errors.New("knowledge index unavailable")

// Metadata is stored alongside every indexed document.
type Metadata struct {
	DocType   string `json:"doc_type" yaml:"doc_type"`
	Source    string `json:"source,omitempty" yaml:"source"`
	Equipment string `json:"equipment,omitempty" yaml:"equipment"`
	Profile   string `json:"profile,omitempty" yaml:"profile"`
}

// Document is a unit of ingestion.
type Document struct {
	ID       string
	Text     string
	Metadata Metadata
}

// Match is one raw result of a vector query. Lower distance is closer.
type Match struct {
	ID       string
	Document string
	Metadata Metadata
	Distance float64
}

// Filter restricts a query to documents whose doc_type is listed. An empty
// filter matches every document.
type Filter struct {
	DocTypes []string
}

func (f Filter) allows(docType string) bool {
	if len(f.DocTypes) == 0 {
		return true
	}
	for _, t := range f.DocTypes {
		if t == docType {
			return true
		}
	}
	return false
}

// Index is a read-only vector index.
type Index interface {
	Query(ctx context.Context, text string, n int, filter Filter) ([]Match, error)
}

// Writer is implemented by indexes that accept ingestion.
type Writer interface {
	Upsert(ctx context.Context, docs []Document) error
}

// Embedder turns text into vectors. Implementations return one vector per
// input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Hit is a ranked retrieval result.
type Hit struct {
	ID            string   `json:"id"`
	DocumentText  string   `json:"document_text"`
	Metadata      Metadata `json:"metadata"`
	BaseScore     float64  `json:"base_score"`
	Weight        float64  `json:"weight"`
	WeightedScore float64  `json:"weighted_score"`
	SourceType    string   `json:"source_type"`
}
