package knowledge

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/bgdnvk/shopfloor/internal/profile"
	"github.com/bgdnvk/shopfloor/internal/telemetry"
)

const (
	DefaultOversample  = 10
	DefaultMaxDistance = 1.5
	DefaultTopK        = 5
)

// Options tunes a Retriever. Zero values select the defaults.
type Options struct {
	Oversample  int
	MaxDistance float64
	TopK        int
	Debug       bool
}

// Retriever ranks index matches by the active profile's source weights.
type Retriever struct {
	index       Index
	oversample  int
	maxDistance float64
	topK        int
	debug       bool
}

// NewRetriever wraps index. A nil index makes every query degrade.
func NewRetriever(index Index, opts Options) *Retriever {
	r := &Retriever{
		index:       index,
		oversample:  opts.Oversample,
		maxDistance: opts.MaxDistance,
		topK:        opts.TopK,
		debug:       opts.Debug,
	}
	if r.oversample <= 0 {
		r.oversample = DefaultOversample
	}
	if r.maxDistance <= 0 {
		r.maxDistance = DefaultMaxDistance
	}
	if r.topK <= 0 {
		r.topK = DefaultTopK
	}
	return r
}

// Query returns at most topK hits for the equipment and loss categories.
// On index failure it returns an empty, non-nil slice and an error wrapping
// ErrIndexUnavailable; callers are expected to carry on without knowledge.
func (r *Retriever) Query(ctx context.Context, equipmentID string, lossCategories []string, scope telemetry.Scope, p *profile.DomainProfile) ([]Hit, error) {
	hits := []Hit{}
	if r.index == nil {
		return hits, fmt.Errorf("%w: no index configured", ErrIndexUnavailable)
	}

	text := QueryText(equipmentID, lossCategories)
	filter := Filter{DocTypes: DefaultDocTypes}
	if p != nil && len(p.RAGPreferences.PrioritySources) > 0 {
		filter.DocTypes = DocTypes(p.RAGPreferences.PrioritySources)
	}

	if r.debug {
		log.Printf("[knowledge] scope=%s query=%q doc_types=%v n=%d", scope, text, filter.DocTypes, r.oversample)
	}

	matches, err := r.index.Query(ctx, text, r.oversample, filter)
	if err != nil {
		if r.debug {
			log.Printf("[knowledge] index query failed: %v", err)
		}
		return hits, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	for _, m := range matches {
		if m.Distance >= r.maxDistance {
			continue
		}
		base := 1 - m.Distance
		weight := WeightFor(p, m.Metadata.DocType)
		hits = append(hits, Hit{
			ID:            m.ID,
			DocumentText:  m.Document,
			Metadata:      m.Metadata,
			BaseScore:     base,
			Weight:        weight,
			WeightedScore: base * weight,
			SourceType:    m.Metadata.DocType,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].WeightedScore > hits[j].WeightedScore
	})
	if len(hits) > r.topK {
		hits = hits[:r.topK]
	}
	return hits, nil
}

// WeightFor returns the profile's search weight for a doc_type. Weights
// keyed by a source name that maps to docType count too. Unknown types
// weigh 1.0.
func WeightFor(p *profile.DomainProfile, docType string) float64 {
	if p == nil || docType == "" {
		return 1.0
	}
	weights := p.RAGPreferences.SearchWeights
	if w, ok := weights[docType]; ok {
		return w
	}
	keys := make([]string, 0, len(weights))
	for k := range weights {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if DocType(k) == docType {
			return weights[k]
		}
	}
	return 1.0
}

// QueryText joins the equipment id with a readable form of each loss
// category's final segment, e.g. "A01 Equipment Failure".
func QueryText(equipmentID string, lossCategories []string) string {
	caser := cases.Title(language.English)
	parts := []string{strings.TrimSpace(equipmentID)}
	for _, c := range lossCategories {
		seg := c
		if i := strings.LastIndex(seg, "."); i >= 0 {
			seg = seg[i+1:]
		}
		seg = strings.TrimSpace(strings.ReplaceAll(seg, "_", " "))
		if seg == "" {
			continue
		}
		parts = append(parts, caser.String(seg))
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
