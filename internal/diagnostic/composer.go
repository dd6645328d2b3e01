// Package diagnostic composes profile-aware explanations. The expectation
// verdict is computed before the model is called and survives model
// failures unchanged.
package diagnostic

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/bgdnvk/shopfloor/internal/expectation"
	"github.com/bgdnvk/shopfloor/internal/knowledge"
	"github.com/bgdnvk/shopfloor/internal/llm"
	"github.com/bgdnvk/shopfloor/internal/profile"
	"github.com/bgdnvk/shopfloor/internal/reason"
	"github.com/bgdnvk/shopfloor/internal/telemetry"
)

// DefaultTimeout bounds a whole Explain call.
const DefaultTimeout = 120 * time.Second

// SnapshotSource is satisfied by telemetry.Client and telemetry.FileSource.
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context) (*telemetry.Snapshot, error)
	FetchSemanticSignals(ctx context.Context, snap *telemetry.Snapshot, scope telemetry.Scope, equipmentID string) (*telemetry.SignalSet, error)
}

// KnowledgeSource is satisfied by knowledge.Retriever.
type KnowledgeSource interface {
	Query(ctx context.Context, equipmentID string, lossCategories []string, scope telemetry.Scope, p *profile.DomainProfile) ([]knowledge.Hit, error)
}

// ProfileSource is satisfied by profile.Store.
type ProfileSource interface {
	Active() *profile.DomainProfile
	Get(name string) (*profile.DomainProfile, bool)
}

// Options tunes a Composer.
type Options struct {
	Timeout time.Duration
	Debug   bool
	// Now and NewID are replaced in tests.
	Now   func() time.Time
	NewID func() string
}

// Composer runs the diagnostic pipeline for one request at a time; it holds
// no per-request state and is safe for concurrent use.
type Composer struct {
	snapshots SnapshotSource
	knowledge KnowledgeSource
	model     llm.Model
	profiles  ProfileSource
	timeout   time.Duration
	debug     bool
	now       func() time.Time
	newID     func() string
}

// NewComposer wires the pipeline. knowledge may be nil, in which case every
// response notes that no procedures were found.
func NewComposer(snapshots SnapshotSource, knowledge KnowledgeSource, model llm.Model, profiles ProfileSource, opts Options) *Composer {
	c := &Composer{
		snapshots: snapshots,
		knowledge: knowledge,
		model:     model,
		profiles:  profiles,
		timeout:   opts.Timeout,
		debug:     opts.Debug,
		now:       opts.Now,
		newID:     opts.NewID,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = func() string { return uuid.New().String() }
	}
	return c
}

// Explain runs the full pipeline. It never returns a Go error: failures
// become responses with Metadata.Error set and explanatory sections.
func (c *Composer) Explain(ctx context.Context, req Request) *Response {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp := &Response{Metadata: Metadata{
		RequestID:             c.newID(),
		Scope:                 req.Scope,
		EquipmentID:           req.EquipmentID,
		Timestamp:             c.now().UTC().Format(time.RFC3339),
		LossCategories:        []string{},
		RAGDocuments:          []RAGDocument{},
		ReasoningPriority:     []string{},
		ExpectationViolations: []string{},
		ExpectationWarnings:   []string{},
		BlockingConditions:    []string{},
		Severity:              expectation.SeverityNormal,
	}}

	p, err := c.resolveProfile(req.Profile)
	if err != nil {
		return fail(resp, CodeUnknownProfile, err)
	}
	resp.Metadata.DomainProfile = p.Name
	resp.Metadata.ReasoningPriority = append(resp.Metadata.ReasoningPriority, p.ReasonTaxonomy.PriorityOrder...)

	scope, err := telemetry.ParseScope(req.Scope)
	if err != nil {
		return fail(resp, CodeEquipmentNotFound, fmt.Errorf("%w: %v", telemetry.ErrEquipmentNotFound, err))
	}
	resp.Metadata.Scope = string(scope)

	snap, err := c.snapshots.FetchSnapshot(ctx)
	if err != nil {
		return fail(resp, classify(ctx, err), err)
	}
	resp.Metadata.Plant = snap.Plant
	if snap.Timestamp != "" {
		resp.Metadata.Timestamp = snap.Timestamp
	}

	signals, err := c.snapshots.FetchSemanticSignals(ctx, snap, scope, req.EquipmentID)
	if err != nil {
		return fail(resp, classify(ctx, err), err)
	}

	verdict := expectation.Evaluate(snap, signals, p)
	applyVerdict(resp, verdict)
	if c.debug {
		log.Printf("[diagnostic] %s %s/%s profile=%s severity=%s violations=%v", resp.Metadata.RequestID, scope, req.EquipmentID, p.Name, verdict.Severity, verdict.ViolatedExpectations)
	}

	analysis := reason.Extract(signals, p)
	resp.Metadata.LossCategories = analysis.Categories()

	hits := []knowledge.Hit{}
	if c.knowledge != nil {
		h, kerr := c.knowledge.Query(ctx, req.EquipmentID, analysis.RawCategories(), scope, p)
		if kerr != nil {
			resp.Metadata.KnowledgeDegraded = true
			log.Printf("[diagnostic] %s knowledge degraded: %v", resp.Metadata.RequestID, kerr)
		}
		if h != nil {
			hits = h
		}
	} else {
		resp.Metadata.KnowledgeDegraded = true
	}
	for _, h := range hits {
		resp.Metadata.RAGDocuments = append(resp.Metadata.RAGDocuments, RAGDocument{
			ID:            h.ID,
			DocType:       h.SourceType,
			Source:        h.Metadata.Source,
			WeightedScore: h.WeightedScore,
		})
	}

	if err := ctx.Err(); err != nil {
		return fail(resp, CodeCancelled, err)
	}

	if c.model == nil {
		return fail(resp, CodeModelUnavailable, fmt.Errorf("%w: no model configured", llm.ErrModelUnavailable))
	}
	resp.Metadata.Model = c.model.Name()

	system := BuildSystemPrompt(p)
	user := buildUserPrompt(promptInput{
		scope:       scope,
		equipmentID: req.EquipmentID,
		snap:        snap,
		signals:     signals,
		analysis:    analysis,
		hits:        hits,
		verdict:     verdict,
		timestamp:   resp.Metadata.Timestamp,
	})

	raw, err := c.model.Complete(ctx, system, user)
	if err != nil {
		if ctx.Err() != nil {
			return fail(resp, CodeCancelled, ctx.Err())
		}
		return fail(resp, CodeModelUnavailable, err)
	}

	resp.Metadata.RawResponse = raw
	sections, malformed := ParseSections(raw)
	resp.Sections = sections
	resp.Metadata.MalformedResponse = malformed
	if malformed {
		log.Printf("[diagnostic] %s model reply had no section headers", resp.Metadata.RequestID)
	}
	return resp
}

func (c *Composer) resolveProfile(name string) (*profile.DomainProfile, error) {
	if name == "" {
		if p := c.profiles.Active(); p != nil {
			return p, nil
		}
		return nil, fmt.Errorf("%w: no profiles loaded", profile.ErrConfig)
	}
	p, ok := c.profiles.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown profile %q", profile.ErrConfig, name)
	}
	return p, nil
}

func applyVerdict(resp *Response, v expectation.Result) {
	resp.Metadata.ExpectationViolations = v.ViolatedExpectations
	resp.Metadata.ExpectationWarnings = v.Warnings
	resp.Metadata.BlockingConditions = v.BlockingConditions
	resp.Metadata.RequiresConfirmation = v.RequiresHumanConfirmation
	resp.Metadata.Severity = v.Severity
}

func classify(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, telemetry.ErrEquipmentNotFound):
		return CodeEquipmentNotFound
	case ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled):
		return CodeCancelled
	default:
		return CodeSnapshotUnavailable
	}
}
