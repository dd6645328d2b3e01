package diagnostic

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bgdnvk/shopfloor/internal/expectation"
	"github.com/bgdnvk/shopfloor/internal/knowledge"
	"github.com/bgdnvk/shopfloor/internal/profile"
	"github.com/bgdnvk/shopfloor/internal/reason"
	"github.com/bgdnvk/shopfloor/internal/telemetry"
)

func TestBuildSystemPrompt(t *testing.T) {
	store := profiles(t)

	pharma, ok := store.Get("pharma_process")
	require.True(t, ok)
	sys := BuildSystemPrompt(pharma)
	assert.True(t, strings.HasPrefix(sys, "You are a shop-floor diagnostic copilot for Pharma & Process operations."))
	assert.Contains(t, sys, "formal")
	assert.Contains(t, sys, "patient safety")
	assert.Contains(t, sys, "GMP")
	assert.Contains(t, sys, "MUST reference a document")

	auto, ok := store.Get("automotive_discrete")
	require.True(t, ok)
	sys = BuildSystemPrompt(auto)
	assert.Contains(t, sys, "Be direct and practical")
	assert.Contains(t, sys, "throughput")
	assert.NotContains(t, sys, "MUST reference a document")

	for _, s := range []string{sys, BuildSystemPrompt(nil)} {
		assert.Contains(t, s, "Never invent values")
		assert.Contains(t, s, "Never recommend direct control actions")
		idx := -1
		for _, h := range []string{"## What is happening", "## Why this is happening", "## What to do now", "## What to check next"} {
			next := strings.Index(s, h)
			require.Greater(t, next, idx, h)
			idx = next
		}
	}
}

func TestBuildUserPrompt_ExpectationsBlock(t *testing.T) {
	snap, err := telemetry.ReadSnapshotFile("../telemetry/testdata/snapshot.json")
	require.NoError(t, err)
	signals := &telemetry.SignalSet{Scope: telemetry.ScopeLine, LineID: "B02"}

	in := promptInput{
		scope:       telemetry.ScopeLine,
		equipmentID: "B02",
		snap:        snap,
		signals:     signals,
		analysis:    reason.Analysis{},
		verdict:     expectation.Empty(),
		timestamp:   snap.Timestamp,
	}
	user := buildUserPrompt(in)
	assert.Contains(t, user, "line B02 (Packaging)")
	assert.Contains(t, user, "station PK-Wrapper-01 (Wrapper)")
	assert.Contains(t, user, "no active loss categories")
	assert.Contains(t, user, noProceduresFound)
	assert.NotContains(t, user, "EXPECTATIONS")
	assert.NotContains(t, user, escalationBanner)

	in.verdict = expectation.Result{
		ViolatedExpectations: []string{expectation.ViolationReducedSpeedRequiresJustification},
		Warnings:             []string{},
		BlockingConditions:   []string{},
		Severity:             expectation.SeverityWarning,
		EscalationTone:       true,
	}
	user = buildUserPrompt(in)
	assert.Contains(t, user, escalationBanner)
	assert.Contains(t, user, "EXPECTATIONS (severity: warning)")
	assert.Contains(t, user, "- reduced_speed_requires_justification")
	assert.Contains(t, user, explainNotJudgeRule)
	assert.NotContains(t, user, "Human confirmation is required")
}

func TestFormatHits_Truncates(t *testing.T) {
	long := strings.Repeat("torque ", 200)
	out := formatHits([]knowledge.Hit{{
		ID:            "sop-1",
		DocumentText:  long,
		Metadata:      knowledge.Metadata{Source: "sops/sop-1.md"},
		WeightedScore: 0.5,
		SourceType:    "sop",
	}})
	assert.Contains(t, out, "[1] source=sops/sop-1.md type=sop score=0.500")
	assert.Contains(t, out, "...")
	assert.Less(t, len(out), hitTextLimit+100)

	// A cut inside a multi-byte rune backs off to the rune start.
	out = formatHits([]knowledge.Hit{{DocumentText: strings.Repeat("a", hitTextLimit-1) + "°C über"}})
	assert.True(t, utf8.ValidString(out))
	assert.Contains(t, out, strings.Repeat("a", hitTextLimit-1)+"...")
}

func TestFormatReasons(t *testing.T) {
	p := &profile.DomainProfile{ReasonTaxonomy: profile.ReasonTaxonomy{
		Enabled:       []string{"equipment", "quality"},
		PriorityOrder: []string{"quality", "equipment"},
	}}
	signals := &telemetry.SignalSet{Signals: []telemetry.SemanticSignal{
		{SemanticID: "A01.ST18.stop_time", Value: 22.0, LossCategory: "availability.breakdown", StationID: "ST18"},
		{SemanticID: "A01.ST18.scrap", Value: 7.0, LossCategory: "quality.scrap"},
	}}
	out := formatReasons(reason.Extract(signals, p))
	assert.Contains(t, out, "1. quality.scrap [quality] A01.ST18.scrap\n")
	assert.Contains(t, out, "2. availability.breakdown [equipment] A01.ST18.stop_time station=ST18")
	assert.Contains(t, out, "impacted pillars: availability, quality")
	assert.Contains(t, out, "reasoning order: quality > equipment")
}
