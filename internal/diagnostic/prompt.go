package diagnostic

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bgdnvk/shopfloor/internal/expectation"
	"github.com/bgdnvk/shopfloor/internal/knowledge"
	"github.com/bgdnvk/shopfloor/internal/profile"
	"github.com/bgdnvk/shopfloor/internal/reason"
	"github.com/bgdnvk/shopfloor/internal/telemetry"
)

const (
	hitTextLimit        = 400
	escalationBanner    = "⚠ ESCALATION REQUIRED"
	explainNotJudgeRule = "Your role is to EXPLAIN these violations in context, NOT to re-judge them."
	noProceduresFound   = "No procedures found in the knowledge base for this context."
)

var toneDirectives = map[profile.Tone]string{
	profile.ToneFormal:    "Use a formal, precise register. Avoid colloquialisms and hedge only where evidence is incomplete.",
	profile.TonePragmatic: "Be direct and practical. Short sentences, shop-floor vocabulary, no filler.",
}

var emphasisDirectives = map[profile.Emphasis]string{
	profile.EmphasisComplianceFirst: "Prioritise compliance: traceability, authorisations and documented evidence come before throughput.",
	profile.EmphasisQualityFirst:    "Prioritise product quality and patient safety over output recovery.",
	profile.EmphasisThroughputFirst: "Prioritise restoring throughput and OEE, within safety limits.",
}

var styleDirectives = map[profile.ReasoningStyle]string{
	profile.ReasoningAuditReady:   "Reason in an audit-ready way: every conclusion must trace to a cited fact or record.",
	profile.ReasoningGMPCompliant: "Reason in line with GMP: reference batch records, deviations and SOPs where relevant.",
	profile.ReasoningLeanFocused:  "Reason with lean principles: name the loss, its likely root cause and the quickest countermeasure.",
	profile.ReasoningGeneral:      "Reason step by step from the observed data.",
}

// BuildSystemPrompt renders the profile-specific instructions.
func BuildSystemPrompt(p *profile.DomainProfile) string {
	var b strings.Builder
	name := "manufacturing"
	if p != nil && p.DisplayName != "" {
		name = p.DisplayName
	}
	fmt.Fprintf(&b, "You are a shop-floor diagnostic copilot for %s operations.\n", name)
	b.WriteString("You explain what the runtime data shows. You do not decide compliance; those verdicts are computed before you are asked.\n\n")

	if p != nil {
		db := p.DiagnosticsBehavior
		b.WriteString("STYLE:\n")
		if d, ok := toneDirectives[db.Tone]; ok {
			b.WriteString("- " + d + "\n")
		}
		if d, ok := emphasisDirectives[db.Emphasis]; ok {
			b.WriteString("- " + d + "\n")
		}
		if d, ok := styleDirectives[db.ReasoningStyle]; ok {
			b.WriteString("- " + d + "\n")
		}
		if db.IncludeDocumentationRef {
			b.WriteString("- Every recommendation MUST reference a document from the KNOWLEDGE block by its number, or state that no document applies.\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(`RULES:
- Never invent values. Use only numbers present in the data below.
- Refer only to equipment ids that appear in the SNAPSHOT block.
- Keep facts, reasoning and recommendations separate.
- When evidence is missing or incomplete, say so explicitly.
- Never recommend direct control actions on equipment (setpoints, overrides, starting or stopping machines).
- Always answer with exactly these four sections, in this order:
## What is happening
## Why this is happening
## What to do now
## What to check next
`)
	return b.String()
}

// promptInput gathers everything the user prompt renders.
type promptInput struct {
	scope       telemetry.Scope
	equipmentID string
	snap        *telemetry.Snapshot
	signals     *telemetry.SignalSet
	analysis    reason.Analysis
	hits        []knowledge.Hit
	verdict     expectation.Result
	timestamp   string
}

// buildUserPrompt renders the request, snapshot, reason and knowledge
// blocks, followed by the expectations block when the verdict has findings.
func buildUserPrompt(in promptInput) string {
	var b strings.Builder

	b.WriteString("REQUEST:\n")
	fmt.Fprintf(&b, "scope: %s\nequipment_id: %s\nplant: %s\ntimestamp: %s\n\n", in.scope, in.equipmentID, plantOf(in.snap), in.timestamp)

	b.WriteString("SNAPSHOT:\n")
	b.WriteString(formatSnapshot(in.snap, in.signals))
	b.WriteString("\n")

	b.WriteString("REASON CONTEXT:\n")
	b.WriteString(formatReasons(in.analysis))
	b.WriteString("\n")

	b.WriteString("KNOWLEDGE:\n")
	b.WriteString(formatHits(in.hits))

	if in.verdict.HasFindings() {
		b.WriteString("\n")
		b.WriteString(formatExpectations(in.verdict))
	}
	return b.String()
}

func plantOf(snap *telemetry.Snapshot) string {
	if snap == nil {
		return ""
	}
	return snap.Plant
}

func formatSnapshot(snap *telemetry.Snapshot, signals *telemetry.SignalSet) string {
	if snap == nil || signals == nil {
		return "(no snapshot)\n"
	}
	var b strings.Builder
	line, ok := snap.Lines[signals.LineID]
	if ok {
		fmt.Fprintf(&b, "line %s (%s): status=%s oee=%.2f availability=%.2f performance=%.2f quality=%.2f\n",
			signals.LineID, line.Name, line.Status, line.OEE, line.Availability, line.Performance, line.Quality)
		for _, id := range line.StationIDs() {
			if signals.StationID != "" && id != signals.StationID {
				continue
			}
			st := line.Stations[id]
			fmt.Fprintf(&b, "  station %s (%s): state=%s cycle_time_s=%.1f good=%d scrap=%d", id, st.Name, st.State, st.CycleTimeS, st.GoodCount, st.ScrapCount)
			if st.Critical {
				b.WriteString(" critical=true")
			}
			if len(st.Alarms) > 0 {
				fmt.Fprintf(&b, " alarms=%s", strings.Join(st.Alarms, ","))
			}
			b.WriteString("\n")
		}
	}
	if len(signals.Signals) > 0 {
		b.WriteString("signals:\n")
		for _, s := range signals.Signals {
			fmt.Fprintf(&b, "  %s = %s", s.SemanticID, s.Text())
			if s.Unit != "" {
				b.WriteString(" " + s.Unit)
			}
			if s.Quality != "" && s.Quality != "good" {
				fmt.Fprintf(&b, " [quality=%s]", s.Quality)
			}
			b.WriteString("\n")
		}
	}
	if len(signals.KPIs) > 0 {
		b.WriteString("kpis:\n")
		for _, k := range signals.KPIs {
			fmt.Fprintf(&b, "  %s = %g %s\n", k.Name, k.Value, k.Unit)
		}
	}
	if mc := signals.MaterialContext; mc != nil {
		fmt.Fprintf(&b, "material: evidence_present=%t quality_status=%s serial=%s lot=%s work_order=%s dry_run=%t deviation=%s\n",
			mc.EvidencePresent, orNone(mc.QualityStatus), orNone(mc.ActiveSerial), orNone(mc.ActiveLot), orNone(mc.WorkOrder), mc.DryRunAuthorization, orNone(mc.DeviationID))
	}
	if b.Len() == 0 {
		return "(no data for this scope)\n"
	}
	return b.String()
}

func formatReasons(a reason.Analysis) string {
	if len(a.ActiveLosses) == 0 {
		return "no active loss categories\n"
	}
	var b strings.Builder
	for i, l := range a.ActiveLosses {
		fmt.Fprintf(&b, "%d. %s [%s] %s", i+1, l.Category, l.L1, l.SignalID)
		if l.StationID != "" {
			fmt.Fprintf(&b, " station=%s", l.StationID)
		}
		b.WriteString("\n")
	}
	var pillars []string
	if a.AvailabilityAffected {
		pillars = append(pillars, "availability")
	}
	if a.PerformanceAffected {
		pillars = append(pillars, "performance")
	}
	if a.QualityAffected {
		pillars = append(pillars, "quality")
	}
	if len(pillars) > 0 {
		fmt.Fprintf(&b, "impacted pillars: %s\n", strings.Join(pillars, ", "))
	}
	if len(a.ReasoningOrder) > 0 {
		fmt.Fprintf(&b, "reasoning order: %s\n", strings.Join(a.ReasoningOrder, " > "))
	}
	return b.String()
}

func formatHits(hits []knowledge.Hit) string {
	if len(hits) == 0 {
		return noProceduresFound + "\n"
	}
	var b strings.Builder
	for i, h := range hits {
		text := strings.Join(strings.Fields(h.DocumentText), " ")
		if len(text) > hitTextLimit {
			cut := hitTextLimit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			text = text[:cut] + "..."
		}
		fmt.Fprintf(&b, "[%d] source=%s type=%s score=%.3f\n    %s\n", i+1, orNone(h.Metadata.Source), h.SourceType, h.WeightedScore, text)
	}
	return b.String()
}

func formatExpectations(r expectation.Result) string {
	var b strings.Builder
	if r.EscalationTone {
		b.WriteString(escalationBanner + "\n")
	}
	fmt.Fprintf(&b, "EXPECTATIONS (severity: %s):\n", r.Severity)
	writeList(&b, "violated expectations", r.ViolatedExpectations)
	writeList(&b, "blocking conditions", r.BlockingConditions)
	writeList(&b, "warnings", r.Warnings)
	if r.RequiresHumanConfirmation {
		b.WriteString("Human confirmation is required before production continues.\n")
	}
	b.WriteString(explainNotJudgeRule + "\n")
	return b.String()
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", label)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return s
}
