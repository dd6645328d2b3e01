// Package reason turns loss-tagged signals into an ordered, profile-filtered
// list of active losses.
package reason

import (
	"math"
	"sort"
	"strings"

	"github.com/bgdnvk/shopfloor/internal/profile"
	"github.com/bgdnvk/shopfloor/internal/telemetry"
)

// Vocabulary is the universal set of Level-1 reason categories, in the
// order substring matching tries them.
var Vocabulary = []string{
	"equipment",
	"material",
	"process",
	"quality",
	"documentation",
	"people",
	"tooling",
	"logistics",
	"environmental",
}

// defaultL1 maps common loss names whose text does not contain their
// Level-1 category.
var defaultL1 = map[string]string{
	"breakdown":          "equipment",
	"minor_stops":        "equipment",
	"jam":                "equipment",
	"no_material":        "material",
	"shortage":           "material",
	"starved":            "material",
	"changeover":         "process",
	"setup":              "process",
	"scrap":              "quality",
	"rework":             "quality",
	"defect":             "quality",
	"no_operator":        "people",
	"operator_absent":    "people",
	"tool_wear":          "tooling",
	"tool_change":        "tooling",
	"blocked":            "logistics",
	"no_pallet":          "logistics",
	"temperature":        "environmental",
	"humidity":           "environmental",
	"missing_signoff":    "documentation",
	"missing_work_order": "documentation",
}

// Loss is one loss-tagged signal that survived profile filtering.
type Loss struct {
	SignalID  string  `json:"signal_id"`
	Value     any     `json:"value"`
	Unit      string  `json:"unit,omitempty"`
	Category  string  `json:"category"`
	L1        string  `json:"l1_category"`
	StationID string  `json:"station_id,omitempty"`
	priority  float64 // index in the profile's priority order
}

// Analysis is the extractor output handed to the composer.
type Analysis struct {
	ActiveLosses         []Loss   `json:"active_losses"`
	AvailabilityAffected bool     `json:"availability_affected"`
	PerformanceAffected  bool     `json:"performance_affected"`
	QualityAffected      bool     `json:"quality_affected"`
	ReasoningOrder       []string `json:"reasoning_order"`
}

// Categories returns the distinct Level-1 categories of the active losses
// in ranked order.
func (a Analysis) Categories() []string {
	out := []string{}
	seen := map[string]bool{}
	for _, l := range a.ActiveLosses {
		if l.L1 == "" || seen[l.L1] {
			continue
		}
		seen[l.L1] = true
		out = append(out, l.L1)
	}
	return out
}

// RawCategories returns the distinct loss_category values of the active
// losses in ranked order.
func (a Analysis) RawCategories() []string {
	out := []string{}
	seen := map[string]bool{}
	for _, l := range a.ActiveLosses {
		if seen[l.Category] {
			continue
		}
		seen[l.Category] = true
		out = append(out, l.Category)
	}
	return out
}

// Extract collects loss-tagged signals, drops those whose Level-1 category
// the profile does not enable, and orders the rest by the profile's
// diagnostic priority. Without a profile every tagged signal is kept in
// input order.
func Extract(signals *telemetry.SignalSet, p *profile.DomainProfile) Analysis {
	out := Analysis{ActiveLosses: []Loss{}, ReasoningOrder: []string{}}
	if signals == nil {
		return out
	}

	var enabled map[string]bool
	rank := map[string]int{}
	if p != nil {
		enabled = map[string]bool{}
		for _, c := range p.ReasonTaxonomy.Enabled {
			enabled[strings.ToLower(c)] = true
		}
		for i, c := range p.ReasonTaxonomy.PriorityOrder {
			if _, dup := rank[strings.ToLower(c)]; !dup {
				rank[strings.ToLower(c)] = i
			}
		}
		out.ReasoningOrder = append(out.ReasoningOrder, p.ReasonTaxonomy.PriorityOrder...)
	}

	for _, s := range signals.Signals {
		if strings.TrimSpace(s.LossCategory) == "" {
			continue
		}
		loss := Loss{
			SignalID:  s.SemanticID,
			Value:     s.Value,
			Unit:      s.Unit,
			Category:  s.LossCategory,
			StationID: s.StationID,
			priority:  math.Inf(1),
		}
		if p != nil {
			loss.L1 = Level1(s.LossCategory, p)
			if !enabled[loss.L1] {
				continue
			}
			if i, ok := rank[loss.L1]; ok {
				loss.priority = float64(i)
			}
		} else {
			loss.L1 = Level1(s.LossCategory, nil)
		}
		out.ActiveLosses = append(out.ActiveLosses, loss)
	}

	sort.SliceStable(out.ActiveLosses, func(i, j int) bool {
		return out.ActiveLosses[i].priority < out.ActiveLosses[j].priority
	})

	for _, l := range out.ActiveLosses {
		cat := strings.ToLower(l.Category)
		switch {
		case strings.HasPrefix(cat, "availability"):
			out.AvailabilityAffected = true
		case strings.HasPrefix(cat, "performance"):
			out.PerformanceAffected = true
		case strings.HasPrefix(cat, "quality"):
			out.QualityAffected = true
		}
	}
	return out
}

// Level1 maps a loss category to its Level-1 reason category using, in
// order, the profile's explicit map, the built-in table and substring
// matching of the final dotted segment against Vocabulary. It returns ""
// when nothing matches.
func Level1(lossCategory string, p *profile.DomainProfile) string {
	full := strings.ToLower(strings.TrimSpace(lossCategory))
	segment := full
	if i := strings.LastIndex(full, "."); i >= 0 {
		segment = full[i+1:]
	}

	if p != nil {
		for _, key := range []string{lossCategory, full, segment} {
			if l1, ok := p.ReasonTaxonomy.LossCategoryMap[key]; ok {
				return strings.ToLower(l1)
			}
		}
	}
	if l1, ok := defaultL1[segment]; ok {
		return l1
	}
	for _, v := range Vocabulary {
		if strings.Contains(segment, v) {
			return v
		}
	}
	return ""
}
