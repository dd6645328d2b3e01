package expectation

import (
	"sort"
	"strings"

	"github.com/bgdnvk/shopfloor/internal/telemetry"
)

// OperationalMode is the production mode parsed from mode signals.
type OperationalMode string

const (
	ModeNormal     OperationalMode = "normal"
	ModeStartup    OperationalMode = "startup"
	ModeChangeover OperationalMode = "changeover"
	ModeRampup     OperationalMode = "rampup"
)

// Metrics is the record the rule table is evaluated over. Every field has a
// safe zero value: unknown inputs produce no violation.
type Metrics struct {
	HasZeroOutput             bool
	ZeroOutputDurationMinutes float64
	HasReducedSpeed           bool
	SpeedReductionPercent     float64
	OperationalMode           OperationalMode
	StationID                 string

	HasMaterialContext      bool
	MaterialEvidencePresent bool
	MaterialQualityStatus   string
	HasSerialBinding        bool
	HasBatchContext         bool
	HasWorkOrder            bool
	IsDeclaredDryRun        bool
	HasDeviationRecord      bool
	HasMaintenanceLog       bool

	// Environmental holds the last numeric reading per semantic id.
	Environmental map[string]float64
}

// ExtractMetrics derives a Metrics record from a signal set. A nil set
// yields zero metrics.
func ExtractMetrics(signals *telemetry.SignalSet) Metrics {
	m := Metrics{
		OperationalMode: ModeNormal,
		Environmental:   map[string]float64{},
	}
	if signals == nil {
		return m
	}
	m.StationID = signals.StationID

	var cycleActual, cycleIdeal, speedActual, speedNominal float64
	speedReductionSeen := false

	for _, s := range signals.Signals {
		id := strings.ToLower(s.SemanticID)
		if m.StationID == "" && s.StationID != "" {
			m.StationID = s.StationID
		}

		switch {
		case isGoodCount(id):
			if v, ok := s.Number(); ok && v == 0 {
				m.HasZeroOutput = true
			}
		case strings.Contains(id, "zero_output_duration"):
			if v, ok := s.Number(); ok && v > 0 {
				m.ZeroOutputDurationMinutes = toMinutes(v, s.Unit)
			}
		case strings.Contains(id, "speed_reduction"):
			if v, ok := s.Number(); ok {
				m.SpeedReductionPercent = v
				speedReductionSeen = true
			}
		case strings.Contains(id, "ideal_cycle_time"), strings.Contains(id, "expected_cycle_time"), strings.Contains(id, "nominal_cycle_time"):
			cycleIdeal, _ = s.Number()
		case strings.Contains(id, "cycle_time"):
			cycleActual, _ = s.Number()
		case strings.Contains(id, "nominal_speed"), strings.Contains(id, "target_speed"):
			speedNominal, _ = s.Number()
		case strings.Contains(id, "actual_speed"):
			speedActual, _ = s.Number()
		case strings.Contains(id, "operational_mode"), lastSegment(id) == "mode":
			m.OperationalMode = parseMode(s.Text())
		}

		if v, ok := s.Number(); ok {
			m.Environmental[s.SemanticID] = v
		}
	}

	if !speedReductionSeen {
		switch {
		case cycleActual > 0 && cycleIdeal > 0 && cycleActual > cycleIdeal:
			m.SpeedReductionPercent = (cycleActual - cycleIdeal) / cycleActual * 100
		case speedNominal > 0 && speedActual >= 0 && speedActual < speedNominal:
			m.SpeedReductionPercent = (1 - speedActual/speedNominal) * 100
		}
	}
	if m.SpeedReductionPercent < 0 {
		m.SpeedReductionPercent = 0
	}
	m.HasReducedSpeed = m.SpeedReductionPercent > 0

	if mc := signals.MaterialContext; mc != nil {
		m.HasMaterialContext = true
		m.MaterialEvidencePresent = mc.EvidencePresent
		m.MaterialQualityStatus = strings.ToUpper(strings.TrimSpace(mc.QualityStatus))
		m.HasSerialBinding = strings.TrimSpace(mc.ActiveSerial) != ""
		m.HasBatchContext = strings.TrimSpace(mc.ActiveLot) != ""
		m.HasWorkOrder = strings.TrimSpace(mc.WorkOrder) != ""
		m.IsDeclaredDryRun = mc.DryRunAuthorization
		m.HasDeviationRecord = strings.TrimSpace(mc.DeviationID) != ""
		m.HasMaintenanceLog = strings.TrimSpace(mc.MaintenanceLog) != ""
	}

	return m
}

// EnvironmentalIDs returns the semantic ids with numeric readings, sorted.
func (m Metrics) EnvironmentalIDs() []string {
	ids := make([]string, 0, len(m.Environmental))
	for id := range m.Environmental {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func isGoodCount(id string) bool {
	return strings.Contains(id, "good_count") || strings.Contains(id, "good_parts") || strings.Contains(id, "goodcount")
}

func lastSegment(id string) string {
	if i := strings.LastIndex(id, "."); i >= 0 {
		return id[i+1:]
	}
	return id
}

func toMinutes(v float64, unit string) float64 {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "s", "sec", "secs", "second", "seconds":
		return v / 60
	case "h", "hr", "hrs", "hour", "hours":
		return v * 60
	default:
		return v
	}
}

func parseMode(raw string) OperationalMode {
	normalized := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(raw)))
	switch normalized {
	case "startup", "start":
		return ModeStartup
	case "changeover", "setup":
		return ModeChangeover
	case "rampup":
		return ModeRampup
	default:
		return ModeNormal
	}
}
