package telemetry

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Scope is the granularity of a diagnostic request.
type Scope string

const (
	ScopeLine    Scope = "line"
	ScopeStation Scope = "station"
)

// ParseScope validates a scope string.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeLine:
		return ScopeLine, nil
	case ScopeStation:
		return ScopeStation, nil
	}
	return "", fmt.Errorf("invalid scope %q (expected line or station)", s)
}

// Snapshot is a point-in-time view of the plant. The core never mutates it.
type Snapshot struct {
	Plant     string          `json:"plant"`
	Timestamp string          `json:"timestamp,omitempty"`
	Lines     map[string]Line `json:"lines"`
}

type Line struct {
	Name         string             `json:"name"`
	Status       string             `json:"status"`
	OEE          float64            `json:"oee"`
	Availability float64            `json:"availability"`
	Performance  float64            `json:"performance"`
	Quality      float64            `json:"quality"`
	Stations     map[string]Station `json:"stations"`
}

type Station struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	State      string   `json:"state"`
	CycleTimeS float64  `json:"cycle_time_s"`
	GoodCount  int      `json:"good_count"`
	ScrapCount int      `json:"scrap_count"`
	Critical   bool     `json:"critical,omitempty"`
	Alarms     []string `json:"alarms,omitempty"`
}

// LineIDs returns line ids in sorted order.
func (s *Snapshot) LineIDs() []string {
	ids := make([]string, 0, len(s.Lines))
	for id := range s.Lines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StationIDs returns the line's station ids in sorted order.
func (l Line) StationIDs() []string {
	ids := make([]string, 0, len(l.Stations))
	for id := range l.Stations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SemanticSignal is a normalized, unit-bearing measurement. Value is whatever
// the signal endpoint sent: a number, a string (modes, statuses) or a bool.
type SemanticSignal struct {
	SemanticID   string `json:"semantic_id"`
	Value        any    `json:"value"`
	Unit         string `json:"unit,omitempty"`
	Quality      string `json:"quality,omitempty"`
	LossCategory string `json:"loss_category,omitempty"`
	StationID    string `json:"station_id,omitempty"`
	Description  string `json:"description,omitempty"`
}

// Number returns the signal value as a float when it is numeric.
func (s SemanticSignal) Number() (float64, bool) {
	switch v := s.Value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

// Text returns the signal value as a string.
func (s SemanticSignal) Text() string {
	switch v := s.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// MaterialContext carries material evidence for the scoped equipment.
type MaterialContext struct {
	EvidencePresent     bool   `json:"evidence_present"`
	QualityStatus       string `json:"quality_status,omitempty"`
	ActiveSerial        string `json:"active_serial,omitempty"`
	ActiveLot           string `json:"active_lot,omitempty"`
	WorkOrder           string `json:"work_order,omitempty"`
	DryRunAuthorization bool   `json:"dry_run_authorization,omitempty"`
	DeviationID         string `json:"deviation_id,omitempty"`
	MaintenanceLog      string `json:"maintenance_log,omitempty"`
}

type KPI struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

type Validation struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// SignalSet is the semantic-signal view of one scope.
type SignalSet struct {
	Scope           Scope            `json:"scope,omitempty"`
	LineID          string           `json:"line_id,omitempty"`
	StationID       string           `json:"station_id,omitempty"`
	Signals         []SemanticSignal `json:"semantic_signals"`
	KPIs            []KPI            `json:"kpis,omitempty"`
	Validation      Validation       `json:"validation"`
	MaterialContext *MaterialContext `json:"material_context,omitempty"`
}
