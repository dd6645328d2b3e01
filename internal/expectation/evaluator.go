// Package expectation judges runtime state against a domain profile's
// expectations. The judgment is deterministic and never consults a model.
package expectation

import (
	"github.com/bgdnvk/shopfloor/internal/profile"
	"github.com/bgdnvk/shopfloor/internal/telemetry"
)

// Evaluate runs the rule table over the snapshot and signals. It is a pure
// function: identical inputs always produce an identical Result. A nil
// profile, or one without expectations, yields Empty().
func Evaluate(snap *telemetry.Snapshot, signals *telemetry.SignalSet, p *profile.DomainProfile) Result {
	if p == nil || p.Expectations == nil {
		return Empty()
	}
	return EvaluateMetrics(ExtractMetrics(signals), snap, p)
}

// EvaluateMetrics runs the rule table over an already extracted metrics
// record.
func EvaluateMetrics(m Metrics, snap *telemetry.Snapshot, p *profile.DomainProfile) Result {
	if p == nil || p.Expectations == nil {
		return Empty()
	}
	exp := p.Expectations

	zeroThreshold := exp.ZeroOutputThresholdMinutes
	if zeroThreshold <= 0 {
		zeroThreshold = profile.DefaultZeroOutputThresholdMinutes
	}
	speedThreshold := exp.ReducedSpeedThresholdPercent
	if speedThreshold <= 0 {
		speedThreshold = profile.DefaultReducedSpeedThresholdPercent
	}

	in := input{
		m:         m,
		exp:       exp,
		family:    p.ResolvedFamily(),
		critical:  isCritical(snap, m.StationID, exp),
		zeroAbove: m.HasZeroOutput && m.ZeroOutputDurationMinutes >= zeroThreshold,
		slowAbove: m.HasReducedSpeed && m.SpeedReductionPercent >= speedThreshold,
	}

	var v verdict
	for _, r := range rules {
		if r.applies(in) {
			r.fire(in, &v)
		}
	}
	return finalize(v)
}

func finalize(v verdict) Result {
	res := Empty()
	if v.violations != nil {
		res.ViolatedExpectations = v.violations
	}
	if v.warnings != nil {
		res.Warnings = v.warnings
	}
	if v.blocking != nil {
		res.BlockingConditions = v.blocking
	}

	switch {
	case len(res.BlockingConditions) > 0:
		res.Severity = SeverityCritical
	case len(res.ViolatedExpectations) > 0:
		res.Severity = SeverityWarning
	default:
		res.Severity = SeverityNormal
	}
	res.EscalationTone = res.Severity != SeverityNormal
	res.RequiresHumanConfirmation = len(res.BlockingConditions) > 0
	return res
}

// isCritical treats a station as critical when the snapshot flags it or the
// profile lists it.
func isCritical(snap *telemetry.Snapshot, stationID string, exp *profile.ProfileExpectations) bool {
	if stationID == "" {
		return false
	}
	if exp.IsCriticalStation(stationID) {
		return true
	}
	if ref, ok := snap.FindStation(stationID); ok {
		return ref.Station.Critical || exp.IsCriticalStation(ref.StationID)
	}
	return false
}
