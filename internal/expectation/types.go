package expectation

// Severity of an expectation result.
type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Violation and blocking-condition codes. These strings are part of the
// response contract and pinned by tests.
const (
	ViolationCriticalStationRequiresEvidence   = "critical_station_requires_evidence"
	ViolationZeroOutputRequiresBatchContext    = "zero_output_requires_batch_context"
	ViolationQualityHoldBlocksProduction       = "quality_hold_blocks_production"
	ViolationZeroOutputRequiresAuthorization   = "zero_output_requires_authorization"
	ViolationReducedSpeedRequiresJustification = "reduced_speed_requires_justification"
	ViolationReducedSpeedRequiresDeviation     = "reduced_speed_requires_deviation"
	ViolationMissingSerialBinding              = "missing_serial_binding"
	ViolationEnvironmentalExcursion            = "environmental_excursion"

	BlockMissingMaterialContext         = "missing_material_context"
	BlockMissingSerialBinding           = "missing_serial_binding"
	BlockMissingBatchContext            = "missing_batch_context"
	BlockMaterialQualityHold            = "material_quality_hold"
	BlockMissingDeviationRecord         = "missing_deviation_record"
	BlockMissingAuthorizationCritical   = "missing_authorization_for_critical_station"
	BlockMissingEvidenceCriticalStation = "missing_evidence_for_critical_station"
	BlockEnvironmentalExcursion         = "environmental_excursion"

	WarnZeroOutputOutsideStartup    = "zero_output_outside_startup_window"
	WarnReducedSpeedCriticalStation = "reduced_speed_on_critical_station"
)

// Result is the deterministic verdict of evaluating runtime state against a
// profile's expectations. Lists are never nil so the JSON form is stable.
type Result struct {
	ViolatedExpectations      []string `json:"violated_expectations" yaml:"violated_expectations"`
	Warnings                  []string `json:"warnings" yaml:"warnings"`
	BlockingConditions        []string `json:"blocking_conditions" yaml:"blocking_conditions"`
	RequiresHumanConfirmation bool     `json:"requires_human_confirmation" yaml:"requires_human_confirmation"`
	Severity                  Severity `json:"severity" yaml:"severity"`
	EscalationTone            bool     `json:"escalation_tone" yaml:"escalation_tone"`
}

// Empty returns a normal result with no findings.
func Empty() Result {
	return Result{
		ViolatedExpectations: []string{},
		Warnings:             []string{},
		BlockingConditions:   []string{},
		Severity:             SeverityNormal,
	}
}

// HasFindings reports whether any violation, warning or blocking condition
// was recorded.
func (r Result) HasFindings() bool {
	return len(r.ViolatedExpectations) > 0 || len(r.Warnings) > 0 || len(r.BlockingConditions) > 0
}
