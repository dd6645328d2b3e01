package expectation

import (
	"sort"
	"strings"

	"github.com/bgdnvk/shopfloor/internal/profile"
)

// input is what every rule sees: the extracted metrics plus the profile
// facts resolved once per evaluation.
type input struct {
	m         Metrics
	exp       *profile.ProfileExpectations
	family    profile.Family
	critical  bool
	zeroAbove bool // zero output lasting at least the threshold
	slowAbove bool // speed reduction at or above the threshold
}

// verdict collects rule output and keeps each list free of duplicates.
type verdict struct {
	violations []string
	warnings   []string
	blocking   []string
}

func (v *verdict) violate(code string) { v.violations = appendUnique(v.violations, code) }
func (v *verdict) warn(code string)    { v.warnings = appendUnique(v.warnings, code) }
func (v *verdict) block(code string)   { v.blocking = appendUnique(v.blocking, code) }

// Rule is one row of the expectation table. When applies returns true the
// rule's fire function records its verdict.
type Rule struct {
	ID          string
	Description string
	applies     func(in input) bool
	fire        func(in input, v *verdict)
}

var qualityHoldStates = map[string]bool{"HOLD": true, "QUARANTINE": true}

var startupModes = map[OperationalMode]bool{
	ModeStartup:    true,
	ModeChangeover: true,
	ModeRampup:     true,
}

// rules is evaluated top to bottom. Order matters: it fixes the order of
// entries in every result list.
var rules = []Rule{
	{
		ID:          "0a",
		Description: "aerospace work needs material evidence",
		applies: func(in input) bool {
			return in.family == profile.FamilyAerospace && in.m.HasMaterialContext && !in.m.MaterialEvidencePresent
		},
		fire: func(_ input, v *verdict) {
			v.violate(ViolationCriticalStationRequiresEvidence)
			v.block(BlockMissingMaterialContext)
		},
	},
	{
		ID:          "0b",
		Description: "aerospace work needs a bound serial",
		applies: func(in input) bool {
			return in.family == profile.FamilyAerospace && in.exp.MissingSerialBindingIsBlocking &&
				in.m.HasMaterialContext && !in.m.HasSerialBinding
		},
		fire: func(_ input, v *verdict) {
			v.block(BlockMissingSerialBinding)
		},
	},
	{
		ID:          "0c",
		Description: "pharma work needs batch evidence",
		applies: func(in input) bool {
			return in.family == profile.FamilyPharma && in.m.HasMaterialContext && !in.m.MaterialEvidencePresent
		},
		fire: func(_ input, v *verdict) {
			v.violate(ViolationZeroOutputRequiresBatchContext)
			v.block(BlockMissingBatchContext)
		},
	},
	{
		ID:          "0d",
		Description: "pharma material on hold or quarantine",
		applies: func(in input) bool {
			return in.family == profile.FamilyPharma && in.m.HasMaterialContext && qualityHoldStates[in.m.MaterialQualityStatus]
		},
		fire: func(in input, v *verdict) {
			v.violate(ViolationQualityHoldBlocksProduction)
			v.block(BlockMaterialQualityHold)
			if !in.m.HasDeviationRecord {
				v.block(BlockMissingDeviationRecord)
			}
		},
	},
	{
		ID:          "1a",
		Description: "zero output needs authorization",
		applies: func(in input) bool {
			return in.zeroAbove && in.exp.ZeroOutputRequiresAuthorization
		},
		fire: func(in input, v *verdict) {
			v.violate(ViolationZeroOutputRequiresAuthorization)
			if in.critical {
				v.block(BlockMissingAuthorizationCritical)
			}
		},
	},
	{
		ID:          "1b",
		Description: "zero output needs batch context",
		applies: func(in input) bool {
			return in.m.HasZeroOutput && in.exp.ZeroOutputRequiresBatchContext && !in.m.HasBatchContext
		},
		fire: func(_ input, v *verdict) {
			v.violate(ViolationZeroOutputRequiresBatchContext)
			v.block(BlockMissingBatchContext)
		},
	},
	{
		ID:          "1c",
		Description: "zero output outside the startup window",
		applies: func(in input) bool {
			return in.zeroAbove && in.exp.ZeroOutputAllowedDuringStartup && !startupModes[in.m.OperationalMode]
		},
		fire: func(_ input, v *verdict) {
			v.warn(WarnZeroOutputOutsideStartup)
		},
	},
	{
		ID:          "2a",
		Description: "reduced speed needs justification",
		applies: func(in input) bool {
			return in.slowAbove && in.exp.ReducedSpeedRequiresJustification
		},
		fire: func(in input, v *verdict) {
			v.violate(ViolationReducedSpeedRequiresJustification)
			if in.critical {
				v.warn(WarnReducedSpeedCriticalStation)
			}
		},
	},
	{
		ID:          "2b",
		Description: "reduced speed needs a deviation record",
		applies: func(in input) bool {
			return in.slowAbove && in.exp.ReducedSpeedRequiresDeviation && !in.m.HasDeviationRecord
		},
		fire: func(_ input, v *verdict) {
			v.violate(ViolationReducedSpeedRequiresDeviation)
			v.block(BlockMissingDeviationRecord)
		},
	},
	{
		ID:          "3",
		Description: "critical station loss needs a work order or maintenance log",
		applies: func(in input) bool {
			return in.exp.CriticalStationRequiresEvidence && in.critical &&
				(in.m.HasZeroOutput || in.m.HasReducedSpeed) &&
				!in.m.HasWorkOrder && !in.m.HasMaintenanceLog
		},
		fire: func(_ input, v *verdict) {
			v.violate(ViolationCriticalStationRequiresEvidence)
			v.block(BlockMissingEvidenceCriticalStation)
		},
	},
	{
		ID:          "4",
		Description: "undeclared dry run without serial",
		applies: func(in input) bool {
			return in.exp.DryRunMustBeDeclared && in.m.HasZeroOutput && !in.m.IsDeclaredDryRun &&
				in.exp.MissingSerialBindingIsBlocking && !in.m.HasSerialBinding
		},
		fire: func(_ input, v *verdict) {
			v.violate(ViolationMissingSerialBinding)
			v.block(BlockMissingSerialBinding)
		},
	},
	{
		ID:          "5",
		Description: "environmental parameter out of limits",
		applies: func(in input) bool {
			return in.exp.EnvironmentalExcursionIsBlocking && len(excursions(in.m, in.exp)) > 0
		},
		fire: func(_ input, v *verdict) {
			v.violate(ViolationEnvironmentalExcursion)
			v.block(BlockEnvironmentalExcursion)
		},
	},
}

// Rules returns the rule table in evaluation order.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// excursions lists the semantic ids whose reading falls outside the limit
// configured for their parameter. A reading matches a limit when its id
// equals the parameter name or ends with ".<parameter>".
func excursions(m Metrics, exp *profile.ProfileExpectations) []string {
	if exp == nil || len(exp.EnvironmentalLimits) == 0 {
		return nil
	}
	params := make([]string, 0, len(exp.EnvironmentalLimits))
	for k := range exp.EnvironmentalLimits {
		params = append(params, k)
	}
	sort.Strings(params)

	var out []string
	for _, id := range m.EnvironmentalIDs() {
		lower := strings.ToLower(id)
		for _, param := range params {
			p := strings.ToLower(param)
			if lower != p && !strings.HasSuffix(lower, "."+p) {
				continue
			}
			if !exp.EnvironmentalLimits[param].Contains(m.Environmental[id]) {
				out = append(out, id)
			}
			break
		}
	}
	return out
}

func appendUnique(list []string, code string) []string {
	for _, existing := range list {
		if existing == code {
			return list
		}
	}
	return append(list, code)
}
