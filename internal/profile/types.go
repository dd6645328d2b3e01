package profile

// Family is the compliance family a profile belongs to. Rules 0a-0d of the
// expectation table only apply to specific families.
type Family string

const (
	FamilyAerospace  Family = "aerospace"
	FamilyPharma     Family = "pharma"
	FamilyAutomotive Family = "automotive"
	FamilyGeneric    Family = "generic"
)

// IdentificationMode describes how material units are identified.
type IdentificationMode string

const (
	IdentificationSerial IdentificationMode = "serial"
	IdentificationLot    IdentificationMode = "lot"
)

// ExpiryPolicy describes how material expiry is managed.
type ExpiryPolicy string

const (
	ExpiryMandatory   ExpiryPolicy = "mandatory"
	ExpiryConditional ExpiryPolicy = "conditional"
	ExpiryNone        ExpiryPolicy = "none"
)

// QualityGate describes how strictly quality gates are enforced.
type QualityGate string

const (
	QualityGateStrict   QualityGate = "strict"
	QualityGateModerate QualityGate = "moderate"
	QualityGateLoose    QualityGate = "loose"
)

// Tone is the register of the generated diagnostic.
type Tone string

const (
	ToneFormal    Tone = "formal"
	TonePragmatic Tone = "pragmatic"
)

// Emphasis is what the diagnostic puts first.
type Emphasis string

const (
	EmphasisComplianceFirst Emphasis = "compliance_first"
	EmphasisQualityFirst    Emphasis = "quality_first"
	EmphasisThroughputFirst Emphasis = "throughput_first"
)

// ReasoningStyle selects domain-specific reasoning directives.
type ReasoningStyle string

const (
	ReasoningAuditReady   ReasoningStyle = "audit_ready"
	ReasoningGMPCompliant ReasoningStyle = "gmp_compliant"
	ReasoningLeanFocused  ReasoningStyle = "lean_focused"
	ReasoningGeneral      ReasoningStyle = "general"
)

// DomainProfile describes domain-specific compliance and presentation behavior.
// A loaded profile is never mutated; switching replaces the whole value.
type DomainProfile struct {
	Name                string               `yaml:"name" json:"name"`
	DisplayName         string               `yaml:"display_name" json:"display_name"`
	Description         string               `yaml:"description" json:"description"`
	Family              Family               `yaml:"family" json:"family"`
	MaterialModel       MaterialModel        `yaml:"material_model" json:"material_model"`
	EquipmentModel      EquipmentModel       `yaml:"equipment_model" json:"equipment_model"`
	ProcessConstraints  ProcessConstraints   `yaml:"process_constraints" json:"process_constraints"`
	ReasonTaxonomy      ReasonTaxonomy       `yaml:"reason_taxonomy" json:"reason_taxonomy"`
	RAGPreferences      RAGPreferences       `yaml:"rag_preferences" json:"rag_preferences"`
	UIEmphasis          map[string]any       `yaml:"ui_emphasis" json:"ui_emphasis,omitempty"`
	DiagnosticsBehavior DiagnosticsBehavior  `yaml:"diagnostics_behavior" json:"diagnostics_behavior"`
	Expectations        *ProfileExpectations `yaml:"profile_expectations" json:"profile_expectations,omitempty"`
}

type MaterialModel struct {
	Identification  IdentificationMode `yaml:"identification" json:"identification"`
	GenealogyDepth  string             `yaml:"genealogy_depth" json:"genealogy_depth"`
	Expiry          ExpiryPolicy       `yaml:"expiry_management" json:"expiry_management"`
	TraceLevel      string             `yaml:"traceability_level" json:"traceability_level"`
	MandatoryFields []string           `yaml:"mandatory_fields" json:"mandatory_fields,omitempty"`
}

type EquipmentModel struct {
	CertificationRequired bool     `yaml:"certification_required" json:"certification_required"`
	CalibrationRequired   bool     `yaml:"calibration_tracking" json:"calibration_tracking"`
	QualificationRequired bool     `yaml:"qualification_required" json:"qualification_required"`
	CalibrationFields     []string `yaml:"calibration_fields" json:"calibration_fields,omitempty"`
}

type ProcessConstraints struct {
	DeviationRequired bool        `yaml:"deviation_required" json:"deviation_required"`
	SignoffRequired   bool        `yaml:"signoff_required" json:"signoff_required"`
	QualityGate       QualityGate `yaml:"quality_gate_strictness" json:"quality_gate_strictness"`
}

// ReasonTaxonomy lists the Level-1 reason categories a profile cares about and
// the order in which they are diagnosed.
type ReasonTaxonomy struct {
	Enabled         []string            `yaml:"enabled" json:"enabled"`
	PriorityOrder   []string            `yaml:"diagnostic_priority_order" json:"diagnostic_priority_order"`
	Subcategories   map[string][]string `yaml:"subcategories" json:"subcategories,omitempty"`
	LossCategoryMap map[string]string   `yaml:"loss_category_map" json:"loss_category_map,omitempty"`
}

// RAGPreferences drives the source filter and reranking of knowledge retrieval.
type RAGPreferences struct {
	PrioritySources []string           `yaml:"priority_sources" json:"priority_sources"`
	SearchWeights   map[string]float64 `yaml:"search_weights" json:"search_weights,omitempty"`
}

type DiagnosticsBehavior struct {
	Tone                    Tone           `yaml:"tone" json:"tone"`
	Emphasis                Emphasis       `yaml:"emphasis" json:"emphasis"`
	IncludeDocumentationRef bool           `yaml:"include_documentation_refs" json:"include_documentation_refs"`
	ReasoningStyle          ReasoningStyle `yaml:"reasoning_style" json:"reasoning_style"`
	OutputTemplate          string         `yaml:"output_template" json:"output_template,omitempty"`
}

// ProfileExpectations are the rule flags and thresholds the expectation
// evaluator reads.
type ProfileExpectations struct {
	ZeroOutputRequiresAuthorization   bool             `yaml:"zero_output_requires_authorization" json:"zero_output_requires_authorization"`
	ZeroOutputRequiresBatchContext    bool             `yaml:"zero_output_requires_batch_context" json:"zero_output_requires_batch_context"`
	ZeroOutputAllowedDuringStartup    bool             `yaml:"zero_output_allowed_during_startup" json:"zero_output_allowed_during_startup"`
	ZeroOutputThresholdMinutes        float64          `yaml:"zero_output_threshold_minutes" json:"zero_output_threshold_minutes"`
	ReducedSpeedRequiresJustification bool             `yaml:"reduced_speed_requires_justification" json:"reduced_speed_requires_justification"`
	ReducedSpeedRequiresDeviation     bool             `yaml:"reduced_speed_requires_deviation" json:"reduced_speed_requires_deviation"`
	ReducedSpeedThresholdPercent      float64          `yaml:"reduced_speed_threshold_percent" json:"reduced_speed_threshold_percent"`
	CriticalStationRequiresEvidence   bool             `yaml:"critical_station_requires_evidence" json:"critical_station_requires_evidence"`
	DryRunMustBeDeclared              bool             `yaml:"dry_run_must_be_declared" json:"dry_run_must_be_declared"`
	MissingSerialBindingIsBlocking    bool             `yaml:"missing_serial_binding_is_blocking" json:"missing_serial_binding_is_blocking"`
	EnvironmentalExcursionIsBlocking  bool             `yaml:"environmental_excursion_is_blocking" json:"environmental_excursion_is_blocking"`
	CriticalStations                  []string         `yaml:"critical_stations" json:"critical_stations,omitempty"`
	EnvironmentalLimits               map[string]Limit `yaml:"environmental_limits" json:"environmental_limits,omitempty"`
}

// Limit is an inclusive acceptable range for an environmental parameter. A nil
// bound is unbounded.
type Limit struct {
	Min  *float64 `yaml:"min" json:"min,omitempty"`
	Max  *float64 `yaml:"max" json:"max,omitempty"`
	Unit string   `yaml:"unit" json:"unit,omitempty"`
}

// Contains reports whether v lies within the limit.
func (l Limit) Contains(v float64) bool {
	if l.Min != nil && v < *l.Min {
		return false
	}
	if l.Max != nil && v > *l.Max {
		return false
	}
	return true
}

// IsCriticalStation reports whether stationID is listed as critical.
func (e *ProfileExpectations) IsCriticalStation(stationID string) bool {
	if e == nil || stationID == "" {
		return false
	}
	for _, s := range e.CriticalStations {
		if s == stationID {
			return true
		}
	}
	return false
}

// Migration maps legacy loss-category identifiers to reason categories.
type Migration struct {
	LossCategoryToReason map[string]ReasonMapping `yaml:"loss_category_to_reason"`
}

// ReasonMapping is the result of migrating a legacy loss category.
type ReasonMapping struct {
	ReasonCategory    string `yaml:"reason_category" json:"reason_category"`
	ReasonSubcategory string `yaml:"reason_subcategory" json:"reason_subcategory"`
}

// Summary is the listing view of a profile.
type Summary struct {
	Name        string `json:"name" yaml:"name"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Description string `json:"description" yaml:"description"`
	Family      Family `json:"family" yaml:"family"`
	Active      bool   `json:"active" yaml:"active"`
}
