// Package profile loads domain profiles and holds the active one.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// ErrConfig marks a profile configuration that is missing or malformed.
// It is only returned at load time.
var ErrConfig = errors.New("profile configuration error")

// document is the on-disk shape of the profile configuration. Profiles are
// kept as a raw mapping node so declaration order survives decoding.
type document struct {
	ActiveProfile string    `yaml:"active_profile"`
	Profiles      yaml.Node `yaml:"profiles"`
	Migration     Migration `yaml:"migration"`
}

// Store is the authoritative source of the active DomainProfile. Profiles are
// immutable once loaded; Switch swaps the active pointer atomically so readers
// already holding a profile keep a consistent view.
type Store struct {
	profiles    map[string]*DomainProfile
	order       []string
	defaultName string
	migration   map[string]ReasonMapping
	active      atomic.Pointer[DomainProfile]
	debug       bool
}

// Load reads and parses a profile document from src.
func Load(ctx context.Context, src Source, debug bool) (*Store, error) {
	data, err := src.Read(ctx)
	if err != nil {
		return nil, err
	}
	store, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src, err)
	}
	store.debug = debug
	if debug {
		log.Printf("[profile] loaded %d profiles from %s (active=%s)", len(store.order), src, store.Active().Name)
	}
	return store, nil
}

// Parse decodes a profile document.
func Parse(data []byte) (*Store, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse: %v", ErrConfig, err)
	}
	if doc.Profiles.Kind != yaml.MappingNode || len(doc.Profiles.Content) == 0 {
		return nil, fmt.Errorf("%w: no profiles defined", ErrConfig)
	}

	store := &Store{
		profiles:  make(map[string]*DomainProfile),
		migration: doc.Migration.LossCategoryToReason,
	}

	for i := 0; i+1 < len(doc.Profiles.Content); i += 2 {
		name := doc.Profiles.Content[i].Value
		var p DomainProfile
		if err := doc.Profiles.Content[i+1].Decode(&p); err != nil {
			return nil, fmt.Errorf("%w: profile %q: %v", ErrConfig, name, err)
		}
		p.Name = name
		applyDefaults(&p)
		if _, dup := store.profiles[name]; dup {
			return nil, fmt.Errorf("%w: profile %q declared twice", ErrConfig, name)
		}
		store.profiles[name] = &p
		store.order = append(store.order, name)
	}

	store.defaultName = strings.TrimSpace(doc.ActiveProfile)
	if _, ok := store.profiles[store.defaultName]; !ok {
		if store.defaultName != "" {
			log.Printf("[profile] active_profile %q is not defined, falling back to %q", store.defaultName, store.order[0])
		}
		store.defaultName = store.order[0]
	}
	store.active.Store(store.profiles[store.defaultName])

	return store, nil
}

// Active returns the currently active profile. It never returns nil for a
// store created by Load or Parse.
func (s *Store) Active() *DomainProfile {
	if p := s.active.Load(); p != nil {
		return p
	}
	if p, ok := s.profiles[s.defaultName]; ok {
		return p
	}
	if len(s.order) > 0 {
		return s.profiles[s.order[0]]
	}
	return nil
}

// Get looks up a profile by name.
func (s *Store) Get(name string) (*DomainProfile, bool) {
	p, ok := s.profiles[name]
	return p, ok
}

// Names returns profile names in declaration order.
func (s *Store) Names() []string {
	return append([]string(nil), s.order...)
}

// List returns summaries in declaration order.
func (s *Store) List() []Summary {
	active := s.Active()
	out := make([]Summary, 0, len(s.order))
	for _, name := range s.order {
		p := s.profiles[name]
		out = append(out, Summary{
			Name:        p.Name,
			DisplayName: p.DisplayName,
			Description: p.Description,
			Family:      p.Family,
			Active:      active != nil && active.Name == p.Name,
		})
	}
	return out
}

// Switch makes name the active profile. Unknown names leave the store
// untouched and return false.
func (s *Store) Switch(name string) bool {
	p, ok := s.profiles[name]
	if !ok {
		return false
	}
	prev := s.active.Swap(p)
	if s.debug {
		prevName := ""
		if prev != nil {
			prevName = prev.Name
		}
		log.Printf("[profile] switched active profile %s -> %s", prevName, name)
	}
	return true
}

// MigrateLossCategory maps a legacy loss-category id to a reason category.
// Unmapped ids fall back to their first dotted segment as category and the
// remainder as subcategory, so an already migrated "category.subcategory"
// pair passes through unchanged.
func (s *Store) MigrateLossCategory(legacyID string) ReasonMapping {
	if m, ok := s.migration[legacyID]; ok {
		return m
	}
	category, rest, found := strings.Cut(legacyID, ".")
	if !found {
		return ReasonMapping{ReasonCategory: category}
	}
	return ReasonMapping{ReasonCategory: category, ReasonSubcategory: rest}
}

// IsMaterialFieldRequired reports whether the active profile requires field.
func (s *Store) IsMaterialFieldRequired(field string) bool {
	return s.Active().IsMaterialFieldRequired(field)
}

// IsCalibrationFieldRequired reports whether the active profile requires field.
func (s *Store) IsCalibrationFieldRequired(field string) bool {
	return s.Active().IsCalibrationFieldRequired(field)
}

// RAGWeightFor returns the active profile's search weight for sourceType.
func (s *Store) RAGWeightFor(sourceType string) float64 {
	return s.Active().RAGWeightFor(sourceType)
}

var defaultCalibrationFields = []string{"calibration_status", "calibration_due", "last_calibration"}

func (p *DomainProfile) IsMaterialFieldRequired(field string) bool {
	if p == nil {
		return false
	}
	for _, f := range p.MaterialModel.MandatoryFields {
		if f == field {
			return true
		}
	}
	switch field {
	case "serial_number":
		return p.MaterialModel.Identification == IdentificationSerial
	case "lot_number", "batch_number":
		return p.MaterialModel.Identification == IdentificationLot
	case "expiry_date":
		return p.MaterialModel.Expiry == ExpiryMandatory
	}
	return false
}

func (p *DomainProfile) IsCalibrationFieldRequired(field string) bool {
	if p == nil || !p.EquipmentModel.CalibrationRequired {
		return false
	}
	fields := p.EquipmentModel.CalibrationFields
	if len(fields) == 0 {
		fields = defaultCalibrationFields
	}
	for _, f := range fields {
		if f == field {
			return true
		}
	}
	return false
}

// RAGWeightFor returns the configured search weight for sourceType, or 1.0.
func (p *DomainProfile) RAGWeightFor(sourceType string) float64 {
	if p == nil {
		return 1.0
	}
	if w, ok := p.RAGPreferences.SearchWeights[sourceType]; ok {
		return w
	}
	return 1.0
}

// MissingPriorities lists enabled categories that are absent from the
// diagnostic priority order. They sort last during reason extraction.
func (p *DomainProfile) MissingPriorities() []string {
	ordered := make(map[string]struct{}, len(p.ReasonTaxonomy.PriorityOrder))
	for _, c := range p.ReasonTaxonomy.PriorityOrder {
		ordered[c] = struct{}{}
	}
	var missing []string
	for _, c := range p.ReasonTaxonomy.Enabled {
		if _, ok := ordered[c]; !ok {
			missing = append(missing, c)
		}
	}
	sort.Strings(missing)
	return missing
}

// ResolvedFamily returns the explicit family when it is known, otherwise
// the family derived from the profile name.
func (p *DomainProfile) ResolvedFamily() Family {
	switch Family(strings.ToLower(string(p.Family))) {
	case FamilyAerospace, FamilyPharma, FamilyAutomotive, FamilyGeneric:
		return Family(strings.ToLower(string(p.Family)))
	}
	return ClassifyFamily(p.Name)
}

// ClassifyFamily derives a family from a profile name. Aerospace is checked
// before pharma so a name containing both "aerospace" and "process" is
// aerospace-class.
func ClassifyFamily(name string) Family {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "aerospace"), strings.Contains(n, "defence"), strings.Contains(n, "defense"):
		return FamilyAerospace
	case strings.Contains(n, "pharma"), strings.Contains(n, "process"):
		return FamilyPharma
	case strings.Contains(n, "automotive"), strings.Contains(n, "discrete"):
		return FamilyAutomotive
	default:
		return FamilyGeneric
	}
}

func applyDefaults(p *DomainProfile) {
	if p.DisplayName == "" {
		p.DisplayName = p.Name
	}

	p.Family = p.ResolvedFamily()

	mm := &p.MaterialModel
	if mm.Identification != IdentificationSerial {
		mm.Identification = IdentificationLot
	}
	if mm.GenealogyDepth == "" {
		mm.GenealogyDepth = "shallow"
	}
	switch mm.Expiry {
	case ExpiryMandatory, ExpiryConditional:
	default:
		mm.Expiry = ExpiryNone
	}
	if mm.TraceLevel == "" {
		mm.TraceLevel = "basic"
	}

	switch p.ProcessConstraints.QualityGate {
	case QualityGateStrict, QualityGateLoose:
	default:
		p.ProcessConstraints.QualityGate = QualityGateModerate
	}

	db := &p.DiagnosticsBehavior
	if db.Tone != ToneFormal {
		db.Tone = TonePragmatic
	}
	switch db.Emphasis {
	case EmphasisComplianceFirst, EmphasisQualityFirst:
	default:
		db.Emphasis = EmphasisThroughputFirst
	}
	switch db.ReasoningStyle {
	case ReasoningAuditReady, ReasoningGMPCompliant, ReasoningLeanFocused:
	default:
		db.ReasoningStyle = ReasoningGeneral
	}

	if e := p.Expectations; e != nil {
		if e.ZeroOutputThresholdMinutes <= 0 {
			e.ZeroOutputThresholdMinutes = DefaultZeroOutputThresholdMinutes
		}
		if e.ReducedSpeedThresholdPercent <= 0 {
			e.ReducedSpeedThresholdPercent = DefaultReducedSpeedThresholdPercent
		}
	}

	if missing := p.MissingPriorities(); len(missing) > 0 {
		log.Printf("[profile] %s: enabled categories %v missing from diagnostic_priority_order; they will be ranked last", p.Name, missing)
	}
}

const (
	DefaultZeroOutputThresholdMinutes   = 15.0
	DefaultReducedSpeedThresholdPercent = 10.0
)
