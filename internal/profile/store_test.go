package profile

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T) *Store {
	t.Helper()
	store, err := Load(context.Background(), FileSource(filepath.Join("testdata", "profiles.yaml")), false)
	require.NoError(t, err)
	return store
}

func TestLoad_Fixture(t *testing.T) {
	store := loadFixture(t)

	assert.Equal(t, []string{"aerospace_defence", "pharma_process", "automotive_discrete"}, store.Names())
	assert.Equal(t, "automotive_discrete", store.Active().Name)

	aero, ok := store.Get("aerospace_defence")
	require.True(t, ok)
	assert.Equal(t, FamilyAerospace, aero.Family)
	assert.Equal(t, IdentificationSerial, aero.MaterialModel.Identification)
	assert.Equal(t, ToneFormal, aero.DiagnosticsBehavior.Tone)
	assert.Equal(t, 2.0, aero.RAGWeightFor("work_instructions"))
	assert.Equal(t, 1.0, aero.RAGWeightFor("unknown_source"))
	require.NotNil(t, aero.Expectations)
	assert.True(t, aero.Expectations.IsCriticalStation("ST18"))
	assert.False(t, aero.Expectations.IsCriticalStation("ST01"))

	pharma, _ := store.Get("pharma_process")
	limit := pharma.Expectations.EnvironmentalLimits["temperature"]
	assert.True(t, limit.Contains(20))
	assert.False(t, limit.Contains(26))
	assert.Equal(t, DefaultZeroOutputThresholdMinutes, pharma.Expectations.ZeroOutputThresholdMinutes)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(context.Background(), FileSource(filepath.Join("testdata", "missing.yaml")), false)
	assert.True(t, errors.Is(err, ErrConfig))

	_, err = Parse([]byte("profiles: [unclosed"))
	assert.True(t, errors.Is(err, ErrConfig))

	_, err = Parse([]byte("active_profile: x\nprofiles: {}\n"))
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestParse_Defaults(t *testing.T) {
	store, err := Parse([]byte(`
profiles:
  bare:
    some_future_field: 42
`))
	require.NoError(t, err)

	p := store.Active()
	assert.Equal(t, "bare", p.Name)
	assert.Equal(t, "bare", p.DisplayName)
	assert.Equal(t, FamilyGeneric, p.Family)
	assert.Equal(t, IdentificationLot, p.MaterialModel.Identification)
	assert.Equal(t, "shallow", p.MaterialModel.GenealogyDepth)
	assert.Equal(t, ExpiryNone, p.MaterialModel.Expiry)
	assert.Equal(t, QualityGateModerate, p.ProcessConstraints.QualityGate)
	assert.Equal(t, TonePragmatic, p.DiagnosticsBehavior.Tone)
	assert.Equal(t, EmphasisThroughputFirst, p.DiagnosticsBehavior.Emphasis)
	assert.Nil(t, p.Expectations)
}

func TestParse_UnknownActiveFallsBackToFirst(t *testing.T) {
	store, err := Parse([]byte(`
active_profile: nope
profiles:
  first: {}
  second: {}
`))
	require.NoError(t, err)
	assert.Equal(t, "first", store.Active().Name)
}

func TestSwitch_RoundTrip(t *testing.T) {
	store := loadFixture(t)

	for _, s := range store.List() {
		require.True(t, store.Switch(s.Name))
		assert.Equal(t, s.Name, store.Active().Name)
	}

	before := store.Active()
	assert.False(t, store.Switch("does_not_exist"))
	assert.Same(t, before, store.Active())
}

func TestList_MarksActive(t *testing.T) {
	store := loadFixture(t)
	store.Switch("pharma_process")

	var active []string
	for _, s := range store.List() {
		if s.Active {
			active = append(active, s.Name)
		}
	}
	assert.Equal(t, []string{"pharma_process"}, active)
}

func TestSwitch_Concurrent(t *testing.T) {
	store := loadFixture(t)
	names := store.Names()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			store.Switch(names[i%len(names)])
		}(i)
		go func() {
			defer wg.Done()
			p := store.Active()
			assert.NotNil(t, p)
			_, ok := store.Get(p.Name)
			assert.True(t, ok)
		}()
	}
	wg.Wait()
}

func TestMigrateLossCategory(t *testing.T) {
	store := loadFixture(t)

	assert.Equal(t, ReasonMapping{ReasonCategory: "equipment", ReasonSubcategory: "breakdown"},
		store.MigrateLossCategory("availability.breakdown"))
	assert.Equal(t, ReasonMapping{ReasonCategory: "performance", ReasonSubcategory: "reduced_speed"},
		store.MigrateLossCategory("performance.reduced_speed"))
	assert.Equal(t, ReasonMapping{ReasonCategory: "unknown"}, store.MigrateLossCategory("unknown"))

	for _, legacy := range []string{"availability.breakdown", "quality.scrap", "performance.reduced_speed"} {
		first := store.MigrateLossCategory(legacy)
		again := store.MigrateLossCategory(first.ReasonCategory + "." + first.ReasonSubcategory)
		assert.Equal(t, first, again, legacy)
	}
}

func TestClassifyFamily(t *testing.T) {
	tests := []struct {
		name string
		want Family
	}{
		{"aerospace_defence", FamilyAerospace},
		{"us_defense", FamilyAerospace},
		{"Defence-Systems", FamilyAerospace},
		{"pharma_process", FamilyPharma},
		{"chemical_process", FamilyPharma},
		{"automotive_discrete", FamilyAutomotive},
		{"discrete_assembly", FamilyAutomotive},
		{"aerospace_process", FamilyAerospace},
		{"food", FamilyGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyFamily(tt.name))
		})
	}
}

func TestExplicitFamilyWinsOverName(t *testing.T) {
	store, err := Parse([]byte(`
profiles:
  process_line:
    family: automotive
`))
	require.NoError(t, err)
	assert.Equal(t, FamilyAutomotive, store.Active().Family)
}

func TestFieldHelpers(t *testing.T) {
	store := loadFixture(t)
	store.Switch("aerospace_defence")

	assert.True(t, store.IsMaterialFieldRequired("serial_number"))
	assert.True(t, store.IsMaterialFieldRequired("work_order"))
	assert.False(t, store.IsMaterialFieldRequired("lot_number"))
	assert.True(t, store.IsCalibrationFieldRequired("calibration_due"))
	assert.Equal(t, 1.5, store.RAGWeightFor("quality_procedures"))

	store.Switch("automotive_discrete")
	assert.False(t, store.IsCalibrationFieldRequired("calibration_due"))
	assert.True(t, store.IsMaterialFieldRequired("lot_number"))
}

func TestParseSource(t *testing.T) {
	src, err := ParseSource("s3://bucket/path/profiles.yaml")
	require.NoError(t, err)
	s3src, ok := src.(*S3Source)
	require.True(t, ok)
	assert.Equal(t, "bucket", s3src.Bucket)
	assert.Equal(t, "path/profiles.yaml", s3src.Key)

	src, err = ParseSource("gs://cfg/profiles.yaml")
	require.NoError(t, err)
	assert.Equal(t, "gs://cfg/profiles.yaml", src.String())

	src, err = ParseSource("file:///etc/shopfloor/profiles.yaml")
	require.NoError(t, err)
	assert.Equal(t, FileSource("/etc/shopfloor/profiles.yaml"), src)

	_, err = ParseSource("s3://bucket-only")
	assert.True(t, errors.Is(err, ErrConfig))
	_, err = ParseSource("")
	assert.True(t, errors.Is(err, ErrConfig))
}
