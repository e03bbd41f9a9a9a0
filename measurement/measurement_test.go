package measurement

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aecoa/aecoa/errors"
)

func sample() []Measurement {
	return []Measurement{
		{EntityID: "hs-1", Category: "household_shelter", Parameter: "Clear Height mm", Value: 1520, Unit: "mm", SourceRef: "A-101"},
		{EntityID: "hs-2", Category: "household_shelter", Parameter: "clear_height_mm", Value: 1490, Unit: "mm", SourceRef: "A-102"},
		{EntityID: "stair-1", Category: "staircase", Parameter: "staircase_waist_mm", Value: 310, Unit: "mm"},
	}
}

func TestIndex_LookupNormalizesAndKeepsOrder(t *testing.T) {
	idx := NewIndex(sample())

	got := idx.Lookup("  CLEAR   height_mm ")
	require.Len(t, got, 2)
	assert.Equal(t, "hs-1", got[0].EntityID)
	assert.Equal(t, "hs-2", got[1].EntityID)

	assert.Empty(t, idx.Lookup("ventilation_clearance_mm"))
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, []string{"clear_height_mm", "staircase_waist_mm"}, idx.Parameters())
}

func TestIndex_IsolatedFromCaller(t *testing.T) {
	ms := sample()
	idx := NewIndex(ms)
	ms[0].Value = 0

	assert.Equal(t, 1520.0, idx.Lookup("clear_height_mm")[0].Value)

	all := idx.All()
	all[0].Value = 1
	assert.Equal(t, 1520.0, idx.All()[0].Value)
}

func TestIndex_Nil(t *testing.T) {
	var idx *Index
	assert.Nil(t, idx.Lookup("x"))
	assert.Zero(t, idx.Len())
	assert.Nil(t, idx.All())
}

func TestParseJSON(t *testing.T) {
	t.Run("document with drivers", func(t *testing.T) {
		doc, err := ParseJSON([]byte(`{"drivers": {"gfa_m2": 65.5},
			"measurements": [{"entity_id": "hs-1", "parameter": "hs_floor_area_m2", "value": 2.1, "unit": "m2"}]}`))
		require.NoError(t, err)
		assert.Equal(t, 65.5, doc.Drivers["gfa_m2"])
		require.Len(t, doc.Measurements, 1)
	})

	t.Run("bare array", func(t *testing.T) {
		doc, err := ParseJSON([]byte(`[{"entity_id": "hs-1", "parameter": "p", "value": 1, "unit": "mm"}]`))
		require.NoError(t, err)
		assert.Len(t, doc.Measurements, 1)
	})

	t.Run("missing unit", func(t *testing.T) {
		_, err := ParseJSON([]byte(`[{"entity_id": "hs-1", "parameter": "p", "value": 1}]`))
		require.Error(t, err)
		assert.True(t, errors.IsInvalidRequestError(err))
		assert.Contains(t, err.Error(), "Unit")
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := ParseJSON([]byte(`{`))
		assert.True(t, errors.IsInvalidRequestError(err))
	})
}

func TestParseYAML(t *testing.T) {
	doc, err := ParseYAML([]byte(`
drivers:
  gfa_m2: 80
measurements:
  - entity_id: hs-1
    parameter: hs_volume_m3
    value: 7.5
    unit: m3
    source_ref: A-201
`))
	require.NoError(t, err)
	assert.Equal(t, 80.0, doc.Drivers["gfa_m2"])
	assert.Equal(t, "A-201", doc.Measurements[0].SourceRef)

	doc, err = ParseYAML([]byte("- {entity_id: a, parameter: p, value: 3, unit: mm}\n"))
	require.NoError(t, err)
	assert.Len(t, doc.Measurements, 1)
}

func TestParseCSV(t *testing.T) {
	input := strings.Join([]string{
		"Parameter,Value,Unit,Entity ID,Source Ref",
		"clear_height_mm,1520,mm,hs-1,A-101",
		"ceiling_slab_mm, 280 ,mm,hs-1,A-102",
	}, "\n")

	ms, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, Measurement{EntityID: "hs-1", Parameter: "ceiling_slab_mm", Value: 280, Unit: "mm", SourceRef: "A-102"}, ms[1])
}

func TestParseCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"missing column", "entity_id,parameter,value\nhs-1,p,1\n"},
		{"bad number", "entity_id,parameter,value,unit\nhs-1,p,abc,mm\n"},
		{"not finite", "entity_id,parameter,value,unit\nhs-1,p,NaN,mm\n"},
		{"missing entity", "entity_id,parameter,value,unit\n,p,1,mm\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSV(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, errors.IsInvalidRequestError(err))
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "m.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("entity_id,parameter,value,unit\nhs-1,clear_height_mm,1520,mm\n"), 0644))
	idx, drivers, err := LoadFile(csvPath)
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
	assert.Nil(t, drivers)

	jsonPath := filepath.Join(dir, "m.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"drivers": {"gfa_m2": 65.5}, "measurements": []}`), 0644))
	idx, drivers, err = LoadFile(jsonPath)
	require.NoError(t, err)
	assert.Zero(t, idx.Len())
	assert.Equal(t, map[string]float64{"gfa_m2": 65.5}, drivers)

	_, _, err = LoadFile(filepath.Join(dir, "m.xlsx"))
	assert.Error(t, err)
}
