package requirement

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aecoa/aecoa/errors"
	"github.com/aecoa/aecoa/internal/util"
)

func fixed(id, param string, op Op, threshold float64, unit string) Requirement {
	return Requirement{ID: id, Kind: KindFixed, Parameter: param, Op: op, Unit: unit, Threshold: util.Ptr(threshold)}
}

func TestOp_Holds(t *testing.T) {
	tests := []struct {
		op       Op
		measured float64
		required float64
		want     bool
	}{
		{OpGTE, 1500, 1500, true},
		{OpGTE, 1499, 1500, false},
		{OpGT, 1500, 1500, false},
		{OpGT, 1501, 1500, true},
		{OpLTE, 700, 700, true},
		{OpLTE, 701, 700, false},
		{OpLT, 700, 700, false},
		{OpEQ, 3, 3, true},
		{OpEQ, 3.0000000001, 3, true},
		{OpEQ, 3.1, 3, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.Holds(tt.measured, tt.required, 1e-9))
		})
	}
}

func TestOp_Margin(t *testing.T) {
	assert.Equal(t, 20.0, OpGTE.Margin(1520, 1500))
	assert.Equal(t, -20.0, OpGT.Margin(280, 300))
	assert.Equal(t, 50.0, OpLTE.Margin(650, 700))
	assert.Equal(t, -2.0, OpEQ.Margin(5, 3))
	assert.Equal(t, -2.0, OpEQ.Margin(1, 3))
}

func TestEffectiveAggregator(t *testing.T) {
	assert.Equal(t, AggregateMin, fixed("a", "p", OpGTE, 1, "mm").EffectiveAggregator())
	assert.Equal(t, AggregateMin, fixed("a", "p", OpGT, 1, "mm").EffectiveAggregator())
	assert.Equal(t, AggregateMax, fixed("a", "p", OpLTE, 1, "mm").EffectiveAggregator())
	assert.Equal(t, AggregateFirst, fixed("a", "p", OpEQ, 1, "mm").EffectiveAggregator())

	r := fixed("a", "p", OpGTE, 1, "mm")
	r.Aggregator = AggregateFirst
	assert.Equal(t, AggregateFirst, r.EffectiveAggregator())
}

func TestResolveBucket(t *testing.T) {
	hs, ok := StandardTable().Find("hs_floor_area")
	require.True(t, ok)

	tests := []struct {
		driver    float64
		wantIndex int
		want      float64
	}{
		{0, 0, 1.44},
		{39.99, 0, 1.44},
		{40, 1, 1.60},
		{45, 2, 2.20},
		{65.5, 2, 2.20},
		{74.999, 2, 2.20},
		{75, 3, 2.80},
		{140, 4, 3.40},
		{1e9, 4, 3.40},
	}

	for _, tt := range tests {
		b, idx, err := hs.ResolveBucket(tt.driver)
		require.NoError(t, err, "driver %v", tt.driver)
		assert.Equal(t, tt.wantIndex, idx, "driver %v", tt.driver)
		assert.Equal(t, tt.want, b.Threshold, "driver %v", tt.driver)
	}

	for _, bad := range []float64{-0.01, math.NaN(), math.Inf(1)} {
		_, _, err := hs.ResolveBucket(bad)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrBucketResolution), "driver %v", bad)
	}

	_, _, err := fixed("f", "p", OpGTE, 1, "mm").ResolveBucket(10)
	assert.True(t, errors.Is(err, errors.ErrBucketResolution))
}

func TestStandardTable_Valid(t *testing.T) {
	table := StandardTable()
	require.NoError(t, table.Validate())
	assert.Len(t, table.Requirements, 6)
	assert.Equal(t, []string{"gfa_m2"}, table.Drivers())
}

func TestValidate_Rejects(t *testing.T) {
	ranged := func(buckets ...Bucket) Requirement {
		return Requirement{ID: "r", Kind: KindRanged, Parameter: "area", Op: OpGTE, Unit: "m2", Driver: "gfa_m2", Buckets: buckets}
	}

	tests := []struct {
		name    string
		req     Requirement
		wantMsg string
	}{
		{"missing id", Requirement{Kind: KindFixed, Parameter: "p", Op: OpGTE, Unit: "mm", Threshold: util.Ptr(1.0)}, "ID"},
		{"bad op", fixed("x", "p", "=>", 1, "mm"), "Op"},
		{"bad kind", Requirement{ID: "x", Kind: "lookup", Parameter: "p", Op: OpGTE, Unit: "mm"}, "Kind"},
		{"blank parameter", fixed("x", "   ", OpGTE, 1, "mm"), "paramkey"},
		{"bad aggregator", func() Requirement { r := fixed("x", "p", OpGTE, 1, "mm"); r.Aggregator = "avg"; return r }(), "Aggregator"},
		{"fixed without threshold", Requirement{ID: "x", Kind: KindFixed, Parameter: "p", Op: OpGTE, Unit: "mm"}, "needs a threshold"},
		{"fixed with NaN", fixed("x", "p", OpGTE, math.NaN(), "mm"), "finite"},
		{"ranged without buckets", ranged(), "at least one bucket"},
		{"ranged not starting at zero", ranged(Bucket{Lower: 10, Threshold: 1}), "start at 0"},
		{"ranged gap", ranged(Bucket{Lower: 0, Upper: util.Ptr(40.0), Threshold: 1}, Bucket{Lower: 45, Threshold: 2}), "starts at 45"},
		{"ranged overlap", ranged(Bucket{Lower: 0, Upper: util.Ptr(45.0), Threshold: 1}, Bucket{Lower: 40, Threshold: 2}), "starts at 40"},
		{"ranged bounded end", ranged(Bucket{Lower: 0, Upper: util.Ptr(40.0), Threshold: 1}), "unbounded"},
		{"ranged unbounded middle", ranged(Bucket{Lower: 0, Threshold: 1}, Bucket{Lower: 40, Threshold: 2}), "not the last"},
		{"ranged inverted", ranged(Bucket{Lower: 0, Upper: util.Ptr(0.0), Threshold: 1}, Bucket{Lower: 0, Threshold: 2}), "above lower"},
		{"ranged without driver", func() Requirement { r := ranged(Bucket{Lower: 0, Threshold: 1}); r.Driver = ""; return r }(), "driver"},
		{"fixed with driver unit", func() Requirement { r := fixed("x", "p", OpGTE, 1, "mm"); r.DriverUnit = "m2"; return r }(), "driver unit"},
		{"scope with entity and category", func() Requirement {
			r := fixed("x", "p", OpGTE, 1, "mm")
			r.Scope = Scope{Entity: "hs-1", Category: "household_shelter"}
			return r
		}(), "scope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidRequirement))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidate_DuplicateIDs(t *testing.T) {
	table := Table{Requirements: []Requirement{
		fixed("same", "a", OpGTE, 1, "mm"),
		fixed("same", "b", OpGTE, 1, "mm"),
	}}
	err := table.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate id "same"`)
}

func TestValidate_SchemaVersion(t *testing.T) {
	base := []Requirement{fixed("a", "p", OpGTE, 1, "mm")}

	for _, v := range []string{"", "1.0.0", "1.4.2"} {
		assert.NoError(t, (&Table{SchemaVersion: v, Requirements: base}).Validate(), "version %q", v)
	}
	for _, v := range []string{"2.0.0", "0.9.0", "one"} {
		err := (&Table{SchemaVersion: v, Requirements: base}).Validate()
		assert.True(t, errors.Is(err, errors.ErrInvalidRequirement), "version %q", v)
	}
}

const yamlTable = `
schema_version: "1.1.0"
name: project
requirements:
  - id: clear
    clause: "2.10 (a)"
    kind: fixed
    parameter: Clear Height mm
    op: ">="
    unit: mm
    threshold: 1500
  - id: area
    kind: ranged
    parameter: hs_floor_area_m2
    op: ">="
    unit: m2
    driver: gfa_m2
    buckets:
      - {lower: 0, upper: 45, threshold: 1.6}
      - {lower: 45, upper: null, threshold: 2.2}
`

const jsonTable = `{
  "schema_version": "1.1.0",
  "name": "project",
  "requirements": [
    {"id": "clear", "clause": "2.10 (a)", "kind": "fixed", "parameter": "Clear Height mm", "op": ">=", "unit": "mm", "threshold": 1500},
    {"id": "area", "kind": "ranged", "parameter": "hs_floor_area_m2", "op": ">=", "unit": "m2", "driver": "gfa_m2",
     "buckets": [{"lower": 0, "upper": 45, "threshold": 1.6}, {"lower": 45, "upper": null, "threshold": 2.2}]}
  ]
}`

const tomlTable = `
schema_version = "1.1.0"
name = "project"

[[requirements]]
id = "clear"
clause = "2.10 (a)"
kind = "fixed"
parameter = "Clear Height mm"
op = ">="
unit = "mm"
threshold = 1500.0

[[requirements]]
id = "area"
kind = "ranged"
parameter = "hs_floor_area_m2"
op = ">="
unit = "m2"
driver = "gfa_m2"

  [[requirements.buckets]]
  lower = 0.0
  upper = 45.0
  threshold = 1.6

  [[requirements.buckets]]
  lower = 45.0
  threshold = 2.2
`

func TestParse_AllFormatsAgree(t *testing.T) {
	inputs := map[Format]string{
		FormatYAML: yamlTable,
		FormatJSON: jsonTable,
		FormatTOML: tomlTable,
	}

	var tables []*Table
	for format, data := range inputs {
		table, err := Parse([]byte(data), format)
		require.NoError(t, err, "format %s", format)
		tables = append(tables, table)
	}

	for _, table := range tables[1:] {
		assert.Equal(t, tables[0], table)
	}

	clear, ok := tables[0].Find("clear")
	require.True(t, ok)
	assert.Equal(t, "clear_height_mm", clear.Key())
	area, _ := tables[0].Find("area")
	assert.Nil(t, area.Buckets[1].Upper)
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte(`{"requirements": [{"id": "a", "treshold": 3}]}`), FormatJSON)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequirement))

	_, err = Parse([]byte("requirements:\n  - id: a\n    treshold: 3\n"), FormatYAML)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequirement))

	_, err = Parse([]byte("[[requirements]]\nid = \"a\"\ntreshold = 3.0\n"), FormatTOML)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequirement))
}

func TestEncode_RoundTripsStandardTable(t *testing.T) {
	for _, format := range []Format{FormatYAML, FormatJSON, FormatTOML} {
		t.Run(string(format), func(t *testing.T) {
			data, err := StandardTable().Encode(format)
			require.NoError(t, err)
			back, err := Parse(data, format)
			require.NoError(t, err)
			assert.Equal(t, StandardTable(), back)
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "table.yml")
	require.NoError(t, os.WriteFile(path, []byte(yamlTable), 0644))

	table, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "project", table.Name)

	_, err = LoadFile(filepath.Join(dir, "table.csv"))
	assert.True(t, errors.IsInvalidRequestError(err))

	_, err = LoadFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
