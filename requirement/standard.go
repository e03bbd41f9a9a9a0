package requirement

import "github.com/aecoa/aecoa/internal/util"

// GFA bucket bounds (m²) shared by the household shelter area and volume rules
var gfaBounds = []float64{0, 40, 45, 75, 140}

func gfaBuckets(thresholds ...float64) []Bucket {
	buckets := make([]Bucket, len(gfaBounds))
	for i, lower := range gfaBounds {
		buckets[i] = Bucket{Lower: lower, Threshold: thresholds[i]}
		if i+1 < len(gfaBounds) {
			buckets[i].Upper = util.Ptr(gfaBounds[i+1])
		}
	}
	return buckets
}

// StandardTable returns the household shelter (HS) requirements used when no
// project-specific table is supplied. Floor area and volume are indexed by the
// dwelling's gross floor area (driver gfa_m2).
func StandardTable() *Table {
	return &Table{
		SchemaVersion: DefaultSchemaVersion,
		Name:          "household-shelter-standard",
		Requirements: []Requirement{
			{
				ID:          "hs_floor_area",
				Clause:      "2.10 (a) & (b)",
				Description: "Min. rectilinear HS countable floor area by GFA",
				Kind:        KindRanged,
				Parameter:   "hs_floor_area_m2",
				Op:          OpGTE,
				Unit:        "m2",
				Driver:      "gfa_m2",
				DriverUnit:  "m2",
				Buckets:     gfaBuckets(1.44, 1.60, 2.20, 2.80, 3.40),
			},
			{
				ID:          "hs_volume",
				Clause:      "2.10 (a) & (b)",
				Description: "Min. HS volume by GFA",
				Kind:        KindRanged,
				Parameter:   "hs_volume_m3",
				Op:          OpGTE,
				Unit:        "m3",
				Driver:      "gfa_m2",
				DriverUnit:  "m2",
				Buckets:     gfaBuckets(3.6, 3.6, 5.4, 7.2, 9.0),
			},
			{
				ID:          "hs_clear_height",
				Clause:      "2.10 (a)",
				Description: "Height clearance",
				Kind:        KindFixed,
				Parameter:   "clear_height_mm",
				Op:          OpGTE,
				Unit:        "mm",
				Threshold:   util.Ptr(1500.0),
			},
			{
				ID:          "hs_ceiling_slab",
				Clause:      "2.10 (c)",
				Description: "HS ceiling slab thickness",
				Kind:        KindFixed,
				Parameter:   "ceiling_slab_mm",
				Op:          OpGTE,
				Unit:        "mm",
				Threshold:   util.Ptr(300.0),
			},
			{
				ID:          "staircase_waist",
				Clause:      "2.10 (c)",
				Description: "Waist of the staircase",
				Kind:        KindFixed,
				Parameter:   "staircase_waist_mm",
				Op:          OpGTE,
				Unit:        "mm",
				Threshold:   util.Ptr(300.0),
			},
			{
				ID:          "ventilation_clearance",
				Clause:      "2.10 (d)",
				Description: "Unobstructed distance from the HS wall with ventilation sleeve opening",
				Kind:        KindFixed,
				Parameter:   "ventilation_clearance_mm",
				Op:          OpGTE,
				Unit:        "mm",
				Threshold:   util.Ptr(700.0),
			},
		},
	}
}
