package readiness

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/malone1029/nia-results-tracker-sub003/internal/domain"
	"github.com/malone1029/nia-results-tracker-sub003/internal/health"
)

func result(id string, total int) health.Result {
	r := health.Result{ProcessID: id, Total: total}
	// spread the total across dimensions in order so sums stay consistent
	left := total
	for _, d := range health.Dimensions {
		s := min(left, d.Max())
		left -= s
		switch d {
		case health.Documentation:
			r.Dimensions.Documentation = health.DimensionScore{Score: s, Max: d.Max()}
		case health.Maturity:
			r.Dimensions.Maturity = health.DimensionScore{Score: s, Max: d.Max()}
		case health.Measurement:
			r.Dimensions.Measurement = health.DimensionScore{Score: s, Max: d.Max()}
		case health.Operations:
			r.Dimensions.Operations = health.DimensionScore{Score: s, Max: d.Max()}
		case health.Freshness:
			r.Dimensions.Freshness = health.DimensionScore{Score: s, Max: d.Max()}
		}
	}
	return r
}

var (
	catLead = domain.Category{ID: "c1", Name: "leadership", DisplayName: "Leadership"}
	catOps  = domain.Category{ID: "c2", Name: "operations", DisplayName: "Operations"}
	catWork = domain.Category{ID: "c3", Name: "workforce", DisplayName: "Workforce"}
)

func TestComputeWeightsCancelWhenScoresEqual(t *testing.T) {
	procs := []domain.Process{
		{ID: "k", CategoryID: "c1", IsKey: true},
		{ID: "s", CategoryID: "c1"},
	}
	agg := Compute(nil, procs, map[string]health.Result{"k": result("k", 50), "s": result("s", 50)}, 80)
	assert.Equal(t, 50, agg.OrgScore)
}

func TestComputeKeyProcessWeighsDouble(t *testing.T) {
	procs := []domain.Process{
		{ID: "k", CategoryID: "c1", IsKey: true},
		{ID: "s", CategoryID: "c1"},
	}
	agg := Compute(nil, procs, map[string]health.Result{"k": result("k", 100), "s": result("s", 0)}, 80)
	assert.Equal(t, 67, agg.OrgScore)
	assert.Equal(t, 1, agg.ReadyCount)
}

func TestComputeExcludesUnscoredProcesses(t *testing.T) {
	procs := []domain.Process{
		{ID: "a", CategoryID: "c1"},
		{ID: "b", CategoryID: "c1"},
	}
	agg := Compute([]domain.Category{catLead}, procs, map[string]health.Result{"a": result("a", 60)}, 80)
	assert.Equal(t, 60, agg.OrgScore)
	assert.Equal(t, 2, agg.ProcessCount)
	assert.Equal(t, 1, agg.ScoredCount)
	assert.Equal(t, 60, agg.CategoryScores[0].Score)
}

func TestComputeFlagsEmptyCategories(t *testing.T) {
	procs := []domain.Process{
		{ID: "a", CategoryID: "c1"},
		{ID: "b", CategoryID: "c2"},
		{ID: "c", CategoryID: "c2"},
	}
	results := map[string]health.Result{"a": result("a", 90), "b": result("b", 40), "c": result("c", 45)}
	agg := Compute([]domain.Category{catLead, catOps, catWork}, procs, results, 80)

	require.Len(t, agg.CategoryScores, 3)
	assert.Equal(t, CategoryScore{CategoryID: "c1", Name: "leadership", DisplayName: "Leadership", Score: 90, ProcessCount: 1}, agg.CategoryScores[0])
	assert.Equal(t, 43, agg.CategoryScores[1].Score)
	assert.False(t, agg.CategoryScores[1].Empty)
	assert.Equal(t, CategoryScore{CategoryID: "c3", Name: "workforce", DisplayName: "Workforce", Score: 0, Empty: true}, agg.CategoryScores[2])
}

func TestComputeDimensionAveragesWeakestFirst(t *testing.T) {
	procs := []domain.Process{{ID: "a"}, {ID: "b"}}
	a := result("a", 0)
	a.Dimensions.Documentation = health.DimensionScore{Score: 25, Max: 25}
	a.Dimensions.Freshness = health.DimensionScore{Score: 5, Max: 15}
	b := result("b", 0)
	b.Dimensions.Documentation = health.DimensionScore{Score: 20, Max: 25}
	b.Dimensions.Measurement = health.DimensionScore{Score: 10, Max: 20}
	b.Dimensions.Freshness = health.DimensionScore{Score: 10, Max: 15}

	agg := Compute(nil, procs, map[string]health.Result{"a": a, "b": b}, 80)

	require.Len(t, agg.DimensionAverages, 5)
	got := []health.Dimension{}
	for _, d := range agg.DimensionAverages {
		got = append(got, d.Dimension)
	}
	assert.Equal(t, []health.Dimension{health.Maturity, health.Operations, health.Measurement, health.Freshness, health.Documentation}, got)
	last := agg.DimensionAverages[4]
	assert.Equal(t, 22.5, last.Average)
	assert.Equal(t, 90, last.Percent)
	assert.Equal(t, 7.5, agg.DimensionAverages[3].Average)
	assert.Equal(t, 50, agg.DimensionAverages[3].Percent)
}

func TestComputeNoProcesses(t *testing.T) {
	agg := Compute([]domain.Category{catLead}, nil, nil, 0)
	assert.Equal(t, 0, agg.OrgScore)
	assert.True(t, agg.CategoryScores[0].Empty)
	for _, d := range agg.DimensionAverages {
		assert.Zero(t, d.Percent)
	}
}

func TestSummarizeOwnerFilterKeepsUnfilteredScore(t *testing.T) {
	in := Input{
		Categories: []domain.Category{catLead},
		Processes: []domain.Process{
			{ID: "a", CategoryID: "c1", Owner: "Dana Reyes", OwnerEmail: "dana@example.org"},
			{ID: "b", CategoryID: "c1", Owner: "Sam Lee"},
		},
		Results:    map[string]health.Result{"a": result("a", 90), "b": result("b", 30)},
		LatestADLI: map[string]domain.ADLIScore{"a": {Overall: 70}},
	}

	s := Summarize(in, "DANA@example.org")
	assert.Equal(t, 90, s.OrgScore)
	assert.Equal(t, 60, s.UnfilteredOrgScore)
	assert.Equal(t, 30, s.OrgScoreDelta)
	assert.Equal(t, 1, s.ProcessCount)
	assert.Equal(t, 70, s.ADLIRollup)

	all := Summarize(in, "  ")
	assert.Equal(t, 60, all.OrgScore)
	assert.Zero(t, all.OrgScoreDelta)
	assert.Equal(t, 35, all.ADLIRollup)
}

func TestAvgADLIScoreCountsUnassessedAsZero(t *testing.T) {
	procs := []domain.Process{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	latest := map[string]domain.ADLIScore{"a": {Overall: 80}, "b": {Overall: 70}}
	assert.Equal(t, 50, AvgADLIScore(procs, latest))
	assert.Equal(t, 0, AvgADLIScore(nil, latest))
}

func TestSnapshotPayload(t *testing.T) {
	procs := []domain.Process{{ID: "a", CategoryID: "c1"}}
	agg := Compute([]domain.Category{catLead, catOps}, procs, map[string]health.Result{"a": result("a", 85)}, 80)

	s := SnapshotPayload(agg)
	assert.Equal(t, 85.0, s.OrgScore)
	assert.Equal(t, map[string]float64{"c1": 85, "c2": 0}, s.CategoryScores)
	assert.Len(t, s.DimensionScores, 5)
	assert.Equal(t, 100.0, s.DimensionScores["documentation"])
	assert.Equal(t, 1, s.ProcessCount)
	assert.Equal(t, 1, s.ReadyCount)
}

// Property 3: the org score lies between the lowest and highest scored total.
func TestProperty03_OrgScoreWithinTotals(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(rt, "n")
		procs := make([]domain.Process, n)
		results := map[string]health.Result{}
		lo, hi := 100, 0
		for i := range procs {
			id := fmt.Sprintf("p%d", i)
			procs[i] = domain.Process{ID: id, IsKey: rapid.Bool().Draw(rt, "key_"+id)}
			total := rapid.IntRange(0, 100).Draw(rt, "total_"+id)
			results[id] = result(id, total)
			lo, hi = min(lo, total), max(hi, total)
		}
		agg := Compute(nil, procs, results, 80)
		if agg.OrgScore < lo || agg.OrgScore > hi {
			rt.Fatalf("org score %d outside [%d,%d]", agg.OrgScore, lo, hi)
		}
		for i := 1; i < len(agg.DimensionAverages); i++ {
			if agg.DimensionAverages[i-1].Percent > agg.DimensionAverages[i].Percent {
				rt.Fatalf("dimension averages not ascending: %+v", agg.DimensionAverages)
			}
		}
	})
}
