// Package readiness rolls per-process health results up into organization,
// category and dimension summaries and builds the daily snapshot payload.
package readiness

import (
	"math"
	"sort"
	"strings"

	"github.com/malone1029/nia-results-tracker-sub003/internal/domain"
	"github.com/malone1029/nia-results-tracker-sub003/internal/health"
)

const DefaultReadyThreshold = 80

const (
	keyWeight     = 2
	supportWeight = 1
)

type CategoryScore struct {
	CategoryID   string `json:"category_id"`
	Name         string `json:"name"`
	DisplayName  string `json:"display_name,omitempty"`
	Score        int    `json:"score"`
	ProcessCount int    `json:"process_count"`
	Empty        bool   `json:"empty"`
}

type DimensionAverage struct {
	Dimension health.Dimension `json:"dimension"`
	Average   float64          `json:"average"`
	Max       int              `json:"max"`
	Percent   int              `json:"percent"`
}

// Aggregate is the result of rolling health results up over a set of processes.
type Aggregate struct {
	OrgScore          int                `json:"org_score"`
	CategoryScores    []CategoryScore    `json:"category_scores"`
	DimensionAverages []DimensionAverage `json:"dimension_averages"`
	ProcessCount      int                `json:"process_count"`
	ScoredCount       int                `json:"scored_count"`
	ReadyCount        int                `json:"ready_count"`
}

// Input holds the rows and results an aggregate is computed from.
type Input struct {
	Categories     []domain.Category
	Processes      []domain.Process
	Results        map[string]health.Result
	LatestADLI     map[string]domain.ADLIScore
	ReadyThreshold int
}

// Summary is an aggregate over an optionally owner-filtered subset, with the
// unfiltered org score kept for comparison.
type Summary struct {
	Aggregate
	Owner              string `json:"owner,omitempty"`
	ADLIRollup         int    `json:"adli_rollup"`
	UnfilteredOrgScore int    `json:"unfiltered_org_score"`
	OrgScoreDelta      int    `json:"org_score_delta"`
}

// Compute aggregates results over processes. Processes without a result are
// excluded from the org score, category and dimension averages, but still
// counted in ProcessCount. Every category appears in CategoryScores.
func Compute(categories []domain.Category, processes []domain.Process, results map[string]health.Result, readyThreshold int) Aggregate {
	if readyThreshold <= 0 {
		readyThreshold = DefaultReadyThreshold
	}
	agg := Aggregate{ProcessCount: len(processes)}

	var weighted, weights float64
	dimSums := make(map[health.Dimension]int, len(health.Dimensions))
	catSums := map[string]int{}
	catCounts := map[string]int{}
	for _, p := range processes {
		res, ok := results[p.ID]
		if !ok {
			continue
		}
		agg.ScoredCount++
		w := float64(supportWeight)
		if p.IsKey {
			w = keyWeight
		}
		weighted += float64(res.Total) * w
		weights += w
		if res.Total >= readyThreshold {
			agg.ReadyCount++
		}
		catSums[p.CategoryID] += res.Total
		catCounts[p.CategoryID]++
		for _, d := range health.Dimensions {
			dimSums[d] += res.Dimensions.Get(d).Score
		}
	}
	if weights > 0 {
		agg.OrgScore = roundHalfUp(weighted / weights)
	}

	agg.CategoryScores = make([]CategoryScore, 0, len(categories))
	for _, c := range categories {
		cs := CategoryScore{CategoryID: c.ID, Name: c.Name, DisplayName: c.DisplayName, ProcessCount: catCounts[c.ID]}
		if n := catCounts[c.ID]; n > 0 {
			cs.Score = roundHalfUp(float64(catSums[c.ID]) / float64(n))
		} else {
			cs.Empty = true
		}
		agg.CategoryScores = append(agg.CategoryScores, cs)
	}

	agg.DimensionAverages = make([]DimensionAverage, 0, len(health.Dimensions))
	for _, d := range health.Dimensions {
		da := DimensionAverage{Dimension: d, Max: d.Max()}
		if agg.ScoredCount > 0 {
			mean := float64(dimSums[d]) / float64(agg.ScoredCount)
			da.Average = math.Floor(mean*10+0.5) / 10
			da.Percent = roundHalfUp(mean / float64(d.Max()) * 100)
		}
		agg.DimensionAverages = append(agg.DimensionAverages, da)
	}
	sort.SliceStable(agg.DimensionAverages, func(i, j int) bool {
		return agg.DimensionAverages[i].Percent < agg.DimensionAverages[j].Percent
	})
	return agg
}

// Summarize computes the aggregate for the processes owned by owner (all
// processes when owner is blank) alongside the unfiltered org score.
func Summarize(in Input, owner string) Summary {
	owner = strings.TrimSpace(owner)
	filtered := FilterByOwner(in.Processes, owner)
	all := Compute(in.Categories, in.Processes, in.Results, in.ReadyThreshold)
	s := Summary{Owner: owner, Aggregate: all, UnfilteredOrgScore: all.OrgScore}
	if owner != "" {
		s.Aggregate = Compute(in.Categories, filtered, in.Results, in.ReadyThreshold)
	}
	s.OrgScoreDelta = s.OrgScore - s.UnfilteredOrgScore
	s.ADLIRollup = AvgADLIScore(filtered, in.LatestADLI)
	return s
}

// FilterByOwner keeps processes whose owner name or email matches owner,
// ignoring case. A blank owner keeps everything.
func FilterByOwner(processes []domain.Process, owner string) []domain.Process {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return processes
	}
	res := make([]domain.Process, 0, len(processes))
	for _, p := range processes {
		if strings.EqualFold(strings.TrimSpace(p.Owner), owner) || strings.EqualFold(strings.TrimSpace(p.OwnerEmail), owner) {
			res = append(res, p)
		}
	}
	return res
}

// AvgADLIScore is the compliance rollup: the unweighted mean of each process's
// latest overall ADLI score, counting unassessed processes as 0. It differs
// from the health org score, which leaves unscored processes out entirely.
func AvgADLIScore(processes []domain.Process, latest map[string]domain.ADLIScore) int {
	if len(processes) == 0 {
		return 0
	}
	sum := 0
	for _, p := range processes {
		if s, ok := latest[p.ID]; ok {
			sum += s.Overall
		}
	}
	return roundHalfUp(float64(sum) / float64(len(processes)))
}

// SnapshotPayload converts an aggregate into the snapshot row values.
// Category scores are keyed by category id and dimension scores carry the
// percentage of each dimension's maximum.
func SnapshotPayload(a Aggregate) domain.Snapshot {
	s := domain.Snapshot{
		OrgScore:        float64(a.OrgScore),
		CategoryScores:  make(map[string]float64, len(a.CategoryScores)),
		DimensionScores: make(map[string]float64, len(a.DimensionAverages)),
		ProcessCount:    a.ProcessCount,
		ReadyCount:      a.ReadyCount,
	}
	for _, c := range a.CategoryScores {
		s.CategoryScores[c.CategoryID] = float64(c.Score)
	}
	for _, d := range a.DimensionAverages {
		s.DimensionScores[string(d.Dimension)] = float64(d.Percent)
	}
	return s
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
