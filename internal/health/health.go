// Package health computes the 0-100 process health score.
//
// The score is the sum of five dimensions: documentation (25), maturity (25),
// measurement (20), operations (15) and freshness (15). Every dimension below
// its maximum yields exactly one next action worth the missing points.
// Calculate is pure: all time-dependent inputs are measured against the now
// argument.
package health

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/malone1029/nia-results-tracker-sub003/internal/domain"
	"github.com/malone1029/nia-results-tracker-sub003/internal/review"
)

type Dimension string

const (
	Documentation Dimension = "documentation"
	Maturity      Dimension = "maturity"
	Measurement   Dimension = "measurement"
	Operations    Dimension = "operations"
	Freshness     Dimension = "freshness"
)

// Dimensions lists every dimension in display order.
var Dimensions = []Dimension{Documentation, Maturity, Measurement, Operations, Freshness}

// Max returns the point budget of the dimension.
func (d Dimension) Max() int {
	switch d {
	case Documentation, Maturity:
		return 25
	case Measurement:
		return 20
	case Operations, Freshness:
		return 15
	}
	return 0
}

type DimensionScore struct {
	Score int `json:"score"`
	Max   int `json:"max"`
}

type DimensionScores struct {
	Documentation DimensionScore `json:"documentation"`
	Maturity      DimensionScore `json:"maturity"`
	Measurement   DimensionScore `json:"measurement"`
	Operations    DimensionScore `json:"operations"`
	Freshness     DimensionScore `json:"freshness"`
}

// Get returns the score for d.
func (s DimensionScores) Get(d Dimension) DimensionScore {
	switch d {
	case Documentation:
		return s.Documentation
	case Maturity:
		return s.Maturity
	case Measurement:
		return s.Measurement
	case Operations:
		return s.Operations
	case Freshness:
		return s.Freshness
	}
	return DimensionScore{}
}

func (s *DimensionScores) set(d Dimension, score int) {
	v := DimensionScore{Score: clamp(score, 0, d.Max()), Max: d.Max()}
	switch d {
	case Documentation:
		s.Documentation = v
	case Maturity:
		s.Maturity = v
	case Measurement:
		s.Measurement = v
	case Operations:
		s.Operations = v
	case Freshness:
		s.Freshness = v
	}
}

type NextAction struct {
	Dimension Dimension `json:"dimension"`
	Label     string    `json:"label"`
	Points    int       `json:"points"`
	Href      string    `json:"href"`
}

type Result struct {
	ProcessID   string          `json:"process_id"`
	Total       int             `json:"total"`
	Dimensions  DimensionScores `json:"dimensions"`
	Level       Level           `json:"level"`
	NextActions []NextAction    `json:"next_actions"`
}

// MetricInput is one linked metric as seen by the scorer.
type MetricInput struct {
	MetricID      string
	Name          string
	Cadence       string
	LastEntryDate string
	HasComparison bool
	EntryCount    int
}

// MetricInputFrom adapts a stored metric summary.
func MetricInputFrom(s domain.MetricSummary) MetricInput {
	in := MetricInput{
		MetricID:      s.ID,
		Name:          s.Name,
		Cadence:       s.Cadence,
		HasComparison: s.ComparisonValue != nil,
		EntryCount:    s.EntryCount,
	}
	if s.LastEntryDate != nil {
		in.LastEntryDate = *s.LastEntryDate
	}
	return in
}

// TaskInput holds task counts for a process. Pending tasks are unexported
// suggestions and are counted separately from Total.
type TaskInput struct {
	Total       int
	Pending     int
	Completed   int
	Open        int
	Assigned    int
	WithDueDate int
	Overdue     int
}

// SummarizeTasks counts tasks for the operations dimension.
func SummarizeTasks(tasks []domain.Task, now time.Time) TaskInput {
	var in TaskInput
	for _, t := range tasks {
		if t.Status == domain.TaskStatusPending {
			in.Pending++
			continue
		}
		in.Total++
		done := t.Completed || t.Status == domain.TaskStatusComplete
		if done {
			in.Completed++
		} else {
			in.Open++
		}
		if t.Assignee != nil && strings.TrimSpace(*t.Assignee) != "" {
			in.Assigned++
		}
		if t.DueDate != nil {
			if due, ok := review.ParseDateIn(*t.DueDate, now.Location()); ok {
				in.WithDueDate++
				if !done && review.DaysBetween(due, now) > 0 {
					in.Overdue++
				}
			}
		}
	}
	return in
}

// ImprovementInput carries the newest improvement-journal date, if any.
type ImprovementInput struct {
	LatestDate string
}

// Calculate scores one process. A nil adli means the process was never assessed.
func Calculate(p domain.Process, adli *domain.ADLIScore, metrics []MetricInput, tasks TaskInput, improvement ImprovementInput, now time.Time) Result {
	res := Result{ProcessID: p.ID, NextActions: []NextAction{}}
	scorers := []func() (Dimension, int, string, string){
		func() (Dimension, int, string, string) { return scoreDocumentation(p) },
		func() (Dimension, int, string, string) { return scoreMaturity(adli) },
		func() (Dimension, int, string, string) { return scoreMeasurement(metrics, now) },
		func() (Dimension, int, string, string) { return scoreOperations(tasks) },
		func() (Dimension, int, string, string) { return scoreFreshness(p.UpdatedAt, improvement, now) },
	}
	for _, score := range scorers {
		dim, pts, label, section := score()
		res.Dimensions.set(dim, pts)
		got := res.Dimensions.Get(dim)
		res.Total += got.Score
		if got.Score < got.Max {
			res.NextActions = append(res.NextActions, NextAction{
				Dimension: dim,
				Label:     label,
				Points:    got.Max - got.Score,
				Href:      processHref(p.ID, section),
			})
		}
	}
	res.Total = clamp(res.Total, 0, 100)
	res.Level = LevelFor(res.Total)
	sort.SliceStable(res.NextActions, func(i, j int) bool {
		return res.NextActions[i].Points > res.NextActions[j].Points
	})
	return res
}

func processHref(id, section string) string {
	if section == "" {
		return "/processes/" + id
	}
	return "/processes/" + id + "?tab=" + section
}

func scoreDocumentation(p domain.Process) (Dimension, int, string, string) {
	fields := []struct {
		name   string
		doc    []byte
		points int
	}{
		{"charter", p.Charter, 5},
		{"approach", p.ADLIApproach, 4},
		{"deployment", p.ADLIDeployment, 4},
		{"learning", p.ADLILearning, 4},
		{"integration", p.ADLIIntegration, 4},
		{"workflow", p.Workflow, 4},
	}
	score := 0
	var missing []string
	for _, f := range fields {
		if domain.Present(f.doc) {
			score += f.points
		} else {
			missing = append(missing, f.name)
		}
	}
	label := ""
	if len(missing) > 0 {
		label = "Complete documentation: " + strings.Join(missing, ", ")
	}
	return Documentation, score, label, "documentation"
}

func scoreMaturity(adli *domain.ADLIScore) (Dimension, int, string, string) {
	if adli == nil {
		return Maturity, 0, "Run an AI assessment", "assessment"
	}
	overall := clamp(adli.Overall, 0, 100)
	score := roundHalfUp(float64(overall) * float64(Maturity.Max()) / 100)
	return Maturity, score, fmt.Sprintf("Raise ADLI maturity (currently %d/100)", overall), "assessment"
}

func scoreMeasurement(metrics []MetricInput, now time.Time) (Dimension, int, string, string) {
	if len(metrics) == 0 {
		return Measurement, 0, "Link a metric", "metrics"
	}
	var (
		sum          float64
		stale        int
		noComparison int
		shortHistory int
	)
	for _, m := range metrics {
		sum += float64(metricSubScore(m, now))
		if review.GetReviewStatus(m.Cadence, m.LastEntryDate, now) != review.Current {
			stale++
		}
		if !m.HasComparison {
			noComparison++
		}
		if m.EntryCount < 3 {
			shortHistory++
		}
	}
	score := roundHalfUp(sum / float64(len(metrics)))
	var label string
	switch {
	case stale > 0:
		label = fmt.Sprintf("Log current data for %d metric(s)", stale)
	case noComparison > 0:
		label = fmt.Sprintf("Set comparison values for %d metric(s)", noComparison)
	case shortHistory > 0:
		label = fmt.Sprintf("Build history (3+ entries) for %d metric(s)", shortHistory)
	default:
		label = "Review linked metrics"
	}
	return Measurement, score, label, "metrics"
}

// metricSubScore is out of 20: review status 10, comparison 5, history 5.
func metricSubScore(m MetricInput, now time.Time) int {
	score := 0
	switch review.GetReviewStatus(m.Cadence, m.LastEntryDate, now) {
	case review.Current:
		score += 10
	case review.DueSoon:
		score += 5
	}
	if m.HasComparison {
		score += 5
	}
	entries := clamp(m.EntryCount, 0, 3)
	score += roundHalfUp(5 * float64(entries) / 3)
	return score
}

func scoreOperations(t TaskInput) (Dimension, int, string, string) {
	if t.Total <= 0 {
		if t.Pending > 0 {
			return Operations, 0, fmt.Sprintf("Export %d suggested task(s)", t.Pending), "tasks"
		}
		return Operations, 0, "Create tasks", "tasks"
	}
	total := float64(t.Total)
	score := 3

	ratio := float64(t.Completed) / total
	if ratio >= 0.5 {
		score += 3
	} else {
		score += roundHalfUp(3 * ratio / 0.5)
	}
	score += roundHalfUp(3 * float64(clamp(t.Assigned, 0, t.Total)) / total)
	score += roundHalfUp(3 * float64(clamp(t.WithDueDate, 0, t.Total)) / total)
	if t.Open <= 0 {
		score += 3
	} else {
		overdue := float64(clamp(t.Overdue, 0, t.Open))
		score += roundHalfUp(3 * (1 - overdue/float64(t.Open)))
	}

	var label string
	switch {
	case t.Overdue > 0:
		label = fmt.Sprintf("Resolve %d overdue task(s)", t.Overdue)
	case t.Assigned < t.Total:
		label = "Assign owners to tasks"
	case t.WithDueDate < t.Total:
		label = "Add due dates to tasks"
	default:
		label = "Complete open tasks"
	}
	return Operations, score, label, "tasks"
}

func scoreFreshness(updatedAt string, improvement ImprovementInput, now time.Time) (Dimension, int, string, string) {
	docPoints := 0
	if ts, ok := review.ParseDateIn(updatedAt, now.Location()); ok {
		days := max(review.DaysBetween(ts, now), 0)
		switch {
		case days <= 30:
			docPoints = 10
		case days <= 90:
			docPoints = 7
		case days <= 180:
			docPoints = 4
		case days <= 365:
			docPoints = 2
		}
	}
	impPoints := 0
	if ts, ok := review.ParseDateIn(improvement.LatestDate, now.Location()); ok {
		days := max(review.DaysBetween(ts, now), 0)
		switch {
		case days <= 90:
			impPoints = 5
		case days <= 180:
			impPoints = 3
		case days <= 365:
			impPoints = 1
		}
	}
	label := "Review and update the process"
	if 5-impPoints > 10-docPoints {
		label = "Log an improvement"
	}
	return Freshness, docPoints + impPoints, label, "improvements"
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
