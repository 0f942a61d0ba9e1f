package health

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malone1029/nia-results-tracker-sub003/internal/domain"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func doc(s string) json.RawMessage { return json.RawMessage(s) }

func strPtr(s string) *string { return &s }

func documentedProcess() domain.Process {
	return domain.Process{
		ID:              "p1",
		Name:            "Onboarding",
		IsKey:           true,
		Charter:         doc(`{"content":"Purpose and scope"}`),
		ADLIApproach:    doc(`{"content":"a"}`),
		ADLIDeployment:  doc(`{"content":"d"}`),
		ADLILearning:    doc(`{"content":"l"}`),
		ADLIIntegration: doc(`{"content":"i"}`),
		Workflow:        doc(`{"steps":[1]}`),
		UpdatedAt:       "2026-03-15T08:00:00Z",
	}
}

func TestCalculateEmptyProcessScoresZero(t *testing.T) {
	res := Calculate(domain.Process{ID: "p0"}, nil, nil, TaskInput{}, ImprovementInput{}, testNow)

	assert.Equal(t, 0, res.Total)
	require.Len(t, res.NextActions, len(Dimensions))
	seen := map[Dimension]bool{}
	for _, a := range res.NextActions {
		assert.False(t, seen[a.Dimension], "duplicate action for %s", a.Dimension)
		seen[a.Dimension] = true
		assert.Equal(t, a.Dimension.Max(), a.Points)
	}
	assert.Equal(t, "Getting Started", res.Level.Label)

	labels := map[Dimension]string{}
	for _, a := range res.NextActions {
		labels[a.Dimension] = a.Label
	}
	assert.Equal(t, "Run an AI assessment", labels[Maturity])
	assert.Equal(t, "Link a metric", labels[Measurement])
	assert.Equal(t, "Create tasks", labels[Operations])
}

func TestCalculateEmptyNarrativesAreAbsent(t *testing.T) {
	p := domain.Process{
		ID:              "p0",
		Charter:         doc(`null`),
		ADLIApproach:    doc(`{}`),
		ADLIDeployment:  doc(`[]`),
		ADLILearning:    doc(`""`),
		ADLIIntegration: doc(`"   "`),
	}
	res := Calculate(p, nil, nil, TaskInput{}, ImprovementInput{}, testNow)
	assert.Equal(t, 0, res.Dimensions.Documentation.Score)

	spaced := domain.Process{
		ID:              "p0",
		Charter:         doc(`{ }`),
		ADLIApproach:    doc(`[ ]`),
		ADLIDeployment:  doc("{\n}"),
		ADLILearning:    doc(` null `),
		ADLIIntegration: doc("[\n\t]"),
		Workflow:        doc(`{  }`),
	}
	res = Calculate(spaced, nil, nil, TaskInput{}, ImprovementInput{}, testNow)
	assert.Equal(t, 0, res.Dimensions.Documentation.Score)
}

func TestCalculatePerfectProcess(t *testing.T) {
	adli := &domain.ADLIScore{Approach: 100, Deployment: 100, Learning: 100, Integration: 100, Overall: 100}
	metrics := []MetricInput{
		{MetricID: "m1", Cadence: "monthly", LastEntryDate: "2026-03-10", HasComparison: true, EntryCount: 12},
		{MetricID: "m2", Cadence: "annual", LastEntryDate: "2025-09-01", HasComparison: true, EntryCount: 3},
	}
	tasks := TaskInput{Total: 4, Completed: 2, Open: 2, Assigned: 4, WithDueDate: 4}

	res := Calculate(documentedProcess(), adli, metrics, tasks, ImprovementInput{LatestDate: "2026-02-01"}, testNow)

	assert.Equal(t, 100, res.Total)
	assert.Empty(t, res.NextActions)
	assert.Equal(t, "Baldrige Ready", res.Level.Label)
	assert.Equal(t, "#b1bd37", res.Level.Color)
}

func TestCalculateFreshnessNeedsRecentImprovement(t *testing.T) {
	res := Calculate(documentedProcess(), nil, nil, TaskInput{}, ImprovementInput{}, testNow)

	assert.Equal(t, 10, res.Dimensions.Freshness.Score)
	var fresh *NextAction
	for i := range res.NextActions {
		if res.NextActions[i].Dimension == Freshness {
			fresh = &res.NextActions[i]
		}
	}
	require.NotNil(t, fresh)
	assert.Equal(t, 5, fresh.Points)
	assert.Equal(t, "Log an improvement", fresh.Label)
}

func TestCalculateOverdueMonthlyMetricReducesMeasurement(t *testing.T) {
	last := testNow.AddDate(0, 0, -45).Format("2006-01-02")
	metrics := []MetricInput{{MetricID: "m1", Cadence: "monthly", LastEntryDate: last, HasComparison: true, EntryCount: 3}}

	res := Calculate(documentedProcess(), nil, metrics, TaskInput{}, ImprovementInput{}, testNow)

	assert.Equal(t, 10, res.Dimensions.Measurement.Score)
	assert.Less(t, res.Dimensions.Measurement.Score, Measurement.Max())
}

func TestMeasurementAveragesAcrossMetrics(t *testing.T) {
	metrics := []MetricInput{
		{Cadence: "quarterly", LastEntryDate: "2026-03-01", HasComparison: true, EntryCount: 5},
		{Cadence: "quarterly"},
	}
	_, score, label, _ := scoreMeasurement(metrics, testNow)
	assert.Equal(t, 10, score)
	assert.Equal(t, "Log current data for 1 metric(s)", label)
}

func TestMetricSubScore(t *testing.T) {
	cases := []struct {
		name string
		in   MetricInput
		want int
	}{
		{"no data", MetricInput{Cadence: "monthly"}, 0},
		{"current only", MetricInput{Cadence: "monthly", LastEntryDate: "2026-03-14"}, 10},
		{"due soon", MetricInput{Cadence: "monthly", LastEntryDate: "2026-02-18", EntryCount: 1}, 7},
		{"two entries", MetricInput{Cadence: "monthly", LastEntryDate: "2026-03-14", EntryCount: 2, HasComparison: true}, 18},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, metricSubScore(tc.in, testNow))
		})
	}
}

func TestOperationsScoring(t *testing.T) {
	cases := []struct {
		name  string
		in    TaskInput
		want  int
		label string
	}{
		{"no tasks", TaskInput{}, 0, "Create tasks"},
		{"only suggestions", TaskInput{Pending: 3}, 0, "Export 3 suggested task(s)"},
		{"bare task", TaskInput{Total: 1, Open: 1}, 6, "Assign owners to tasks"},
		{"overdue", TaskInput{Total: 2, Open: 2, Assigned: 2, WithDueDate: 2, Overdue: 2}, 9, "Resolve 2 overdue task(s)"},
		{"all done", TaskInput{Total: 3, Completed: 3, Assigned: 3, WithDueDate: 3}, 15, "Complete open tasks"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, score, label, _ := scoreOperations(tc.in)
			assert.Equal(t, tc.want, score)
			assert.Equal(t, tc.label, label)
		})
	}
}

func TestSummarizeTasks(t *testing.T) {
	tasks := []domain.Task{
		{Status: domain.TaskStatusPending},
		{Status: domain.TaskStatusActive, Assignee: strPtr("Jo"), DueDate: strPtr("2026-03-01")},
		{Status: domain.TaskStatusActive, DueDate: strPtr("2026-04-01")},
		{Status: domain.TaskStatusComplete, Completed: true, Assignee: strPtr(" "), DueDate: strPtr("2026-01-01")},
		{Status: domain.TaskStatusExported},
	}
	got := SummarizeTasks(tasks, testNow)
	assert.Equal(t, TaskInput{Total: 4, Pending: 1, Completed: 1, Open: 3, Assigned: 1, WithDueDate: 3, Overdue: 1}, got)
}

func TestFreshnessBands(t *testing.T) {
	cases := []struct {
		updated, improved string
		want              int
	}{
		{"2026-03-15", "2026-03-15", 15},
		{"2026-01-15", "", 7},
		{"2025-10-01", "2025-10-01", 7},
		{"2025-06-01", "2025-06-01", 3},
		{"2024-01-01", "2024-01-01", 0},
		{"not a date", "", 0},
	}
	for _, tc := range cases {
		_, score, _, _ := scoreFreshness(tc.updated, ImprovementInput{LatestDate: tc.improved}, testNow)
		assert.Equal(t, tc.want, score, "updated=%s improved=%s", tc.updated, tc.improved)
	}
}

func TestFreshnessComparesDatesInScoringZone(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	now := time.Date(2026, 4, 15, 10, 0, 0, 0, tokyo)

	// 20:00 UTC on March 15 is already March 16 in Tokyo: 30 days old.
	_, score, _, _ := scoreFreshness("2026-03-15T20:00:00Z", ImprovementInput{}, now)
	assert.Equal(t, 10, score)

	_, score, _, _ = scoreFreshness("2026-03-15T10:00:00Z", ImprovementInput{}, now)
	assert.Equal(t, 7, score)

	_, score, _, _ = scoreFreshness("2026-03-16T00:00:00Z", ImprovementInput{LatestDate: "2026-01-15"}, now)
	assert.Equal(t, 15, score)
}

func TestSummarizeTasksOverdueInScoringZone(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	now := time.Date(2026, 3, 16, 1, 0, 0, 0, tokyo)
	in := SummarizeTasks([]domain.Task{
		{ID: "t1", Status: domain.TaskStatusActive, DueDate: strPtr("2026-03-16")},
		{ID: "t2", Status: domain.TaskStatusActive, DueDate: strPtr("2026-03-15")},
		{ID: "t3", Status: domain.TaskStatusActive, DueDate: strPtr("2026-03-15T16:30:00Z")},
	}, now)
	assert.Equal(t, 1, in.Overdue)
}

func TestNextActionsSortedByPoints(t *testing.T) {
	adli := &domain.ADLIScore{Overall: 80}
	res := Calculate(documentedProcess(), adli, nil, TaskInput{Total: 1, Open: 1, Assigned: 1, WithDueDate: 1}, ImprovementInput{}, testNow)

	require.NotEmpty(t, res.NextActions)
	for i := 1; i < len(res.NextActions); i++ {
		assert.GreaterOrEqual(t, res.NextActions[i-1].Points, res.NextActions[i].Points)
	}
	assert.Equal(t, Measurement, res.NextActions[0].Dimension)
	assert.Equal(t, "/processes/p1?tab=metrics", res.NextActions[0].Href)
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, "Baldrige Ready", LevelFor(80).Label)
	assert.Equal(t, "On Track", LevelFor(79).Label)
	assert.Equal(t, "On Track", LevelFor(60).Label)
	assert.Equal(t, "Developing", LevelFor(40).Label)
	assert.Equal(t, "Getting Started", LevelFor(39).Label)
	assert.Equal(t, "Getting Started", LevelFor(-5).Label)
}

func TestMaturityScaling(t *testing.T) {
	for overall, want := range map[int]int{0: 0, 50: 13, 62: 16, 100: 25, 140: 25, -10: 0} {
		_, got, _, _ := scoreMaturity(&domain.ADLIScore{Overall: overall})
		assert.Equal(t, want, got, "overall=%d", overall)
	}
}
