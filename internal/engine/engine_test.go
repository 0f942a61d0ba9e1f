package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malone1029/nia-results-tracker-sub003/internal/config"
	"github.com/malone1029/nia-results-tracker-sub003/internal/db"
	"github.com/malone1029/nia-results-tracker-sub003/internal/engine"
	"github.com/malone1029/nia-results-tracker-sub003/internal/events"
	"github.com/malone1029/nia-results-tracker-sub003/internal/migrate"
	"github.com/malone1029/nia-results-tracker-sub003/internal/repo"
)

type testEnv struct {
	Engine *engine.Engine
	Ctx    context.Context
	Clock  *time.Time
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn, "sqlite"))

	clock := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return clock }
	return testEnv{Engine: &eng, Ctx: context.Background(), Clock: &clock}
}

const seedYAML = `
categories:
  - key: leadership
    name: leadership
    display_name: Leadership
    sort_order: 1
  - key: operations
    name: operations
    display_name: Operations
    sort_order: 2
processes:
  - key: onboarding
    name: Staff Onboarding
    category: leadership
    status: approved
    is_key: true
    owner: Dana Reyes
    owner_email: dana@example.org
    charter: {content: "Bring new staff up to speed"}
    adli_approach: {content: "a"}
    adli_deployment: {content: "d"}
    adli_learning: {content: "l"}
    adli_integration: {content: "i"}
    workflow: {steps: [intake, training]}
    adli_scores:
      - {approach: 60, deployment: 60, learning: 60, integration: 60, assessed_at: "2025-06-01T00:00:00Z"}
      - {approach: 100, deployment: 100, learning: 100, integration: 100, assessed_at: "2026-02-01T00:00:00Z"}
    tasks:
      - {title: Draft checklist, status: completed, assignee: Dana, due_date: "2026-03-01"}
      - {title: Pilot checklist, status: active, assignee: Sam, due_date: "2026-04-01"}
      - {title: Suggested follow-up, status: pending, origin: hub_ai}
    improvements:
      - {title: Shortened orientation, committed_date: "2026-03-01"}
  - key: intake
    name: Student Intake
    category: leadership
    owner: Sam Lee
    updated_at: "2024-01-01"
metrics:
  - key: retention
    name: 90-day retention
    cadence: monthly
    unit: percent
    comparison_value: 95
    processes: [onboarding]
    entries:
      - {date: "2026-01-10", value: 91}
      - {date: "2026-02-10", value: 93}
      - {date: "2026-03-10", value: 96}
`

func importSeed(t *testing.T, env testEnv) engine.ImportResult {
	t.Helper()
	seed, err := engine.ParseSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)
	res, err := env.Engine.Import(env.Ctx, seed, "tester")
	require.NoError(t, err)
	return res
}

func TestImportSeed(t *testing.T) {
	env := newTestEnv(t)
	res := importSeed(t, env)
	assert.Equal(t, engine.ImportResult{Categories: 2, Processes: 2, ADLIScores: 2, Tasks: 3, Improvements: 1, Metrics: 1, Links: 1, Entries: 3}, res)

	seed, err := engine.ParseSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)
	_, err = env.Engine.Import(env.Ctx, seed, "tester")
	require.Error(t, err, "second import of the same keys must fail")

	procs, err := env.Engine.ListProcesses(env.Ctx, repo.ProcessFilters{})
	require.NoError(t, err)
	assert.Len(t, procs, 2)
}

func TestParseSeedRejectsUnknownFields(t *testing.T) {
	_, err := engine.ParseSeed(strings.NewReader("processes:\n  - name: x\n    colour: red\n"))
	require.Error(t, err)
}

func TestHealthResultsFromStoredRows(t *testing.T) {
	env := newTestEnv(t)
	importSeed(t, env)

	results, err := env.Engine.HealthResults(env.Ctx, repo.ProcessFilters{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	byName := map[string]engine.ProcessHealth{}
	for _, r := range results {
		byName[r.Process.Name] = r
	}
	onboarding := byName["Staff Onboarding"]
	assert.Equal(t, 100, onboarding.Health.Total)
	assert.Equal(t, "Baldrige Ready", onboarding.Health.Level.Label)
	assert.Empty(t, onboarding.Health.NextActions)

	intake := byName["Student Intake"]
	assert.Equal(t, 0, intake.Health.Total)
	assert.Len(t, intake.Health.NextActions, 5)
}

func TestSummaryWeightsKeyProcesses(t *testing.T) {
	env := newTestEnv(t)
	importSeed(t, env)

	sum, err := env.Engine.Summary(env.Ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 67, sum.OrgScore)
	assert.Equal(t, 2, sum.ProcessCount)
	assert.Equal(t, 1, sum.ReadyCount)
	assert.Equal(t, 50, sum.ADLIRollup)
	require.Len(t, sum.CategoryScores, 2)
	assert.Equal(t, 50, sum.CategoryScores[0].Score)
	assert.True(t, sum.CategoryScores[1].Empty)

	mine, err := env.Engine.Summary(env.Ctx, "dana@EXAMPLE.org")
	require.NoError(t, err)
	assert.Equal(t, 100, mine.OrgScore)
	assert.Equal(t, 67, mine.UnfilteredOrgScore)
	assert.Equal(t, 33, mine.OrgScoreDelta)
}

func TestSaveSnapshotTwiceSameDayKeepsOneRow(t *testing.T) {
	env := newTestEnv(t)

	first, err := env.Engine.SaveSnapshot(env.Ctx, engine.SnapshotInput{
		OrgScore: 40, CategoryScores: map[string]float64{"c1": 40}, DimensionScores: map[string]float64{"maturity": 10},
		ProcessCount: 3, ReadyCount: 0,
	}, "tester", engine.TriggerAuto)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-15", first.SnapshotDate)

	*env.Clock = env.Clock.Add(3 * time.Hour)
	second, err := env.Engine.SaveSnapshot(env.Ctx, engine.SnapshotInput{
		OrgScore: 55, CategoryScores: map[string]float64{"c1": 55, "c2": 0}, DimensionScores: map[string]float64{"maturity": 30},
		ProcessCount: 4, ReadyCount: 1,
	}, "tester", engine.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	snaps, err := env.Engine.ListSnapshots(env.Ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 55.0, snaps[0].OrgScore)
	assert.Equal(t, map[string]float64{"c1": 55, "c2": 0}, snaps[0].CategoryScores)
	assert.Equal(t, 4, snaps[0].ProcessCount)
	assert.Equal(t, 1, snaps[0].ReadyCount)

	*env.Clock = env.Clock.Add(24 * time.Hour)
	_, err = env.Engine.SaveSnapshot(env.Ctx, engine.SnapshotInput{OrgScore: 60, ProcessCount: 4}, "tester", engine.TriggerAuto)
	require.NoError(t, err)
	snaps, err = env.Engine.ListSnapshots(env.Ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "2026-03-15", snaps[0].SnapshotDate)
	assert.Equal(t, "2026-03-16", snaps[1].SnapshotDate)
	assert.NotNil(t, snaps[1].CategoryScores)

	evts, err := env.Engine.LatestEvents(env.Ctx, 10, events.SnapshotSaved, "", "")
	require.NoError(t, err)
	assert.Len(t, evts, 3)
}

func TestSaveSnapshotUsesConfiguredTimezone(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Snapshot.Timezone = "America/Chicago"
	*env.Clock = time.Date(2026, 3, 15, 2, 0, 0, 0, time.UTC)

	s, err := env.Engine.SaveSnapshot(env.Ctx, engine.SnapshotInput{OrgScore: 10}, "", engine.TriggerAuto)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-14", s.SnapshotDate)
}

func TestSaveSnapshotRejectsInconsistentCounts(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.SaveSnapshot(env.Ctx, engine.SnapshotInput{OrgScore: 10, ProcessCount: 1, ReadyCount: 2}, "", engine.TriggerAuto)
	require.Error(t, err)
	assert.True(t, engine.IsValidation(err))

	_, err = env.Engine.SaveSnapshot(env.Ctx, engine.SnapshotInput{OrgScore: 140}, "", engine.TriggerAuto)
	assert.True(t, engine.IsValidation(err))

	snaps, err := env.Engine.ListSnapshots(env.Ctx)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestRefreshSnapshotStoresServerAggregate(t *testing.T) {
	env := newTestEnv(t)
	importSeed(t, env)

	s, err := env.Engine.RefreshSnapshot(env.Ctx, "tester", engine.TriggerRefresh)
	require.NoError(t, err)
	assert.Equal(t, 67.0, s.OrgScore)
	assert.Equal(t, 2, s.ProcessCount)
	assert.Equal(t, 1, s.ReadyCount)
	assert.Len(t, s.CategoryScores, 2)
	assert.Len(t, s.DimensionScores, 5)
}

func TestCatalogWrites(t *testing.T) {
	env := newTestEnv(t)
	cat, err := env.Engine.CreateCategory(env.Ctx, engine.CategoryCreateOptions{Name: "strategy", DisplayName: "Strategy"})
	require.NoError(t, err)

	_, err = env.Engine.CreateProcess(env.Ctx, engine.ProcessCreateOptions{Name: "Planning", CategoryID: "missing"})
	assert.True(t, engine.IsValidation(err))

	p, err := env.Engine.CreateProcess(env.Ctx, engine.ProcessCreateOptions{Name: "Planning", CategoryID: cat.ID, Owner: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "draft", p.Status)
	assert.Equal(t, "strategy", p.CategoryName)

	*env.Clock = env.Clock.Add(time.Hour)
	status := "approved"
	updated, err := env.Engine.UpdateProcess(env.Ctx, engine.ProcessUpdateOptions{
		ID: p.ID, Status: &status, Charter: json.RawMessage(`{"content":"why"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "approved", updated.Status)
	assert.JSONEq(t, `{"content":"why"}`, string(updated.Charter))
	assert.NotEqual(t, p.UpdatedAt, updated.UpdatedAt)

	_, err = env.Engine.UpdateProcess(env.Ctx, engine.ProcessUpdateOptions{ID: "nope", Status: &status})
	assert.True(t, errors.Is(err, repo.ErrNotFound))

	s, err := env.Engine.RecordADLIScore(env.Ctx, engine.ADLIScoreOptions{ProcessID: p.ID, Approach: 70, Deployment: 60, Learning: 50, Integration: 41})
	require.NoError(t, err)
	assert.Equal(t, 55, s.Overall)

	_, err = env.Engine.RecordADLIScore(env.Ctx, engine.ADLIScoreOptions{ProcessID: p.ID, Approach: 101})
	assert.True(t, engine.IsValidation(err))

	m, err := env.Engine.CreateMetric(env.Ctx, engine.MetricCreateOptions{Name: "Plan completion", Cadence: "Quarterly"})
	require.NoError(t, err)
	assert.Equal(t, "quarterly", m.Cadence)
	require.NoError(t, env.Engine.LinkMetric(env.Ctx, m.ID, p.ID, ""))
	require.NoError(t, env.Engine.LinkMetric(env.Ctx, m.ID, p.ID, ""))

	en, err := env.Engine.RecordEntry(env.Ctx, engine.EntryOptions{MetricID: m.ID, Value: 3})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-15", en.Date)

	_, err = env.Engine.LogImprovement(env.Ctx, engine.ImprovementOptions{ProcessID: p.ID, Title: "Quarterly review added"})
	require.NoError(t, err)

	ph, err := env.Engine.ProcessHealth(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 14, ph.Health.Dimensions.Maturity.Score)
	assert.Equal(t, 15, ph.Health.Dimensions.Freshness.Score)
	assert.Equal(t, 12, ph.Health.Dimensions.Measurement.Score)
}
