package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/malone1029/nia-results-tracker-sub003/internal/domain"
	"github.com/malone1029/nia-results-tracker-sub003/internal/events"
	"github.com/malone1029/nia-results-tracker-sub003/internal/health"
	"github.com/malone1029/nia-results-tracker-sub003/internal/readiness"
	"github.com/malone1029/nia-results-tracker-sub003/internal/repo"
)

// Snapshot triggers recorded in metrics and event payloads.
const (
	TriggerAuto    = "auto"
	TriggerManual  = "manual"
	TriggerRefresh = "refresh"
	TriggerCLI     = "cli"
)

// ProcessHealth pairs a process with its computed health result.
type ProcessHealth struct {
	Process domain.Process `json:"process"`
	Health  health.Result  `json:"health"`
}

type healthInputs struct {
	adli         map[string]domain.ADLIScore
	metrics      map[string][]health.MetricInput
	tasks        map[string][]domain.Task
	improvements map[string]string
}

func (e Engine) loadHealthInputs(ctx context.Context) (healthInputs, error) {
	var in healthInputs
	var err error
	if in.adli, err = e.Repo.LatestADLIScores(ctx); err != nil {
		return in, fmt.Errorf("load adli scores: %w", err)
	}
	summaries, err := e.Repo.ListMetricSummaries(ctx, "")
	if err != nil {
		return in, fmt.Errorf("load metrics: %w", err)
	}
	in.metrics = map[string][]health.MetricInput{}
	for _, s := range summaries {
		in.metrics[s.ProcessID] = append(in.metrics[s.ProcessID], health.MetricInputFrom(s))
	}
	tasks, err := e.Repo.ListTasks(ctx, "")
	if err != nil {
		return in, fmt.Errorf("load tasks: %w", err)
	}
	in.tasks = map[string][]domain.Task{}
	for _, t := range tasks {
		in.tasks[t.ProcessID] = append(in.tasks[t.ProcessID], t)
	}
	if in.improvements, err = e.Repo.LatestImprovementDates(ctx); err != nil {
		return in, fmt.Errorf("load improvements: %w", err)
	}
	return in, nil
}

func (e Engine) score(p domain.Process, in healthInputs, now time.Time) health.Result {
	var adli *domain.ADLIScore
	if s, ok := in.adli[p.ID]; ok {
		adli = &s
	}
	return health.Calculate(p, adli, in.metrics[p.ID],
		health.SummarizeTasks(in.tasks[p.ID], now),
		health.ImprovementInput{LatestDate: in.improvements[p.ID]},
		now)
}

func (e Engine) scoreAll(ctx context.Context, processes []domain.Process) ([]ProcessHealth, healthInputs, error) {
	in, err := e.loadHealthInputs(ctx)
	if err != nil {
		return nil, in, err
	}
	now := e.now().In(e.location())
	res := make([]ProcessHealth, 0, len(processes))
	for _, p := range processes {
		res = append(res, ProcessHealth{Process: p, Health: e.score(p, in, now)})
	}
	if e.Metrics != nil {
		e.Metrics.ObserveHealth(len(res))
	}
	return res, in, nil
}

// HealthResults scores every process matching filters.
func (e Engine) HealthResults(ctx context.Context, filters repo.ProcessFilters) ([]ProcessHealth, error) {
	procs, err := e.ListProcesses(ctx, filters)
	if err != nil {
		return nil, err
	}
	res, _, err := e.scoreAll(ctx, procs)
	return res, err
}

// ProcessHealth scores one process.
func (e Engine) ProcessHealth(ctx context.Context, id string) (ProcessHealth, error) {
	p, err := e.Repo.GetProcess(ctx, id)
	if err != nil {
		return ProcessHealth{}, err
	}
	res, _, err := e.scoreAll(ctx, []domain.Process{p})
	if err != nil {
		return ProcessHealth{}, err
	}
	return res[0], nil
}

// Summary aggregates health results for all processes, narrowed to owner when
// it is set.
func (e Engine) Summary(ctx context.Context, owner string) (readiness.Summary, error) {
	cats, err := e.ListCategories(ctx)
	if err != nil {
		return readiness.Summary{}, err
	}
	procs, err := e.ListProcesses(ctx, repo.ProcessFilters{})
	if err != nil {
		return readiness.Summary{}, err
	}
	scored, in, err := e.scoreAll(ctx, procs)
	if err != nil {
		return readiness.Summary{}, err
	}
	results := make(map[string]health.Result, len(scored))
	for _, s := range scored {
		results[s.Process.ID] = s.Health
	}
	return readiness.Summarize(readiness.Input{
		Categories:     cats,
		Processes:      procs,
		Results:        results,
		LatestADLI:     in.adli,
		ReadyThreshold: e.readyThreshold(),
	}, owner), nil
}

func (e Engine) readyThreshold() int {
	if e.Config == nil || e.Config.Scoring.ReadyThreshold <= 0 {
		return readiness.DefaultReadyThreshold
	}
	return e.Config.Scoring.ReadyThreshold
}

// ListSnapshots returns the trend history, oldest first.
func (e Engine) ListSnapshots(ctx context.Context) ([]domain.Snapshot, error) {
	return e.Repo.ListSnapshots(ctx)
}

// SnapshotByDate returns the snapshot stored for date (YYYY-MM-DD).
func (e Engine) SnapshotByDate(ctx context.Context, date string) (domain.Snapshot, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return domain.Snapshot{}, invalid("snapshot_date", "must be YYYY-MM-DD")
	}
	return e.Repo.GetSnapshotByDate(ctx, date)
}

// SnapshotInput is the client-computed payload of a snapshot save.
type SnapshotInput struct {
	OrgScore        float64
	CategoryScores  map[string]float64
	DimensionScores map[string]float64
	ProcessCount    int
	ReadyCount      int
}

func (in SnapshotInput) validate() error {
	if math.IsNaN(in.OrgScore) || in.OrgScore < 0 || in.OrgScore > 100 {
		return invalid("org_score", "must be within 0..100")
	}
	if in.ProcessCount < 0 {
		return invalid("process_count", "must not be negative")
	}
	if in.ReadyCount < 0 || in.ReadyCount > in.ProcessCount {
		return invalid("ready_count", "must be within 0..process_count")
	}
	for k, v := range in.CategoryScores {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return invalid("category_scores", "score for %s is not a number", k)
		}
	}
	for k, v := range in.DimensionScores {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return invalid("dimension_scores", "score for %s is not a number", k)
		}
	}
	return nil
}

// SaveSnapshot upserts the snapshot for today's date in the configured
// timezone. A second save on the same day overwrites the values of the first
// and keeps its id.
func (e Engine) SaveSnapshot(ctx context.Context, in SnapshotInput, actorID, trigger string) (domain.Snapshot, error) {
	saved, err := e.saveSnapshot(ctx, in, actorID, trigger)
	if e.Metrics != nil {
		e.Metrics.ObserveSnapshot(trigger, err, saved.OrgScore)
	}
	if err != nil {
		e.logger().Warn("snapshot save failed", "trigger", trigger, "actor_id", actorID, "error", err)
		return domain.Snapshot{}, err
	}
	e.logger().Info("snapshot saved",
		"snapshot_date", saved.SnapshotDate,
		"org_score", saved.OrgScore,
		"actor_id", actorID,
		"trigger", trigger)
	return saved, nil
}

func (e Engine) saveSnapshot(ctx context.Context, in SnapshotInput, actorID, trigger string) (domain.Snapshot, error) {
	if err := in.validate(); err != nil {
		return domain.Snapshot{}, err
	}
	s := domain.Snapshot{
		ID:              uuid.NewString(),
		SnapshotDate:    e.Today(),
		OrgScore:        in.OrgScore,
		CategoryScores:  in.CategoryScores,
		DimensionScores: in.DimensionScores,
		ProcessCount:    in.ProcessCount,
		ReadyCount:      in.ReadyCount,
	}
	tx, err := e.beginTx(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer tx.Rollback()
	saved, err := e.Repo.UpsertSnapshot(ctx, tx, s, e.timestamp())
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("upsert snapshot: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.SnapshotSaved, "snapshot", saved.ID, actorID, events.EventPayload{
		"snapshot_date": saved.SnapshotDate,
		"org_score":     saved.OrgScore,
		"process_count": saved.ProcessCount,
		"ready_count":   saved.ReadyCount,
		"trigger":       trigger,
		"replaced":      saved.ID != s.ID,
	}); err != nil {
		return domain.Snapshot{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Snapshot{}, err
	}
	return saved, nil
}

// RefreshSnapshot computes the organization-wide aggregate server-side and
// saves it as today's snapshot.
func (e Engine) RefreshSnapshot(ctx context.Context, actorID, trigger string) (domain.Snapshot, error) {
	sum, err := e.Summary(ctx, "")
	if err != nil {
		return domain.Snapshot{}, err
	}
	return e.SaveSnapshot(ctx, SnapshotInputFrom(sum.Aggregate), actorID, trigger)
}

// SnapshotInputFrom converts an aggregate into a save payload.
func SnapshotInputFrom(a readiness.Aggregate) SnapshotInput {
	s := readiness.SnapshotPayload(a)
	return SnapshotInput{
		OrgScore:        s.OrgScore,
		CategoryScores:  s.CategoryScores,
		DimensionScores: s.DimensionScores,
		ProcessCount:    s.ProcessCount,
		ReadyCount:      s.ReadyCount,
	}
}

// LatestEvents exposes the audit log, newest first.
func (e Engine) LatestEvents(ctx context.Context, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.Repo.LatestEvents(ctx, limit, evtType, entityKind, entityID)
}
