package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/malone1029/nia-results-tracker-sub003/internal/config"
	"github.com/malone1029/nia-results-tracker-sub003/internal/db"
	"github.com/malone1029/nia-results-tracker-sub003/internal/domain"
	"github.com/malone1029/nia-results-tracker-sub003/internal/events"
	"github.com/malone1029/nia-results-tracker-sub003/internal/observability"
	"github.com/malone1029/nia-results-tracker-sub003/internal/repo"
	"github.com/malone1029/nia-results-tracker-sub003/internal/review"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	Now     func() time.Time
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

func New(conn *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	dialect := db.Dialect(cfg.Database.Driver)
	return Engine{
		DB:     conn,
		Repo:   repo.Repo{DB: conn, Dialect: dialect},
		Events: events.Writer{Dialect: dialect},
		Config: cfg,
		Now:    time.Now,
		Logger: observability.Discard(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return observability.Discard()
}

func (e Engine) location() *time.Location {
	if e.Config == nil {
		return time.UTC
	}
	return e.Config.Location()
}

// Today is the current calendar day in the snapshot timezone.
func (e Engine) Today() string {
	return review.FormatDate(e.now(), e.location())
}

func (e Engine) beginTx(ctx context.Context) (*sql.Tx, error) {
	return e.DB.BeginTx(ctx, nil)
}

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (v ValidationError) Error() string {
	if v.Field == "" {
		return v.Message
	}
	return v.Field + ": " + v.Message
}

func invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}

var processStatuses = map[string]bool{
	domain.ProcessDraft:          true,
	domain.ProcessReadyForReview: true,
	domain.ProcessApproved:       true,
}

var metricCadences = map[string]bool{
	"monthly":     true,
	"quarterly":   true,
	"semi-annual": true,
	"annual":      true,
}

// Categories

type CategoryCreateOptions struct {
	ID          string
	Name        string
	DisplayName string
	SortOrder   int
	ActorID     string
}

func (e Engine) CreateCategory(ctx context.Context, opts CategoryCreateOptions) (domain.Category, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Category{}, invalid("name", "is required")
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	c := domain.Category{ID: id, Name: name, DisplayName: strings.TrimSpace(opts.DisplayName), SortOrder: opts.SortOrder, CreatedAt: e.timestamp()}
	tx, err := e.beginTx(ctx)
	if err != nil {
		return domain.Category{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertCategory(ctx, tx, c); err != nil {
		return domain.Category{}, fmt.Errorf("insert category: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.CategoryCreated, "category", c.ID, opts.ActorID, events.EventPayload{"name": c.Name}); err != nil {
		return domain.Category{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Category{}, err
	}
	return c, nil
}

func (e Engine) ListCategories(ctx context.Context) ([]domain.Category, error) {
	cats, err := e.Repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	if cats == nil {
		cats = []domain.Category{}
	}
	return cats, nil
}

// Processes

type ProcessCreateOptions struct {
	ID              string
	Name            string
	CategoryID      string
	Status          string
	IsKey           bool
	Owner           string
	OwnerEmail      string
	Charter         json.RawMessage
	ADLIApproach    json.RawMessage
	ADLIDeployment  json.RawMessage
	ADLILearning    json.RawMessage
	ADLIIntegration json.RawMessage
	Workflow        json.RawMessage
	AsanaProjectGID string
	ActorID         string
}

func (e Engine) CreateProcess(ctx context.Context, opts ProcessCreateOptions) (domain.Process, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Process{}, invalid("name", "is required")
	}
	if opts.Status == "" {
		opts.Status = domain.ProcessDraft
	}
	if !processStatuses[opts.Status] {
		return domain.Process{}, invalid("status", "unknown status %q", opts.Status)
	}
	for field, doc := range map[string]json.RawMessage{
		"charter":          opts.Charter,
		"adli_approach":    opts.ADLIApproach,
		"adli_deployment":  opts.ADLIDeployment,
		"adli_learning":    opts.ADLILearning,
		"adli_integration": opts.ADLIIntegration,
		"workflow":         opts.Workflow,
	} {
		if len(doc) > 0 && !json.Valid(doc) {
			return domain.Process{}, invalid(field, "must be valid JSON")
		}
	}
	if err := e.requireCategory(ctx, opts.CategoryID); err != nil {
		return domain.Process{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := e.timestamp()
	p := domain.Process{
		ID:              id,
		Name:            name,
		CategoryID:      opts.CategoryID,
		Status:          opts.Status,
		IsKey:           opts.IsKey,
		Owner:           strings.TrimSpace(opts.Owner),
		OwnerEmail:      strings.TrimSpace(opts.OwnerEmail),
		Charter:         opts.Charter,
		ADLIApproach:    opts.ADLIApproach,
		ADLIDeployment:  opts.ADLIDeployment,
		ADLILearning:    opts.ADLILearning,
		ADLIIntegration: opts.ADLIIntegration,
		Workflow:        opts.Workflow,
		AsanaProjectGID: optionalString(opts.AsanaProjectGID),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	tx, err := e.beginTx(ctx)
	if err != nil {
		return domain.Process{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProcess(ctx, tx, p); err != nil {
		return domain.Process{}, fmt.Errorf("insert process: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.ProcessCreated, "process", p.ID, opts.ActorID, events.EventPayload{
		"name": p.Name, "category_id": p.CategoryID, "is_key": p.IsKey,
	}); err != nil {
		return domain.Process{}, err
	}
	created, err := e.Repo.GetProcessTx(ctx, tx, p.ID)
	if err != nil {
		return domain.Process{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Process{}, err
	}
	return created, nil
}

// ProcessUpdateOptions carries a partial update. Nil fields are unchanged; a
// narrative set to JSON null is cleared.
type ProcessUpdateOptions struct {
	ID              string
	Name            *string
	CategoryID      *string
	Status          *string
	IsKey           *bool
	Owner           *string
	OwnerEmail      *string
	Charter         json.RawMessage
	ADLIApproach    json.RawMessage
	ADLIDeployment  json.RawMessage
	ADLILearning    json.RawMessage
	ADLIIntegration json.RawMessage
	Workflow        json.RawMessage
	AsanaProjectGID *string
	ActorID         string
}

func (e Engine) UpdateProcess(ctx context.Context, opts ProcessUpdateOptions) (domain.Process, error) {
	tx, err := e.beginTx(ctx)
	if err != nil {
		return domain.Process{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProcessTx(ctx, tx, opts.ID)
	if err != nil {
		return domain.Process{}, err
	}
	var changed []string
	if opts.Name != nil {
		name := strings.TrimSpace(*opts.Name)
		if name == "" {
			return domain.Process{}, invalid("name", "must not be empty")
		}
		p.Name = name
		changed = append(changed, "name")
	}
	if opts.CategoryID != nil {
		if err := e.requireCategory(ctx, *opts.CategoryID); err != nil {
			return domain.Process{}, err
		}
		p.CategoryID = *opts.CategoryID
		changed = append(changed, "category_id")
	}
	if opts.Status != nil {
		if !processStatuses[*opts.Status] {
			return domain.Process{}, invalid("status", "unknown status %q", *opts.Status)
		}
		p.Status = *opts.Status
		changed = append(changed, "status")
	}
	if opts.IsKey != nil {
		p.IsKey = *opts.IsKey
		changed = append(changed, "is_key")
	}
	if opts.Owner != nil {
		p.Owner = strings.TrimSpace(*opts.Owner)
		changed = append(changed, "owner")
	}
	if opts.OwnerEmail != nil {
		p.OwnerEmail = strings.TrimSpace(*opts.OwnerEmail)
		changed = append(changed, "owner_email")
	}
	if opts.AsanaProjectGID != nil {
		p.AsanaProjectGID = optionalString(*opts.AsanaProjectGID)
		changed = append(changed, "asana_project_gid")
	}
	docs := []struct {
		name string
		in   json.RawMessage
		dst  *json.RawMessage
	}{
		{"charter", opts.Charter, &p.Charter},
		{"adli_approach", opts.ADLIApproach, &p.ADLIApproach},
		{"adli_deployment", opts.ADLIDeployment, &p.ADLIDeployment},
		{"adli_learning", opts.ADLILearning, &p.ADLILearning},
		{"adli_integration", opts.ADLIIntegration, &p.ADLIIntegration},
		{"workflow", opts.Workflow, &p.Workflow},
	}
	for _, d := range docs {
		if d.in == nil {
			continue
		}
		if !json.Valid(d.in) {
			return domain.Process{}, invalid(d.name, "must be valid JSON")
		}
		*d.dst = d.in
		changed = append(changed, d.name)
	}
	if len(changed) == 0 {
		return p, nil
	}
	p.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateProcess(ctx, tx, p); err != nil {
		return domain.Process{}, err
	}
	if err := e.Events.Append(ctx, tx, events.ProcessUpdated, "process", p.ID, opts.ActorID, events.EventPayload{"fields": changed}); err != nil {
		return domain.Process{}, err
	}
	updated, err := e.Repo.GetProcessTx(ctx, tx, p.ID)
	if err != nil {
		return domain.Process{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Process{}, err
	}
	return updated, nil
}

func (e Engine) GetProcess(ctx context.Context, id string) (domain.Process, error) {
	return e.Repo.GetProcess(ctx, id)
}

func (e Engine) ListProcesses(ctx context.Context, filters repo.ProcessFilters) ([]domain.Process, error) {
	procs, err := e.Repo.ListProcesses(ctx, filters)
	if err != nil {
		return nil, err
	}
	if procs == nil {
		procs = []domain.Process{}
	}
	return procs, nil
}

func (e Engine) requireCategory(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return invalid("category_id", "is required")
	}
	if _, err := e.Repo.GetCategory(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return invalid("category_id", "category %s not found", id)
		}
		return err
	}
	return nil
}

// ADLI assessments

type ADLIScoreOptions struct {
	ProcessID   string
	Approach    int
	Deployment  int
	Learning    int
	Integration int
	// Overall defaults to the rounded mean of the four dimensions.
	Overall    *int
	AssessedAt string
	ActorID    string
}

func (e Engine) RecordADLIScore(ctx context.Context, opts ADLIScoreOptions) (domain.ADLIScore, error) {
	for field, v := range map[string]int{
		"approach_score":    opts.Approach,
		"deployment_score":  opts.Deployment,
		"learning_score":    opts.Learning,
		"integration_score": opts.Integration,
	} {
		if v < 0 || v > 100 {
			return domain.ADLIScore{}, invalid(field, "must be within 0..100")
		}
	}
	overall := (opts.Approach + opts.Deployment + opts.Learning + opts.Integration + 2) / 4
	if opts.Overall != nil {
		if *opts.Overall < 0 || *opts.Overall > 100 {
			return domain.ADLIScore{}, invalid("overall_score", "must be within 0..100")
		}
		overall = *opts.Overall
	}
	assessed := e.timestamp()
	if opts.AssessedAt != "" {
		ts, err := time.Parse(time.RFC3339, opts.AssessedAt)
		if err != nil {
			return domain.ADLIScore{}, invalid("assessed_at", "must be RFC3339")
		}
		assessed = ts.UTC().Format(time.RFC3339)
	}
	s := domain.ADLIScore{
		ID:          uuid.NewString(),
		ProcessID:   opts.ProcessID,
		Approach:    opts.Approach,
		Deployment:  opts.Deployment,
		Learning:    opts.Learning,
		Integration: opts.Integration,
		Overall:     overall,
		AssessedAt:  assessed,
	}
	tx, err := e.beginTx(ctx)
	if err != nil {
		return domain.ADLIScore{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetProcessTx(ctx, tx, opts.ProcessID); err != nil {
		return domain.ADLIScore{}, err
	}
	if err := e.Repo.InsertADLIScore(ctx, tx, s); err != nil {
		return domain.ADLIScore{}, fmt.Errorf("insert adli score: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.ADLIScoreRecorded, "process", s.ProcessID, opts.ActorID, events.EventPayload{
		"score_id": s.ID, "overall_score": s.Overall,
	}); err != nil {
		return domain.ADLIScore{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ADLIScore{}, err
	}
	return s, nil
}

func (e Engine) ListADLIScores(ctx context.Context, processID string) ([]domain.ADLIScore, error) {
	if _, err := e.Repo.GetProcess(ctx, processID); err != nil {
		return nil, err
	}
	scores, err := e.Repo.ListADLIScores(ctx, processID)
	if err != nil {
		return nil, err
	}
	if scores == nil {
		scores = []domain.ADLIScore{}
	}
	return scores, nil
}

// Metrics

type MetricCreateOptions struct {
	ID              string
	Name            string
	Cadence         string
	Unit            string
	ComparisonValue *float64
	ActorID         string
}

func (e Engine) CreateMetric(ctx context.Context, opts MetricCreateOptions) (domain.Metric, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Metric{}, invalid("name", "is required")
	}
	cadence := strings.ToLower(strings.TrimSpace(opts.Cadence))
	if !metricCadences[cadence] {
		return domain.Metric{}, invalid("cadence", "unknown cadence %q", opts.Cadence)
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	m := domain.Metric{ID: id, Name: name, Cadence: cadence, Unit: strings.TrimSpace(opts.Unit), ComparisonValue: opts.ComparisonValue, CreatedAt: e.timestamp()}
	tx, err := e.beginTx(ctx)
	if err != nil {
		return domain.Metric{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertMetric(ctx, tx, m); err != nil {
		return domain.Metric{}, fmt.Errorf("insert metric: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.MetricCreated, "metric", m.ID, opts.ActorID, events.EventPayload{"name": m.Name, "cadence": m.Cadence}); err != nil {
		return domain.Metric{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Metric{}, err
	}
	return m, nil
}

func (e Engine) LinkMetric(ctx context.Context, metricID, processID, actorID string) error {
	if _, err := e.Repo.GetMetric(ctx, metricID); err != nil {
		return err
	}
	if _, err := e.Repo.GetProcess(ctx, processID); err != nil {
		return err
	}
	tx, err := e.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.LinkMetric(ctx, tx, metricID, processID); err != nil {
		return fmt.Errorf("link metric: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.MetricLinked, "metric", metricID, actorID, events.EventPayload{"process_id": processID}); err != nil {
		return err
	}
	return tx.Commit()
}

type EntryOptions struct {
	MetricID string
	Value    float64
	Date     string
	Note     string
	ActorID  string
}

func (e Engine) RecordEntry(ctx context.Context, opts EntryOptions) (domain.Entry, error) {
	date, err := e.dateOrToday("date", opts.Date)
	if err != nil {
		return domain.Entry{}, err
	}
	if _, err := e.Repo.GetMetric(ctx, opts.MetricID); err != nil {
		return domain.Entry{}, err
	}
	en := domain.Entry{ID: uuid.NewString(), MetricID: opts.MetricID, Value: opts.Value, Date: date, Note: strings.TrimSpace(opts.Note), CreatedAt: e.timestamp()}
	tx, err := e.beginTx(ctx)
	if err != nil {
		return domain.Entry{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertEntry(ctx, tx, en); err != nil {
		return domain.Entry{}, fmt.Errorf("insert entry: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.EntryRecorded, "metric", en.MetricID, opts.ActorID, events.EventPayload{"entry_id": en.ID, "date": en.Date}); err != nil {
		return domain.Entry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Entry{}, err
	}
	return en, nil
}

// ListEntries returns a metric's entries, newest first.
func (e Engine) ListEntries(ctx context.Context, metricID string) ([]domain.Entry, error) {
	if _, err := e.Repo.GetMetric(ctx, metricID); err != nil {
		return nil, err
	}
	entries, err := e.Repo.ListEntries(ctx, metricID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.Entry{}
	}
	return entries, nil
}

// Improvement journal

type ImprovementOptions struct {
	ProcessID     string
	Title         string
	Description   string
	CommittedDate string
	ActorID       string
}

func (e Engine) LogImprovement(ctx context.Context, opts ImprovementOptions) (domain.Improvement, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Improvement{}, invalid("title", "is required")
	}
	date, err := e.dateOrToday("committed_date", opts.CommittedDate)
	if err != nil {
		return domain.Improvement{}, err
	}
	imp := domain.Improvement{
		ID:            uuid.NewString(),
		ProcessID:     opts.ProcessID,
		Title:         title,
		Description:   strings.TrimSpace(opts.Description),
		CommittedDate: date,
		CreatedAt:     e.timestamp(),
	}
	tx, err := e.beginTx(ctx)
	if err != nil {
		return domain.Improvement{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetProcessTx(ctx, tx, opts.ProcessID); err != nil {
		return domain.Improvement{}, err
	}
	if err := e.Repo.InsertImprovement(ctx, tx, imp); err != nil {
		return domain.Improvement{}, fmt.Errorf("insert improvement: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.ImprovementLogged, "process", imp.ProcessID, opts.ActorID, events.EventPayload{"improvement_id": imp.ID}); err != nil {
		return domain.Improvement{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Improvement{}, err
	}
	return imp, nil
}

// ListImprovements returns the improvement journal of a process, newest first.
func (e Engine) ListImprovements(ctx context.Context, processID string) ([]domain.Improvement, error) {
	if _, err := e.Repo.GetProcess(ctx, processID); err != nil {
		return nil, err
	}
	items, err := e.Repo.ListImprovements(ctx, processID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Improvement{}
	}
	return items, nil
}

func (e Engine) dateOrToday(field, in string) (string, error) {
	in = strings.TrimSpace(in)
	if in == "" {
		return e.Today(), nil
	}
	if _, err := time.Parse("2006-01-02", in); err != nil {
		return "", invalid(field, "must be YYYY-MM-DD")
	}
	return in, nil
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
