package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/malone1029/nia-results-tracker-sub003/internal/domain"
	"github.com/malone1029/nia-results-tracker-sub003/internal/events"
)

// Seed is the YAML document accepted by Import. Rows reference each other by
// key; ids are derived from keys so the same seed always yields the same ids.
type Seed struct {
	Categories []SeedCategory `yaml:"categories"`
	Processes  []SeedProcess  `yaml:"processes"`
	Metrics    []SeedMetric   `yaml:"metrics"`
}

type SeedCategory struct {
	Key         string `yaml:"key"`
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
	SortOrder   int    `yaml:"sort_order"`
}

type SeedProcess struct {
	Key             string            `yaml:"key"`
	Name            string            `yaml:"name"`
	Category        string            `yaml:"category"`
	Status          string            `yaml:"status"`
	IsKey           bool              `yaml:"is_key"`
	Owner           string            `yaml:"owner"`
	OwnerEmail      string            `yaml:"owner_email"`
	Charter         any               `yaml:"charter"`
	ADLIApproach    any               `yaml:"adli_approach"`
	ADLIDeployment  any               `yaml:"adli_deployment"`
	ADLILearning    any               `yaml:"adli_learning"`
	ADLIIntegration any               `yaml:"adli_integration"`
	Workflow        any               `yaml:"workflow"`
	AsanaProjectGID string            `yaml:"asana_project_gid"`
	UpdatedAt       string            `yaml:"updated_at"`
	ADLIScores      []SeedADLIScore   `yaml:"adli_scores"`
	Tasks           []SeedTask        `yaml:"tasks"`
	Improvements    []SeedImprovement `yaml:"improvements"`
}

type SeedADLIScore struct {
	Approach    int    `yaml:"approach"`
	Deployment  int    `yaml:"deployment"`
	Learning    int    `yaml:"learning"`
	Integration int    `yaml:"integration"`
	Overall     *int   `yaml:"overall"`
	AssessedAt  string `yaml:"assessed_at"`
}

type SeedTask struct {
	Title          string `yaml:"title"`
	Origin         string `yaml:"origin"`
	Status         string `yaml:"status"`
	PDCASection    string `yaml:"pdca_section"`
	Completed      bool   `yaml:"completed"`
	DueDate        string `yaml:"due_date"`
	StartDate      string `yaml:"start_date"`
	Assignee       string `yaml:"assignee"`
	Priority       string `yaml:"priority"`
	RecurrenceRule string `yaml:"recurrence_rule"`
}

type SeedImprovement struct {
	Title         string `yaml:"title"`
	Description   string `yaml:"description"`
	CommittedDate string `yaml:"committed_date"`
}

type SeedMetric struct {
	Key             string      `yaml:"key"`
	Name            string      `yaml:"name"`
	Cadence         string      `yaml:"cadence"`
	Unit            string      `yaml:"unit"`
	ComparisonValue *float64    `yaml:"comparison_value"`
	Processes       []string    `yaml:"processes"`
	Entries         []SeedEntry `yaml:"entries"`
}

type SeedEntry struct {
	Date  string  `yaml:"date"`
	Value float64 `yaml:"value"`
	Note  string  `yaml:"note"`
}

type ImportResult struct {
	Categories   int `json:"categories"`
	Processes    int `json:"processes"`
	ADLIScores   int `json:"adli_scores"`
	Tasks        int `json:"tasks"`
	Improvements int `json:"improvements"`
	Metrics      int `json:"metrics"`
	Links        int `json:"links"`
	Entries      int `json:"entries"`
}

func seedID(kind, key string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("nia-hub|"+kind+"|"+key)).String()
}

// ParseSeed decodes a seed document, rejecting unknown fields.
func ParseSeed(r io.Reader) (Seed, error) {
	var s Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if err == io.EOF {
			return s, nil
		}
		return s, fmt.Errorf("invalid seed yaml: %w", err)
	}
	return s, nil
}

// Import loads a seed in one transaction. Keys must be new to the store; a
// repeated import fails on the derived ids instead of duplicating rows.
func (e Engine) Import(ctx context.Context, seed Seed, actorID string) (ImportResult, error) {
	var res ImportResult
	now := e.timestamp()
	tx, err := e.beginTx(ctx)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	categoryIDs := map[string]string{}
	for i, c := range seed.Categories {
		key := firstNonEmpty(c.Key, c.Name)
		if strings.TrimSpace(c.Name) == "" {
			return res, invalid(fmt.Sprintf("categories[%d].name", i), "is required")
		}
		id := seedID("category", key)
		if err := e.Repo.InsertCategory(ctx, tx, domain.Category{ID: id, Name: c.Name, DisplayName: c.DisplayName, SortOrder: c.SortOrder, CreatedAt: now}); err != nil {
			return res, fmt.Errorf("category %s: %w", key, err)
		}
		categoryIDs[key] = id
		categoryIDs[c.Name] = id
		res.Categories++
	}

	processIDs := map[string]string{}
	for i, sp := range seed.Processes {
		field := fmt.Sprintf("processes[%d]", i)
		key := firstNonEmpty(sp.Key, sp.Name)
		p, err := e.seedProcess(ctx, tx, sp, key, categoryIDs, now)
		if err != nil {
			return res, prefixValidation(field, err)
		}
		if err := e.Repo.InsertProcess(ctx, tx, p); err != nil {
			return res, fmt.Errorf("process %s: %w", key, err)
		}
		processIDs[key] = p.ID
		res.Processes++

		for j, sc := range sp.ADLIScores {
			s, err := seedADLI(p.ID, key, j, sc, now)
			if err != nil {
				return res, prefixValidation(fmt.Sprintf("%s.adli_scores[%d]", field, j), err)
			}
			if err := e.Repo.InsertADLIScore(ctx, tx, s); err != nil {
				return res, fmt.Errorf("adli score %s/%d: %w", key, j, err)
			}
			res.ADLIScores++
		}
		for j, st := range sp.Tasks {
			t, err := seedTask(p.ID, key, j, st, now)
			if err != nil {
				return res, prefixValidation(fmt.Sprintf("%s.tasks[%d]", field, j), err)
			}
			if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
				return res, fmt.Errorf("task %s/%d: %w", key, j, err)
			}
			res.Tasks++
		}
		for j, si := range sp.Improvements {
			if strings.TrimSpace(si.Title) == "" {
				return res, invalid(fmt.Sprintf("%s.improvements[%d].title", field, j), "is required")
			}
			date, err := e.dateOrToday(fmt.Sprintf("%s.improvements[%d].committed_date", field, j), si.CommittedDate)
			if err != nil {
				return res, err
			}
			imp := domain.Improvement{
				ID:            seedID("improvement", fmt.Sprintf("%s|%d", key, j)),
				ProcessID:     p.ID,
				Title:         strings.TrimSpace(si.Title),
				Description:   strings.TrimSpace(si.Description),
				CommittedDate: date,
				CreatedAt:     now,
			}
			if err := e.Repo.InsertImprovement(ctx, tx, imp); err != nil {
				return res, fmt.Errorf("improvement %s/%d: %w", key, j, err)
			}
			res.Improvements++
		}
	}

	for i, sm := range seed.Metrics {
		field := fmt.Sprintf("metrics[%d]", i)
		key := firstNonEmpty(sm.Key, sm.Name)
		cadence := strings.ToLower(strings.TrimSpace(sm.Cadence))
		if strings.TrimSpace(sm.Name) == "" {
			return res, invalid(field+".name", "is required")
		}
		if !metricCadences[cadence] {
			return res, invalid(field+".cadence", "unknown cadence %q", sm.Cadence)
		}
		m := domain.Metric{ID: seedID("metric", key), Name: strings.TrimSpace(sm.Name), Cadence: cadence, Unit: sm.Unit, ComparisonValue: sm.ComparisonValue, CreatedAt: now}
		if err := e.Repo.InsertMetric(ctx, tx, m); err != nil {
			return res, fmt.Errorf("metric %s: %w", key, err)
		}
		res.Metrics++
		for _, pk := range sm.Processes {
			pid, ok := processIDs[pk]
			if !ok {
				return res, invalid(field+".processes", "unknown process %q", pk)
			}
			if err := e.Repo.LinkMetric(ctx, tx, m.ID, pid); err != nil {
				return res, fmt.Errorf("link metric %s: %w", key, err)
			}
			res.Links++
		}
		for j, se := range sm.Entries {
			date, err := e.dateOrToday(fmt.Sprintf("%s.entries[%d].date", field, j), se.Date)
			if err != nil {
				return res, err
			}
			en := domain.Entry{ID: seedID("entry", fmt.Sprintf("%s|%d", key, j)), MetricID: m.ID, Value: se.Value, Date: date, Note: se.Note, CreatedAt: now}
			if err := e.Repo.InsertEntry(ctx, tx, en); err != nil {
				return res, fmt.Errorf("entry %s/%d: %w", key, j, err)
			}
			res.Entries++
		}
	}

	if err := e.Events.Append(ctx, tx, events.ImportCompleted, "import", "", actorID, events.EventPayload{
		"categories": res.Categories, "processes": res.Processes, "metrics": res.Metrics,
	}); err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	e.logger().Info("seed imported", "processes", res.Processes, "metrics", res.Metrics, "actor_id", actorID)
	return res, nil
}

func (e Engine) seedProcess(ctx context.Context, tx *sql.Tx, sp SeedProcess, key string, categoryIDs map[string]string, now string) (domain.Process, error) {
	if strings.TrimSpace(sp.Name) == "" {
		return domain.Process{}, invalid("name", "is required")
	}
	status := firstNonEmpty(sp.Status, domain.ProcessDraft)
	if !processStatuses[status] {
		return domain.Process{}, invalid("status", "unknown status %q", sp.Status)
	}
	catID, ok := categoryIDs[sp.Category]
	if !ok {
		c, err := e.Repo.GetCategoryByName(ctx, sp.Category)
		if err != nil {
			return domain.Process{}, invalid("category", "unknown category %q", sp.Category)
		}
		catID = c.ID
	}
	updated := now
	if sp.UpdatedAt != "" {
		ts, err := parseSeedTime(sp.UpdatedAt)
		if err != nil {
			return domain.Process{}, invalid("updated_at", "must be a date or RFC3339 timestamp")
		}
		updated = ts
	}
	p := domain.Process{
		ID:              seedID("process", key),
		Name:            strings.TrimSpace(sp.Name),
		CategoryID:      catID,
		Status:          status,
		IsKey:           sp.IsKey,
		Owner:           strings.TrimSpace(sp.Owner),
		OwnerEmail:      strings.TrimSpace(sp.OwnerEmail),
		AsanaProjectGID: optionalString(sp.AsanaProjectGID),
		CreatedAt:       now,
		UpdatedAt:       updated,
	}
	docs := []struct {
		name string
		in   any
		dst  *json.RawMessage
	}{
		{"charter", sp.Charter, &p.Charter},
		{"adli_approach", sp.ADLIApproach, &p.ADLIApproach},
		{"adli_deployment", sp.ADLIDeployment, &p.ADLIDeployment},
		{"adli_learning", sp.ADLILearning, &p.ADLILearning},
		{"adli_integration", sp.ADLIIntegration, &p.ADLIIntegration},
		{"workflow", sp.Workflow, &p.Workflow},
	}
	for _, d := range docs {
		if d.in == nil {
			continue
		}
		b, err := json.Marshal(d.in)
		if err != nil {
			return domain.Process{}, invalid(d.name, "cannot be stored as JSON: %v", err)
		}
		*d.dst = b
	}
	return p, nil
}

func seedADLI(processID, key string, idx int, sc SeedADLIScore, now string) (domain.ADLIScore, error) {
	for field, v := range map[string]int{"approach": sc.Approach, "deployment": sc.Deployment, "learning": sc.Learning, "integration": sc.Integration} {
		if v < 0 || v > 100 {
			return domain.ADLIScore{}, invalid(field, "must be within 0..100")
		}
	}
	overall := (sc.Approach + sc.Deployment + sc.Learning + sc.Integration + 2) / 4
	if sc.Overall != nil {
		if *sc.Overall < 0 || *sc.Overall > 100 {
			return domain.ADLIScore{}, invalid("overall", "must be within 0..100")
		}
		overall = *sc.Overall
	}
	assessed := now
	if sc.AssessedAt != "" {
		ts, err := parseSeedTime(sc.AssessedAt)
		if err != nil {
			return domain.ADLIScore{}, invalid("assessed_at", "must be a date or RFC3339 timestamp")
		}
		assessed = ts
	}
	return domain.ADLIScore{
		ID:          seedID("adli", fmt.Sprintf("%s|%d", key, idx)),
		ProcessID:   processID,
		Approach:    sc.Approach,
		Deployment:  sc.Deployment,
		Learning:    sc.Learning,
		Integration: sc.Integration,
		Overall:     overall,
		AssessedAt:  assessed,
	}, nil
}

var (
	taskOrigins  = map[string]bool{domain.TaskOriginAsana: true, domain.TaskOriginManual: true, domain.TaskOriginAI: true}
	taskStatuses = map[string]bool{domain.TaskStatusPending: true, domain.TaskStatusActive: true, domain.TaskStatusComplete: true, domain.TaskStatusExported: true}
)

func seedTask(processID, key string, idx int, st SeedTask, now string) (domain.Task, error) {
	if strings.TrimSpace(st.Title) == "" {
		return domain.Task{}, invalid("title", "is required")
	}
	origin := firstNonEmpty(st.Origin, domain.TaskOriginManual)
	if !taskOrigins[origin] {
		return domain.Task{}, invalid("origin", "unknown origin %q", st.Origin)
	}
	status := firstNonEmpty(st.Status, domain.TaskStatusActive)
	if !taskStatuses[status] {
		return domain.Task{}, invalid("status", "unknown status %q", st.Status)
	}
	for field, v := range map[string]string{"due_date": st.DueDate, "start_date": st.StartDate} {
		if v == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", v); err != nil {
			return domain.Task{}, invalid(field, "must be YYYY-MM-DD")
		}
	}
	return domain.Task{
		ID:             seedID("task", fmt.Sprintf("%s|%d", key, idx)),
		ProcessID:      processID,
		Title:          strings.TrimSpace(st.Title),
		Origin:         origin,
		Status:         status,
		PDCASection:    st.PDCASection,
		Completed:      st.Completed || status == domain.TaskStatusComplete,
		DueDate:        optionalString(st.DueDate),
		StartDate:      optionalString(st.StartDate),
		Assignee:       optionalString(st.Assignee),
		Priority:       st.Priority,
		RecurrenceRule: optionalString(st.RecurrenceRule),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func parseSeedTime(s string) (string, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC().Format(time.RFC3339), nil
	}
	ts, err := time.Parse("2006-01-02", s)
	if err != nil {
		return "", err
	}
	return ts.UTC().Format(time.RFC3339), nil
}

func prefixValidation(prefix string, err error) error {
	if v, ok := err.(ValidationError); ok {
		v.Field = prefix + "." + v.Field
		return v
	}
	return err
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
