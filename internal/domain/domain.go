package domain

import (
	"bytes"
	"encoding/json"
)

// Process lifecycle states.
const (
	ProcessDraft          = "draft"
	ProcessReadyForReview = "ready_for_review"
	ProcessApproved       = "approved"
)

// Task origins and statuses.
const (
	TaskOriginAsana    = "asana"
	TaskOriginManual   = "hub_manual"
	TaskOriginAI       = "hub_ai"
	TaskStatusPending  = "pending"
	TaskStatusActive   = "active"
	TaskStatusComplete = "completed"
	TaskStatusExported = "exported"
)

type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	SortOrder   int    `json:"sort_order"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// Process is a documented organizational process. Narrative fields are
// opaque JSON documents; only their presence matters to scoring.
type Process struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	CategoryID      string          `json:"category_id"`
	CategoryName    string          `json:"category_name,omitempty"`
	Status          string          `json:"status"`
	IsKey           bool            `json:"is_key"`
	Owner           string          `json:"owner,omitempty"`
	OwnerEmail      string          `json:"owner_email,omitempty"`
	Charter         json.RawMessage `json:"charter,omitempty"`
	ADLIApproach    json.RawMessage `json:"adli_approach,omitempty"`
	ADLIDeployment  json.RawMessage `json:"adli_deployment,omitempty"`
	ADLILearning    json.RawMessage `json:"adli_learning,omitempty"`
	ADLIIntegration json.RawMessage `json:"adli_integration,omitempty"`
	Workflow        json.RawMessage `json:"workflow,omitempty"`
	AsanaProjectGID *string         `json:"asana_project_gid,omitempty"`
	CreatedAt       string          `json:"created_at" format:"date-time"`
	UpdatedAt       string          `json:"updated_at" format:"date-time"`
}

// ADLIScore is one immutable assessment. Scores are 0-100.
type ADLIScore struct {
	ID          string `json:"id"`
	ProcessID   string `json:"process_id"`
	Approach    int    `json:"approach_score"`
	Deployment  int    `json:"deployment_score"`
	Learning    int    `json:"learning_score"`
	Integration int    `json:"integration_score"`
	Overall     int    `json:"overall_score"`
	AssessedAt  string `json:"assessed_at" format:"date-time"`
}

type Metric struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Cadence         string   `json:"cadence" enum:"monthly,quarterly,semi-annual,annual"`
	Unit            string   `json:"unit,omitempty"`
	ComparisonValue *float64 `json:"comparison_value,omitempty"`
	CreatedAt       string   `json:"created_at" format:"date-time"`
}

type Entry struct {
	ID        string  `json:"id"`
	MetricID  string  `json:"metric_id"`
	Value     float64 `json:"value"`
	Date      string  `json:"date" format:"date"`
	Note      string  `json:"note,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

// MetricSummary is a metric as seen from one process: its latest entry and
// how many entries exist.
type MetricSummary struct {
	Metric
	ProcessID     string  `json:"process_id"`
	LastEntryDate *string `json:"last_entry_date,omitempty"`
	EntryCount    int     `json:"entry_count"`
}

type Task struct {
	ID             string  `json:"id"`
	ProcessID      string  `json:"process_id"`
	Title          string  `json:"title"`
	Origin         string  `json:"origin" enum:"asana,hub_manual,hub_ai"`
	Status         string  `json:"status" enum:"pending,active,completed,exported"`
	PDCASection    string  `json:"pdca_section,omitempty"`
	Completed      bool    `json:"completed"`
	DueDate        *string `json:"due_date,omitempty"`
	StartDate      *string `json:"start_date,omitempty"`
	Assignee       *string `json:"assignee,omitempty"`
	Priority       string  `json:"priority,omitempty"`
	RecurrenceRule *string `json:"recurrence_rule,omitempty"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	UpdatedAt      string  `json:"updated_at" format:"date-time"`
}

// Improvement is an improvement-journal entry for a process.
type Improvement struct {
	ID            string `json:"id"`
	ProcessID     string `json:"process_id"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	CommittedDate string `json:"committed_date" format:"date"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

// Snapshot is the persisted readiness capture for one calendar day.
type Snapshot struct {
	ID              string             `json:"id"`
	SnapshotDate    string             `json:"snapshot_date" format:"date"`
	OrgScore        float64            `json:"org_score"`
	CategoryScores  map[string]float64 `json:"category_scores"`
	DimensionScores map[string]float64 `json:"dimension_scores"`
	ProcessCount    int                `json:"process_count"`
	ReadyCount      int                `json:"ready_count"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Present reports whether an opaque document carries content. Null, blank
// strings, empty objects and empty arrays are all absent, whatever their
// whitespace.
func Present(doc json.RawMessage) bool {
	trimmed := bytes.TrimSpace(doc)
	if len(trimmed) == 0 {
		return false
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err == nil {
		trimmed = compact.Bytes()
	}
	switch string(trimmed) {
	case "null", "{}", "[]", `""`:
		return false
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return len(bytes.TrimSpace([]byte(s))) > 0
		}
	}
	return true
}
