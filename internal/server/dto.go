package server

import (
	"encoding/json"

	"github.com/malone1029/nia-results-tracker-sub003/internal/domain"
	"github.com/malone1029/nia-results-tracker-sub003/internal/engine"
	"github.com/malone1029/nia-results-tracker-sub003/internal/health"
	"github.com/malone1029/nia-results-tracker-sub003/internal/readiness"
)

// Request payloads

type SaveSnapshotRequest struct {
	OrgScore        float64            `json:"org_score" minimum:"0" maximum:"100"`
	CategoryScores  map[string]float64 `json:"category_scores"`
	DimensionScores map[string]float64 `json:"dimension_scores"`
	ProcessCount    int                `json:"process_count" minimum:"0"`
	ReadyCount      int                `json:"ready_count" minimum:"0"`
}

type CreateCategoryRequest struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	SortOrder   int    `json:"sort_order,omitempty"`
}

// Narrative documents are opaque JSON; the raw body carries them to the engine.
type CreateProcessRequest struct {
	ID              string `json:"id,omitempty"`
	Name            string `json:"name"`
	CategoryID      string `json:"category_id"`
	Status          string `json:"status,omitempty" enum:"draft,ready_for_review,approved"`
	IsKey           bool   `json:"is_key,omitempty"`
	Owner           string `json:"owner,omitempty"`
	OwnerEmail      string `json:"owner_email,omitempty"`
	Charter         any    `json:"charter,omitempty"`
	ADLIApproach    any    `json:"adli_approach,omitempty"`
	ADLIDeployment  any    `json:"adli_deployment,omitempty"`
	ADLILearning    any    `json:"adli_learning,omitempty"`
	ADLIIntegration any    `json:"adli_integration,omitempty"`
	Workflow        any    `json:"workflow,omitempty"`
	AsanaProjectGID string `json:"asana_project_gid,omitempty"`
}

type UpdateProcessRequest struct {
	Name            *string `json:"name,omitempty"`
	CategoryID      *string `json:"category_id,omitempty"`
	Status          *string `json:"status,omitempty" enum:"draft,ready_for_review,approved"`
	IsKey           *bool   `json:"is_key,omitempty"`
	Owner           *string `json:"owner,omitempty"`
	OwnerEmail      *string `json:"owner_email,omitempty"`
	Charter         any     `json:"charter,omitempty"`
	ADLIApproach    any     `json:"adli_approach,omitempty"`
	ADLIDeployment  any     `json:"adli_deployment,omitempty"`
	ADLILearning    any     `json:"adli_learning,omitempty"`
	ADLIIntegration any     `json:"adli_integration,omitempty"`
	Workflow        any     `json:"workflow,omitempty"`
	AsanaProjectGID *string `json:"asana_project_gid,omitempty"`
}

type RecordADLIScoreRequest struct {
	Approach    int    `json:"approach_score" minimum:"0" maximum:"100"`
	Deployment  int    `json:"deployment_score" minimum:"0" maximum:"100"`
	Learning    int    `json:"learning_score" minimum:"0" maximum:"100"`
	Integration int    `json:"integration_score" minimum:"0" maximum:"100"`
	Overall     *int   `json:"overall_score,omitempty" minimum:"0" maximum:"100"`
	AssessedAt  string `json:"assessed_at,omitempty" format:"date-time"`
}

type CreateMetricRequest struct {
	ID              string   `json:"id,omitempty"`
	Name            string   `json:"name"`
	Cadence         string   `json:"cadence" enum:"monthly,quarterly,semi-annual,annual"`
	Unit            string   `json:"unit,omitempty"`
	ComparisonValue *float64 `json:"comparison_value,omitempty"`
}

type RecordEntryRequest struct {
	Value float64 `json:"value"`
	Date  string  `json:"date,omitempty" format:"date"`
	Note  string  `json:"note,omitempty"`
}

type LogImprovementRequest struct {
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	CommittedDate string `json:"committed_date,omitempty" format:"date"`
}

// Response payloads

type ProcessHealthResponse struct {
	ProcessID   string        `json:"process_id"`
	ProcessName string        `json:"process_name"`
	CategoryID  string        `json:"category_id"`
	Owner       string        `json:"owner,omitempty"`
	IsKey       bool          `json:"is_key"`
	Health      health.Result `json:"health"`
}

type SummaryResponse struct {
	readiness.Summary
	Levels []health.Level `json:"levels"`
}

type LinkMetricResponse struct {
	MetricID  string `json:"metric_id"`
	ProcessID string `json:"process_id"`
}

type EventResponse struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts" format:"date-time"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload"`
}

func processHealthResponse(ph engine.ProcessHealth) ProcessHealthResponse {
	return ProcessHealthResponse{
		ProcessID:   ph.Process.ID,
		ProcessName: ph.Process.Name,
		CategoryID:  ph.Process.CategoryID,
		Owner:       ph.Process.Owner,
		IsKey:       ph.Process.IsKey,
		Health:      ph.Health,
	}
}

func eventResponse(evt domain.Event) EventResponse {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	return EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		Payload:    payload,
	}
}

func snapshotInput(req SaveSnapshotRequest) engine.SnapshotInput {
	cats := req.CategoryScores
	if cats == nil {
		cats = map[string]float64{}
	}
	dims := req.DimensionScores
	if dims == nil {
		dims = map[string]float64{}
	}
	return engine.SnapshotInput{
		OrgScore:        req.OrgScore,
		CategoryScores:  cats,
		DimensionScores: dims,
		ProcessCount:    req.ProcessCount,
		ReadyCount:      req.ReadyCount,
	}
}
