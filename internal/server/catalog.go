package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/malone1029/nia-results-tracker-sub003/internal/domain"
	"github.com/malone1029/nia-results-tracker-sub003/internal/engine"
	"github.com/malone1029/nia-results-tracker-sub003/internal/repo"
)

var writeErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
}

func registerCategories(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-categories",
		Method:      http.MethodGet,
		Path:        "/categories",
		Summary:     "List Baldrige categories",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Category `json:"body"`
	}, error) {
		items, err := e.ListCategories(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Category `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-category",
		Method:        http.MethodPost,
		Path:          "/categories",
		Summary:       "Create category",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateCategoryRequest `json:"body"`
	}) (*struct {
		Body domain.Category `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateCategory(ctx, engine.CategoryCreateOptions{
			ID:          input.Body.ID,
			Name:        input.Body.Name,
			DisplayName: input.Body.DisplayName,
			SortOrder:   input.Body.SortOrder,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Category `json:"body"`
		}{Body: c}, nil
	})
}

func registerProcesses(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-processes",
		Method:      http.MethodGet,
		Path:        "/processes",
		Summary:     "List processes",
	}, func(ctx context.Context, input *struct {
		Owner      string `query:"owner"`
		CategoryID string `query:"category_id"`
	}) (*struct {
		Body []domain.Process `json:"body"`
	}, error) {
		items, err := e.ListProcesses(ctx, repo.ProcessFilters{Owner: input.Owner, CategoryID: input.CategoryID})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Process `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-process",
		Method:        http.MethodPost,
		Path:          "/processes",
		Summary:       "Create process",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateProcessRequest `json:"body"`
	}) (*struct {
		Body domain.Process `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		bodyMap := rawBodyMap(ctx)
		opts := engine.ProcessCreateOptions{
			ID:              input.Body.ID,
			Name:            input.Body.Name,
			CategoryID:      input.Body.CategoryID,
			Status:          input.Body.Status,
			IsKey:           input.Body.IsKey,
			Owner:           input.Body.Owner,
			OwnerEmail:      input.Body.OwnerEmail,
			Charter:         createDoc(bodyMap, "charter"),
			ADLIApproach:    createDoc(bodyMap, "adli_approach"),
			ADLIDeployment:  createDoc(bodyMap, "adli_deployment"),
			ADLILearning:    createDoc(bodyMap, "adli_learning"),
			ADLIIntegration: createDoc(bodyMap, "adli_integration"),
			Workflow:        createDoc(bodyMap, "workflow"),
			AsanaProjectGID: input.Body.AsanaProjectGID,
			ActorID:         actorID,
		}
		p, err := e.CreateProcess(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Process `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-process",
		Method:      http.MethodGet,
		Path:        "/processes/{id}",
		Summary:     "Get process",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Process `json:"body"`
	}, error) {
		p, err := e.GetProcess(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Process `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-process",
		Method:      http.MethodPatch,
		Path:        "/processes/{id}",
		Summary:     "Update process fields",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body UpdateProcessRequest `json:"body"`
	}) (*struct {
		Body domain.Process `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		bodyMap := rawBodyMap(ctx)
		p, err := e.UpdateProcess(ctx, engine.ProcessUpdateOptions{
			ID:              input.ID,
			Name:            input.Body.Name,
			CategoryID:      input.Body.CategoryID,
			Status:          input.Body.Status,
			IsKey:           input.Body.IsKey,
			Owner:           input.Body.Owner,
			OwnerEmail:      input.Body.OwnerEmail,
			Charter:         narrativeDoc(bodyMap, "charter"),
			ADLIApproach:    narrativeDoc(bodyMap, "adli_approach"),
			ADLIDeployment:  narrativeDoc(bodyMap, "adli_deployment"),
			ADLILearning:    narrativeDoc(bodyMap, "adli_learning"),
			ADLIIntegration: narrativeDoc(bodyMap, "adli_integration"),
			Workflow:        narrativeDoc(bodyMap, "workflow"),
			AsanaProjectGID: input.Body.AsanaProjectGID,
			ActorID:         actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Process `json:"body"`
		}{Body: p}, nil
	})
}

// createDoc is narrativeDoc without the clear marker: a null on create means
// the document is absent.
func createDoc(body map[string]json.RawMessage, field string) json.RawMessage {
	doc := narrativeDoc(body, field)
	if isNullRaw(doc) {
		return nil
	}
	return doc
}

func registerADLIScores(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-adli-score",
		Method:        http.MethodPost,
		Path:          "/processes/{id}/adli-scores",
		Summary:       "Record an ADLI assessment",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                 `path:"id"`
		Body RecordADLIScoreRequest `json:"body"`
	}) (*struct {
		Body domain.ADLIScore `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.RecordADLIScore(ctx, engine.ADLIScoreOptions{
			ProcessID:   input.ID,
			Approach:    input.Body.Approach,
			Deployment:  input.Body.Deployment,
			Learning:    input.Body.Learning,
			Integration: input.Body.Integration,
			Overall:     input.Body.Overall,
			AssessedAt:  input.Body.AssessedAt,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ADLIScore `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-adli-scores",
		Method:      http.MethodGet,
		Path:        "/processes/{id}/adli-scores",
		Summary:     "List ADLI assessments, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.ADLIScore `json:"body"`
	}, error) {
		items, err := e.ListADLIScores(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ADLIScore `json:"body"`
		}{Body: items}, nil
	})
}

func registerMetrics(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-metric",
		Method:        http.MethodPost,
		Path:          "/metrics",
		Summary:       "Create metric",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateMetricRequest `json:"body"`
	}) (*struct {
		Body domain.Metric `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.CreateMetric(ctx, engine.MetricCreateOptions{
			ID:              input.Body.ID,
			Name:            input.Body.Name,
			Cadence:         input.Body.Cadence,
			Unit:            input.Body.Unit,
			ComparisonValue: input.Body.ComparisonValue,
			ActorID:         actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Metric `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "link-metric",
		Method:        http.MethodPost,
		Path:          "/metrics/{id}/processes/{process_id}",
		Summary:       "Link a metric to a process",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		ID        string `path:"id"`
		ProcessID string `path:"process_id"`
	}) (*struct {
		Body LinkMetricResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.LinkMetric(ctx, input.ID, input.ProcessID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LinkMetricResponse `json:"body"`
		}{Body: LinkMetricResponse{MetricID: input.ID, ProcessID: input.ProcessID}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "record-entry",
		Method:        http.MethodPost,
		Path:          "/metrics/{id}/entries",
		Summary:       "Record a metric entry",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body RecordEntryRequest `json:"body"`
	}) (*struct {
		Body domain.Entry `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		entry, err := e.RecordEntry(ctx, engine.EntryOptions{
			MetricID: input.ID,
			Value:    input.Body.Value,
			Date:     input.Body.Date,
			Note:     input.Body.Note,
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Entry `json:"body"`
		}{Body: entry}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-entries",
		Method:      http.MethodGet,
		Path:        "/metrics/{id}/entries",
		Summary:     "List metric entries, newest first",
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.Entry `json:"body"`
	}, error) {
		items, err := e.ListEntries(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Entry `json:"body"`
		}{Body: items}, nil
	})
}

func registerImprovements(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "log-improvement",
		Method:        http.MethodPost,
		Path:          "/processes/{id}/improvements",
		Summary:       "Log an improvement journal entry",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body LogImprovementRequest `json:"body"`
	}) (*struct {
		Body domain.Improvement `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		imp, err := e.LogImprovement(ctx, engine.ImprovementOptions{
			ProcessID:     input.ID,
			Title:         input.Body.Title,
			Description:   input.Body.Description,
			CommittedDate: input.Body.CommittedDate,
			ActorID:       actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Improvement `json:"body"`
		}{Body: imp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-improvements",
		Method:      http.MethodGet,
		Path:        "/processes/{id}/improvements",
		Summary:     "List the improvement journal of a process",
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.Improvement `json:"body"`
	}, error) {
		items, err := e.ListImprovements(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Improvement `json:"body"`
		}{Body: items}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent audit events",
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		items, err := e.LatestEvents(ctx, normalizeLimit(input.Limit), input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]EventResponse, 0, len(items))
		for _, evt := range items {
			out = append(out, eventResponse(evt))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: out}, nil
	})
}
