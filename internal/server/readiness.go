package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/malone1029/nia-results-tracker-sub003/internal/domain"
	"github.com/malone1029/nia-results-tracker-sub003/internal/engine"
	"github.com/malone1029/nia-results-tracker-sub003/internal/health"
	"github.com/malone1029/nia-results-tracker-sub003/internal/repo"
)

// TriggerHeader tells the server whether a snapshot POST came from the page's
// automatic first-visit save or an explicit refresh.
const TriggerHeader = "X-Snapshot-Trigger"

func registerReadiness(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-snapshots",
		Method:      http.MethodGet,
		Path:        "/readiness",
		Summary:     "List readiness snapshots, oldest first",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Snapshot `json:"body"`
	}, error) {
		items, err := e.ListSnapshots(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Snapshot `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-snapshot",
		Method:      http.MethodGet,
		Path:        "/readiness/{date}",
		Summary:     "Get the snapshot of one calendar day",
	}, func(ctx context.Context, input *struct {
		Date string `path:"date" format:"date"`
	}) (*struct {
		Body domain.Snapshot `json:"body"`
	}, error) {
		snap, err := e.SnapshotByDate(ctx, input.Date)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Snapshot `json:"body"`
		}{Body: snap}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-snapshot",
		Method:      http.MethodPost,
		Path:        "/readiness",
		Summary:     "Upsert today's readiness snapshot",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Trigger string              `header:"X-Snapshot-Trigger" enum:"auto,manual" required:"false"`
		Body    SaveSnapshotRequest `json:"body"`
	}) (*struct {
		Body domain.Snapshot `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		trigger := input.Trigger
		if trigger == "" {
			trigger = engine.TriggerManual
		}
		saved, err := e.SaveSnapshot(ctx, snapshotInput(input.Body), actorID, trigger)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Snapshot `json:"body"`
		}{Body: saved}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "refresh-snapshot",
		Method:      http.MethodPost,
		Path:        "/readiness/refresh",
		Summary:     "Compute the aggregate server-side and upsert today's snapshot",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Snapshot `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		saved, err := e.RefreshSnapshot(ctx, actorID, engine.TriggerRefresh)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Snapshot `json:"body"`
		}{Body: saved}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "readiness-summary",
		Method:      http.MethodGet,
		Path:        "/readiness/summary",
		Summary:     "Aggregate readiness for the current rows",
	}, func(ctx context.Context, input *struct {
		Owner string `query:"owner"`
	}) (*struct {
		Body SummaryResponse `json:"body"`
	}, error) {
		sum, err := e.Summary(ctx, input.Owner)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SummaryResponse `json:"body"`
		}{Body: SummaryResponse{Summary: sum, Levels: health.Levels}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-process-health",
		Method:      http.MethodGet,
		Path:        "/processes/health",
		Summary:     "Health results for every process",
	}, func(ctx context.Context, input *struct {
		Owner      string `query:"owner"`
		CategoryID string `query:"category_id"`
	}) (*struct {
		Body []ProcessHealthResponse `json:"body"`
	}, error) {
		items, err := e.HealthResults(ctx, repo.ProcessFilters{Owner: input.Owner, CategoryID: input.CategoryID})
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]ProcessHealthResponse, 0, len(items))
		for _, ph := range items {
			out = append(out, processHealthResponse(ph))
		}
		return &struct {
			Body []ProcessHealthResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-process-health",
		Method:      http.MethodGet,
		Path:        "/processes/{id}/health",
		Summary:     "Health result for one process",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ProcessHealthResponse `json:"body"`
	}, error) {
		ph, err := e.ProcessHealth(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProcessHealthResponse `json:"body"`
		}{Body: processHealthResponse(ph)}, nil
	})
}
