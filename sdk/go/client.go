package hubsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal hub readiness API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base
// path, e.g. http://127.0.0.1:8080/api.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Snapshot is one persisted readiness capture.
type Snapshot struct {
	ID              string             `json:"id"`
	SnapshotDate    string             `json:"snapshot_date"`
	OrgScore        float64            `json:"org_score"`
	CategoryScores  map[string]float64 `json:"category_scores"`
	DimensionScores map[string]float64 `json:"dimension_scores"`
	ProcessCount    int                `json:"process_count"`
	ReadyCount      int                `json:"ready_count"`
}

// SnapshotInput is the body of a snapshot save.
type SnapshotInput struct {
	OrgScore        float64            `json:"org_score"`
	CategoryScores  map[string]float64 `json:"category_scores"`
	DimensionScores map[string]float64 `json:"dimension_scores"`
	ProcessCount    int                `json:"process_count"`
	ReadyCount      int                `json:"ready_count"`
}

type CategoryScore struct {
	CategoryID   string `json:"category_id"`
	Name         string `json:"name"`
	DisplayName  string `json:"display_name,omitempty"`
	Score        int    `json:"score"`
	ProcessCount int    `json:"process_count"`
	Empty        bool   `json:"empty"`
}

type DimensionAverage struct {
	Dimension string  `json:"dimension"`
	Average   float64 `json:"average"`
	Max       int     `json:"max"`
	Percent   int     `json:"percent"`
}

type Level struct {
	Label string `json:"label"`
	Color string `json:"color"`
	Min   int    `json:"min"`
}

// Summary is the aggregate readiness view of the current rows.
type Summary struct {
	OrgScore           int                `json:"org_score"`
	CategoryScores     []CategoryScore    `json:"category_scores"`
	DimensionAverages  []DimensionAverage `json:"dimension_averages"`
	ProcessCount       int                `json:"process_count"`
	ScoredCount        int                `json:"scored_count"`
	ReadyCount         int                `json:"ready_count"`
	Owner              string             `json:"owner,omitempty"`
	ADLIRollup         int                `json:"adli_rollup"`
	UnfilteredOrgScore int                `json:"unfiltered_org_score"`
	OrgScoreDelta      int                `json:"org_score_delta"`
	Levels             []Level            `json:"levels"`
}

// SnapshotInput converts the summary into the payload the page saves.
func (s Summary) SnapshotInput() SnapshotInput {
	in := SnapshotInput{
		OrgScore:        float64(s.OrgScore),
		CategoryScores:  make(map[string]float64, len(s.CategoryScores)),
		DimensionScores: make(map[string]float64, len(s.DimensionAverages)),
		ProcessCount:    s.ProcessCount,
		ReadyCount:      s.ReadyCount,
	}
	for _, c := range s.CategoryScores {
		in.CategoryScores[c.CategoryID] = float64(c.Score)
	}
	for _, d := range s.DimensionAverages {
		in.DimensionScores[d.Dimension] = float64(d.Percent)
	}
	return in
}

type DimensionScore struct {
	Score int `json:"score"`
	Max   int `json:"max"`
}

type NextAction struct {
	Dimension string `json:"dimension"`
	Label     string `json:"label"`
	Points    int    `json:"points"`
	Href      string `json:"href"`
}

type HealthResult struct {
	ProcessID   string                    `json:"process_id"`
	Total       int                       `json:"total"`
	Dimensions  map[string]DimensionScore `json:"dimensions"`
	Level       Level                     `json:"level"`
	NextActions []NextAction              `json:"next_actions"`
}

type ProcessHealth struct {
	ProcessID   string       `json:"process_id"`
	ProcessName string       `json:"process_name"`
	CategoryID  string       `json:"category_id"`
	Owner       string       `json:"owner,omitempty"`
	IsKey       bool         `json:"is_key"`
	Health      HealthResult `json:"health"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ListSnapshots returns every snapshot, oldest first.
func (c *Client) ListSnapshots(ctx context.Context) ([]Snapshot, error) {
	var resp []Snapshot
	err := c.do(ctx, http.MethodGet, "readiness", nil, nil, &resp)
	return resp, err
}

// SaveSnapshot upserts today's snapshot. trigger is "auto" or "manual".
func (c *Client) SaveSnapshot(ctx context.Context, in SnapshotInput, trigger string) (Snapshot, error) {
	if in.CategoryScores == nil {
		in.CategoryScores = map[string]float64{}
	}
	if in.DimensionScores == nil {
		in.DimensionScores = map[string]float64{}
	}
	headers := map[string]string{}
	if trigger != "" {
		headers["X-Snapshot-Trigger"] = trigger
	}
	var resp Snapshot
	err := c.do(ctx, http.MethodPost, "readiness", in, headers, &resp)
	return resp, err
}

// RefreshSnapshot asks the server to compute and save today's snapshot.
func (c *Client) RefreshSnapshot(ctx context.Context) (Snapshot, error) {
	var resp Snapshot
	err := c.do(ctx, http.MethodPost, "readiness/refresh", nil, nil, &resp)
	return resp, err
}

// Summary returns the aggregate for all processes, or for owner's processes
// when owner is set.
func (c *Client) Summary(ctx context.Context, owner string) (Summary, error) {
	endpoint := "readiness/summary"
	if owner != "" {
		endpoint += "?owner=" + url.QueryEscape(owner)
	}
	var resp Summary
	err := c.do(ctx, http.MethodGet, endpoint, nil, nil, &resp)
	return resp, err
}

// ProcessHealth returns the health result of one process.
func (c *Client) ProcessHealth(ctx context.Context, processID string) (ProcessHealth, error) {
	var resp ProcessHealth
	err := c.do(ctx, http.MethodGet, "processes/"+url.PathEscape(processID)+"/health", nil, nil, &resp)
	return resp, err
}

// ListProcessHealth returns health results for every process.
func (c *Client) ListProcessHealth(ctx context.Context, owner string) ([]ProcessHealth, error) {
	endpoint := "processes/health"
	if owner != "" {
		endpoint += "?owner=" + url.QueryEscape(owner)
	}
	var resp []ProcessHealth
	err := c.do(ctx, http.MethodGet, endpoint, nil, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, headers map[string]string, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
