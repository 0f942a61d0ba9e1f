package hubsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHub struct {
	mu        sync.Mutex
	snapshots []Snapshot
	posts     atomic.Int32
	triggers  []string
	failPost  bool
	today     string
	summary   Summary
	// summaryDelays holds the response delay of each summary request in
	// arrival order.
	summaryDelays []time.Duration
	summaryCalls  atomic.Int32
}

func (f *fakeHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/readiness":
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(f.snapshots)
	case r.Method == http.MethodGet && r.URL.Path == "/api/readiness/summary":
		if n := int(f.summaryCalls.Add(1)) - 1; n < len(f.summaryDelays) {
			time.Sleep(f.summaryDelays[n])
		}
		f.mu.Lock()
		sum := f.summary
		f.mu.Unlock()
		sum.Owner = r.URL.Query().Get("owner")
		json.NewEncoder(w).Encode(sum)
	case r.Method == http.MethodPost && r.URL.Path == "/api/readiness":
		f.posts.Add(1)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.triggers = append(f.triggers, r.Header.Get("X-Snapshot-Trigger"))
		if f.failPost {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"code":"internal_error","message":"internal error"}}`))
			return
		}
		var in SnapshotInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s := Snapshot{
			ID:              "snap-" + f.today,
			SnapshotDate:    f.today,
			OrgScore:        in.OrgScore,
			CategoryScores:  in.CategoryScores,
			DimensionScores: in.DimensionScores,
			ProcessCount:    in.ProcessCount,
			ReadyCount:      in.ReadyCount,
		}
		replaced := false
		for i := range f.snapshots {
			if f.snapshots[i].SnapshotDate == s.SnapshotDate {
				f.snapshots[i] = s
				replaced = true
			}
		}
		if !replaced {
			f.snapshots = append(f.snapshots, s)
		}
		json.NewEncoder(w).Encode(s)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newFakeHub(t *testing.T, today string, existing ...Snapshot) (*fakeHub, *ReadinessView) {
	t.Helper()
	hub := &fakeHub{
		snapshots: existing,
		today:     today,
		summary: Summary{
			OrgScore:          72,
			CategoryScores:    []CategoryScore{{CategoryID: "leadership", Score: 80}, {CategoryID: "operations", Score: 0, Empty: true}},
			DimensionAverages: []DimensionAverage{{Dimension: "operations", Percent: 40}, {Dimension: "documentation", Percent: 90}},
			ProcessCount:      5,
			ReadyCount:        2,
		},
	}
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	day, err := time.Parse("2006-01-02", today)
	require.NoError(t, err)
	view := NewReadinessView(New(srv.URL + "/api"))
	view.Now = func() time.Time { return day.Add(15 * time.Hour) }
	return hub, view
}

func TestLoadSavesMissingSnapshotOnce(t *testing.T) {
	hub, view := newFakeHub(t, "2026-03-15",
		Snapshot{ID: "a", SnapshotDate: "2026-03-13", OrgScore: 60},
		Snapshot{ID: "b", SnapshotDate: "2026-03-14", OrgScore: 65},
	)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, view.Load(ctx))
		}()
	}
	wg.Wait()
	require.NoError(t, view.Load(ctx))

	assert.Equal(t, int32(1), hub.posts.Load())
	assert.Equal(t, []string{"auto"}, hub.triggers)
	snaps := view.Snapshots()
	require.Len(t, snaps, 3)
	assert.Equal(t, "2026-03-15", snaps[2].SnapshotDate)
	assert.Equal(t, 72.0, snaps[2].OrgScore)
	assert.Equal(t, map[string]float64{"leadership": 80, "operations": 0}, snaps[2].CategoryScores)
	assert.Equal(t, map[string]float64{"operations": 40, "documentation": 90}, snaps[2].DimensionScores)
	assert.Equal(t, 5, snaps[2].ProcessCount)
	assert.Equal(t, 2, snaps[2].ReadyCount)
}

func TestOverlappingLoadsKeepAutoSavedSnapshot(t *testing.T) {
	hub, view := newFakeHub(t, "2026-03-15", Snapshot{ID: "a", SnapshotDate: "2026-03-14", OrgScore: 60})
	// The second Load lists the history before the first one saves and
	// applies it only after the save was merged.
	hub.summaryDelays = []time.Duration{80 * time.Millisecond, 300 * time.Millisecond}
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, view.Load(ctx))
	}()
	time.Sleep(20 * time.Millisecond)
	go func() {
		defer wg.Done()
		assert.NoError(t, view.Load(ctx))
	}()
	wg.Wait()

	assert.Equal(t, int32(1), hub.posts.Load())
	snaps := view.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "2026-03-14", snaps[0].SnapshotDate)
	assert.Equal(t, "2026-03-15", snaps[1].SnapshotDate)
	assert.Equal(t, "snap-2026-03-15", snaps[1].ID)
}

func TestLaterLoadPrefersServerCopyOfSavedDay(t *testing.T) {
	hub, view := newFakeHub(t, "2026-03-15")
	ctx := context.Background()
	require.NoError(t, view.Load(ctx))
	require.Len(t, view.Snapshots(), 1)

	hub.mu.Lock()
	hub.snapshots[0].OrgScore = 91
	hub.mu.Unlock()

	require.NoError(t, view.Load(ctx))
	snaps := view.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, 91.0, snaps[0].OrgScore)
}

func TestLoadSkipsWhenTodayExists(t *testing.T) {
	hub, view := newFakeHub(t, "2026-03-15", Snapshot{ID: "a", SnapshotDate: "2026-03-15", OrgScore: 60})
	require.NoError(t, view.Load(context.Background()))
	assert.Equal(t, int32(0), hub.posts.Load())
	assert.Len(t, view.Snapshots(), 1)
}

func TestLoadSwallowsAutoSnapshotFailure(t *testing.T) {
	hub, view := newFakeHub(t, "2026-03-15", Snapshot{ID: "a", SnapshotDate: "2026-03-14", OrgScore: 60})
	hub.failPost = true
	var logs bytes.Buffer
	view.Logger = slog.New(slog.NewTextHandler(&logs, nil))

	require.NoError(t, view.Load(context.Background()))
	assert.Equal(t, int32(1), hub.posts.Load())
	snaps := view.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, "2026-03-14", snaps[0].SnapshotDate)
	assert.Contains(t, logs.String(), "auto snapshot failed")
}

func TestRefreshReplacesTodayAndReportsFailure(t *testing.T) {
	hub, view := newFakeHub(t, "2026-03-15", Snapshot{ID: "a", SnapshotDate: "2026-03-14", OrgScore: 60})
	ctx := context.Background()
	require.NoError(t, view.Load(ctx))
	require.Len(t, view.Snapshots(), 2)

	hub.mu.Lock()
	hub.summary.OrgScore = 74
	hub.mu.Unlock()
	saved, err := view.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 74.0, saved.OrgScore)
	snaps := view.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, 74.0, snaps[1].OrgScore)
	assert.Equal(t, []string{"auto", "manual"}, hub.triggers)

	hub.mu.Lock()
	hub.failPost = true
	hub.mu.Unlock()
	_, err = view.Refresh(ctx)
	require.Error(t, err)
	assert.True(t, IsSaveError(err))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "internal_error", apiErr.Code)
	assert.Equal(t, 74.0, view.Snapshots()[1].OrgScore)
}

func TestOwnerFilterKeepsUnfilteredSnapshot(t *testing.T) {
	_, view := newFakeHub(t, "2026-03-15")
	view.Owner = "Dana Reyes"
	require.NoError(t, view.Load(context.Background()))
	f, ok := view.Filtered()
	require.True(t, ok)
	assert.Equal(t, "Dana Reyes", f.Owner)
	assert.Equal(t, "", view.Summary().Owner)
}

func TestMergeKeepsDateOrder(t *testing.T) {
	v := &ReadinessView{}
	v.merge(Snapshot{SnapshotDate: "2026-03-15", OrgScore: 1})
	v.merge(Snapshot{SnapshotDate: "2026-03-13", OrgScore: 2})
	v.merge(Snapshot{SnapshotDate: "2026-03-15", OrgScore: 3})
	snaps := v.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "2026-03-13", snaps[0].SnapshotDate)
	assert.Equal(t, 3.0, snaps[1].OrgScore)
}
