package hubsdk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SaveError reports that an explicit snapshot save did not persist. The
// view's in-memory state is left as it was before the call.
type SaveError struct {
	Err error
}

func (e *SaveError) Error() string { return "snapshot not saved: " + e.Err.Error() }
func (e *SaveError) Unwrap() error { return e.Err }

// ReadinessView is the client-side state of the readiness page: the trend
// history plus the current aggregate. Load saves today's snapshot at most
// once per view when the history does not contain it yet.
type ReadinessView struct {
	Client *Client
	// Owner narrows Filtered; snapshots always use the unfiltered aggregate.
	Owner    string
	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger

	autoSnapshot atomic.Bool

	mu        sync.Mutex
	snapshots []Snapshot
	summary   Summary
	filtered  *Summary
	// gen counts saves made by this view; saved keeps the newest save per
	// date so a Load whose fetch began before a save does not drop it.
	gen   uint64
	saved map[string]savedSnapshot
}

type savedSnapshot struct {
	gen  uint64
	snap Snapshot
}

// NewReadinessView builds a view over c with the UTC calendar.
func NewReadinessView(c *Client) *ReadinessView {
	return &ReadinessView{Client: c}
}

func (v *ReadinessView) logger() *slog.Logger {
	if v.Logger != nil {
		return v.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (v *ReadinessView) today() string {
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	loc := v.Location
	if loc == nil {
		loc = time.UTC
	}
	return now().In(loc).Format("2006-01-02")
}

// Load fetches the history and aggregates, then runs the auto-snapshot.
// Only fetch failures are returned; the auto-snapshot never fails Load.
func (v *ReadinessView) Load(ctx context.Context) error {
	v.mu.Lock()
	start := v.gen
	v.mu.Unlock()

	snaps, err := v.Client.ListSnapshots(ctx)
	if err != nil {
		return err
	}
	sum, err := v.Client.Summary(ctx, "")
	if err != nil {
		return err
	}
	var filtered *Summary
	if v.Owner != "" {
		f, err := v.Client.Summary(ctx, v.Owner)
		if err != nil {
			return err
		}
		filtered = &f
	}
	v.mu.Lock()
	v.snapshots = snaps
	for _, s := range v.saved {
		if s.gen > start {
			v.replaceOrAppend(s.snap)
		}
	}
	sortSnapshots(v.snapshots)
	v.summary = sum
	v.filtered = filtered
	v.mu.Unlock()

	v.autoSave(ctx)
	return nil
}

// autoSave posts today's snapshot if the loaded history lacks it. The guard is
// set before the request starts so a second Load on the same view never
// fires it again.
func (v *ReadinessView) autoSave(ctx context.Context) {
	if !v.autoSnapshot.CompareAndSwap(false, true) {
		return
	}
	today := v.today()
	v.mu.Lock()
	has := false
	for _, s := range v.snapshots {
		if s.SnapshotDate == today {
			has = true
			break
		}
	}
	in := v.summary.SnapshotInput()
	v.mu.Unlock()
	if has {
		return
	}
	saved, err := v.Client.SaveSnapshot(ctx, in, "auto")
	if err != nil {
		v.logger().Warn("auto snapshot failed", "snapshot_date", today, "error", err)
		return
	}
	v.merge(saved)
}

// Refresh saves a snapshot of the current aggregate on demand. On failure it
// returns a *SaveError and leaves the history untouched.
func (v *ReadinessView) Refresh(ctx context.Context) (Snapshot, error) {
	sum, err := v.Client.Summary(ctx, "")
	if err != nil {
		return Snapshot{}, &SaveError{Err: err}
	}
	saved, err := v.Client.SaveSnapshot(ctx, sum.SnapshotInput(), "manual")
	if err != nil {
		return Snapshot{}, &SaveError{Err: err}
	}
	v.mu.Lock()
	v.summary = sum
	v.mu.Unlock()
	v.merge(saved)
	return saved, nil
}

// merge records s as saved by this view and replaces the snapshot with the
// same date or appends it, keeping the history ordered by date.
func (v *ReadinessView) merge(s Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.gen++
	if v.saved == nil {
		v.saved = make(map[string]savedSnapshot)
	}
	v.saved[s.SnapshotDate] = savedSnapshot{gen: v.gen, snap: s}
	v.replaceOrAppend(s)
	sortSnapshots(v.snapshots)
}

func (v *ReadinessView) replaceOrAppend(s Snapshot) {
	for i := range v.snapshots {
		if v.snapshots[i].SnapshotDate == s.SnapshotDate {
			v.snapshots[i] = s
			return
		}
	}
	v.snapshots = append(v.snapshots, s)
}

// Snapshots returns a copy of the trend history.
func (v *ReadinessView) Snapshots() []Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Snapshot, len(v.snapshots))
	copy(out, v.snapshots)
	return out
}

// Summary returns the organization-wide aggregate.
func (v *ReadinessView) Summary() Summary {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.summary
}

// Filtered returns the owner-filtered aggregate, or false when no owner is set.
func (v *ReadinessView) Filtered() (Summary, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.filtered == nil {
		return Summary{}, false
	}
	return *v.filtered, true
}

// IsSaveError reports whether err came from a failed explicit save.
func IsSaveError(err error) bool {
	var se *SaveError
	return errors.As(err, &se)
}

func sortSnapshots(s []Snapshot) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].SnapshotDate < s[j].SnapshotDate })
}
