package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/malone1029/nia-results-tracker-sub003/internal/domain"
)

const snapshotColumns = `id,snapshot_date,org_score,category_scores,dimension_scores,process_count,ready_count`

func scanSnapshot(row rowScanner) (domain.Snapshot, error) {
	var s domain.Snapshot
	var cats, dims string
	err := row.Scan(&s.ID, &s.SnapshotDate, &s.OrgScore, &cats, &dims, &s.ProcessCount, &s.ReadyCount)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.CategoryScores = map[string]float64{}
	s.DimensionScores = map[string]float64{}
	if cats != "" {
		if err := json.Unmarshal([]byte(cats), &s.CategoryScores); err != nil {
			return s, fmt.Errorf("snapshot %s category_scores: %w", s.SnapshotDate, err)
		}
	}
	if dims != "" {
		if err := json.Unmarshal([]byte(dims), &s.DimensionScores); err != nil {
			return s, fmt.Errorf("snapshot %s dimension_scores: %w", s.SnapshotDate, err)
		}
	}
	return s, nil
}

// ListSnapshots returns the full trend history, oldest first.
func (r Repo) ListSnapshots(ctx context.Context) ([]domain.Snapshot, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+snapshotColumns+` FROM readiness_snapshots ORDER BY snapshot_date ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Snapshot{}
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) GetSnapshotByDate(ctx context.Context, date string) (domain.Snapshot, error) {
	return scanSnapshot(r.DB.QueryRowContext(ctx, r.q(`SELECT `+snapshotColumns+` FROM readiness_snapshots WHERE snapshot_date=?`), date))
}

// UpsertSnapshot writes the snapshot for s.SnapshotDate, replacing the values
// of an existing row for that date while keeping its id. The stored row is
// returned.
func (r Repo) UpsertSnapshot(ctx context.Context, tx *sql.Tx, s domain.Snapshot, now string) (domain.Snapshot, error) {
	if s.CategoryScores == nil {
		s.CategoryScores = map[string]float64{}
	}
	if s.DimensionScores == nil {
		s.DimensionScores = map[string]float64{}
	}
	cats, err := json.Marshal(s.CategoryScores)
	if err != nil {
		return domain.Snapshot{}, err
	}
	dims, err := json.Marshal(s.DimensionScores)
	if err != nil {
		return domain.Snapshot{}, err
	}
	c := r.conn(tx)
	_, err = c.ExecContext(ctx, r.q(`INSERT INTO readiness_snapshots(`+snapshotColumns+`,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)
ON CONFLICT(snapshot_date) DO UPDATE SET org_score=excluded.org_score, category_scores=excluded.category_scores,
dimension_scores=excluded.dimension_scores, process_count=excluded.process_count, ready_count=excluded.ready_count,
updated_at=excluded.updated_at`),
		s.ID, s.SnapshotDate, s.OrgScore, string(cats), string(dims), s.ProcessCount, s.ReadyCount, now, now)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return scanSnapshot(c.QueryRowContext(ctx, r.q(`SELECT `+snapshotColumns+` FROM readiness_snapshots WHERE snapshot_date=?`), s.SnapshotDate))
}
