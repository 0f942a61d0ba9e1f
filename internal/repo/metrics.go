package repo

import (
	"context"
	"database/sql"

	"github.com/malone1029/nia-results-tracker-sub003/internal/domain"
)

func (r Repo) InsertMetric(ctx context.Context, tx *sql.Tx, m domain.Metric) error {
	_, err := r.conn(tx).ExecContext(ctx, r.q(`INSERT INTO metrics(id,name,cadence,unit,comparison_value,created_at) VALUES (?,?,?,?,?,?)`),
		m.ID, m.Name, m.Cadence, nullable(m.Unit), nullableFloatPtr(m.ComparisonValue), m.CreatedAt)
	return err
}

func (r Repo) GetMetric(ctx context.Context, id string) (domain.Metric, error) {
	var m domain.Metric
	var cmp sql.NullFloat64
	err := r.DB.QueryRowContext(ctx, r.q(`SELECT id,name,cadence,COALESCE(unit,''),comparison_value,created_at FROM metrics WHERE id=?`), id).
		Scan(&m.ID, &m.Name, &m.Cadence, &m.Unit, &cmp, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if cmp.Valid {
		v := cmp.Float64
		m.ComparisonValue = &v
	}
	return m, err
}

// LinkMetric attaches a metric to a process. Linking twice is a no-op.
func (r Repo) LinkMetric(ctx context.Context, tx *sql.Tx, metricID, processID string) error {
	_, err := r.conn(tx).ExecContext(ctx, r.q(`INSERT INTO metric_processes(metric_id,process_id) VALUES (?,?) ON CONFLICT(metric_id,process_id) DO NOTHING`),
		metricID, processID)
	return err
}

func (r Repo) InsertEntry(ctx context.Context, tx *sql.Tx, e domain.Entry) error {
	_, err := r.conn(tx).ExecContext(ctx, r.q(`INSERT INTO entries(id,metric_id,value,date,note,created_at) VALUES (?,?,?,?,?,?)`),
		e.ID, e.MetricID, e.Value, e.Date, nullable(e.Note), e.CreatedAt)
	return err
}

func (r Repo) ListEntries(ctx context.Context, metricID string) ([]domain.Entry, error) {
	rows, err := r.DB.QueryContext(ctx, r.q(`SELECT id,metric_id,value,date,COALESCE(note,''),created_at FROM entries WHERE metric_id=? ORDER BY date DESC, id DESC`), metricID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Entry
	for rows.Next() {
		var e domain.Entry
		if err := rows.Scan(&e.ID, &e.MetricID, &e.Value, &e.Date, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// ListMetricSummaries returns one row per (metric, linked process) pair with
// the latest entry date and entry count. An empty processID lists all links.
func (r Repo) ListMetricSummaries(ctx context.Context, processID string) ([]domain.MetricSummary, error) {
	query := `SELECT m.id,m.name,m.cadence,COALESCE(m.unit,''),m.comparison_value,m.created_at,mp.process_id,
(SELECT MAX(e.date) FROM entries e WHERE e.metric_id=m.id),
(SELECT COUNT(*) FROM entries e WHERE e.metric_id=m.id)
FROM metric_processes mp JOIN metrics m ON m.id=mp.metric_id`
	var args []any
	if processID != "" {
		query += ` WHERE mp.process_id=?`
		args = append(args, processID)
	}
	query += ` ORDER BY mp.process_id, m.name`
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.MetricSummary
	for rows.Next() {
		var s domain.MetricSummary
		var cmp sql.NullFloat64
		var last sql.NullString
		if err := rows.Scan(&s.ID, &s.Name, &s.Cadence, &s.Unit, &cmp, &s.CreatedAt, &s.ProcessID, &last, &s.EntryCount); err != nil {
			return nil, err
		}
		if cmp.Valid {
			v := cmp.Float64
			s.ComparisonValue = &v
		}
		s.LastEntryDate = ptrFrom(last)
		res = append(res, s)
	}
	return res, rows.Err()
}
