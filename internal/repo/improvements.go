package repo

import (
	"context"
	"database/sql"

	"github.com/malone1029/nia-results-tracker-sub003/internal/domain"
)

func (r Repo) InsertImprovement(ctx context.Context, tx *sql.Tx, imp domain.Improvement) error {
	_, err := r.conn(tx).ExecContext(ctx, r.q(`INSERT INTO improvements(id,process_id,title,description,committed_date,created_at) VALUES (?,?,?,?,?,?)`),
		imp.ID, imp.ProcessID, imp.Title, nullable(imp.Description), imp.CommittedDate, imp.CreatedAt)
	return err
}

func (r Repo) ListImprovements(ctx context.Context, processID string) ([]domain.Improvement, error) {
	rows, err := r.DB.QueryContext(ctx, r.q(`SELECT id,process_id,title,COALESCE(description,''),committed_date,created_at FROM improvements WHERE process_id=? ORDER BY committed_date DESC, id DESC`), processID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Improvement
	for rows.Next() {
		var imp domain.Improvement
		if err := rows.Scan(&imp.ID, &imp.ProcessID, &imp.Title, &imp.Description, &imp.CommittedDate, &imp.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, imp)
	}
	return res, rows.Err()
}

// LatestImprovementDates maps process id to its newest committed_date.
func (r Repo) LatestImprovementDates(ctx context.Context) (map[string]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT process_id, MAX(committed_date) FROM improvements GROUP BY process_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]string{}
	for rows.Next() {
		var id string
		var date sql.NullString
		if err := rows.Scan(&id, &date); err != nil {
			return nil, err
		}
		if date.Valid {
			res[id] = date.String
		}
	}
	return res, rows.Err()
}
