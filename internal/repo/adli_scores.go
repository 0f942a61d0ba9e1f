package repo

import (
	"context"
	"database/sql"

	"github.com/malone1029/nia-results-tracker-sub003/internal/domain"
)

const adliColumns = `id,process_id,approach_score,deployment_score,learning_score,integration_score,overall_score,assessed_at`

func scanADLI(row rowScanner) (domain.ADLIScore, error) {
	var s domain.ADLIScore
	err := row.Scan(&s.ID, &s.ProcessID, &s.Approach, &s.Deployment, &s.Learning, &s.Integration, &s.Overall, &s.AssessedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

// InsertADLIScore appends an assessment. Scores are never updated in place.
func (r Repo) InsertADLIScore(ctx context.Context, tx *sql.Tx, s domain.ADLIScore) error {
	_, err := r.conn(tx).ExecContext(ctx, r.q(`INSERT INTO adli_scores(`+adliColumns+`) VALUES (?,?,?,?,?,?,?,?)`),
		s.ID, s.ProcessID, s.Approach, s.Deployment, s.Learning, s.Integration, s.Overall, s.AssessedAt)
	return err
}

// ListADLIScores returns the assessment history of a process, newest first.
func (r Repo) ListADLIScores(ctx context.Context, processID string) ([]domain.ADLIScore, error) {
	rows, err := r.DB.QueryContext(ctx, r.q(`SELECT `+adliColumns+` FROM adli_scores WHERE process_id=? ORDER BY assessed_at DESC, id DESC`), processID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ADLIScore
	for rows.Next() {
		s, err := scanADLI(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// LatestADLIScores maps process id to its most recent assessment.
func (r Repo) LatestADLIScores(ctx context.Context) (map[string]domain.ADLIScore, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+adliColumns+` FROM adli_scores ORDER BY process_id, assessed_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]domain.ADLIScore{}
	for rows.Next() {
		s, err := scanADLI(rows)
		if err != nil {
			return nil, err
		}
		res[s.ProcessID] = s
	}
	return res, rows.Err()
}
