package repo

import (
	"context"
	"database/sql"

	"github.com/malone1029/nia-results-tracker-sub003/internal/domain"
)

const taskColumns = `id,process_id,title,origin,status,COALESCE(pdca_section,''),completed,due_date,start_date,assignee,COALESCE(priority,''),recurrence_rule,created_at,updated_at`

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := r.conn(tx).ExecContext(ctx, r.q(`INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`),
		t.ID, t.ProcessID, t.Title, t.Origin, t.Status, nullable(t.PDCASection), t.Completed, nullableStringPtr(t.DueDate),
		nullableStringPtr(t.StartDate), nullableStringPtr(t.Assignee), nullable(t.Priority), nullableStringPtr(t.RecurrenceRule),
		t.CreatedAt, t.UpdatedAt)
	return err
}

// ListTasks returns tasks for one process, or all tasks when processID is empty.
func (r Repo) ListTasks(ctx context.Context, processID string) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if processID != "" {
		query += ` WHERE process_id=?`
		args = append(args, processID)
	}
	query += ` ORDER BY process_id, created_at, id`
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		var t domain.Task
		var due, start, assignee, recurrence sql.NullString
		if err := rows.Scan(&t.ID, &t.ProcessID, &t.Title, &t.Origin, &t.Status, &t.PDCASection, &t.Completed,
			&due, &start, &assignee, &t.Priority, &recurrence, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.DueDate = ptrFrom(due)
		t.StartDate = ptrFrom(start)
		t.Assignee = ptrFrom(assignee)
		t.RecurrenceRule = ptrFrom(recurrence)
		res = append(res, t)
	}
	return res, rows.Err()
}
