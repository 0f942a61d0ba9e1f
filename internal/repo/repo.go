package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/malone1029/nia-results-tracker-sub003/internal/db"
	"github.com/malone1029/nia-results-tracker-sub003/internal/domain"
)

// Repo is the SQL access layer. Dialect selects placeholder style.
type Repo struct {
	DB      *sql.DB
	Dialect string
}

var ErrNotFound = errors.New("not found")

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) conn(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

func (r Repo) q(query string) string {
	return db.Rebind(r.Dialect, query)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableDoc(doc json.RawMessage) any {
	if len(doc) == 0 || string(doc) == "null" {
		return nil
	}
	return string(doc)
}

func docFrom(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	if !json.Valid([]byte(ns.String)) {
		// plain text stored by older writers is kept as a JSON string
		b, _ := json.Marshal(ns.String)
		return b
	}
	return json.RawMessage(ns.String)
}

func ptrFrom(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// Categories

func (r Repo) InsertCategory(ctx context.Context, tx *sql.Tx, c domain.Category) error {
	_, err := r.conn(tx).ExecContext(ctx, r.q(`INSERT INTO categories(id,name,display_name,sort_order,created_at) VALUES (?,?,?,?,?)`),
		c.ID, c.Name, nullable(c.DisplayName), c.SortOrder, c.CreatedAt)
	return err
}

func (r Repo) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	var c domain.Category
	err := r.DB.QueryRowContext(ctx, r.q(`SELECT id,name,COALESCE(display_name,''),sort_order,created_at FROM categories WHERE id=?`), id).
		Scan(&c.ID, &c.Name, &c.DisplayName, &c.SortOrder, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) GetCategoryByName(ctx context.Context, name string) (domain.Category, error) {
	var c domain.Category
	err := r.DB.QueryRowContext(ctx, r.q(`SELECT id,name,COALESCE(display_name,''),sort_order,created_at FROM categories WHERE name=?`), name).
		Scan(&c.ID, &c.Name, &c.DisplayName, &c.SortOrder, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(display_name,''),sort_order,created_at FROM categories ORDER BY sort_order, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.DisplayName, &c.SortOrder, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// Processes

const processColumns = `p.id,p.name,p.category_id,COALESCE(c.name,''),p.status,p.is_key,COALESCE(p.owner,''),COALESCE(p.owner_email,''),
p.charter,p.adli_approach,p.adli_deployment,p.adli_learning,p.adli_integration,p.workflow,p.asana_project_gid,p.created_at,p.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProcess(row rowScanner) (domain.Process, error) {
	var p domain.Process
	var charter, approach, deployment, learning, integration, workflow, asana sql.NullString
	err := row.Scan(&p.ID, &p.Name, &p.CategoryID, &p.CategoryName, &p.Status, &p.IsKey, &p.Owner, &p.OwnerEmail,
		&charter, &approach, &deployment, &learning, &integration, &workflow, &asana, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Charter = docFrom(charter)
	p.ADLIApproach = docFrom(approach)
	p.ADLIDeployment = docFrom(deployment)
	p.ADLILearning = docFrom(learning)
	p.ADLIIntegration = docFrom(integration)
	p.Workflow = docFrom(workflow)
	p.AsanaProjectGID = ptrFrom(asana)
	return p, nil
}

func (r Repo) InsertProcess(ctx context.Context, tx *sql.Tx, p domain.Process) error {
	_, err := r.conn(tx).ExecContext(ctx, r.q(`INSERT INTO processes(id,name,category_id,status,is_key,owner,owner_email,charter,adli_approach,adli_deployment,adli_learning,adli_integration,workflow,asana_project_gid,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`),
		p.ID, p.Name, p.CategoryID, p.Status, p.IsKey, nullable(p.Owner), nullable(p.OwnerEmail),
		nullableDoc(p.Charter), nullableDoc(p.ADLIApproach), nullableDoc(p.ADLIDeployment), nullableDoc(p.ADLILearning),
		nullableDoc(p.ADLIIntegration), nullableDoc(p.Workflow), nullableStringPtr(p.AsanaProjectGID), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) UpdateProcess(ctx context.Context, tx *sql.Tx, p domain.Process) error {
	res, err := r.conn(tx).ExecContext(ctx, r.q(`UPDATE processes SET name=?, category_id=?, status=?, is_key=?, owner=?, owner_email=?, charter=?, adli_approach=?, adli_deployment=?, adli_learning=?, adli_integration=?, workflow=?, asana_project_gid=?, updated_at=? WHERE id=?`),
		p.Name, p.CategoryID, p.Status, p.IsKey, nullable(p.Owner), nullable(p.OwnerEmail),
		nullableDoc(p.Charter), nullableDoc(p.ADLIApproach), nullableDoc(p.ADLIDeployment), nullableDoc(p.ADLILearning),
		nullableDoc(p.ADLIIntegration), nullableDoc(p.Workflow), nullableStringPtr(p.AsanaProjectGID), p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetProcess(ctx context.Context, id string) (domain.Process, error) {
	return scanProcess(r.DB.QueryRowContext(ctx, r.q(`SELECT `+processColumns+` FROM processes p LEFT JOIN categories c ON c.id=p.category_id WHERE p.id=?`), id))
}

func (r Repo) GetProcessTx(ctx context.Context, tx *sql.Tx, id string) (domain.Process, error) {
	return scanProcess(tx.QueryRowContext(ctx, r.q(`SELECT `+processColumns+` FROM processes p LEFT JOIN categories c ON c.id=p.category_id WHERE p.id=?`), id))
}

type ProcessFilters struct {
	CategoryID string
	Owner      string
}

func (r Repo) ListProcesses(ctx context.Context, f ProcessFilters) ([]domain.Process, error) {
	var (
		clauses []string
		args    []any
	)
	if f.CategoryID != "" {
		clauses = append(clauses, "p.category_id=?")
		args = append(args, f.CategoryID)
	}
	if f.Owner != "" {
		clauses = append(clauses, "(LOWER(p.owner)=LOWER(?) OR LOWER(p.owner_email)=LOWER(?))")
		args = append(args, f.Owner, f.Owner)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := fmt.Sprintf(`SELECT %s FROM processes p LEFT JOIN categories c ON c.id=p.category_id %s ORDER BY c.sort_order, p.name`, processColumns, where)
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Process
	for rows.Next() {
		p, err := scanProcess(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
