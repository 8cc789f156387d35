package repo

import (
	"context"
	"database/sql"
	"strings"

	"worktrade/internal/domain"
)

const taskCols = `id,project_id,developer_id,title,COALESCE(description,''),hourly_rate,status,time_spent_hours,solution_handle,created_at,updated_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var timeSpent sql.NullFloat64
	var handle sql.NullString
	err := scan(&t.ID, &t.ProjectID, &t.DeveloperID, &t.Title, &t.Description, &t.HourlyRate, &t.Status, &timeSpent, &handle, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if timeSpent.Valid {
		t.TimeSpentHours = &timeSpent.Float64
	}
	if handle.Valid {
		t.SolutionHandle = &handle.String
	}
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,project_id,developer_id,title,description,hourly_rate,status,time_spent_hours,solution_handle,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.DeveloperID, t.Title, nullable(t.Description), t.HourlyRate, t.Status,
		nullableFloatPtr(t.TimeSpentHours), nullableStringPtr(t.SolutionHandle), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

type TaskFilters struct {
	ProjectID       string
	DeveloperID     string
	BuyerID         string
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.DeveloperID != "" {
		clauses = append(clauses, "developer_id=?")
		args = append(args, f.DeveloperID)
	}
	if f.BuyerID != "" {
		clauses = append(clauses, "project_id IN (SELECT id FROM projects WHERE buyer_id=?)")
		args = append(args, f.BuyerID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskCols + ` FROM tasks ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// UpdateTaskStatusTx moves a task between statuses with a
// compare-and-set on the expected current status.
func (r Repo) UpdateTaskStatusTx(ctx context.Context, tx *sql.Tx, id, from, to, updatedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET status=?, updated_at=? WHERE id=? AND status=?`, to, updatedAt, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SubmitTaskTx records the solution handle and hours and moves the task
// to submitted, guarded on the in_progress status.
func (r Repo) SubmitTaskTx(ctx context.Context, tx *sql.Tx, id, handle string, timeSpent float64, updatedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET status='submitted', solution_handle=?, time_spent_hours=?, updated_at=? WHERE id=? AND status='in_progress'`,
		handle, timeSpent, updatedAt, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r Repo) CountTasksByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}
