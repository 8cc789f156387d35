package repo

import (
	"context"
	"database/sql"
	"strings"

	"worktrade/internal/domain"
)

const paymentCols = `id,task_id,buyer_id,developer_id,amount,currency,created_at`

func scanPayment(scan func(dest ...any) error) (domain.Payment, error) {
	var p domain.Payment
	err := scan(&p.ID, &p.TaskID, &p.BuyerID, &p.DeveloperID, &p.Amount, &p.Currency, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) InsertPaymentTx(ctx context.Context, tx *sql.Tx, p domain.Payment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO payments(id,task_id,buyer_id,developer_id,amount,currency,created_at) VALUES (?,?,?,?,?,?,?)`,
		p.ID, p.TaskID, p.BuyerID, p.DeveloperID, p.Amount, p.Currency, p.CreatedAt)
	return err
}

func (r Repo) GetPayment(ctx context.Context, id string) (domain.Payment, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+paymentCols+` FROM payments WHERE id=?`, id)
	return scanPayment(row.Scan)
}

func (r Repo) GetPaymentByTask(ctx context.Context, taskID string) (domain.Payment, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+paymentCols+` FROM payments WHERE task_id=?`, taskID)
	return scanPayment(row.Scan)
}

type PaymentFilters struct {
	BuyerID         string
	DeveloperID     string
	TaskID          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListPayments(ctx context.Context, f PaymentFilters) ([]domain.Payment, error) {
	var clauses []string
	var args []any
	if f.BuyerID != "" {
		clauses = append(clauses, "buyer_id=?")
		args = append(args, f.BuyerID)
	}
	if f.DeveloperID != "" {
		clauses = append(clauses, "developer_id=?")
		args = append(args, f.DeveloperID)
	}
	if f.TaskID != "" {
		clauses = append(clauses, "task_id=?")
		args = append(args, f.TaskID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + paymentCols + ` FROM payments ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
