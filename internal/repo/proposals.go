package repo

import (
	"context"
	"database/sql"
	"strings"

	"worktrade/internal/domain"
)

const proposalCols = `id,project_id,developer_id,COALESCE(cover_letter,''),proposed_rate,estimated_hours,status,created_at`

func scanProposal(scan func(dest ...any) error) (domain.Proposal, error) {
	var p domain.Proposal
	var estimated sql.NullFloat64
	err := scan(&p.ID, &p.ProjectID, &p.DeveloperID, &p.CoverLetter, &p.ProposedRate, &estimated, &p.Status, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if estimated.Valid {
		p.EstimatedHours = &estimated.Float64
	}
	return p, nil
}

func (r Repo) InsertProposal(ctx context.Context, tx *sql.Tx, p domain.Proposal) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO proposals(id,project_id,developer_id,cover_letter,proposed_rate,estimated_hours,status,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, p.ProjectID, p.DeveloperID, nullable(p.CoverLetter), p.ProposedRate, nullableFloatPtr(p.EstimatedHours), p.Status, p.CreatedAt)
	return err
}

func (r Repo) GetProposal(ctx context.Context, id string) (domain.Proposal, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+proposalCols+` FROM proposals WHERE id=?`, id)
	return scanProposal(row.Scan)
}

func (r Repo) GetProposalTx(ctx context.Context, tx *sql.Tx, id string) (domain.Proposal, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+proposalCols+` FROM proposals WHERE id=?`, id)
	return scanProposal(row.Scan)
}

// AcceptedProposal returns the accepted proposal for a project, if any.
func (r Repo) AcceptedProposal(ctx context.Context, projectID string) (domain.Proposal, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+proposalCols+` FROM proposals WHERE project_id=? AND status='accepted' LIMIT 1`, projectID)
	return scanProposal(row.Scan)
}

// HasLiveProposal reports whether the developer already holds a pending
// or accepted proposal on the project.
func (r Repo) HasLiveProposal(ctx context.Context, projectID, developerID string) (bool, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT 1 FROM proposals WHERE project_id=? AND developer_id=? AND status IN ('pending','accepted') LIMIT 1`,
		projectID, developerID)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

type ProposalFilters struct {
	ProjectID       string
	DeveloperID     string
	BuyerID         string
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListProposals(ctx context.Context, f ProposalFilters) ([]domain.Proposal, error) {
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
	query := `SELECT ` + proposalCols + ` FROM proposals ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Proposal
	for rows.Next() {
		p, err := scanProposal(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// UpdateProposalStatusTx moves a proposal between statuses with a
// compare-and-set on the expected current status.
func (r Repo) UpdateProposalStatusTx(ctx context.Context, tx *sql.Tx, id, from, to string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE proposals SET status=? WHERE id=? AND status=?`, to, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RejectOtherPendingProposalsTx rejects every pending proposal on the
// project except the given one. Returns the IDs that were rejected.
func (r Repo) RejectOtherPendingProposalsTx(ctx context.Context, tx *sql.Tx, projectID, keepID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM proposals WHERE project_id=? AND status='pending' AND id<>?`, projectID, keepID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := tx.ExecContext(ctx, `UPDATE proposals SET status='rejected' WHERE project_id=? AND status='pending' AND id<>?`, projectID, keepID); err != nil {
		return nil, err
	}
	return ids, nil
}
