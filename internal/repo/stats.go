package repo

import (
	"context"

	"worktrade/internal/domain"
)

// DashboardStats computes the platform-wide aggregates shown on the
// admin dashboard.
func (r Repo) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	var s domain.DashboardStats
	var err error
	if s.TotalBuyers, err = r.CountActorsByRole(ctx, domain.RoleBuyer); err != nil {
		return s, err
	}
	if s.TotalDevelopers, err = r.CountActorsByRole(ctx, domain.RoleDeveloper); err != nil {
		return s, err
	}
	row := r.DB.QueryRowContext(ctx, `SELECT count(*), count(*) FILTER (WHERE status='open') FROM projects`)
	if err := row.Scan(&s.TotalProjects, &s.OpenProjects); err != nil {
		return s, err
	}
	if s.TasksByStatus, err = r.CountTasksByStatus(ctx); err != nil {
		return s, err
	}
	for _, n := range s.TasksByStatus {
		s.TotalTasks += n
	}
	s.PendingTasks = s.TasksByStatus[domain.TaskSubmitted]
	row = r.DB.QueryRowContext(ctx, `SELECT count(*), COALESCE(sum(amount),0) FROM payments`)
	if err := row.Scan(&s.TotalPayments, &s.TotalRevenue); err != nil {
		return s, err
	}
	row = r.DB.QueryRowContext(ctx, `SELECT COALESCE(sum(time_spent_hours),0) FROM tasks WHERE status='paid'`)
	if err := row.Scan(&s.TotalHoursPaid); err != nil {
		return s, err
	}
	return s, nil
}
