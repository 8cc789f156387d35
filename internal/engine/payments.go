package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"worktrade/internal/domain"
	"worktrade/internal/engine/fault"
	"worktrade/internal/events"
	"worktrade/internal/identity"
	"worktrade/internal/repo"
)

// PayTask records payment for a submitted task and marks it paid. Only
// the owning buyer may pay. The amount is the task's hourly rate times
// the submitted hours; callers never choose it. A unique index on
// payments.task_id backstops the status check so a task can be paid at
// most once even under concurrent requests.
func (e Engine) PayTask(ctx context.Context, caller identity.Principal, taskID string) (domain.Payment, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Payment{}, err
	}
	p, err := e.Repo.GetProject(ctx, t.ProjectID)
	if err != nil {
		return domain.Payment{}, err
	}
	if p.BuyerID != caller.ActorID {
		return domain.Payment{}, fault.Forbidden("project %s is owned by another buyer", p.ID)
	}
	if t.Status != domain.TaskSubmitted {
		return domain.Payment{}, fault.InvalidState("task", "%s must be submitted to pay, not %s", t.ID, t.Status)
	}
	if t.TimeSpentHours == nil {
		return domain.Payment{}, fault.InvalidState("task", "%s has no recorded hours", t.ID)
	}
	currency := "USD"
	if e.Config != nil && e.Config.Platform.Currency != "" {
		currency = e.Config.Platform.Currency
	}
	now := e.now().UTC().Format(time.RFC3339)
	pay := domain.Payment{
		ID:          uuid.New().String(),
		TaskID:      t.ID,
		BuyerID:     p.BuyerID,
		DeveloperID: t.DeveloperID,
		Amount:      t.HourlyRate * *t.TimeSpentHours,
		Currency:    currency,
		CreatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Payment{}, err
	}
	defer tx.Rollback()

	ok, err := e.Repo.UpdateTaskStatusTx(ctx, tx, t.ID, domain.TaskSubmitted, domain.TaskPaid, now)
	if err != nil {
		return domain.Payment{}, err
	}
	if !ok {
		return domain.Payment{}, fault.InvalidState("task", "%s is no longer submitted", t.ID)
	}
	if err := e.Repo.InsertPaymentTx(ctx, tx, pay); err != nil {
		if repo.IsUniqueViolation(err) {
			return domain.Payment{}, fault.InvalidState("task", "%s is already paid", t.ID)
		}
		return domain.Payment{}, err
	}
	if err := e.Events.Append(ctx, tx, "payment.recorded", p.ID, "payment", pay.ID, caller.ActorID, events.EventPayload{
		"task_id":  t.ID,
		"amount":   pay.Amount,
		"currency": pay.Currency,
	}); err != nil {
		return domain.Payment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Payment{}, err
	}
	return pay, nil
}

// DownloadSolution releases a task's solution archive to the buyer who
// paid for it. The gate is strict: only the project owner may download,
// and only after payment is recorded.
func (e Engine) DownloadSolution(ctx context.Context, caller identity.Principal, taskID string) ([]byte, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	p, err := e.Repo.GetProject(ctx, t.ProjectID)
	if err != nil {
		return nil, err
	}
	if p.BuyerID != caller.ActorID {
		return nil, fault.Forbidden("solution for task %s belongs to another buyer", t.ID)
	}
	if _, err := e.Repo.GetPaymentByTask(ctx, t.ID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fault.PaymentRequiredError{TaskID: t.ID}
		}
		return nil, err
	}
	if t.SolutionHandle == nil {
		return nil, repo.ErrNotFound
	}
	return e.Blobs.Get(ctx, *t.SolutionHandle)
}

// GetPayment returns a payment visible to its buyer, its developer, or
// an admin.
func (e Engine) GetPayment(ctx context.Context, caller identity.Principal, id string) (domain.Payment, error) {
	pay, err := e.Repo.GetPayment(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}
	if caller.IsAdmin() || pay.BuyerID == caller.ActorID || pay.DeveloperID == caller.ActorID {
		return pay, nil
	}
	return domain.Payment{}, fault.Forbidden("payment %s is not visible to actor %s", id, caller.ActorID)
}

// ListPayments scopes the listing to the caller's side of the ledger.
func (e Engine) ListPayments(ctx context.Context, caller identity.Principal, f repo.PaymentFilters) ([]domain.Payment, error) {
	if f.Limit <= 0 && e.Config != nil {
		f.Limit = e.Config.Listings.PageSize
	}
	switch {
	case caller.IsAdmin():
	case caller.IsDeveloper():
		f.DeveloperID = caller.ActorID
	default:
		f.BuyerID = caller.ActorID
	}
	return e.Repo.ListPayments(ctx, f)
}
