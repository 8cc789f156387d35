package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"worktrade/internal/domain"
	"worktrade/internal/engine/fault"
	"worktrade/internal/events"
	"worktrade/internal/identity"
	"worktrade/internal/repo"
)

// TaskAssignOptions are parameters for assigning work to a developer.
type TaskAssignOptions struct {
	ID          string
	ProjectID   string
	DeveloperID string
	Title       string
	Description string
	HourlyRate  float64
}

// AssignTask creates a task on a project and assigns it to a developer.
// Only the owning buyer may assign. When the project has an accepted
// proposal the task must go to that developer, and the proposal's rate
// becomes the default hourly rate.
func (e Engine) AssignTask(ctx context.Context, caller identity.Principal, opts TaskAssignOptions) (domain.Task, error) {
	p, err := e.Repo.GetProject(ctx, opts.ProjectID)
	if err != nil {
		return domain.Task{}, err
	}
	if p.BuyerID != caller.ActorID {
		return domain.Task{}, fault.Forbidden("project %s is owned by another buyer", p.ID)
	}
	if opts.Title == "" {
		return domain.Task{}, errors.New("title is required")
	}
	dev, err := e.Repo.GetActor(ctx, opts.DeveloperID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Task{}, fmt.Errorf("developer %s not found", opts.DeveloperID)
		}
		return domain.Task{}, err
	}
	if dev.Role != domain.RoleDeveloper {
		return domain.Task{}, errors.New("assignee must have the developer role")
	}
	rate := opts.HourlyRate
	accepted, err := e.Repo.AcceptedProposal(ctx, p.ID)
	switch {
	case err == nil:
		if accepted.DeveloperID != opts.DeveloperID {
			return domain.Task{}, fault.InvalidState("project", "%s has an accepted proposal from developer %s", p.ID, accepted.DeveloperID)
		}
		if rate <= 0 {
			rate = accepted.ProposedRate
		}
	case errors.Is(err, repo.ErrNotFound):
		if rate <= 0 {
			rate = p.HourlyRate
		}
	default:
		return domain.Task{}, err
	}
	if rate <= 0 {
		return domain.Task{}, errors.New("hourly_rate must be positive")
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.now().UTC().Format(time.RFC3339)
	t := domain.Task{
		ID:          id,
		ProjectID:   p.ID,
		DeveloperID: opts.DeveloperID,
		Title:       opts.Title,
		Description: opts.Description,
		HourlyRate:  rate,
		Status:      domain.TaskAssigned,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.assigned", p.ID, "task", t.ID, caller.ActorID, events.EventPayload{
		"developer_id": t.DeveloperID,
		"hourly_rate":  t.HourlyRate,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// Task statuses move strictly forward; the only transition a developer
// drives by hand is picking up assigned work.
func ensureTaskTransition(oldStatus, newStatus string) error {
	switch oldStatus {
	case domain.TaskAssigned:
		if newStatus == domain.TaskInProgress {
			return nil
		}
	}
	return fault.InvalidState("task", "invalid status transition %s -> %s", oldStatus, newStatus)
}

// StartTask moves an assigned task to in_progress. Only the assigned
// developer may start it.
func (e Engine) StartTask(ctx context.Context, caller identity.Principal, taskID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if t.DeveloperID != caller.ActorID {
		return domain.Task{}, fault.Forbidden("task %s is assigned to another developer", t.ID)
	}
	if err := ensureTaskTransition(t.Status, domain.TaskInProgress); err != nil {
		return domain.Task{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	ok, err := e.Repo.UpdateTaskStatusTx(ctx, tx, t.ID, domain.TaskAssigned, domain.TaskInProgress, now)
	if err != nil {
		return domain.Task{}, err
	}
	if !ok {
		return domain.Task{}, fault.InvalidState("task", "%s is no longer assigned", t.ID)
	}
	if err := e.Events.Append(ctx, tx, "task.started", t.ProjectID, "task", t.ID, caller.ActorID, events.EventPayload{}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	t.Status = domain.TaskInProgress
	t.UpdatedAt = now
	return t, nil
}

// TaskSubmitOptions carry the solution archive and the hours worked.
type TaskSubmitOptions struct {
	TaskID         string
	Archive        []byte
	TimeSpentHours float64
}

// SubmitTask stores the solution archive and moves an in_progress task
// to submitted. The archive is written to the blob store before the
// database transaction commits, so a recorded submission always has a
// readable solution behind it.
func (e Engine) SubmitTask(ctx context.Context, caller identity.Principal, opts TaskSubmitOptions) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, opts.TaskID)
	if err != nil {
		return domain.Task{}, err
	}
	if t.DeveloperID != caller.ActorID {
		return domain.Task{}, fault.Forbidden("task %s is assigned to another developer", t.ID)
	}
	if t.Status != domain.TaskInProgress {
		return domain.Task{}, fault.InvalidState("task", "%s must be in_progress to submit, not %s", t.ID, t.Status)
	}
	if opts.TimeSpentHours <= 0 {
		return domain.Task{}, errors.New("time_spent_hours must be positive")
	}
	if len(opts.Archive) == 0 {
		return domain.Task{}, errors.New("solution archive is empty")
	}
	handle, err := e.Blobs.Put(ctx, opts.Archive)
	if err != nil {
		return domain.Task{}, fmt.Errorf("store solution: %w", err)
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	ok, err := e.Repo.SubmitTaskTx(ctx, tx, t.ID, handle, opts.TimeSpentHours, now)
	if err != nil {
		return domain.Task{}, err
	}
	if !ok {
		return domain.Task{}, fault.InvalidState("task", "%s is no longer in_progress", t.ID)
	}
	if err := e.Events.Append(ctx, tx, "task.submitted", t.ProjectID, "task", t.ID, caller.ActorID, events.EventPayload{
		"solution_handle":  handle,
		"time_spent_hours": opts.TimeSpentHours,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	t.Status = domain.TaskSubmitted
	t.SolutionHandle = &handle
	t.TimeSpentHours = &opts.TimeSpentHours
	t.UpdatedAt = now
	return t, nil
}

// GetTask returns a task visible to the assigned developer, the project
// owner, or an admin.
func (e Engine) GetTask(ctx context.Context, caller identity.Principal, id string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if caller.IsAdmin() || t.DeveloperID == caller.ActorID {
		return t, nil
	}
	p, err := e.Repo.GetProject(ctx, t.ProjectID)
	if err != nil {
		return domain.Task{}, err
	}
	if p.BuyerID != caller.ActorID {
		return domain.Task{}, fault.Forbidden("task %s is not visible to actor %s", id, caller.ActorID)
	}
	return t, nil
}

// ListTasks scopes the listing the same way as proposals: admins see
// everything, developers their assignments, buyers their projects' tasks.
func (e Engine) ListTasks(ctx context.Context, caller identity.Principal, f repo.TaskFilters) ([]domain.Task, error) {
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
	return e.Repo.ListTasks(ctx, f)
}
