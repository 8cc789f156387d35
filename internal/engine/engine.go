package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"worktrade/internal/blob"
	"worktrade/internal/config"
	"worktrade/internal/domain"
	"worktrade/internal/engine/fault"
	"worktrade/internal/events"
	"worktrade/internal/identity"
	"worktrade/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Blobs  blob.Store
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, store blob.Store, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Blobs:  store,
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// ProjectCreateOptions are parameters for posting a new project.
type ProjectCreateOptions struct {
	ID             string
	Title          string
	Description    string
	Tags           []string
	HourlyRate     float64
	EstimatedHours *float64
}

// CreateProject posts a new open project owned by the calling buyer.
func (e Engine) CreateProject(ctx context.Context, caller identity.Principal, opts ProjectCreateOptions) (domain.Project, error) {
	if e.Config == nil {
		return domain.Project{}, errors.New("config not loaded")
	}
	if !caller.IsBuyer() {
		return domain.Project{}, fault.Forbidden("only buyers can post projects")
	}
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Project{}, errors.New("title is required")
	}
	if opts.HourlyRate <= 0 {
		return domain.Project{}, errors.New("hourly_rate must be positive")
	}
	if opts.EstimatedHours != nil && *opts.EstimatedHours <= 0 {
		return domain.Project{}, errors.New("estimated_hours must be positive")
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	p := domain.Project{
		ID:             id,
		BuyerID:        caller.ActorID,
		Title:          strings.TrimSpace(opts.Title),
		Description:    opts.Description,
		Tags:           opts.Tags,
		HourlyRate:     opts.HourlyRate,
		EstimatedHours: opts.EstimatedHours,
		Status:         domain.ProjectOpen,
		CreatedAt:      e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.created", p.ID, "project", p.ID, caller.ActorID, events.EventPayload{
		"title":       p.Title,
		"hourly_rate": p.HourlyRate,
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// CloseProject closes an open project. Only the owning buyer may close it;
// pending proposals stay pending but can no longer be accepted.
func (e Engine) CloseProject(ctx context.Context, caller identity.Principal, projectID string) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if p.BuyerID != caller.ActorID {
		return domain.Project{}, fault.Forbidden("project %s is owned by another buyer", projectID)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	ok, err := e.Repo.UpdateProjectStatusTx(ctx, tx, projectID, domain.ProjectOpen, domain.ProjectClosed)
	if err != nil {
		return domain.Project{}, err
	}
	if !ok {
		return domain.Project{}, fault.InvalidState("project", "%s is already closed", projectID)
	}
	if err := e.Events.Append(ctx, tx, "project.closed", p.ID, "project", p.ID, caller.ActorID, events.EventPayload{}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	p.Status = domain.ProjectClosed
	return p, nil
}

// GetProject returns a project by ID. Listings are public to any
// authenticated actor.
func (e Engine) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return e.Repo.GetProject(ctx, id)
}

// ListProjects returns projects matching the filters, newest first.
func (e Engine) ListProjects(ctx context.Context, f repo.ProjectFilters) ([]domain.Project, error) {
	if f.Limit <= 0 && e.Config != nil {
		f.Limit = e.Config.Listings.PageSize
	}
	return e.Repo.ListProjects(ctx, f)
}

// ListEvents returns the audit ledger, newest first. Admin only.
func (e Engine) ListEvents(ctx context.Context, caller identity.Principal, limit int, cursor int64, evtType, entityKind, entityID string) ([]domain.Event, error) {
	if !caller.IsAdmin() {
		return nil, fault.Forbidden("the event ledger requires the admin role")
	}
	if limit <= 0 {
		limit = 50
	}
	if cursor > 0 {
		return e.Repo.LatestEventsFrom(ctx, limit, cursor, evtType, entityKind, entityID)
	}
	return e.Repo.LatestEvents(ctx, limit, evtType, entityKind, entityID)
}

// Stats aggregates platform-wide numbers. Admin only.
func (e Engine) Stats(ctx context.Context, caller identity.Principal) (domain.DashboardStats, error) {
	if !caller.IsAdmin() {
		return domain.DashboardStats{}, fault.Forbidden("stats require the admin role")
	}
	return e.Repo.DashboardStats(ctx)
}
