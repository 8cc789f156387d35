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

// ProposalSubmitOptions are parameters for bidding on a project.
type ProposalSubmitOptions struct {
	ID             string
	ProjectID      string
	CoverLetter    string
	ProposedRate   float64
	EstimatedHours *float64
}

// SubmitProposal records a developer's bid on an open project. A
// developer may hold at most one live (pending or accepted) proposal
// per project.
func (e Engine) SubmitProposal(ctx context.Context, caller identity.Principal, opts ProposalSubmitOptions) (domain.Proposal, error) {
	if !caller.IsDeveloper() {
		return domain.Proposal{}, fault.Forbidden("only developers can submit proposals")
	}
	if opts.ProposedRate <= 0 {
		return domain.Proposal{}, errors.New("proposed_rate must be positive")
	}
	if opts.EstimatedHours != nil && *opts.EstimatedHours <= 0 {
		return domain.Proposal{}, errors.New("estimated_hours must be positive")
	}
	p, err := e.Repo.GetProject(ctx, opts.ProjectID)
	if err != nil {
		return domain.Proposal{}, err
	}
	if p.Status != domain.ProjectOpen {
		return domain.Proposal{}, fault.InvalidState("project", "%s is closed to new proposals", p.ID)
	}
	live, err := e.Repo.HasLiveProposal(ctx, p.ID, caller.ActorID)
	if err != nil {
		return domain.Proposal{}, err
	}
	if live {
		return domain.Proposal{}, fault.InvalidState("proposal", "developer %s already has a live proposal on project %s", caller.ActorID, p.ID)
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	prop := domain.Proposal{
		ID:             id,
		ProjectID:      p.ID,
		DeveloperID:    caller.ActorID,
		CoverLetter:    opts.CoverLetter,
		ProposedRate:   opts.ProposedRate,
		EstimatedHours: opts.EstimatedHours,
		Status:         domain.ProposalPending,
		CreatedAt:      e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Proposal{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProposal(ctx, tx, prop); err != nil {
		// The partial unique index catches the race two concurrent
		// submissions win past the pre-check.
		if repo.IsUniqueViolation(err) {
			return domain.Proposal{}, fault.InvalidState("proposal", "developer %s already has a live proposal on project %s", caller.ActorID, p.ID)
		}
		return domain.Proposal{}, err
	}
	if err := e.Events.Append(ctx, tx, "proposal.submitted", p.ID, "proposal", prop.ID, caller.ActorID, events.EventPayload{
		"proposed_rate": prop.ProposedRate,
	}); err != nil {
		return domain.Proposal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Proposal{}, err
	}
	return prop, nil
}

// AcceptProposal accepts a pending proposal. In the same transaction the
// project is closed and every other pending proposal on it is rejected,
// so at most one proposal per project can ever be accepted.
func (e Engine) AcceptProposal(ctx context.Context, caller identity.Principal, proposalID string) (domain.Proposal, error) {
	prop, err := e.Repo.GetProposal(ctx, proposalID)
	if err != nil {
		return domain.Proposal{}, err
	}
	p, err := e.Repo.GetProject(ctx, prop.ProjectID)
	if err != nil {
		return domain.Proposal{}, err
	}
	if p.BuyerID != caller.ActorID {
		return domain.Proposal{}, fault.Forbidden("project %s is owned by another buyer", p.ID)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Proposal{}, err
	}
	defer tx.Rollback()

	// Closing the project first makes acceptance race-safe: of two
	// concurrent accepts only one sees the project still open.
	ok, err := e.Repo.UpdateProjectStatusTx(ctx, tx, p.ID, domain.ProjectOpen, domain.ProjectClosed)
	if err != nil {
		return domain.Proposal{}, err
	}
	if !ok {
		return domain.Proposal{}, fault.InvalidState("project", "%s is closed; no proposal can be accepted", p.ID)
	}
	ok, err = e.Repo.UpdateProposalStatusTx(ctx, tx, prop.ID, domain.ProposalPending, domain.ProposalAccepted)
	if err != nil {
		return domain.Proposal{}, err
	}
	if !ok {
		return domain.Proposal{}, fault.InvalidState("proposal", "%s is not pending", prop.ID)
	}
	rejected, err := e.Repo.RejectOtherPendingProposalsTx(ctx, tx, p.ID, prop.ID)
	if err != nil {
		return domain.Proposal{}, err
	}
	if err := e.Events.Append(ctx, tx, "proposal.accepted", p.ID, "proposal", prop.ID, caller.ActorID, events.EventPayload{
		"developer_id": prop.DeveloperID,
		"rejected":     rejected,
	}); err != nil {
		return domain.Proposal{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.closed", p.ID, "project", p.ID, caller.ActorID, events.EventPayload{
		"reason": "proposal accepted",
	}); err != nil {
		return domain.Proposal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Proposal{}, err
	}
	prop.Status = domain.ProposalAccepted
	return prop, nil
}

// RejectProposal rejects a pending proposal. Only the owning buyer may
// reject.
func (e Engine) RejectProposal(ctx context.Context, caller identity.Principal, proposalID string) (domain.Proposal, error) {
	prop, err := e.Repo.GetProposal(ctx, proposalID)
	if err != nil {
		return domain.Proposal{}, err
	}
	p, err := e.Repo.GetProject(ctx, prop.ProjectID)
	if err != nil {
		return domain.Proposal{}, err
	}
	if p.BuyerID != caller.ActorID {
		return domain.Proposal{}, fault.Forbidden("project %s is owned by another buyer", p.ID)
	}
	return e.setProposalStatus(ctx, caller, prop, domain.ProposalRejected, "proposal.rejected")
}

// WithdrawProposal withdraws a pending proposal. Only its author may
// withdraw it.
func (e Engine) WithdrawProposal(ctx context.Context, caller identity.Principal, proposalID string) (domain.Proposal, error) {
	prop, err := e.Repo.GetProposal(ctx, proposalID)
	if err != nil {
		return domain.Proposal{}, err
	}
	if prop.DeveloperID != caller.ActorID {
		return domain.Proposal{}, fault.Forbidden("proposal %s belongs to another developer", prop.ID)
	}
	return e.setProposalStatus(ctx, caller, prop, domain.ProposalWithdrawn, "proposal.withdrawn")
}

func (e Engine) setProposalStatus(ctx context.Context, caller identity.Principal, prop domain.Proposal, to, evtType string) (domain.Proposal, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Proposal{}, err
	}
	defer tx.Rollback()

	ok, err := e.Repo.UpdateProposalStatusTx(ctx, tx, prop.ID, domain.ProposalPending, to)
	if err != nil {
		return domain.Proposal{}, err
	}
	if !ok {
		return domain.Proposal{}, fault.InvalidState("proposal", "%s is not pending", prop.ID)
	}
	if err := e.Events.Append(ctx, tx, evtType, prop.ProjectID, "proposal", prop.ID, caller.ActorID, events.EventPayload{}); err != nil {
		return domain.Proposal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Proposal{}, err
	}
	prop.Status = to
	return prop, nil
}

// GetProposal returns a proposal visible to its author, the project
// owner, or an admin.
func (e Engine) GetProposal(ctx context.Context, caller identity.Principal, id string) (domain.Proposal, error) {
	prop, err := e.Repo.GetProposal(ctx, id)
	if err != nil {
		return domain.Proposal{}, err
	}
	if caller.IsAdmin() || prop.DeveloperID == caller.ActorID {
		return prop, nil
	}
	p, err := e.Repo.GetProject(ctx, prop.ProjectID)
	if err != nil {
		return domain.Proposal{}, err
	}
	if p.BuyerID != caller.ActorID {
		return domain.Proposal{}, fault.Forbidden("proposal %s is not visible to actor %s", id, caller.ActorID)
	}
	return prop, nil
}

// ListProposals scopes the listing to what the caller may see: admins
// see everything, developers their own bids, buyers the bids on their
// projects.
func (e Engine) ListProposals(ctx context.Context, caller identity.Principal, f repo.ProposalFilters) ([]domain.Proposal, error) {
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
	return e.Repo.ListProposals(ctx, f)
}
