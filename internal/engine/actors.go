package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"worktrade/internal/domain"
	"worktrade/internal/engine/fault"
	"worktrade/internal/events"
	"worktrade/internal/identity"
	"worktrade/internal/repo"
)

// ActorCreateOptions are parameters for registering an actor.
type ActorCreateOptions struct {
	ID   string
	Name string
	Role string
}

// CreateActor registers a buyer, developer or admin. Admin only.
func (e Engine) CreateActor(ctx context.Context, caller identity.Principal, opts ActorCreateOptions) (domain.Actor, error) {
	if !caller.IsAdmin() {
		return domain.Actor{}, fault.Forbidden("actor registration requires the admin role")
	}
	role, err := identity.ParseRole(opts.Role)
	if err != nil {
		return domain.Actor{}, err
	}
	id := strings.TrimSpace(opts.ID)
	if id == "" {
		id = uuid.New().String()
	}
	a := domain.Actor{
		ID:        id,
		Name:      opts.Name,
		Role:      role,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Actor{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertActor(ctx, tx, a); err != nil {
		return domain.Actor{}, err
	}
	if err := e.Events.Append(ctx, tx, "actor.created", "", "actor", a.ID, caller.ActorID, events.EventPayload{
		"role": a.Role,
	}); err != nil {
		return domain.Actor{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Actor{}, err
	}
	return a, nil
}

// ListActors returns registered actors. Admin only.
func (e Engine) ListActors(ctx context.Context, caller identity.Principal, role string) ([]domain.Actor, error) {
	if !caller.IsAdmin() {
		return nil, fault.Forbidden("actor listing requires the admin role")
	}
	return e.Repo.ListActors(ctx, role)
}

// CreateAPIKey mints a fresh API key for an actor and stores only its
// hash. The plaintext key is returned exactly once. Actors may mint
// keys for themselves; admins for anyone.
func (e Engine) CreateAPIKey(ctx context.Context, caller identity.Principal, actorID, name string) (domain.APIKey, string, error) {
	if actorID == "" {
		actorID = caller.ActorID
	}
	if actorID != caller.ActorID && !caller.IsAdmin() {
		return domain.APIKey{}, "", fault.Forbidden("api keys for other actors require the admin role")
	}
	if _, err := e.Repo.GetActor(ctx, actorID); err != nil {
		return domain.APIKey{}, "", err
	}
	plaintext := "wtk_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	key := domain.APIKey{
		ID:        uuid.New().String(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plaintext),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plaintext, nil
}

// ListAPIKeys returns key metadata (never plaintext) for an actor.
func (e Engine) ListAPIKeys(ctx context.Context, caller identity.Principal, actorID string) ([]domain.APIKey, error) {
	if actorID == "" {
		actorID = caller.ActorID
	}
	if actorID != caller.ActorID && !caller.IsAdmin() {
		return nil, fault.Forbidden("api keys for other actors require the admin role")
	}
	return e.Repo.ListAPIKeys(ctx, actorID)
}

// DeleteAPIKey revokes a key by ID.
func (e Engine) DeleteAPIKey(ctx context.Context, caller identity.Principal, keyID string) error {
	if keyID == "" {
		return errors.New("key id required")
	}
	keys, err := e.Repo.ListAPIKeys(ctx, "")
	if err != nil {
		return err
	}
	for _, k := range keys {
		if k.ID == keyID {
			if k.ActorID != caller.ActorID && !caller.IsAdmin() {
				return fault.Forbidden("api key %s belongs to another actor", keyID)
			}
			return e.Repo.DeleteAPIKey(ctx, keyID)
		}
	}
	return repo.ErrNotFound
}
