package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"worktrade/internal/blob"
	"worktrade/internal/config"
	"worktrade/internal/db"
	"worktrade/internal/domain"
	"worktrade/internal/engine"
	"worktrade/internal/identity"
	"worktrade/internal/migrate"
	"worktrade/internal/repo"
)

// Env bundles everything a command needs to talk to the marketplace.
type Env struct {
	DB     *sql.DB
	Engine engine.Engine
	Config *config.Config
}

// Open prepares the workspace: ensures the .worktrade directory, runs
// pending migrations, loads worktrade.yml and seeds the default admin.
func Open(ctx context.Context, workspace string) (*Env, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		conn.Close()
		return nil, err
	}
	store := blob.NewFSStore(db.BlobDir(workspace), cfg.Uploads.MaxBytes)
	e := engine.New(conn, store, cfg)
	if err := EnsureAdmin(ctx, e.Repo); err != nil {
		conn.Close()
		return nil, err
	}
	return &Env{DB: conn, Engine: e, Config: cfg}, nil
}

func (env *Env) Close() error {
	if env == nil || env.DB == nil {
		return nil
	}
	return env.DB.Close()
}

// DefaultAdminID is seeded on first use so a fresh workspace always has
// one principal able to register buyers and developers.
const DefaultAdminID = "admin"

func EnsureAdmin(ctx context.Context, r repo.Repo) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	err = r.EnsureActor(ctx, tx, domain.Actor{
		ID:        DefaultAdminID,
		Name:      "Workspace admin",
		Role:      "admin",
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return tx.Commit()
}

// ResolvePrincipal maps a CLI --actor-id to a principal, using the actors
// table as the source of truth for the role.
func ResolvePrincipal(ctx context.Context, r repo.Repo, actorID string) (identity.Principal, error) {
	if actorID == "" {
		actorID = DefaultAdminID
	}
	actor, err := r.GetActor(ctx, actorID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return identity.Principal{}, fmt.Errorf("unknown actor %q; register it first with: wt actor create", actorID)
		}
		return identity.Principal{}, err
	}
	return identity.Principal{ActorID: actor.ID, Role: actor.Role, Source: "cli"}, nil
}

// InitWorkspace writes a commented default worktrade.yml unless one exists.
func InitWorkspace(workspace string) (string, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return "", err
	}
	cfgPath := config.Path(workspace)
	if _, err := os.Stat(cfgPath); err == nil {
		return cfgPath, nil
	} else if !os.IsNotExist(err) {
		return "", err
	}
	if err := os.WriteFile(cfgPath, []byte(config.GenerateDefault()), 0o644); err != nil {
		return "", err
	}
	return cfgPath, nil
}
