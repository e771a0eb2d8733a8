package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pactline/internal/config"
	"pactline/internal/domain"
	"pactline/internal/engine/auth"
	"pactline/internal/events"
	"pactline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
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

func (e Engine) nowTS() string {
	return e.now().UTC().Format(time.RFC3339)
}

// pactConfig resolves the config for a pact: the engine-level config when it
// matches, the stored pact_configs row otherwise.
func (e Engine) pactConfig(ctx context.Context, pactID string) (*config.Config, error) {
	if e.Config != nil && e.Config.Pact.ID == pactID {
		return e.Config, nil
	}
	cfg, err := e.Repo.GetPactConfig(ctx, pactID)
	if err == repo.ErrNotFound {
		return nil, fmt.Errorf("pact %s has no config", pactID)
	}
	return cfg, err
}

func requireParty(cfg *config.Config, caller string) error {
	if !cfg.IsParty(caller) {
		return auth.UnauthorizedError{Role: "pact party"}
	}
	return nil
}

func requireGate(cfg *config.Config, caller string) error {
	if caller != cfg.Gate.Owner {
		return auth.UnauthorizedError{Role: "gate"}
	}
	return nil
}

// InitPact creates a pact, stores its config and seeds the configured
// authorized withdrawers. Migrations must already be applied.
func (e Engine) InitPact(ctx context.Context, cfg *config.Config, description, actorID string) (domain.Pact, error) {
	if cfg == nil {
		return domain.Pact{}, errors.New("config required")
	}
	if err := cfg.Validate(); err != nil {
		return domain.Pact{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Pact{}, err
	}
	defer tx.Rollback()

	now := e.nowTS()
	p := domain.Pact{
		ID:          cfg.Pact.ID,
		PartyA:      cfg.Pact.Parties[0],
		PartyB:      cfg.Pact.Parties[1],
		Status:      "active",
		Description: description,
		CreatedAt:   now,
	}
	if err := e.Repo.InsertPactTx(ctx, tx, p); err != nil {
		return domain.Pact{}, fmt.Errorf("insert pact: %w", err)
	}
	if err := e.Repo.UpsertPactConfigTx(ctx, tx, p.ID, cfg); err != nil {
		return domain.Pact{}, fmt.Errorf("insert pact config: %w", err)
	}
	for _, w := range cfg.Treasury.Withdrawers {
		if err := e.Repo.SetWithdrawerTx(ctx, tx, p.ID, w, true, now); err != nil {
			return domain.Pact{}, fmt.Errorf("seed withdrawer: %w", err)
		}
	}
	if err := e.Events.Append(ctx, tx, "pact.init", p.ID, "pact", p.ID, actorID, events.EventPayload{
		"party_a": p.PartyA,
		"party_b": p.PartyB,
	}); err != nil {
		return domain.Pact{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Pact{}, err
	}
	return p, nil
}

func (e Engine) GetPact(ctx context.Context, pactID string) (domain.Pact, error) {
	return e.Repo.GetPact(ctx, pactID)
}

func (e Engine) ListPacts(ctx context.Context) ([]domain.Pact, error) {
	return e.Repo.ListPacts(ctx)
}
