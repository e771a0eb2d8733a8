package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"pactline/internal/config"
	"pactline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func scanPact(row *sql.Row) (domain.Pact, error) {
	var p domain.Pact
	var desc sql.NullString
	err := row.Scan(&p.ID, &p.PartyA, &p.PartyB, &p.Status, &desc, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if desc.Valid {
		p.Description = desc.String
	}
	return p, err
}

func (r Repo) InsertPactTx(ctx context.Context, tx *sql.Tx, p domain.Pact) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO pacts(id,party_a,party_b,status,description,created_at) VALUES (?,?,?,?,?,?)`,
		p.ID, p.PartyA, p.PartyB, p.Status, nullable(p.Description), p.CreatedAt)
	return err
}

func (r Repo) GetPact(ctx context.Context, id string) (domain.Pact, error) {
	return scanPact(r.DB.QueryRowContext(ctx, `SELECT id,party_a,party_b,status,COALESCE(description,'') AS description,created_at FROM pacts WHERE id=?`, id))
}

func (r Repo) SinglePact(ctx context.Context) (domain.Pact, error) {
	pacts, err := r.ListPacts(ctx)
	if err != nil {
		return domain.Pact{}, err
	}
	if len(pacts) == 0 {
		return domain.Pact{}, ErrNotFound
	}
	if len(pacts) > 1 {
		return domain.Pact{}, fmt.Errorf("multiple pacts exist; specify --pact")
	}
	return pacts[0], nil
}

func (r Repo) ListPacts(ctx context.Context) ([]domain.Pact, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,party_a,party_b,status,COALESCE(description,'') AS description,created_at FROM pacts ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Pact
	for rows.Next() {
		var p domain.Pact
		if err := rows.Scan(&p.ID, &p.PartyA, &p.PartyB, &p.Status, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpsertPactConfig(ctx context.Context, pactID string, cfg *config.Config) error {
	return upsertPactConfig(ctx, r.DB, nil, pactID, cfg)
}

func (r Repo) UpsertPactConfigTx(ctx context.Context, tx *sql.Tx, pactID string, cfg *config.Config) error {
	return upsertPactConfig(ctx, nil, tx, pactID, cfg)
}

func upsertPactConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, pactID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Pact.ID = pactID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO pact_configs(pact_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(pact_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, pactID, string(payload), now, now)
	return err
}

func (r Repo) GetPactConfig(ctx context.Context, pactID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM pact_configs WHERE pact_id=?`, pactID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Pact.ID == "" {
		cfg.Pact.ID = pactID
	}
	return &cfg, cfg.Validate()
}

// GetAccount returns the external balance row for a participant; a missing row
// reads as a zero balance.
func (r Repo) GetAccount(ctx context.Context, pactID, participant string) (domain.Account, error) {
	a := domain.Account{PactID: pactID, Participant: participant}
	err := r.DB.QueryRowContext(ctx, `SELECT balance,updated_at FROM accounts WHERE pact_id=? AND participant=?`, pactID, participant).
		Scan(&a.Balance, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, nil
	}
	return a, err
}

// CreditAccountTx upserts a participant's external balance.
func (r Repo) CreditAccountTx(ctx context.Context, tx *sql.Tx, pactID, participant string, amount int64, ts string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO accounts(pact_id,participant,balance,updated_at) VALUES (?,?,?,?)
ON CONFLICT(pact_id,participant) DO UPDATE SET balance=balance+excluded.balance, updated_at=excluded.updated_at`,
		pactID, participant, amount, ts)
	return err
}

func (r Repo) LatestEvents(ctx context.Context, limit int, pactID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, pactID, evtType, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, pactID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if pactID != "" {
		clauses = append(clauses, "pact_id=?")
		args = append(args, pactID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(pact_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, pactID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if pactID != "" {
		clauses = append(clauses, "pact_id=?")
		args = append(args, pactID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(pact_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// LatestEventID returns the most recent event ID for a pact.
func (r Repo) LatestEventID(ctx context.Context, pactID string) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events WHERE pact_id=?`, pactID)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.PactID, &e.EntityKind, &e.EntityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
