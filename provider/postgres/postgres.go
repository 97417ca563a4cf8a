// Package postgres implements the booster Provider on PostgreSQL.
// Events live in an append-only table ordered by creation time with a
// bigserial tiebreaker; a single snapshot row per entity is upserted in
// place.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MateuszNaKodach/booster"
	"github.com/MateuszNaKodach/booster/types"
)

// schemaSQL is embedded so the provider can self-bootstrap its schema.
//
//go:embed schema.sql
var schemaSQL string

var (
	ErrNotAnEvent   = errors.New("booster: postgres: envelope is not an event")
	ErrNotASnapshot = errors.New("booster: postgres: envelope is not a snapshot")
)

// Config for the provider. Parse from the environment with ConfigFromEnv.
type Config struct {
	URL string `env:"BOOSTER_POSTGRES_URL,required"`
}

func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("booster: postgres: parse env: %w", err)
	}
	return cfg, nil
}

type Provider struct {
	pool  *pgxpool.Pool
	types *types.Registry
}

// New creates a connection pool, fails fast if the database is
// unreachable, and applies the schema.
func New(ctx context.Context, cfg Config, reg *types.Registry) (*Provider, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	p := &Provider{
		pool:  pool,
		types: reg,
	}

	if err := p.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return p, nil
}

// EnsureSchema applies schema.sql. Safe to run multiple times.
func (p *Provider) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schemaSQL)
	return err
}

// Close shuts down the connection pool.
func (p *Provider) Close() {
	p.pool.Close()
}

// AppendEvent persists an event at the tail of its entity's stream.
func (p *Provider) AppendEvent(ctx context.Context, env *booster.Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}
	if env.Kind != booster.KindEvent {
		return ErrNotAnEvent
	}

	value, err := p.marshalValue(env.Value)
	if err != nil {
		return err
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO booster_events (id, entity_type_name, entity_id, type_name, value, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, env.ID, env.EntityTypeName, env.EntityID, env.TypeName, value, env.RequestID, env.CreatedAt)
	return err
}

func (p *Provider) LoadEventsSince(ctx context.Context, entityTypeName, entityID string, since time.Time) ([]*booster.Envelope, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, type_name, value, request_id, created_at
		FROM booster_events
		WHERE entity_type_name = $1
		  AND entity_id = $2
		  AND created_at > $3
		ORDER BY created_at ASC, seq ASC
	`, entityTypeName, entityID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*booster.Envelope
	for rows.Next() {
		var (
			env   booster.Envelope
			value []byte
		)
		err := rows.Scan(&env.ID, &env.TypeName, &value, &env.RequestID, &env.CreatedAt)
		if err != nil {
			return nil, err
		}

		env.EntityTypeName = entityTypeName
		env.EntityID = entityID
		env.Kind = booster.KindEvent
		env.CreatedAt = env.CreatedAt.UTC()

		env.Value, err = p.unmarshalValue(value, env.TypeName)
		if err != nil {
			return nil, err
		}

		events = append(events, &env)
	}

	return events, rows.Err()
}

func (p *Provider) LoadLatestSnapshot(ctx context.Context, entityTypeName, entityID string, at time.Time) (*booster.Envelope, error) {
	var (
		env   booster.Envelope
		value []byte
	)

	err := p.pool.QueryRow(ctx, `
		SELECT id, type_name, value, request_id, version, created_at, snapshotted_event_created_at
		FROM booster_snapshots
		WHERE entity_type_name = $1
		  AND entity_id = $2
	`, entityTypeName, entityID).Scan(
		&env.ID, &env.TypeName, &value, &env.RequestID,
		&env.Version, &env.CreatedAt, &env.SnapshottedEventCreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	env.EntityTypeName = entityTypeName
	env.EntityID = entityID
	env.Kind = booster.KindSnapshot
	env.CreatedAt = env.CreatedAt.UTC()
	env.SnapshottedEventCreatedAt = env.SnapshottedEventCreatedAt.UTC()

	// A single row per entity is retained, so a bound that predates it
	// means no eligible snapshot remains.
	if !at.IsZero() && env.CreatedAt.After(at) {
		return nil, nil
	}

	env.Value, err = p.unmarshalValue(value, env.TypeName)
	if err != nil {
		return nil, err
	}

	return &env, nil
}

func (p *Provider) StoreSnapshot(ctx context.Context, snap *booster.Envelope) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	if snap.Kind != booster.KindSnapshot {
		return ErrNotASnapshot
	}

	value, err := p.marshalValue(snap.Value)
	if err != nil {
		return err
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO booster_snapshots
			(entity_type_name, entity_id, id, type_name, value, request_id, version, created_at, snapshotted_event_created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (entity_type_name, entity_id) DO UPDATE SET
			id = EXCLUDED.id,
			type_name = EXCLUDED.type_name,
			value = EXCLUDED.value,
			request_id = EXCLUDED.request_id,
			version = EXCLUDED.version,
			created_at = EXCLUDED.created_at,
			snapshotted_event_created_at = EXCLUDED.snapshotted_event_created_at
	`, snap.EntityTypeName, snap.EntityID, snap.ID, snap.TypeName, value,
		snap.RequestID, snap.Version, snap.CreatedAt, snap.SnapshottedEventCreatedAt)
	return err
}

func (p *Provider) marshalValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return p.types.Marshal(v)
}

func (p *Provider) unmarshalValue(b []byte, typeName string) (any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	return p.types.UnmarshalType(b, typeName)
}

var _ booster.Provider = (*Provider)(nil)
