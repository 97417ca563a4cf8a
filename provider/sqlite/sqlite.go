// Package sqlite implements the booster Provider on SQLite using the
// pure-Go modernc.org/sqlite driver. It fits embedded and single-node
// deployments where no database server is available.
//
// Timestamps are stored as integer milliseconds since the Unix epoch in
// UTC, so ordering and the exclusive since bound compare at millisecond
// precision.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	_ "modernc.org/sqlite"

	"github.com/MateuszNaKodach/booster"
	"github.com/MateuszNaKodach/booster/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS booster_events (
	seq              INTEGER PRIMARY KEY AUTOINCREMENT,
	id               TEXT    NOT NULL,
	entity_type_name TEXT    NOT NULL,
	entity_id        TEXT    NOT NULL,
	type_name        TEXT    NOT NULL,
	value            BLOB,
	request_id       TEXT    NOT NULL DEFAULT '',
	created_at_ms    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS booster_events_entity_idx
	ON booster_events (entity_type_name, entity_id, created_at_ms, seq);

CREATE TABLE IF NOT EXISTS booster_snapshots (
	entity_type_name                TEXT    NOT NULL,
	entity_id                       TEXT    NOT NULL,
	id                              TEXT    NOT NULL,
	type_name                       TEXT    NOT NULL,
	value                           BLOB,
	request_id                      TEXT    NOT NULL DEFAULT '',
	version                         INTEGER NOT NULL,
	created_at_ms                   INTEGER NOT NULL,
	snapshotted_event_created_at_ms INTEGER NOT NULL,
	PRIMARY KEY (entity_type_name, entity_id)
);
`

var (
	ErrNotAnEvent   = errors.New("booster: sqlite: envelope is not an event")
	ErrNotASnapshot = errors.New("booster: sqlite: envelope is not a snapshot")
)

// Config for the provider. Parse from the environment with ConfigFromEnv.
type Config struct {
	Path string `env:"BOOSTER_SQLITE_PATH,required"`
}

func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("booster: sqlite: parse env: %w", err)
	}
	return cfg, nil
}

type Provider struct {
	db    *sql.DB
	types *types.Registry
}

// New opens (or creates) the database file and applies the schema. WAL
// mode keeps readers from blocking the writer.
func New(ctx context.Context, cfg Config, reg *types.Registry) (*Provider, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// A single writer avoids SQLITE_BUSY under concurrent stores.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Provider{
		db:    db,
		types: reg,
	}, nil
}

// Close closes the underlying database handle.
func (p *Provider) Close() error {
	return p.db.Close()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
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

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO booster_events (id, entity_type_name, entity_id, type_name, value, request_id, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, env.ID, env.EntityTypeName, env.EntityID, env.TypeName, value, env.RequestID, toMillis(env.CreatedAt))
	return err
}

func (p *Provider) LoadEventsSince(ctx context.Context, entityTypeName, entityID string, since time.Time) ([]*booster.Envelope, error) {
	var sinceMillis int64
	if !since.IsZero() {
		sinceMillis = toMillis(since)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, type_name, value, request_id, created_at_ms
		FROM booster_events
		WHERE entity_type_name = ?
		  AND entity_id = ?
		  AND created_at_ms > ?
		ORDER BY created_at_ms ASC, seq ASC
	`, entityTypeName, entityID, sinceMillis)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*booster.Envelope
	for rows.Next() {
		var (
			env       booster.Envelope
			value     []byte
			createdAt int64
		)
		err := rows.Scan(&env.ID, &env.TypeName, &value, &env.RequestID, &createdAt)
		if err != nil {
			return nil, err
		}

		env.EntityTypeName = entityTypeName
		env.EntityID = entityID
		env.Kind = booster.KindEvent
		env.CreatedAt = fromMillis(createdAt)

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
		env         booster.Envelope
		value       []byte
		createdAt   int64
		snapshotted int64
	)

	err := p.db.QueryRowContext(ctx, `
		SELECT id, type_name, value, request_id, version, created_at_ms, snapshotted_event_created_at_ms
		FROM booster_snapshots
		WHERE entity_type_name = ?
		  AND entity_id = ?
	`, entityTypeName, entityID).Scan(
		&env.ID, &env.TypeName, &value, &env.RequestID,
		&env.Version, &createdAt, &snapshotted,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	env.EntityTypeName = entityTypeName
	env.EntityID = entityID
	env.Kind = booster.KindSnapshot
	env.CreatedAt = fromMillis(createdAt)
	env.SnapshottedEventCreatedAt = fromMillis(snapshotted)

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

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO booster_snapshots
			(entity_type_name, entity_id, id, type_name, value, request_id, version, created_at_ms, snapshotted_event_created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (entity_type_name, entity_id) DO UPDATE SET
			id = excluded.id,
			type_name = excluded.type_name,
			value = excluded.value,
			request_id = excluded.request_id,
			version = excluded.version,
			created_at_ms = excluded.created_at_ms,
			snapshotted_event_created_at_ms = excluded.snapshotted_event_created_at_ms
	`, snap.EntityTypeName, snap.EntityID, snap.ID, snap.TypeName, value,
		snap.RequestID, snap.Version, toMillis(snap.CreatedAt), toMillis(snap.SnapshottedEventCreatedAt))
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
