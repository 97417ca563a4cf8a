// Package rediscache decorates a booster Provider with a Redis
// read-through cache for snapshots. Event loads pass through to the
// inner provider untouched; snapshot loads hit Redis first and fall back
// to the inner provider, backfilling the cache on a miss.
//
// Bounded snapshot loads bypass the cache entirely, since the cache only
// ever holds the latest snapshot.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"

	"github.com/MateuszNaKodach/booster"
	"github.com/MateuszNaKodach/booster/internal/wire"
	"github.com/MateuszNaKodach/booster/types"
)

// Config for the cache. Parse from the environment with ConfigFromEnv.
type Config struct {
	Addr     string        `env:"BOOSTER_REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	Password string        `env:"BOOSTER_REDIS_PASSWORD"`
	DB       int           `env:"BOOSTER_REDIS_DB" envDefault:"0"`
	TTL      time.Duration `env:"BOOSTER_REDIS_TTL" envDefault:"0"`
}

func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("booster: rediscache: parse env: %w", err)
	}
	return cfg, nil
}

// NewClient builds a Redis client from the config and verifies the
// connection.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

type Provider struct {
	inner  booster.Provider
	client *redis.Client
	types  *types.Registry
	ttl    time.Duration
}

// New wraps inner with a snapshot cache. A zero TTL keeps cached
// snapshots until the next upsert evicts them.
func New(inner booster.Provider, client *redis.Client, reg *types.Registry, cfg Config) *Provider {
	return &Provider{
		inner:  inner,
		client: client,
		types:  reg,
		ttl:    cfg.TTL,
	}
}

func snapshotKey(entityTypeName, entityID string) string {
	return fmt.Sprintf("booster:snapshot:%s.%s", entityTypeName, entityID)
}

// LoadEventsSince delegates to the inner provider.
func (p *Provider) LoadEventsSince(ctx context.Context, entityTypeName, entityID string, since time.Time) ([]*booster.Envelope, error) {
	return p.inner.LoadEventsSince(ctx, entityTypeName, entityID, since)
}

func (p *Provider) LoadLatestSnapshot(ctx context.Context, entityTypeName, entityID string, at time.Time) (*booster.Envelope, error) {
	// The cache holds only the unbounded latest, so a bounded load must
	// consult the source of truth.
	if !at.IsZero() {
		return p.inner.LoadLatestSnapshot(ctx, entityTypeName, entityID, at)
	}

	key := snapshotKey(entityTypeName, entityID)

	b, err := p.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		return wire.Unmarshal(b, p.types)
	case !errors.Is(err, redis.Nil):
		return nil, err
	}

	snap, err := p.inner.LoadLatestSnapshot(ctx, entityTypeName, entityID, at)
	if err != nil || snap == nil {
		return snap, err
	}

	if err := p.cache(ctx, key, snap); err != nil {
		return nil, err
	}

	return snap, nil
}

// StoreSnapshot writes through: the inner provider first, then the
// cache, so the cache never holds a snapshot the source of truth lost.
func (p *Provider) StoreSnapshot(ctx context.Context, snap *booster.Envelope) error {
	if err := p.inner.StoreSnapshot(ctx, snap); err != nil {
		return err
	}
	return p.cache(ctx, snapshotKey(snap.EntityTypeName, snap.EntityID), snap)
}

func (p *Provider) cache(ctx context.Context, key string, snap *booster.Envelope) error {
	b, err := wire.Marshal(snap, p.types)
	if err != nil {
		return err
	}
	return p.client.Set(ctx, key, b, p.ttl).Err()
}

var _ booster.Provider = (*Provider)(nil)
