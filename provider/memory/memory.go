// Package memory provides an in-memory booster.Provider for tests and
// development. Events are kept per entity in arrival order and a single
// snapshot is upserted per entity, matching the provider contract of the
// durable backends.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MateuszNaKodach/booster"
)

var (
	ErrNotAnEvent   = errors.New("booster: memory: envelope is not an event")
	ErrNotASnapshot = errors.New("booster: memory: envelope is not a snapshot")
)

type Provider struct {
	mu        sync.Mutex
	events    map[string][]*booster.Envelope
	snapshots map[string]*booster.Envelope
	stores    int
}

func New() *Provider {
	return &Provider{
		events:    make(map[string][]*booster.Envelope),
		snapshots: make(map[string]*booster.Envelope),
	}
}

func key(entityTypeName, entityID string) string {
	return entityTypeName + "." + entityID
}

// AppendEvent records an event for its entity. Events are kept in arrival
// order; the caller is responsible for monotonic CreatedAt values, as
// with any event producer.
func (p *Provider) AppendEvent(_ context.Context, env *booster.Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}
	if env.Kind != booster.KindEvent {
		return ErrNotAnEvent
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	k := key(env.EntityTypeName, env.EntityID)
	p.events[k] = append(p.events[k], env)
	return nil
}

func (p *Provider) LoadLatestSnapshot(_ context.Context, entityTypeName, entityID string, at time.Time) (*booster.Envelope, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap, ok := p.snapshots[key(entityTypeName, entityID)]
	if !ok {
		return nil, nil
	}

	// Only the latest snapshot is retained, so a bound that predates it
	// means no eligible snapshot remains.
	if !at.IsZero() && snap.CreatedAt.After(at) {
		return nil, nil
	}

	return snap, nil
}

func (p *Provider) LoadEventsSince(_ context.Context, entityTypeName, entityID string, since time.Time) ([]*booster.Envelope, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*booster.Envelope
	for _, e := range p.events[key(entityTypeName, entityID)] {
		if e.CreatedAt.After(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (p *Provider) StoreSnapshot(_ context.Context, snap *booster.Envelope) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	if snap.Kind != booster.KindSnapshot {
		return ErrNotASnapshot
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.snapshots[key(snap.EntityTypeName, snap.EntityID)] = snap
	p.stores++
	return nil
}

// StoreCalls returns the number of StoreSnapshot calls made, for tests
// asserting that empty folds do not write.
func (p *Provider) StoreCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stores
}

var _ booster.Provider = (*Provider)(nil)
