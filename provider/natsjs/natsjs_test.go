package natsjs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/MateuszNaKodach/booster"
	"github.com/MateuszNaKodach/booster/testutil"
	"github.com/MateuszNaKodach/booster/types"
)

type ItemAdded struct {
	ProductID string
	Quantity  int
}

type Cart struct {
	Quantities map[string]int
}

func newTypeRegistry(t *testing.T) *types.Registry {
	t.Helper()

	// The entity state type is registered under the entity type name so
	// snapshot envelopes decode by their TypeName.
	reg, err := types.NewRegistry(map[string]*types.Type{
		"cart-item-added": {
			Init: func() any { return &ItemAdded{} },
		},
		"cart": {
			Init: func() any { return &Cart{} },
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func newTestProvider(t *testing.T) *Provider {
	t.Helper()

	srv := testutil.NewNatsServer(-1)
	t.Cleanup(func() { testutil.ShutdownNatsServer(srv) })

	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(nc.Close)

	p, err := New(nc, Config{Stream: "entity-events", Bucket: "entity-snapshots"}, newTypeRegistry(t))
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func event(i int, at time.Time) *booster.Envelope {
	return &booster.Envelope{
		ID:             fmt.Sprintf("e%d", i),
		EntityTypeName: "cart",
		EntityID:       "c1",
		TypeName:       "cart-item-added",
		Value:          &ItemAdded{ProductID: fmt.Sprintf("p%d", i), Quantity: 1},
		CreatedAt:      at,
		RequestID:      "r1",
		Kind:           booster.KindEvent,
	}
}

func TestAppendLoadEvents(t *testing.T) {
	is := testutil.NewIs(t)
	ctx := context.Background()

	p := newTestProvider(t)
	t0 := time.Date(2019, 9, 20, 14, 0, 0, 0, time.UTC)

	events, err := p.LoadEventsSince(ctx, "cart", "c1", time.Time{})
	is.NoErr(err)
	is.Equal(len(events), 0)

	for i := 0; i < 3; i++ {
		err := p.AppendEvent(ctx, event(i, t0.Add(time.Duration(i)*time.Minute)))
		is.NoErr(err)
	}

	events, err = p.LoadEventsSince(ctx, "cart", "c1", time.Time{})
	is.NoErr(err)
	is.Equal(len(events), 3)

	is.Equal(events[0].ID, "e0")
	is.Equal(events[0].EntityTypeName, "cart")
	is.Equal(events[0].EntityID, "c1")
	is.Equal(events[0].TypeName, "cart-item-added")
	is.Equal(events[0].RequestID, "r1")
	is.Equal(events[0].Kind, booster.KindEvent)
	is.Equal(events[0].CreatedAt, t0)

	added, ok := events[0].Value.(*ItemAdded)
	is.True(ok)
	is.Equal(added.ProductID, "p0")

	// The since bound is exclusive.
	events, err = p.LoadEventsSince(ctx, "cart", "c1", t0)
	is.NoErr(err)
	is.Equal(len(events), 2)
	is.Equal(events[0].ID, "e1")
}

func TestSnapshotRoundtrip(t *testing.T) {
	is := testutil.NewIs(t)
	ctx := context.Background()

	p := newTestProvider(t)
	t0 := time.Date(2019, 9, 20, 14, 0, 0, 0, time.UTC)

	snap, err := p.LoadLatestSnapshot(ctx, "cart", "c1", time.Time{})
	is.NoErr(err)
	is.True(snap == nil)

	stored := &booster.Envelope{
		ID:                        "s1",
		EntityTypeName:            "cart",
		EntityID:                  "c1",
		TypeName:                  "cart",
		Value:                     &Cart{Quantities: map[string]int{"p0": 2}},
		CreatedAt:                 t0,
		RequestID:                 "r1",
		Kind:                      booster.KindSnapshot,
		Version:                   1,
		SnapshottedEventCreatedAt: t0.Add(-time.Minute),
	}
	is.NoErr(p.StoreSnapshot(ctx, stored))

	snap, err = p.LoadLatestSnapshot(ctx, "cart", "c1", time.Time{})
	is.NoErr(err)
	is.Equal(snap, stored)

	// Upsert replaces the prior snapshot.
	next := *stored
	next.ID = "s2"
	next.CreatedAt = t0.Add(time.Hour)
	is.NoErr(p.StoreSnapshot(ctx, &next))

	snap, err = p.LoadLatestSnapshot(ctx, "cart", "c1", time.Time{})
	is.NoErr(err)
	is.Equal(snap.ID, "s2")

	// Only the latest snapshot is retained, so a bound that predates it
	// yields none.
	snap, err = p.LoadLatestSnapshot(ctx, "cart", "c1", t0.Add(time.Minute))
	is.NoErr(err)
	is.True(snap == nil)
}

func TestSnapshotStoreEndToEnd(t *testing.T) {
	is := testutil.NewIs(t)
	ctx := context.Background()

	p := newTestProvider(t)
	t0 := time.Date(2019, 9, 20, 14, 0, 0, 0, time.UTC)

	registry, err := booster.NewRegistry(map[string]*booster.EntityType{
		"cart": {
			Version: 1,
			Reducers: map[string]booster.Reducer{
				"cart-item-added": func(event any, prior any) (any, error) {
					e := event.(*ItemAdded)
					cart := &Cart{Quantities: map[string]int{}}
					if prior != nil {
						for k, v := range prior.(*Cart).Quantities {
							cart.Quantities[k] = v
						}
					}
					cart.Quantities[e.ProductID] += e.Quantity
					return cart, nil
				},
			},
		},
	})
	is.NoErr(err)

	store, err := booster.New(p, registry)
	is.NoErr(err)

	var pending []*booster.Envelope
	for i := 0; i < 3; i++ {
		e := event(i, t0.Add(time.Duration(i)*time.Minute))
		is.NoErr(p.AppendEvent(ctx, e))
		pending = append(pending, e)
	}

	snap, err := store.CalculateAndStore(ctx, "cart", "c1", pending)
	is.NoErr(err)
	is.Equal(len(snap.Value.(*Cart).Quantities), 3)

	// A fresh fetch decodes the stored snapshot and has nothing new to
	// fold.
	fetched, err := store.Fetch(ctx, "cart", "c1")
	is.NoErr(err)
	is.Equal(fetched.ID, snap.ID)
	is.Equal(fetched.Value.(*Cart), snap.Value.(*Cart))
}
