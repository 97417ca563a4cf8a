/*
Package booster reconstructs the current state of event-sourced entities
by replaying their event log, caching the result as snapshots so future
reads are cheap.

Setup

Declare entity types with a schema version and one reducer per event type.
Reducers are pure: they fold one event value into the prior entity state
and return the new state. Registration is validated eagerly, so a missing
or broken reducer fails at process start rather than mid-fold.

	registry, err := booster.NewRegistry(map[string]*booster.EntityType{
		"cart": {
			Version: 1,
			Reducers: map[string]booster.Reducer{
				"cart-item-added": reduceItemAdded,
				"cart-cleared":    reduceCleared,
			},
		},
	})

Initialize a snapshot store by passing a persistence provider and the
registry. Providers live under provider/: an in-memory one for tests and
development, NATS JetStream, Postgres, SQLite, and a Redis snapshot cache
that wraps any of the others.

	store, err := booster.New(memory.New(), registry)

Fetch

Fetch loads the latest stored snapshot, loads the events recorded after
its cursor, and folds them in order. The result reflects every event the
provider knows about, or is nil for an entity with no history. Fetch
never writes the computed snapshot back.

	snap, err := store.Fetch(ctx, "cart", "cart-1")

The At option bounds which stored snapshot seeds the fold; events after
that base are still folded to the head of the stream.

CalculateAndStore

After appending new events, fold and persist them explicitly. The pending
list is supplied by the caller, folded in order onto the latest stored
snapshot, and the result is upserted as the entity's snapshot. An empty
pending list returns the prior snapshot and performs no write.

	snap, err := store.CalculateAndStore(ctx, "cart", "cart-1", pending)

Writes for the same entity are serialized in-process. Writers in separate
processes race last-writer-wins unless the provider's upsert is
conditional.
*/
package booster
