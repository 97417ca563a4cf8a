package booster

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MateuszNaKodach/booster/clock"
	"github.com/MateuszNaKodach/booster/id"
	"github.com/MateuszNaKodach/booster/keylock"
)

// Provider is the persistence backend the snapshot store reads events and
// snapshots from. Implementations must return events in creation order
// with a stable tie-break, never omit an event within range, and treat
// StoreSnapshot as an upsert of the single latest snapshot per entity.
//
// Provider errors pass through the snapshot store unmodified; the store
// adds no retry logic of its own and assumes provider operations either
// succeed or fail atomically.
type Provider interface {
	// LoadLatestSnapshot returns the most recently stored snapshot for the
	// entity, or nil when none exists. A non-zero at bounds the result to
	// snapshots created at or before at.
	LoadLatestSnapshot(ctx context.Context, entityTypeName, entityID string, at time.Time) (*Envelope, error)

	// LoadEventsSince returns all events for the entity recorded strictly
	// after since, in creation order. A zero since means from the first
	// event.
	LoadEventsSince(ctx context.Context, entityTypeName, entityID string, since time.Time) ([]*Envelope, error)

	// StoreSnapshot upserts the snapshot as the latest for its entity.
	StoreSnapshot(ctx context.Context, snap *Envelope) error
}

type fetchOpts struct {
	at time.Time
}

type fetchOptFn func(o *fetchOpts) error

func (f fetchOptFn) fetchOpt(o *fetchOpts) error {
	return f(o)
}

// FetchOption is an option for the snapshot store Fetch operation.
type FetchOption interface {
	fetchOpt(o *fetchOpts) error
}

// At bounds which stored snapshot is used as the fold base: only
// snapshots created at or before t are eligible. Events recorded after
// the selected base are still folded up to the head of the stream, so At
// selects a starting point rather than enforcing a strict point-in-time
// cutoff on the result.
func At(t time.Time) FetchOption {
	return fetchOptFn(func(o *fetchOpts) error {
		o.at = t
		return nil
	})
}

// ReducerError reports a reducer that failed while folding an event. The
// fold is aborted, nothing is persisted, and the original cause is
// available via Unwrap.
type ReducerError struct {
	EntityTypeName string
	EntityID       string
	EventTypeName  string
	Err            error
}

func (e *ReducerError) Error() string {
	return fmt.Sprintf("booster: reducer for %s failed folding %s/%s: %s",
		e.EventTypeName, e.EntityTypeName, e.EntityID, e.Err)
}

func (e *ReducerError) Unwrap() error {
	return e.Err
}

// SnapshotStore reconstructs the current state of an entity by replaying
// the events recorded after its most recent snapshot and folding them
// through the reducer registry.
//
// The store holds no mutable state of its own and may be used from
// concurrent goroutines. Writes for the same entity identity are
// serialized in-process by a per-entity lock; concurrent writers in
// separate processes still race last-writer-wins unless the provider
// enforces a conditional upsert.
type SnapshotStore struct {
	provider Provider
	registry *Registry

	id     id.ID
	clock  clock.Clock
	log    *slog.Logger
	tracer trace.Tracer
	locks  *keylock.KeyLock[string]
}

func entityKey(entityTypeName, entityID string) string {
	return entityTypeName + "." + entityID
}

func entityAttrs(entityTypeName, entityID string) trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.String("booster.entity_type", entityTypeName),
		attribute.String("booster.entity_id", entityID),
	)
}

// Fetch computes an up-to-date snapshot for the entity. It loads the most
// recent stored snapshot, loads the events recorded after that snapshot's
// cursor, and folds them in order. The result reflects every event known
// to the provider at fetch time, or is nil when the entity has no events
// and no snapshot.
//
// Fetch is read-optimized and never writes the computed snapshot back;
// callers wanting persistence use CalculateAndStore.
func (s *SnapshotStore) Fetch(ctx context.Context, entityTypeName, entityID string, opts ...FetchOption) (*Envelope, error) {
	var o fetchOpts
	for _, opt := range opts {
		if err := opt.fetchOpt(&o); err != nil {
			return nil, err
		}
	}

	ctx, span := s.tracer.Start(ctx, "booster.Fetch", entityAttrs(entityTypeName, entityID))
	defer span.End()

	snap, events, err := s.loadPending(ctx, entityTypeName, entityID, o.at)
	if err != nil {
		return nil, s.spanError(span, err)
	}

	if len(events) == 0 {
		return snap, nil
	}

	folded, err := s.fold(entityID, snap, events)
	if err != nil {
		return nil, s.spanError(span, err)
	}

	s.log.Debug("fetched entity snapshot",
		slog.Group("entity", slog.String("type", entityTypeName), slog.String("id", entityID)),
		slog.Int("events_folded", len(events)),
	)

	return folded, nil
}

// CalculateAndStore folds the caller-supplied pending events into the
// latest stored snapshot and persists the result. It assumes the caller
// already determined which events are new, typically right after writing
// them; pending events are folded in the given order and are not fetched
// from the provider.
//
// When the fold produces nothing new (empty pending list), the prior
// snapshot is returned unchanged and no store call is made. Persisting
// again with the same pending list writes a fresh snapshot envelope whose
// domain value is unchanged, since folding is deterministic and the
// provider upserts.
func (s *SnapshotStore) CalculateAndStore(ctx context.Context, entityTypeName, entityID string, pending []*Envelope) (*Envelope, error) {
	ctx, span := s.tracer.Start(ctx, "booster.CalculateAndStore", entityAttrs(entityTypeName, entityID))
	defer span.End()

	var result *Envelope

	err := s.locks.Do(entityKey(entityTypeName, entityID), func() error {
		snap, err := s.provider.LoadLatestSnapshot(ctx, entityTypeName, entityID, time.Time{})
		if err != nil {
			return err
		}

		folded, err := s.fold(entityID, snap, pending)
		if err != nil {
			return err
		}

		// Nothing was folded, so there is nothing to write.
		if folded == nil || folded == snap {
			result = snap
			return nil
		}

		if err := s.provider.StoreSnapshot(ctx, folded); err != nil {
			return err
		}

		s.log.Debug("stored entity snapshot",
			slog.Group("entity", slog.String("type", entityTypeName), slog.String("id", entityID)),
			slog.Int("events_folded", len(pending)),
			slog.Time("cursor", folded.SnapshottedEventCreatedAt),
		)

		result = folded
		return nil
	})
	if err != nil {
		return nil, s.spanError(span, err)
	}

	return result, nil
}

// loadPending resolves the fold base and the events recorded after its
// cursor. With no snapshot, the cursor is the beginning of time.
func (s *SnapshotStore) loadPending(ctx context.Context, entityTypeName, entityID string, at time.Time) (*Envelope, []*Envelope, error) {
	snap, err := s.provider.LoadLatestSnapshot(ctx, entityTypeName, entityID, at)
	if err != nil {
		return nil, nil, err
	}

	var since time.Time
	if snap != nil {
		since = snap.SnapshottedEventCreatedAt
	}

	events, err := s.provider.LoadEventsSince(ctx, entityTypeName, entityID, since)
	if err != nil {
		return nil, nil, err
	}

	return snap, events, nil
}

// fold applies each event, in order, to the prior snapshot. Every step
// wraps the reducer's output in a new snapshot envelope which seeds the
// next step. A reducer failure aborts the whole fold so that no partial
// state can escape.
func (s *SnapshotStore) fold(entityID string, snap *Envelope, events []*Envelope) (*Envelope, error) {
	acc := snap
	if len(events) == 0 {
		return acc, nil
	}

	// All events in one fold belong to the same entity type.
	version, err := s.registry.Version(events[0].EntityTypeName)
	if err != nil {
		return nil, err
	}

	for _, event := range events {
		reducer, err := s.registry.Reducer(event.EntityTypeName, event.TypeName)
		if err != nil {
			return nil, err
		}

		var prior any
		if acc != nil {
			prior = acc.Value
		}

		value, err := reducer(event.Value, prior)
		if err != nil {
			rerr := &ReducerError{
				EntityTypeName: event.EntityTypeName,
				EntityID:       entityID,
				EventTypeName:  event.TypeName,
				Err:            err,
			}
			s.log.Error("reducer failed, aborting fold",
				slog.Group("entity", slog.String("type", event.EntityTypeName), slog.String("id", entityID)),
				slog.String("event_type", event.TypeName),
				slog.Time("event_created_at", event.CreatedAt),
				slog.Any("error", err),
			)
			return nil, rerr
		}

		acc = &Envelope{
			ID:                        s.id.New(),
			EntityTypeName:            event.EntityTypeName,
			EntityID:                  event.EntityID,
			TypeName:                  event.EntityTypeName,
			Value:                     value,
			CreatedAt:                 s.clock.Now(),
			RequestID:                 event.RequestID,
			Kind:                      KindSnapshot,
			Version:                   version,
			SnapshottedEventCreatedAt: event.CreatedAt,
		}
	}

	return acc, nil
}

func (s *SnapshotStore) spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
