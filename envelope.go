package booster

import (
	"errors"
	"fmt"
	"time"
)

// Kind discriminates the two shapes an Envelope can take: a recorded
// domain event or a materialized entity snapshot.
type Kind string

const (
	KindEvent    Kind = "event"
	KindSnapshot Kind = "snapshot"
)

var (
	ErrEntityTypeRequired = errors.New("booster: entity type name required")
	ErrEntityIDRequired   = errors.New("booster: entity id required")
	ErrTypeNameRequired   = errors.New("booster: type name required")
	ErrCreatedAtRequired  = errors.New("booster: created at required")
)

// Envelope wraps one immutable fact about an entity, or a snapshot of the
// entity state derived by folding those facts. Events are produced and
// persisted upstream and never mutated; snapshots are produced only by the
// snapshot store's fold.
type Envelope struct {
	// ID of the envelope. NUID, NanoID, or UUID are recommended.
	ID string

	// EntityTypeName is the declared type of the entity this envelope
	// belongs to.
	EntityTypeName string

	// EntityID identifies the entity instance.
	EntityID string

	// TypeName is the name used for reducer and payload type lookup.
	// Events carry their event type name. Snapshots are typed as their
	// entity, so for Kind == KindSnapshot this equals EntityTypeName.
	TypeName string

	// Value is the domain payload: the event value for events, the reduced
	// entity state for snapshots. Its shape is owned by the application and
	// opaque to the snapshot store.
	Value any

	// CreatedAt is when the envelope was recorded. Events for an entity
	// form a strictly ordered sequence by CreatedAt, with ties broken by
	// the provider's stable storage order.
	CreatedAt time.Time

	// RequestID correlates the envelope to the request that produced it.
	RequestID string

	// Kind discriminates events from snapshots.
	Kind Kind

	// Version is the schema version of the entity type at the time the
	// snapshot was computed. Zero for events.
	Version int

	// SnapshottedEventCreatedAt is the CreatedAt of the last event folded
	// into this snapshot. It is the cursor for incremental replay: a fetch
	// only folds events recorded strictly after it. Zero for events.
	SnapshottedEventCreatedAt time.Time
}

// Validate checks the fields every provider needs in order to store and
// key the envelope. Intended for provider implementations.
func (e *Envelope) Validate() error {
	if e.EntityTypeName == "" {
		return ErrEntityTypeRequired
	}
	if e.EntityID == "" {
		return ErrEntityIDRequired
	}
	if e.TypeName == "" {
		return ErrTypeNameRequired
	}
	if e.CreatedAt.IsZero() {
		return ErrCreatedAtRequired
	}
	switch e.Kind {
	case KindEvent, KindSnapshot:
	default:
		return fmt.Errorf("booster: unknown envelope kind %q", e.Kind)
	}
	return nil
}
