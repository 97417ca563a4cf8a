package booster

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrEntityTypeNotValid = errors.New("booster: entity type not valid")

	// ErrReducerNotResolvable indicates a configuration defect: either the
	// entity type was never registered, or a registration was broken (nil
	// reducer). Construction reports the latter eagerly; lookups report
	// the former.
	ErrReducerNotResolvable = errors.New("booster: reducer not resolvable")

	// ErrReducerNotRegistered indicates the entity type is known but
	// declares no reducer for the encountered event type. This signals a
	// deployment mismatch between event producers and the registry and is
	// not retryable.
	ErrReducerNotRegistered = errors.New("booster: no reducer registered for event type")

	nameRegex = regexp.MustCompile(`^[\w-]+(\.[\w-]+)*$`)
)

func validateTypeName(n string) error {
	if !nameRegex.MatchString(n) {
		return fmt.Errorf("%w: name %q has invalid characters", ErrEntityTypeNotValid, n)
	}
	return nil
}

// Reducer folds one event value into the prior entity state and returns
// the new state. prior is nil when no snapshot exists yet. Reducers must
// be deterministic and side-effect free; the snapshot store treats them
// as opaque callables resolved by event type name.
type Reducer func(event any, prior any) (any, error)

// EntityType declares how one entity type evolves: its current schema
// version, stamped on every snapshot, and the reducer for each event type
// that applies to it.
type EntityType struct {
	Version  int
	Reducers map[string]Reducer
}

// Registry resolves an event type name to the reducer declared for it and
// an entity type name to its current schema version. It is populated once
// at startup and read-only thereafter, so it is safe for unsynchronized
// concurrent reads.
type Registry struct {
	entities map[string]*entityType
}

type entityType struct {
	version  int
	reducers map[string]Reducer
}

func (r *Registry) validate(name string, typ *EntityType) error {
	if name == "" {
		return fmt.Errorf("%w: missing name", ErrEntityTypeNotValid)
	}

	if err := validateTypeName(name); err != nil {
		return err
	}

	if typ == nil {
		return fmt.Errorf("%w: %s: entity type is nil", ErrEntityTypeNotValid, name)
	}

	if typ.Version < 1 {
		return fmt.Errorf("%w: %s: schema version must be >= 1", ErrEntityTypeNotValid, name)
	}

	if len(typ.Reducers) == 0 {
		return fmt.Errorf("%w: %s: no reducers declared", ErrEntityTypeNotValid, name)
	}

	for en, fn := range typ.Reducers {
		if err := validateTypeName(en); err != nil {
			return err
		}
		if fn == nil {
			return fmt.Errorf("%w: %s: reducer for %s is nil", ErrReducerNotResolvable, name, en)
		}
	}

	return nil
}

func (r *Registry) addEntityType(name string, typ *EntityType) {
	reducers := make(map[string]Reducer, len(typ.Reducers))
	for en, fn := range typ.Reducers {
		reducers[en] = fn
	}
	r.entities[name] = &entityType{
		version:  typ.Version,
		reducers: reducers,
	}
}

// Reducer returns the reducer declared for the event type of the given
// entity type.
func (r *Registry) Reducer(entityTypeName, eventTypeName string) (Reducer, error) {
	e, ok := r.entities[entityTypeName]
	if !ok {
		return nil, fmt.Errorf("%w: unknown entity type %s", ErrReducerNotResolvable, entityTypeName)
	}

	fn, ok := e.reducers[eventTypeName]
	if !ok {
		return nil, fmt.Errorf("%w: %s for entity %s", ErrReducerNotRegistered, eventTypeName, entityTypeName)
	}

	return fn, nil
}

// Version returns the current schema version for the entity type.
func (r *Registry) Version(entityTypeName string) (int, error) {
	e, ok := r.entities[entityTypeName]
	if !ok {
		return 0, fmt.Errorf("%w: unknown entity type %s", ErrReducerNotResolvable, entityTypeName)
	}
	return e.version, nil
}

// NewRegistry builds a reducer registry from the application's declared
// entity types. Every declaration is validated here, so a missing or
// broken reducer fails at startup instead of in the middle of a fold.
func NewRegistry(entities map[string]*EntityType) (*Registry, error) {
	r := &Registry{
		entities: make(map[string]*entityType),
	}

	for n, t := range entities {
		if err := r.validate(n, t); err != nil {
			return nil, err
		}
		r.addEntityType(n, t)
	}

	return r, nil
}
