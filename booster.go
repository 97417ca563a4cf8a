package booster

import (
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/MateuszNaKodach/booster/clock"
	"github.com/MateuszNaKodach/booster/id"
	"github.com/MateuszNaKodach/booster/keylock"
)

var (
	ErrProviderRequired = errors.New("booster: provider required")
	ErrRegistryRequired = errors.New("booster: registry required")
)

type storeOption func(s *SnapshotStore) error

func (f storeOption) addOption(s *SnapshotStore) error {
	return f(s)
}

// Option models an option when creating a snapshot store.
type Option interface {
	addOption(s *SnapshotStore) error
}

// Clock sets a clock implementation. Default is clock.Time.
func Clock(clock clock.Clock) Option {
	return storeOption(func(s *SnapshotStore) error {
		s.clock = clock
		return nil
	})
}

// ID sets a unique ID generator implementation. Default is id.NUID.
func ID(id id.ID) Option {
	return storeOption(func(s *SnapshotStore) error {
		s.id = id
		return nil
	})
}

// Logger sets the structured logger. Default is slog.Default().
func Logger(log *slog.Logger) Option {
	return storeOption(func(s *SnapshotStore) error {
		s.log = log
		return nil
	})
}

// TracerProvider sets the tracer provider used for operation spans.
// Default is the global provider.
func TracerProvider(tp trace.TracerProvider) Option {
	return storeOption(func(s *SnapshotStore) error {
		s.tracer = tp.Tracer("booster")
		return nil
	})
}

// New initializes a snapshot store over the given persistence provider
// and reducer registry.
func New(provider Provider, registry *Registry, opts ...Option) (*SnapshotStore, error) {
	if provider == nil {
		return nil, ErrProviderRequired
	}
	if registry == nil {
		return nil, ErrRegistryRequired
	}

	s := &SnapshotStore{
		provider: provider,
		registry: registry,
		id:       id.NUID,
		clock:    clock.Time,
		log:      slog.Default(),
		tracer:   otel.Tracer("booster"),
		locks:    keylock.New[string](),
	}

	for _, o := range opts {
		if err := o.addOption(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}
