package booster

import (
	"testing"

	"github.com/MateuszNaKodach/booster/testutil"
)

func noopReducer(event any, prior any) (any, error) {
	return prior, nil
}

func TestNewRegistry(t *testing.T) {
	tests := map[string]struct {
		Entities map[string]*EntityType
		Err      error
	}{
		"base": {
			map[string]*EntityType{
				"cart": {
					Version:  1,
					Reducers: map[string]Reducer{"cart-item-added": noopReducer},
				},
			},
			nil,
		},
		"empty-name": {
			map[string]*EntityType{
				"": {
					Version:  1,
					Reducers: map[string]Reducer{"cart-item-added": noopReducer},
				},
			},
			ErrEntityTypeNotValid,
		},
		"invalid-name": {
			map[string]*EntityType{
				"cart entity": {
					Version:  1,
					Reducers: map[string]Reducer{"cart-item-added": noopReducer},
				},
			},
			ErrEntityTypeNotValid,
		},
		"nil-entity": {
			map[string]*EntityType{
				"cart": nil,
			},
			ErrEntityTypeNotValid,
		},
		"zero-version": {
			map[string]*EntityType{
				"cart": {
					Reducers: map[string]Reducer{"cart-item-added": noopReducer},
				},
			},
			ErrEntityTypeNotValid,
		},
		"no-reducers": {
			map[string]*EntityType{
				"cart": {
					Version: 1,
				},
			},
			ErrEntityTypeNotValid,
		},
		"invalid-event-name": {
			map[string]*EntityType{
				"cart": {
					Version:  1,
					Reducers: map[string]Reducer{"cart item added": noopReducer},
				},
			},
			ErrEntityTypeNotValid,
		},
		"nil-reducer": {
			map[string]*EntityType{
				"cart": {
					Version:  1,
					Reducers: map[string]Reducer{"cart-item-added": nil},
				},
			},
			ErrReducerNotResolvable,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			is := testutil.NewIs(t)

			_, err := NewRegistry(test.Entities)
			if test.Err == nil {
				is.NoErr(err)
			} else {
				is.Err(err, test.Err)
			}
		})
	}
}

func TestRegistryLookup(t *testing.T) {
	is := testutil.NewIs(t)

	r, err := NewRegistry(map[string]*EntityType{
		"cart": {
			Version:  3,
			Reducers: map[string]Reducer{"cart-item-added": noopReducer},
		},
	})
	is.NoErr(err)

	fn, err := r.Reducer("cart", "cart-item-added")
	is.NoErr(err)
	is.True(fn != nil)

	v, err := r.Version("cart")
	is.NoErr(err)
	is.Equal(v, 3)

	// Entity known, event type not.
	_, err = r.Reducer("cart", "cart-vanished")
	is.Err(err, ErrReducerNotRegistered)

	// Entity type itself unknown.
	_, err = r.Reducer("order", "order-placed")
	is.Err(err, ErrReducerNotResolvable)

	_, err = r.Version("order")
	is.Err(err, ErrReducerNotResolvable)
}
