package types

import (
	"testing"

	"github.com/MateuszNaKodach/booster/testutil"
)

func TestNewRegistry(t *testing.T) {
	// Base case.
	type A struct{}

	// Not serializable.
	type B struct {
		C chan int
	}

	tests := map[string]struct {
		Init func() any
		Err  bool
	}{
		"base": {
			func() any { return &A{} },
			false,
		},
		"no-init": {
			nil,
			true,
		},
		"non-pointer": {
			func() any { return A{} },
			true,
		},
		"not-serializable": {
			func() any { return &B{} },
			true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewRegistry(map[string]*Type{
				"a": {
					Init: test.Init,
				},
			})
			if err != nil && !test.Err {
				t.Errorf("unexpected error: %s", err)
			} else if err == nil && test.Err {
				t.Errorf("expected error")
			}
		})
	}
}

func TestMarshalUnmarshal(t *testing.T) {
	is := testutil.NewIs(t)

	type Item struct {
		ProductID string
		Quantity  int
	}

	ty := map[string]*Type{
		"item": {
			Init: func() any { return &Item{} },
		},
	}

	for _, k := range []string{"json", "msgpack"} {
		t.Run(k, func(t *testing.T) {
			rt, err := NewRegistry(ty, Codec(k))
			is.NoErr(err)
			is.Equal(rt.Codec().Name(), k)

			v1 := Item{ProductID: "p-1", Quantity: 3}

			// Support both struct value and pointers.
			tt, err := rt.Lookup(&v1)
			is.NoErr(err)
			is.Equal(tt, "item")

			tt, err = rt.Lookup(v1)
			is.NoErr(err)
			is.Equal(tt, "item")

			b, err := rt.Marshal(&v1)
			is.NoErr(err)

			x, err := rt.UnmarshalType(b, "item")
			is.NoErr(err)

			v2, ok := x.(*Item)
			is.True(ok)
			is.Equal(*v2, v1)
		})
	}
}

func TestUnknownType(t *testing.T) {
	is := testutil.NewIs(t)

	r, err := NewRegistry(nil)
	is.NoErr(err)

	_, err = r.Init("nope")
	is.Err(err, ErrTypeNotRegistered)

	type X struct{}
	_, err = r.Lookup(&X{})
	is.Err(err, ErrNoTypeForStruct)
}

func BenchmarkInit(b *testing.B) {
	type T struct{}

	r, _ := NewRegistry(map[string]*Type{
		"a": {
			Init: func() any { return &T{} },
		},
	})

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, _ = r.Init("a")
	}
}
