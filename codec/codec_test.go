package codec

import (
	"testing"
	"time"

	"github.com/MateuszNaKodach/booster/testutil"
)

func TestRegistryGet(t *testing.T) {
	is := testutil.NewIs(t)

	for _, name := range Registry.Names() {
		c, err := Registry.Get(name)
		is.NoErr(err)
		is.Equal(c.Name(), name)
	}

	_, err := Registry.Get("bogus")
	is.Err(err, ErrNotRegistered)
}

func TestRoundtrip(t *testing.T) {
	is := testutil.NewIs(t)

	type T struct {
		String string
		Int    int
		Bool   bool
		Time   time.Time
	}

	v1 := &T{
		String: "foo",
		Int:    5,
		Bool:   true,
		Time:   time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC),
	}

	for _, c := range []Codec{JSON, MsgPack} {
		t.Run(c.Name(), func(t *testing.T) {
			b, err := c.Marshal(v1)
			is.NoErr(err)

			var v2 T
			err = c.Unmarshal(b, &v2)
			is.NoErr(err)
			is.Equal(&v2, v1)
		})
	}
}

func TestProtoBufRequiresMessage(t *testing.T) {
	is := testutil.NewIs(t)

	_, err := ProtoBuf.Marshal(struct{}{})
	is.Err(err, nil)

	err = ProtoBuf.Unmarshal([]byte("x"), &struct{}{})
	is.Err(err, nil)
}

func BenchmarkMsgPackMarshal(b *testing.B) {
	type T struct {
		String string
		Int    int
		Bool   bool
		Bytes  []byte
	}

	v1 := &T{
		String: "foo",
		Int:    5,
		Bool:   true,
		Bytes:  []byte(`{"foo": "bar", "baz": 3.4}`),
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		MsgPack.Marshal(v1)
	}
}
