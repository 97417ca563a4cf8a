package codec

import (
	"errors"
	"fmt"
)

var (
	ErrNotRegistered = errors.New("booster: codec not registered")

	Default = JSON

	Registry = &codecRegistry{
		m: map[string]Codec{
			"json":     JSON,
			"msgpack":  MsgPack,
			"protobuf": ProtoBuf,
			"binary":   Binary,
		},
	}
)

// Codec marshals and unmarshals values for storage. The name identifies
// the codec on the wire so a stored envelope can be decoded by whichever
// process reads it back.
type Codec interface {
	Name() string
	Marshal(any) ([]byte, error)
	Unmarshal([]byte, any) error
}

type codecRegistry struct {
	m map[string]Codec
}

func (c *codecRegistry) Get(name string) (Codec, error) {
	x, ok := c.m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	return x, nil
}

// Names returns the registered codec names.
func (c *codecRegistry) Names() []string {
	names := make([]string, 0, len(c.m))
	for n := range c.m {
		names = append(names, n)
	}
	return names
}
