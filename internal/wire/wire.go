// Package wire serializes envelopes for providers that store them as a
// single opaque blob, such as KV buckets and caches. The envelope frame
// is JSON; the domain payload inside it is encoded with the type
// registry's codec and decoded back by TypeName.
package wire

import (
	"encoding/json"
	"time"

	"github.com/MateuszNaKodach/booster"
	"github.com/MateuszNaKodach/booster/types"
)

type envelope struct {
	ID                        string    `json:"id"`
	EntityTypeName            string    `json:"entity_type_name"`
	EntityID                  string    `json:"entity_id"`
	TypeName                  string    `json:"type_name"`
	Value                     []byte    `json:"value,omitempty"`
	CreatedAt                 time.Time `json:"created_at"`
	RequestID                 string    `json:"request_id,omitempty"`
	Kind                      string    `json:"kind"`
	Version                   int       `json:"version,omitempty"`
	SnapshottedEventCreatedAt time.Time `json:"snapshotted_event_created_at"`
}

// Marshal frames the envelope, encoding its Value through the registry.
func Marshal(env *booster.Envelope, reg *types.Registry) ([]byte, error) {
	w := envelope{
		ID:                        env.ID,
		EntityTypeName:            env.EntityTypeName,
		EntityID:                  env.EntityID,
		TypeName:                  env.TypeName,
		CreatedAt:                 env.CreatedAt,
		RequestID:                 env.RequestID,
		Kind:                      string(env.Kind),
		Version:                   env.Version,
		SnapshottedEventCreatedAt: env.SnapshottedEventCreatedAt,
	}

	if env.Value != nil {
		b, err := reg.Marshal(env.Value)
		if err != nil {
			return nil, err
		}
		w.Value = b
	}

	return json.Marshal(&w)
}

// Unmarshal decodes a framed envelope, reconstructing its Value as the
// registered type for its TypeName.
func Unmarshal(b []byte, reg *types.Registry) (*booster.Envelope, error) {
	var w envelope
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, err
	}

	env := &booster.Envelope{
		ID:                        w.ID,
		EntityTypeName:            w.EntityTypeName,
		EntityID:                  w.EntityID,
		TypeName:                  w.TypeName,
		CreatedAt:                 w.CreatedAt,
		RequestID:                 w.RequestID,
		Kind:                      booster.Kind(w.Kind),
		Version:                   w.Version,
		SnapshottedEventCreatedAt: w.SnapshottedEventCreatedAt,
	}

	if len(w.Value) > 0 {
		v, err := reg.UnmarshalType(w.Value, w.TypeName)
		if err != nil {
			return nil, err
		}
		env.Value = v
	}

	return env, nil
}
