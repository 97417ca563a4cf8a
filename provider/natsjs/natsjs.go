// Package natsjs implements the booster Provider on NATS JetStream.
// Events are header-packed messages on "<stream>.<entity>.<id>" subjects
// and snapshots live in a KeyValue bucket, upserted under
// "<entity>.<id>". The stream and bucket are created on first use.
//
// The bucket retains only the latest snapshot per entity, so a bounded
// snapshot load returns nil whenever the retained snapshot postdates the
// bound.
package natsjs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/nats-io/nats.go"

	"github.com/MateuszNaKodach/booster"
	"github.com/MateuszNaKodach/booster/codec"
	"github.com/MateuszNaKodach/booster/internal/wire"
	"github.com/MateuszNaKodach/booster/types"
)

const (
	entityTypeHdr   = "Booster-Entity-Type"
	entityIDHdr     = "Booster-Entity-Id"
	eventTypeHdr    = "Booster-Event-Type"
	eventTimeHdr    = "Booster-Event-Time"
	requestIDHdr    = "Booster-Request-Id"
	eventCodecHdr   = "Booster-Codec"
	eventTimeFormat = time.RFC3339Nano
)

var (
	ErrNotAnEvent   = errors.New("booster: natsjs: envelope is not an event")
	ErrNotASnapshot = errors.New("booster: natsjs: envelope is not a snapshot")
)

// Config for the provider. Parse from the environment with ConfigFromEnv.
type Config struct {
	URL    string `env:"BOOSTER_NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	Stream string `env:"BOOSTER_NATS_STREAM" envDefault:"entity-events"`
	Bucket string `env:"BOOSTER_NATS_BUCKET" envDefault:"entity-snapshots"`
}

func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("booster: natsjs: parse env: %w", err)
	}
	return cfg, nil
}

type Provider struct {
	stream string
	nc     *nats.Conn
	js     nats.JetStreamContext
	kv     nats.KeyValue
	types  *types.Registry
}

// New initializes a provider over an existing NATS connection, creating
// the event stream and snapshot bucket if they do not exist.
func New(nc *nats.Conn, cfg Config, reg *types.Registry) (*Provider, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}

	_, err = js.StreamInfo(cfg.Stream)
	if errors.Is(err, nats.ErrStreamNotFound) {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:       cfg.Stream,
			Subjects:   []string{fmt.Sprintf("%s.>", cfg.Stream)},
			DenyDelete: true,
			DenyPurge:  true,
		})
	}
	if err != nil {
		return nil, err
	}

	kv, err := js.KeyValue(cfg.Bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket: cfg.Bucket,
		})
	}
	if err != nil {
		return nil, err
	}

	return &Provider{
		stream: cfg.Stream,
		nc:     nc,
		js:     js,
		kv:     kv,
		types:  reg,
	}, nil
}

func (p *Provider) subject(entityTypeName, entityID string) string {
	return fmt.Sprintf("%s.%s.%s", p.stream, entityTypeName, entityID)
}

func snapshotKey(entityTypeName, entityID string) string {
	return fmt.Sprintf("%s.%s", entityTypeName, entityID)
}

// Pack an event into a NATS message. Headers carry the envelope metadata
// so consumers can be created that only fetch headers.
func (p *Provider) packEvent(env *booster.Envelope) (*nats.Msg, error) {
	data, err := p.types.Marshal(env.Value)
	if err != nil {
		return nil, err
	}

	msg := nats.NewMsg(p.subject(env.EntityTypeName, env.EntityID))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, env.ID)
	msg.Header.Set(entityTypeHdr, env.EntityTypeName)
	msg.Header.Set(entityIDHdr, env.EntityID)
	msg.Header.Set(eventTypeHdr, env.TypeName)
	msg.Header.Set(eventTimeHdr, env.CreatedAt.Format(eventTimeFormat))
	msg.Header.Set(requestIDHdr, env.RequestID)
	msg.Header.Set(eventCodecHdr, p.types.Codec().Name())
	return msg, nil
}

// Unpack an event from a NATS message.
func (p *Provider) unpackEvent(msg *nats.Msg) (*booster.Envelope, uint64, error) {
	md, err := msg.Metadata()
	if err != nil {
		return nil, 0, fmt.Errorf("unpack: failed to get metadata: %s", err)
	}

	eventTime, err := time.Parse(eventTimeFormat, msg.Header.Get(eventTimeHdr))
	if err != nil {
		return nil, 0, fmt.Errorf("unpack: failed to parse event time: %s", err)
	}

	c, err := codec.Registry.Get(msg.Header.Get(eventCodecHdr))
	if err != nil {
		return nil, 0, err
	}

	typeName := msg.Header.Get(eventTypeHdr)
	value, err := p.types.Init(typeName)
	if err != nil {
		return nil, 0, err
	}
	if err := c.Unmarshal(msg.Data, value); err != nil {
		return nil, 0, err
	}

	return &booster.Envelope{
		ID:             msg.Header.Get(nats.MsgIdHdr),
		EntityTypeName: msg.Header.Get(entityTypeHdr),
		EntityID:       msg.Header.Get(entityIDHdr),
		TypeName:       typeName,
		Value:          value,
		CreatedAt:      eventTime,
		RequestID:      msg.Header.Get(requestIDHdr),
		Kind:           booster.KindEvent,
	}, md.Sequence.Stream, nil
}

// AppendEvent publishes an event to its entity's subject. The envelope ID
// doubles as the NATS message ID for de-duplication.
func (p *Provider) AppendEvent(ctx context.Context, env *booster.Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}
	if env.Kind != booster.KindEvent {
		return ErrNotAnEvent
	}

	msg, err := p.packEvent(env)
	if err != nil {
		return err
	}

	_, err = p.js.PublishMsg(msg, nats.Context(ctx), nats.ExpectStream(p.stream))
	return err
}

func (p *Provider) LoadEventsSince(ctx context.Context, entityTypeName, entityID string, since time.Time) ([]*booster.Envelope, error) {
	subject := p.subject(entityTypeName, entityID)

	last, err := p.js.GetLastMsg(p.stream, subject)
	if errors.Is(err, nats.ErrMsgNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// Ephemeral ordered consumer.. read as fast as possible with least
	// overhead.
	sub, err := p.js.SubscribeSync(subject, nats.OrderedConsumer(), nats.DeliverAll())
	if err != nil {
		return nil, err
	}
	defer func() { _ = sub.Unsubscribe() }()

	var events []*booster.Envelope
	for {
		msg, err := sub.NextMsgWithContext(ctx)
		if err != nil {
			return nil, err
		}

		event, seq, err := p.unpackEvent(msg)
		if err != nil {
			return nil, err
		}

		if event.CreatedAt.After(since) {
			events = append(events, event)
		}

		if seq == last.Sequence {
			break
		}
	}

	return events, nil
}

func (p *Provider) LoadLatestSnapshot(_ context.Context, entityTypeName, entityID string, at time.Time) (*booster.Envelope, error) {
	entry, err := p.kv.Get(snapshotKey(entityTypeName, entityID))
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snap, err := wire.Unmarshal(entry.Value(), p.types)
	if err != nil {
		return nil, err
	}

	if !at.IsZero() && snap.CreatedAt.After(at) {
		return nil, nil
	}

	return snap, nil
}

func (p *Provider) StoreSnapshot(_ context.Context, snap *booster.Envelope) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	if snap.Kind != booster.KindSnapshot {
		return ErrNotASnapshot
	}

	b, err := wire.Marshal(snap, p.types)
	if err != nil {
		return err
	}

	_, err = p.kv.Put(snapshotKey(snap.EntityTypeName, snap.EntityID), b)
	return err
}

var _ booster.Provider = (*Provider)(nil)
