package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/rch-registry/internal/model"
)

// BrokerPublisher publishes events as envelopes on one broker channel, so
// that every API instance relaying that channel sees them in order.
type BrokerPublisher struct {
	broker  Broker
	channel string
}

func NewBrokerPublisher(broker Broker, channel string) *BrokerPublisher {
	return &BrokerPublisher{broker: broker, channel: channel}
}

func (p *BrokerPublisher) Publish(ctx context.Context, eventType string, payload interface{}) error {
	data, err := json.Marshal(model.Envelope{Event: eventType, Data: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	return p.broker.Publish(ctx, p.channel, data)
}

func (p *BrokerPublisher) Close() error {
	return p.broker.Close()
}

// Relay forwards envelopes received on a broker channel to a local publisher
type Relay struct {
	broker  Broker
	channel string
	local   Publisher
	log     zerolog.Logger
}

func NewRelay(broker Broker, channel string, local Publisher, log zerolog.Logger) *Relay {
	return &Relay{
		broker:  broker,
		channel: channel,
		local:   local,
		log:     log.With().Str("component", "relay").Str("channel", channel).Logger(),
	}
}

// Start subscribes and forwards until ctx is cancelled or the subscription
// ends. The returned channel is closed when forwarding stops.
func (r *Relay) Start(ctx context.Context) (<-chan struct{}, error) {
	msgCh, err := r.broker.Subscribe(ctx, r.channel)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range msgCh {
			r.forward(ctx, msg)
		}
	}()
	return done, nil
}

func (r *Relay) forward(ctx context.Context, msg []byte) {
	var env struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(msg, &env); err != nil || env.Event == "" {
		r.log.Warn().Err(err).Msg("discarding malformed envelope")
		return
	}
	if err := r.local.Publish(ctx, env.Event, env.Data); err != nil {
		r.log.Warn().Err(err).Str("event", env.Event).Msg("failed to forward event")
	}
}
