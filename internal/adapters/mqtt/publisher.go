package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/holms/mpdstats/internal/ports"
	"github.com/holms/mpdstats/pkg/stats"
)

// Sender is the subset of Client used by Publisher.
type Sender interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Publisher wraps tracker events in envelopes and sends them to
// <base>/<identity>/<type>.
type Publisher struct {
	sender   Sender
	base     string
	identity string
	ids      ports.IDGen
	clock    ports.Clock
}

// NewPublisher creates a publisher for identity under base.
func NewPublisher(sender Sender, base, identity string, ids ports.IDGen, clock ports.Clock) *Publisher {
	return &Publisher{sender: sender, base: base, identity: identity, ids: ids, clock: clock}
}

// Publish sends one event. now_playing and state are retained so late
// subscribers see the current value.
func (p *Publisher) Publish(ctx context.Context, eventType string, body any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	env, err := stats.NewEnvelope(eventType, body)
	if err != nil {
		return err
	}
	env.ID = p.ids.NewID()
	env.TS = p.clock.Now().Unix()
	if err := stats.ValidateEnvelope(env); err != nil {
		return fmt.Errorf("invalid envelope: %w", err)
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	topic := stats.TopicFor(p.base, p.identity, eventType)
	return p.sender.Publish(topic, 1, stats.Retained(eventType), payload)
}
