package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"FanLedger/internal/observability"
)

// Publisher publishes settled operations to NATS for downstream consumers
// (notification fan-out, analytics, the bridge's withdrawal side). Events go
// out only after the core applied them; subjects follow
// fan.ledger.events.{op_type}.
type Publisher struct {
	js        jetstream.JetStream
	inputChan <-chan PublishableEvent
	log       zerolog.Logger
}

// PublishableEvent is a settled operation ready for outbound publishing.
type PublishableEvent struct {
	Sequence       int64            `json:"sequence"`
	OpType         string           `json:"op_type"`
	IdempotencyKey string           `json:"idempotency_key"`
	ActorID        string           `json:"actor_id"`
	ResourceID     string           `json:"resource_id"`
	Amounts        map[string]int64 `json:"amounts,omitempty"`
	StateHash      []byte           `json:"state_hash"`
	Timestamp      time.Time        `json:"timestamp"`
}

func NewPublisher(js jetstream.JetStream, inputChan <-chan PublishableEvent) *Publisher {
	return &Publisher{
		js:        js,
		inputChan: inputChan,
		log:       observability.NewLogger("publisher"),
	}
}

// Run starts the outbound publisher loop.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-p.inputChan:
			if !ok {
				return nil
			}

			if err := p.publish(ctx, evt); err != nil {
				// Non-fatal: downstream consumers can read the event log.
				p.log.Warn().Err(err).Int64("sequence", evt.Sequence).Msg("outbound publish failed")
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, evt PublishableEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", OutboundSubjectBase, evt.OpType)
	_, err = p.js.Publish(ctx, subject, data)
	return err
}
