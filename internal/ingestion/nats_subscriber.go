package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"FanLedger/internal/observability"
)

const (
	// BridgeStreamName holds confirmed currency deposits from the payment
	// bridge, partitioned by subject token.
	BridgeStreamName    = "FAN_BRIDGE"
	BridgeSubjects      = "fan.bridge.deposits.>"
	BridgeConsumerName  = "ledger-deposits"
	OutboundStreamName  = "FAN_LEDGER_EVENTS"
	OutboundSubjectBase = "fan.ledger.events"
)

// RawMessage is a bridge message pulled off NATS, ready for the ingestion
// loop to parse and submit to the core. Ack only after the core accepted
// (or deduplicated) the operation; Nak triggers redelivery.
type RawMessage struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func()
	NakFunc   func()
}

// BridgeSubscriber subscribes to the bridge deposit stream and feeds
// messages into the ingestion loop.
type BridgeSubscriber struct {
	js        jetstream.JetStream
	msgChan   chan<- RawMessage
	consumers []jetstream.ConsumeContext
	log       zerolog.Logger
}

func NewBridgeSubscriber(js jetstream.JetStream, msgChan chan<- RawMessage) *BridgeSubscriber {
	return &BridgeSubscriber{
		js:      js,
		msgChan: msgChan,
		log:     observability.NewLogger("nats-subscriber"),
	}
}

// Subscribe creates the durable JetStream consumer for bridge deposits.
// Explicit ACK, max_deliver=5, ack_wait=30s.
func (bs *BridgeSubscriber) Subscribe(ctx context.Context) error {
	consumer, err := bs.js.CreateOrUpdateConsumer(ctx, BridgeStreamName, jetstream.ConsumerConfig{
		Durable:       BridgeConsumerName,
		FilterSubject: BridgeSubjects,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", BridgeConsumerName, err)
	}

	consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
		raw := RawMessage{
			Subject:   msg.Subject(),
			Data:      msg.Data(),
			Timestamp: time.Now(),
			AckFunc:   func() { msg.Ack() },
			NakFunc:   func() { msg.Nak() },
		}

		select {
		case bs.msgChan <- raw:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", BridgeConsumerName, err)
	}

	bs.consumers = append(bs.consumers, consumerContext)
	bs.log.Info().Str("subject", BridgeSubjects).Str("consumer", BridgeConsumerName).Msg("subscribed")
	return nil
}

// Stop gracefully stops all consumers.
func (bs *BridgeSubscriber) Stop() {
	for _, cc := range bs.consumers {
		cc.Stop()
	}
	bs.log.Info().Msg("bridge subscriber stopped")
}

// EnsureStreams creates the required JetStream streams if they don't exist.
// Streams use file storage with limits-based retention.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      BridgeStreamName,
			Subjects:  []string{BridgeSubjects},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      OutboundStreamName,
			Subjects:  []string{OutboundSubjectBase + ".>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	log := observability.NewLogger("nats")

	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
