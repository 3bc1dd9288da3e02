package events

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter é o subconjunto de *kafka.Writer usado pelo Relay
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter cria o writer do tópico de pedidos
func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// Relay publica periodicamente os eventos pendentes do outbox no Kafka
type Relay struct {
	outbox    Outbox
	writer    MessageWriter
	logger    *zap.Logger
	interval  time.Duration
	batchSize int
	observe   func(ok bool)
}

// NewRelay cria uma nova instância de Relay
func NewRelay(outbox Outbox, writer MessageWriter, interval time.Duration, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Relay{
		outbox:    outbox,
		writer:    writer,
		logger:    logger,
		interval:  interval,
		batchSize: 100,
		observe:   func(bool) {},
	}
}

// OnPublish registra fn para ser chamada após cada tentativa de envio
func (r *Relay) OnPublish(fn func(ok bool)) *Relay {
	if fn != nil {
		r.observe = fn
	}
	return r
}

// Run publica até ctx ser cancelado e então fecha o writer
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	defer func() {
		if err := r.writer.Close(); err != nil {
			r.logger.Warn("failed to close kafka writer", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ticker.C:
			r.PublishPending(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

// PublishPending publishes one batch in id order and returns how many events were marked.
// It stops at the first publish failure so events for one order keep their order.
func (r *Relay) PublishPending(ctx context.Context) int {
	events, err := r.outbox.FetchUnpublished(ctx, r.batchSize)
	if err != nil {
		r.logger.Error("failed to fetch outbox events", zap.Error(err))
		return 0
	}

	published := 0
	for _, event := range events {
		msg := kafka.Message{
			Key:   []byte(event.AggregateID),
			Value: event.Payload,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(event.EventType)},
			},
		}
		if err := r.writer.WriteMessages(ctx, msg); err != nil {
			r.observe(false)
			r.logger.Error("failed to publish outbox event",
				zap.Int64("event_id", event.ID),
				zap.String("event_type", event.EventType),
				zap.Error(err),
			)
			return published
		}
		if err := r.outbox.MarkPublished(ctx, event.ID); err != nil {
			r.logger.Error("failed to mark outbox event as published", zap.Int64("event_id", event.ID), zap.Error(err))
			return published
		}
		r.observe(true)
		published++
	}

	if published > 0 {
		r.logger.Debug("outbox events published", zap.Int("count", published))
	}
	return published
}
