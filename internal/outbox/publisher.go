package outbox

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// ChangePublisher writes change events to the single agenda change topic.
// Records are balanced by a hash of the message key, so all events for one
// owner land on the same partition and stay ordered.
type ChangePublisher struct {
	writer *kafka.Writer
}

// NewChangePublisher creates a publisher for the given brokers and topic.
func NewChangePublisher(brokers []string, topic string) *ChangePublisher {
	return &ChangePublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
		},
	}
}

func (p *ChangePublisher) Publish(ctx context.Context, records ...kafka.Message) error {
	return p.writer.WriteMessages(ctx, records...)
}

func (p *ChangePublisher) Close() error {
	return p.writer.Close()
}
