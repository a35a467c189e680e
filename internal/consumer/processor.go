// Package consumer pulls change events off Kafka and hands them to a handler.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Reader is the slice of kafka.Reader the processor depends on.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives one decoded change event per delivery. Returning an error
// leaves the offset uncommitted, so the event is redelivered.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is a decoded change event.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	OwnerID       string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Processor runs the fetch/decode/handle/commit loop. Records that cannot be
// decoded are committed anyway, otherwise one bad record would wedge its
// partition forever.
type Processor struct {
	reader  Reader
	handler Handler
	logger  *log.Logger
}

// NewProcessor constructs a Processor. A nil logger falls back to the default
// log output with a package prefix.
func NewProcessor(reader Reader, handler Handler, logger *log.Logger) *Processor {
	if logger == nil {
		logger = log.New(log.Writer(), "[consumer] ", log.LstdFlags)
	}
	return &Processor{reader: reader, handler: handler, logger: logger}
}

// Run blocks until the context is cancelled, returning the context's error.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.step(ctx); err != nil {
			return err
		}
	}
}

func (p *Processor) step(ctx context.Context) error {
	record, err := p.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		p.logger.Printf("fetch: %v", err)
		return nil
	}

	event, err := decodeRecord(record)
	if err != nil {
		p.logger.Printf("undecodable record at %s[%d]@%d: %v", record.Topic, record.Partition, record.Offset, err)
		recordDecodeFailure(record.Topic)
		if commitErr := p.reader.CommitMessages(ctx, record); commitErr != nil {
			p.logger.Printf("commit after decode failure: %v", commitErr)
		}
		return nil
	}

	if err := p.handler.Handle(ctx, event); err != nil {
		p.logger.Printf("handler rejected %s for owner %s: %v", event.EventType, event.OwnerID, err)
		recordResult(event, "handler_error")
		return nil
	}

	if err := p.reader.CommitMessages(ctx, record); err != nil {
		p.logger.Printf("commit: %v", err)
		return nil
	}
	recordResult(event, "ok")
	return nil
}

// decodeRecord validates the Confluent frame and required headers, returning
// the event with its raw JSON payload.
func decodeRecord(record kafka.Message) (Message, error) {
	eventType, ok := header(record, "event_type")
	if !ok {
		return Message{}, errors.New("event_type header missing")
	}

	schemaID, payload, err := splitFrame(record.Value)
	if err != nil {
		return Message{}, err
	}

	ownerID, _ := header(record, "owner_id")
	subject, _ := header(record, "schema_subject")

	return Message{
		Topic:         record.Topic,
		Partition:     record.Partition,
		Offset:        record.Offset,
		Timestamp:     record.Time,
		EventType:     eventType,
		OwnerID:       ownerID,
		SchemaSubject: subject,
		SchemaID:      schemaID,
		Payload:       payload,
	}, nil
}

// splitFrame strips the five-byte Confluent header: magic byte then the
// schema ID big-endian.
func splitFrame(value []byte) (int, json.RawMessage, error) {
	if len(value) < 5 {
		return 0, nil, fmt.Errorf("frame too short: %d bytes", len(value))
	}
	id := int(binary.BigEndian.Uint32(value[1:5]))
	payload := json.RawMessage(append([]byte(nil), value[5:]...))
	return id, payload, nil
}

func header(record kafka.Message, key string) (string, bool) {
	for _, h := range record.Headers {
		if h.Key == key {
			return string(h.Value), true
		}
	}
	return "", false
}
