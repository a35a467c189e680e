// Package outbox persists and delivers activity change events to Kafka.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
)

type publisher interface {
	Publish(context.Context, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Message is one row of the outbox table.
type Message struct {
	EventID       int64
	OwnerID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
}

// Dispatcher drains unpublished outbox rows and hands them to the change
// publisher, framing each payload with its registered schema ID. Rows that
// cannot be delivered are parked in the dead-letter table instead of blocking
// the queue.
type Dispatcher struct {
	pool     *pgxpool.Pool
	pub      publisher
	registry schemaRegistrar
	interval time.Duration
	limit    int

	schemaIDs sync.Map // subject -> int
	stopped   chan struct{}
}

// NewDispatcher constructs a Dispatcher. Call Start in a goroutine and Wait
// during shutdown.
func NewDispatcher(pool *pgxpool.Pool, pub publisher, registry schemaRegistrar, interval time.Duration, limit int) *Dispatcher {
	return &Dispatcher{
		pool:     pool,
		pub:      pub,
		registry: registry,
		interval: interval,
		limit:    limit,
		stopped:  make(chan struct{}),
	}
}

// Start polls the outbox until the context is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	defer close(d.stopped)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if err := d.drainOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("outbox: drain failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until the polling loop has exited.
func (d *Dispatcher) Wait() {
	<-d.stopped
}

func (d *Dispatcher) drainOnce(ctx context.Context) error {
	started := time.Now()

	batch, err := d.claimBatch(ctx)
	if err != nil || len(batch) == 0 {
		return err
	}
	defer func() { batchDuration.Observe(time.Since(started).Seconds()) }()

	if err := d.deliver(ctx, batch); err != nil {
		log.Printf("outbox: delivery failed, parking %d messages: %v", len(batch), err)
		failedTotal.Add(float64(len(batch)))
		for _, msg := range batch {
			if parkErr := parkMessage(ctx, d.pool, msg, err.Error()); parkErr != nil {
				return parkErr
			}
			parkedTotal.WithLabelValues(msg.EventType).Inc()
		}
		return d.markPublished(ctx, batch)
	}

	deliveredTotal.Add(float64(len(batch)))
	return d.markPublished(ctx, batch)
}

// claimBatch locks up to limit unpublished rows and stamps them claimed.
// SKIP LOCKED keeps concurrent dispatchers from handing out the same rows.
func (d *Dispatcher) claimBatch(ctx context.Context) ([]Message, error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`SELECT event_id, owner_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload
		   FROM outbox
		  WHERE published_at IS NULL
		  ORDER BY event_id
		  LIMIT $1
		    FOR UPDATE SKIP LOCKED`, d.limit)
	if err != nil {
		return nil, err
	}

	batch, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Message])
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(batch))
	for i, msg := range batch {
		ids[i] = msg.EventID
	}
	if _, err := tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, ids); err != nil {
		return nil, err
	}
	return batch, tx.Commit(ctx)
}

func (d *Dispatcher) deliver(ctx context.Context, batch []Message) error {
	records := make([]kafka.Message, 0, len(batch))
	for _, msg := range batch {
		id, err := d.schemaID(ctx, msg)
		if err != nil {
			return err
		}
		records = append(records, kafka.Message{
			Key:   []byte(msg.PartitionKey),
			Value: encodeWireFormat(id, msg.Payload),
			Time:  time.Now().UTC(),
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(msg.EventType)},
				{Key: "owner_id", Value: []byte(msg.OwnerID)},
				{Key: "schema_subject", Value: []byte(msg.SchemaSubject)},
			},
		})
	}
	return d.pub.Publish(ctx, records...)
}

// schemaID resolves the registry ID for the message's subject, registering
// the schema on first use and caching the result for the process lifetime.
func (d *Dispatcher) schemaID(ctx context.Context, msg Message) (int, error) {
	if cached, ok := d.schemaIDs.Load(msg.SchemaSubject); ok {
		return cached.(int), nil
	}

	schema, ok := changeSchemas[msg.EventType]
	if !ok {
		return 0, fmt.Errorf("outbox: no schema registered for event type %q", msg.EventType)
	}
	id, err := d.registry.EnsureSchema(ctx, msg.SchemaSubject, schema)
	if err != nil {
		return 0, err
	}
	d.schemaIDs.Store(msg.SchemaSubject, id)
	return id, nil
}

// markPublished stamps the rows published, one owner-scoped transaction per
// owner so RLS stays in force.
func (d *Dispatcher) markPublished(ctx context.Context, batch []Message) error {
	byOwner := make(map[string][]int64)
	for _, msg := range batch {
		byOwner[msg.OwnerID] = append(byOwner[msg.OwnerID], msg.EventID)
	}

	for ownerID, ids := range byOwner {
		err := inOwnerTx(ctx, d.pool, ownerID, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, ids)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// encodeWireFormat frames a payload for Schema Registry aware consumers: a
// zero magic byte, the schema ID big-endian, then the JSON document.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}
