package outbox

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// inOwnerTx runs fn inside a transaction whose app.owner_id setting matches
// the given owner, so row-level security sees the rows being touched.
func inOwnerTx(ctx context.Context, pool *pgxpool.Pool, ownerID string, fn func(pgx.Tx) error) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.owner_id', $1, true)", ownerID); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// parkMessage stores an undeliverable outbox message in outbox_dlq. The entry
// becomes eligible for replay immediately; the sweeper spaces out subsequent
// attempts.
func parkMessage(ctx context.Context, pool *pgxpool.Pool, msg Message, reason string) error {
	return inOwnerTx(ctx, pool, msg.OwnerID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO outbox_dlq (owner_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, next_retry_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, NOW())`,
			msg.OwnerID, msg.EventID, msg.EventType, msg.Topic, msg.Payload, reason,
			msg.AggregateType, msg.AggregateID, msg.SchemaSubject, msg.PartitionKey)
		return err
	})
}
