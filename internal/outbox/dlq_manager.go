package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sweeper replays parked dead-letter entries back into the outbox. Each
// failed replay doubles the entry's retry delay; entries that exhaust their
// retries are quarantined and left for manual inspection.
type Sweeper struct {
	pool       *pgxpool.Pool
	maxRetries int
	baseDelay  time.Duration
}

func NewSweeper(pool *pgxpool.Pool, maxRetries int, baseDelay time.Duration) *Sweeper {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	return &Sweeper{pool: pool, maxRetries: maxRetries, baseDelay: baseDelay}
}

// Sweep processes up to limit due entries and reports how many were replayed
// or quarantined. Entry-level failures are joined into the returned error but
// do not stop the sweep.
func (s *Sweeper) Sweep(ctx context.Context, limit int) (int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT dlq_id, owner_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count
		   FROM outbox_dlq
		  WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		  ORDER BY created_at
		  LIMIT $1`, limit)
	if err != nil {
		return 0, err
	}

	entries, err := pgx.CollectRows(rows, pgx.RowToStructByPos[deadLetter])
	if err != nil {
		return 0, err
	}

	var errs error
	swept := 0
	for _, entry := range entries {
		if sweepErr := s.sweepEntry(ctx, entry); sweepErr != nil {
			errs = errors.Join(errs, sweepErr)
			continue
		}
		swept++
	}

	s.observeBacklog(ctx)
	return swept, errs
}

func (s *Sweeper) sweepEntry(ctx context.Context, entry deadLetter) error {
	return inOwnerTx(ctx, s.pool, entry.OwnerID, func(tx pgx.Tx) error {
		if entry.RetryCount >= s.maxRetries {
			return s.quarantine(ctx, tx, entry)
		}
		// The replay runs under a savepoint so a failed insert leaves the
		// transaction usable for the reschedule update.
		if err := attemptReplay(ctx, tx, entry); err != nil {
			return s.reschedule(ctx, tx, entry, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID); err != nil {
			return err
		}
		sweepResults.WithLabelValues(entry.EventType, "replayed").Inc()
		return nil
	})
}

func (s *Sweeper) quarantine(ctx context.Context, tx pgx.Tx, entry deadLetter) error {
	_, err := tx.Exec(ctx,
		`UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`,
		"retry limit reached", entry.ID)
	if err != nil {
		return err
	}
	sweepResults.WithLabelValues(entry.EventType, "quarantined").Inc()
	return nil
}

// reschedule records the replay failure and pushes the next attempt out by
// an exponentially growing delay.
func (s *Sweeper) reschedule(ctx context.Context, tx pgx.Tx, entry deadLetter, cause error) error {
	_, err := tx.Exec(ctx,
		`UPDATE outbox_dlq
		    SET retry_count = retry_count + 1,
		        last_attempt_at = NOW(),
		        next_retry_at = NOW() + $1::interval,
		        reason = $2
		  WHERE dlq_id = $3`,
		s.backoffDelay(entry.RetryCount+1), cause.Error(), entry.ID)
	if err != nil {
		return err
	}
	sweepResults.WithLabelValues(entry.EventType, "rescheduled").Inc()
	return nil
}

// backoffDelay doubles per attempt starting from the base delay, capped at
// one hour.
func (s *Sweeper) backoffDelay(attempt int) time.Duration {
	delay := time.Duration(1<<uint(attempt-1)) * s.baseDelay
	if delay > time.Hour {
		delay = time.Hour
	}
	return delay
}

func (s *Sweeper) observeBacklog(ctx context.Context) {
	var pending int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL`).Scan(&pending); err != nil {
		return
	}
	dlqBacklog.Set(float64(pending))
}

func attemptReplay(ctx context.Context, tx pgx.Tx, entry deadLetter) error {
	if entry.SchemaSubject == "" {
		return fmt.Errorf("dead letter %d has no schema subject", entry.ID)
	}

	sub, err := tx.Begin(ctx)
	if err != nil {
		return err
	}
	if err := replayIntoOutbox(ctx, sub, entry); err != nil {
		sub.Rollback(ctx)
		return err
	}
	return sub.Commit(ctx)
}

func replayIntoOutbox(ctx context.Context, tx pgx.Tx, entry deadLetter) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO outbox (owner_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		entry.OwnerID, entry.AggregateType, entry.AggregateID, entry.EventType,
		entry.Topic, entry.SchemaSubject, entry.PartitionKey, entry.Payload)
	return err
}

type deadLetter struct {
	ID            int64
	OwnerID       string
	EventID       int64
	EventType     string
	Topic         string
	Payload       []byte
	Reason        string
	AggregateType string
	AggregateID   string
	SchemaSubject string
	PartitionKey  string
	RetryCount    int
}
