package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/agenda/internal/domain"
	"example.com/agenda/internal/events"
	"example.com/agenda/internal/observability"
)

const activityColumns = `activity_id, owner_id, text, is_completed, created_at, comment, priority, starts_at, ends_at, completed_at`

// Repository provides Postgres-backed persistence for activities and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create persists the activity and records the created event inside a single
// transaction. A per-owner advisory lock plus an in-transaction window check
// close the race between concurrent creators: the service-level conflict
// check is advisory, this one is authoritative.
func (r *Repository) Create(ctx context.Context, activity domain.Activity) (*domain.Activity, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.owner_id', $1, true)", activity.OwnerID); err != nil {
		return nil, err
	}

	if activity.HasWindow() {
		if _, err = tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", activity.OwnerID); err != nil {
			return nil, err
		}

		const guard = `SELECT activity_id FROM activities
	        WHERE owner_id=$1 AND is_completed=FALSE
	          AND starts_at IS NOT NULL AND ends_at IS NOT NULL
	          AND starts_at < $3 AND $2 < ends_at
	        LIMIT 1`

		var conflicting string
		err = tx.QueryRow(ctx, guard, activity.OwnerID, activity.StartsAt, activity.EndsAt).Scan(&conflicting)
		if err == nil {
			err = domain.ErrSchedulingConflict
			return nil, err
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		err = nil
	}

	const insertActivity = `INSERT INTO activities (activity_id, owner_id, text, is_completed, comment, priority, starts_at, ends_at, completed_at)
	        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	        RETURNING created_at`

	written := activity
	err = tx.QueryRow(ctx, insertActivity,
		activity.ID,
		activity.OwnerID,
		activity.Text,
		activity.IsCompleted,
		nullIfEmpty(activity.Comment),
		nullIfEmpty(string(activity.Priority)),
		activity.StartsAt,
		activity.EndsAt,
		activity.CompletedAt,
	).Scan(&written.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err = r.insertOutbox(ctx, tx, written.OwnerID, written.ID, "activity.created", events.ActivityCreated{
		ActivityID:  written.ID,
		OwnerID:     written.OwnerID,
		Text:        written.Text,
		IsCompleted: written.IsCompleted,
		CreatedAt:   written.CreatedAt,
		Comment:     written.Comment,
		Priority:    string(written.Priority),
		StartsAt:    written.StartsAt,
		EndsAt:      written.EndsAt,
	}); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	observability.RecordActivityPersisted(written.CreatedAt)
	return &written, nil
}

// Get retrieves an activity by id within the owner's scope. A missing row
// yields (nil, nil).
func (r *Repository) Get(ctx context.Context, ownerID, activityID string) (*domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE owner_id=$1 AND activity_id=$2`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.owner_id', $1, true)", ownerID); err != nil {
		return nil, err
	}

	activity, err := scanActivity(tx.QueryRow(ctx, query, ownerID, activityID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := tx.Commit(ctx); err != nil {
				return nil, err
			}
			return nil, nil
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return activity, nil
}

// ListByOwner returns the owner's activities newest first. Creation instants
// share a server clock, so the id breaks ties deterministically.
func (r *Repository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities
	        WHERE owner_id=$1
	        ORDER BY created_at DESC, activity_id DESC`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.owner_id', $1, true)", ownerID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Activity, 0)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *activity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

// ListOpenWindows returns the scheduling windows of the owner's non-completed
// activities, excluding excludeID when non-empty.
func (r *Repository) ListOpenWindows(ctx context.Context, ownerID, excludeID string) ([]domain.Window, error) {
	args := []interface{}{ownerID}
	query := `SELECT activity_id, starts_at, ends_at FROM activities
	        WHERE owner_id=$1 AND is_completed=FALSE
	          AND starts_at IS NOT NULL AND ends_at IS NOT NULL`

	if excludeID != "" {
		query += ` AND activity_id <> $2`
		args = append(args, excludeID)
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.owner_id', $1, true)", ownerID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	windows := make([]domain.Window, 0)
	for rows.Next() {
		var w domain.Window
		if err := rows.Scan(&w.ActivityID, &w.StartsAt, &w.EndsAt); err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return windows, nil
}

// SetCompletion flips the completion flag, maintaining the completed_at rule
// (present iff completed) with the server clock, and records the change event.
func (r *Repository) SetCompletion(ctx context.Context, ownerID, activityID string, completed bool) (*domain.Activity, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.owner_id', $1, true)", ownerID); err != nil {
		return nil, err
	}

	update := `UPDATE activities
	        SET is_completed=$3,
	            completed_at=CASE WHEN $3 THEN NOW() ELSE NULL END
	        WHERE owner_id=$1 AND activity_id=$2
	        RETURNING ` + activityColumns

	activity, err := scanActivity(tx.QueryRow(ctx, update, ownerID, activityID, completed))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = domain.ErrActivityNotFound
		}
		return nil, err
	}

	if err = r.insertOutbox(ctx, tx, ownerID, activityID, "activity.completion_changed", events.ActivityCompletionChanged{
		ActivityID:  activity.ID,
		OwnerID:     activity.OwnerID,
		IsCompleted: activity.IsCompleted,
		CompletedAt: activity.CompletedAt,
		OccurredAt:  time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return activity, nil
}

// Delete removes the activity. Deleting an id that does not exist is a
// success and emits no event.
func (r *Repository) Delete(ctx context.Context, ownerID, activityID string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.owner_id', $1, true)", ownerID); err != nil {
		return err
	}

	var deletedID string
	err = tx.QueryRow(ctx, `DELETE FROM activities WHERE owner_id=$1 AND activity_id=$2 RETURNING activity_id`, ownerID, activityID).Scan(&deletedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = nil
			return tx.Commit(ctx)
		}
		return err
	}

	if err = r.insertOutbox(ctx, tx, ownerID, activityID, "activity.deleted", events.ActivityDeleted{
		ActivityID: activityID,
		OwnerID:    ownerID,
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, ownerID, activityID, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta := eventCatalog[eventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	dedupeKey := fmt.Sprintf("%s:%s:%d", activityID, eventType, time.Now().UnixNano())

	const stmt = `INSERT INTO outbox (owner_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
	        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		ownerID,
		"activity",
		activityID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		ownerID,
		body,
		dedupeKey,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivity(row rowScanner) (*domain.Activity, error) {
	var (
		activity domain.Activity
		comment  *string
		priority *string
	)
	if err := row.Scan(
		&activity.ID,
		&activity.OwnerID,
		&activity.Text,
		&activity.IsCompleted,
		&activity.CreatedAt,
		&comment,
		&priority,
		&activity.StartsAt,
		&activity.EndsAt,
		&activity.CompletedAt,
	); err != nil {
		return nil, err
	}
	if comment != nil {
		activity.Comment = *comment
	}
	if priority != nil {
		activity.Priority = domain.Priority(*priority)
	}
	return &activity, nil
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

// All change events share one topic partitioned by owner so that each
// owner's feed is totally ordered.
var eventCatalog = map[string]EventMetadata{
	"activity.created": {
		Topic:         "activity_changes",
		SchemaSubject: "activity_created-value",
	},
	"activity.completion_changed": {
		Topic:         "activity_changes",
		SchemaSubject: "activity_completion_changed-value",
	},
	"activity.deleted": {
		Topic:         "activity_changes",
		SchemaSubject: "activity_deleted-value",
	},
}
