// Package events defines the change-event payloads carried by the outbox.
package events

import "time"

// ActivityCreated is emitted when a new activity is persisted.
type ActivityCreated struct {
	ActivityID  string     `json:"activity_id"`
	OwnerID     string     `json:"owner_id"`
	Text        string     `json:"text"`
	IsCompleted bool       `json:"is_completed"`
	CreatedAt   time.Time  `json:"created_at"`
	Comment     string     `json:"comment,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
}

// ActivityCompletionChanged is emitted when the completion flag flips.
type ActivityCompletionChanged struct {
	ActivityID  string     `json:"activity_id"`
	OwnerID     string     `json:"owner_id"`
	IsCompleted bool       `json:"is_completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

// ActivityDeleted is emitted when an activity is removed.
type ActivityDeleted struct {
	ActivityID string    `json:"activity_id"`
	OwnerID    string    `json:"owner_id"`
	OccurredAt time.Time `json:"occurred_at"`
}
