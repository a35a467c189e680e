package domain

import "time"

// Priority ranks an activity. The zero value means no priority was assigned.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether the priority is one of the known levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Activity is the canonical record stored in PostgreSQL and replayed to
// live subscribers.
type Activity struct {
	ID          string
	OwnerID     string
	Text        string
	IsCompleted bool
	CreatedAt   time.Time
	Comment     string
	Priority    Priority
	StartsAt    *time.Time
	EndsAt      *time.Time
	CompletedAt *time.Time
}

// HasWindow reports whether both scheduling instants are present.
func (a Activity) HasWindow() bool {
	return a.StartsAt != nil && a.EndsAt != nil
}

// Window is the scheduling slice of an activity inspected by the conflict check.
type Window struct {
	ActivityID string
	StartsAt   time.Time
	EndsAt     time.Time
}
