// Package domain defines the business logic for the agenda service.
package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ActivityRepository captures persistence operations.
type ActivityRepository interface {
	WindowSource
	// Create persists the activity and returns the row as written, with the
	// store-assigned creation instant.
	Create(ctx context.Context, activity Activity) (*Activity, error)
	Get(ctx context.Context, ownerID, activityID string) (*Activity, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Activity, error)
	SetCompletion(ctx context.Context, ownerID, activityID string, completed bool) (*Activity, error)
	Delete(ctx context.Context, ownerID, activityID string) error
}

// Feed delivers live snapshots of an owner's activity list. Implemented by
// the feed hub; kept as an interface so the service stays testable without
// Kafka.
type Feed interface {
	Subscribe(ownerID string, onUpdate func([]Activity), onError func(error)) (unsubscribe func())
}

// Service orchestrates activity workflows.
type Service struct {
	repo    ActivityRepository
	checker *ConflictChecker
	feed    Feed
}

// NewService constructs a Service. feed may be nil for callers that never
// subscribe (batch tools, tests).
func NewService(repo ActivityRepository, checker *ConflictChecker, feed Feed) *Service {
	return &Service{repo: repo, checker: checker, feed: feed}
}

// CreateActivityInput captures the payload from the API layer.
type CreateActivityInput struct {
	OwnerID  string
	Text     string
	Comment  string
	Priority Priority
	StartsAt *time.Time
	EndsAt   *time.Time
}

// Create validates the input, runs the scheduling conflict check when a time
// window is present, and persists the activity. The returned Activity is the
// row as written, not a client-side guess.
func (s *Service) Create(ctx context.Context, input CreateActivityInput) (*Activity, error) {
	if strings.TrimSpace(input.OwnerID) == "" {
		return nil, fmt.Errorf("%w: owner id is required", ErrValidation)
	}

	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: text must not be empty", ErrValidation)
	}

	if input.Priority != "" && !input.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrValidation, input.Priority)
	}

	if (input.StartsAt == nil) != (input.EndsAt == nil) {
		return nil, fmt.Errorf("%w: start and end instants must be provided together", ErrValidation)
	}

	activity := Activity{
		ID:       uuid.NewString(),
		OwnerID:  input.OwnerID,
		Text:     text,
		Comment:  strings.TrimSpace(input.Comment),
		Priority: input.Priority,
	}

	if input.StartsAt != nil {
		start := input.StartsAt.UTC()
		end := input.EndsAt.UTC()
		if !start.Before(end) {
			return nil, fmt.Errorf("%w: start instant must be before end instant", ErrValidation)
		}
		if s.checker.HasConflict(ctx, input.OwnerID, start, end, "") {
			return nil, ErrSchedulingConflict
		}
		activity.StartsAt = &start
		activity.EndsAt = &end
	}

	return s.repo.Create(ctx, activity)
}

// Get fetches a single activity owned by ownerID.
func (s *Service) Get(ctx context.Context, ownerID, activityID string) (*Activity, error) {
	activity, err := s.repo.Get(ctx, ownerID, activityID)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}
	return activity, nil
}

// ListForOwner returns the owner's activities ordered by creation instant
// descending. An owner with no activities yields an empty slice.
func (s *Service) ListForOwner(ctx context.Context, ownerID string) ([]Activity, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrOwnerMissing
	}
	return s.repo.ListByOwner(ctx, ownerID)
}

// SetCompletion flips the completion flag. The completion instant is set by
// the store when completing and cleared when un-completing.
func (s *Service) SetCompletion(ctx context.Context, ownerID, activityID string, completed bool) (*Activity, error) {
	return s.repo.SetCompletion(ctx, ownerID, activityID, completed)
}

// Delete removes the activity. Deleting an unknown id succeeds: the store
// makes no existence guarantee for point deletes and callers must not rely
// on one.
func (s *Service) Delete(ctx context.Context, ownerID, activityID string) error {
	return s.repo.Delete(ctx, ownerID, activityID)
}

// Subscribe establishes a live snapshot feed for the owner, ordered the same
// as ListForOwner. Each relevant change delivers the full current sequence
// to onUpdate, at least once, possibly coalesced. onError fires at most once
// and terminates the subscription; recovery requires subscribing again. The
// returned unsubscribe is idempotent.
func (s *Service) Subscribe(ownerID string, onUpdate func([]Activity), onError func(error)) (unsubscribe func()) {
	if strings.TrimSpace(ownerID) == "" {
		onError(ErrOwnerMissing)
		return func() {}
	}
	return s.feed.Subscribe(ownerID, onUpdate, onError)
}
