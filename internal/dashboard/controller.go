// Package dashboard maintains a live, locally mutable view over one owner's
// activities. It subscribes to the change feed, replaces its snapshot
// wholesale on every delivery, and applies optimistic updates for mutations
// issued through it.
package dashboard

import (
	"context"
	"log"
	"sync"
	"time"

	"example.com/agenda/internal/domain"
)

// State describes the controller's subscription lifecycle.
type State int

const (
	StateUnsubscribed State = iota
	StateSubscribing
	StateActive
	StateError
)

func (s State) String() string {
	switch s {
	case StateUnsubscribed:
		return "unsubscribed"
	case StateSubscribing:
		return "subscribing"
	case StateActive:
		return "active"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

const statusTTL = 4 * time.Second

// Subscriber delivers activity snapshots for an owner.
type Subscriber interface {
	Subscribe(ownerID string, onUpdate func([]domain.Activity), onError func(error)) func()
}

// Mutator applies activity mutations.
type Mutator interface {
	SetCompletion(ctx context.Context, ownerID, activityID string, completed bool) (*domain.Activity, error)
	Delete(ctx context.Context, ownerID, activityID string) error
}

// Controller holds the live view for one owner.
type Controller struct {
	ownerID    string
	subscriber Subscriber
	mutator    Mutator
	logger     *log.Logger

	mu          sync.Mutex
	state       State
	activities  []domain.Activity
	lastErr     error
	unsubscribe func()

	statusMsg   string
	statusUntil time.Time
}

// NewController builds a controller for the given owner.
func NewController(ownerID string, subscriber Subscriber, mutator Mutator, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{
		ownerID:    ownerID,
		subscriber: subscriber,
		mutator:    mutator,
		logger:     logger,
		state:      StateUnsubscribed,
	}
}

// Start opens the subscription. Calling Start while subscribed is a no-op.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.state == StateSubscribing || c.state == StateActive {
		c.mu.Unlock()
		return
	}
	c.state = StateSubscribing
	c.lastErr = nil
	c.mu.Unlock()

	unsubscribe := c.subscriber.Subscribe(c.ownerID, c.onUpdate, c.onError)

	c.mu.Lock()
	c.unsubscribe = unsubscribe
	c.mu.Unlock()
}

// Stop closes the subscription. The last snapshot is retained so the view
// does not flicker empty during a resubscribe.
func (c *Controller) Stop() {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.state = StateUnsubscribed
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Resubscribe tears down any existing subscription and opens a fresh one.
// It is the recovery path after the stream enters the error state.
func (c *Controller) Resubscribe() {
	c.Stop()
	c.Start()
}

func (c *Controller) onUpdate(activities []domain.Activity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateActive
	c.lastErr = nil
	c.activities = activities
}

func (c *Controller) onError(err error) {
	c.logger.Printf("activity stream failed for owner %s: %v", c.ownerID, err)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateError
	c.lastErr = err
	c.unsubscribe = nil
	c.setStatusLocked("live updates unavailable")
}

// Snapshot returns the current state and a copy of the activities.
func (c *Controller) Snapshot() (State, []domain.Activity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Activity, len(c.activities))
	copy(out, c.activities)
	return c.state, out
}

// Err returns the error that moved the controller into StateError, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// ToggleCompletion flips an activity's completion optimistically, then
// applies it through the service. On failure the local flip is reverted and
// a transient status message is set.
func (c *Controller) ToggleCompletion(ctx context.Context, activityID string) error {
	c.mu.Lock()
	idx := c.indexLocked(activityID)
	if idx < 0 {
		c.mu.Unlock()
		return domain.ErrActivityNotFound
	}
	target := !c.activities[idx].IsCompleted
	c.applyCompletionLocked(idx, target)
	c.mu.Unlock()

	if _, err := c.mutator.SetCompletion(ctx, c.ownerID, activityID, target); err != nil {
		c.mu.Lock()
		if idx := c.indexLocked(activityID); idx >= 0 {
			c.applyCompletionLocked(idx, !target)
		}
		c.setStatusLocked("could not update activity")
		c.mu.Unlock()
		return err
	}
	return nil
}

// Delete removes an activity optimistically, restoring it if the service
// rejects the deletion.
func (c *Controller) Delete(ctx context.Context, activityID string) error {
	c.mu.Lock()
	idx := c.indexLocked(activityID)
	if idx < 0 {
		c.mu.Unlock()
		return domain.ErrActivityNotFound
	}
	removed := c.activities[idx]
	c.activities = append(c.activities[:idx:idx], c.activities[idx+1:]...)
	c.mu.Unlock()

	if err := c.mutator.Delete(ctx, c.ownerID, activityID); err != nil {
		c.mu.Lock()
		// A delivery may have replaced the snapshot while the lock was
		// released, so the captured index can be stale or past the end of
		// the current slice. Reinsert only if the activity is still absent,
		// clamping the position to the current length.
		if c.indexLocked(activityID) < 0 {
			at := idx
			if at > len(c.activities) {
				at = len(c.activities)
			}
			restored := make([]domain.Activity, 0, len(c.activities)+1)
			restored = append(restored, c.activities[:at]...)
			restored = append(restored, removed)
			restored = append(restored, c.activities[at:]...)
			c.activities = restored
		}
		c.setStatusLocked("could not delete activity")
		c.mu.Unlock()
		return err
	}
	return nil
}

// Status returns the transient status message, or empty once it has aged
// out.
func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Now().After(c.statusUntil) {
		return ""
	}
	return c.statusMsg
}

func (c *Controller) setStatusLocked(msg string) {
	c.statusMsg = msg
	c.statusUntil = time.Now().Add(statusTTL)
}

func (c *Controller) indexLocked(activityID string) int {
	for i := range c.activities {
		if c.activities[i].ID == activityID {
			return i
		}
	}
	return -1
}

func (c *Controller) applyCompletionLocked(idx int, completed bool) {
	c.activities[idx].IsCompleted = completed
	if completed {
		now := time.Now()
		c.activities[idx].CompletedAt = &now
	} else {
		c.activities[idx].CompletedAt = nil
	}
}
