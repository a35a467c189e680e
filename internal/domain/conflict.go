package domain

import (
	"context"
	"log"
	"time"
)

// WindowSource lists the scheduling windows of an owner's non-completed
// activities, excluding excludeID when non-empty.
type WindowSource interface {
	ListOpenWindows(ctx context.Context, ownerID, excludeID string) ([]Window, error)
}

// ConflictChecker decides whether a candidate time window collides with an
// owner's existing schedule.
type ConflictChecker struct {
	source WindowSource
	logger *log.Logger
}

// NewConflictChecker constructs a ConflictChecker over the given source.
func NewConflictChecker(source WindowSource) *ConflictChecker {
	return &ConflictChecker{
		source: source,
		logger: log.New(log.Writer(), "[conflict] ", log.LstdFlags),
	}
}

// HasConflict reports whether [start, end) overlaps any non-completed
// activity window of the owner. The caller must guarantee start < end.
//
// If the window query fails, the checker degrades to "no conflict" instead of
// blocking creation: availability is deliberately favored over strict
// scheduling correctness. The degrade is logged and counted so it cannot
// pass silently; the transactional guard in the repository still rejects a
// conflicting insert.
func (c *ConflictChecker) HasConflict(ctx context.Context, ownerID string, start, end time.Time, excludeID string) bool {
	windows, err := c.source.ListOpenWindows(ctx, ownerID, excludeID)
	if err != nil {
		c.logger.Printf("window query failed, degrading to no-conflict (owner=%s): %v", ownerID, err)
		recordConflictCheckDegraded()
		return false
	}

	for _, w := range windows {
		if overlaps(start, end, w.StartsAt, w.EndsAt) {
			return true
		}
	}
	return false
}

// overlaps applies the half-open interval test: [a,b) and [c,d) overlap iff
// a < d and c < b. Windows that merely touch do not conflict.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
