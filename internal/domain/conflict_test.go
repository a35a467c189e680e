package domain

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubWindowSource struct {
	windows []Window
	err     error

	lastOwner   string
	lastExclude string
}

func (s *stubWindowSource) ListOpenWindows(_ context.Context, ownerID, excludeID string) ([]Window, error) {
	s.lastOwner = ownerID
	s.lastExclude = excludeID
	return s.windows, s.err
}

func TestHasConflictHalfOpenIntervals(t *testing.T) {
	base := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	existing := Window{
		ActivityID: "act-1",
		StartsAt:   base,
		EndsAt:     base.Add(time.Hour),
	}

	cases := []struct {
		name  string
		start time.Time
		end   time.Time
		want  bool
	}{
		{"identical", base, base.Add(time.Hour), true},
		{"contained", base.Add(10 * time.Minute), base.Add(20 * time.Minute), true},
		{"overlaps start", base.Add(-30 * time.Minute), base.Add(30 * time.Minute), true},
		{"overlaps end", base.Add(30 * time.Minute), base.Add(90 * time.Minute), true},
		{"surrounds", base.Add(-time.Hour), base.Add(2 * time.Hour), true},
		{"touches end", base.Add(time.Hour), base.Add(2 * time.Hour), false},
		{"touches start", base.Add(-time.Hour), base, false},
		{"well before", base.Add(-3 * time.Hour), base.Add(-2 * time.Hour), false},
		{"well after", base.Add(3 * time.Hour), base.Add(4 * time.Hour), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			source := &stubWindowSource{windows: []Window{existing}}
			checker := NewConflictChecker(source)

			got := checker.HasConflict(context.Background(), "owner-1", tc.start, tc.end, "")
			if got != tc.want {
				t.Fatalf("expected conflict=%v for [%s, %s)", tc.want, tc.start, tc.end)
			}
		})
	}
}

func TestHasConflictPassesExcludeID(t *testing.T) {
	source := &stubWindowSource{}
	checker := NewConflictChecker(source)

	base := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	checker.HasConflict(context.Background(), "owner-1", base, base.Add(time.Hour), "act-9")

	if source.lastOwner != "owner-1" {
		t.Fatalf("expected owner-1 got %s", source.lastOwner)
	}
	if source.lastExclude != "act-9" {
		t.Fatalf("expected exclude act-9 got %s", source.lastExclude)
	}
}

func TestHasConflictDegradesToNoConflictOnQueryFailure(t *testing.T) {
	source := &stubWindowSource{err: errors.New("connection reset")}
	checker := NewConflictChecker(source)

	base := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	if checker.HasConflict(context.Background(), "owner-1", base, base.Add(time.Hour), "") {
		t.Fatal("expected degrade to no-conflict when the window query fails")
	}
}

func TestHasConflictNoWindows(t *testing.T) {
	source := &stubWindowSource{}
	checker := NewConflictChecker(source)

	base := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	if checker.HasConflict(context.Background(), "owner-1", base, base.Add(time.Hour), "") {
		t.Fatal("expected no conflict with an empty schedule")
	}
}
