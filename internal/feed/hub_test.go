package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/agenda/internal/domain"
)

type stubLister struct {
	mu         sync.Mutex
	activities []domain.Activity
	err        error
	calls      int
}

func (s *stubLister) ListByOwner(_ context.Context, _ string) ([]domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]domain.Activity, len(s.activities))
	copy(out, s.activities)
	return out, nil
}

func (s *stubLister) set(activities []domain.Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = activities
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		panic("unreachable")
	}
}

func TestSubscribeDeliversInitialSnapshot(t *testing.T) {
	lister := &stubLister{activities: []domain.Activity{{ID: "act-1", OwnerID: "owner-1", Text: "task"}}}
	hub := NewHub(lister)

	snapshots := make(chan []domain.Activity, 4)
	unsubscribe := hub.Subscribe("owner-1", func(a []domain.Activity) { snapshots <- a }, func(err error) {
		t.Errorf("unexpected stream error: %v", err)
	})
	defer unsubscribe()

	snapshot := waitFor(t, snapshots)
	require.Len(t, snapshot, 1)
	require.Equal(t, "act-1", snapshot[0].ID)
}

func TestNotifyDeliversFreshSnapshot(t *testing.T) {
	lister := &stubLister{}
	hub := NewHub(lister)

	snapshots := make(chan []domain.Activity, 4)
	unsubscribe := hub.Subscribe("owner-1", func(a []domain.Activity) { snapshots <- a }, func(err error) {
		t.Errorf("unexpected stream error: %v", err)
	})
	defer unsubscribe()

	require.Empty(t, waitFor(t, snapshots))

	lister.set([]domain.Activity{{ID: "act-2", OwnerID: "owner-1", Text: "new task"}})
	hub.Notify("owner-1")

	snapshot := waitFor(t, snapshots)
	require.Len(t, snapshot, 1)
	require.Equal(t, "act-2", snapshot[0].ID)
}

func TestQueryFailureTerminatesSubscription(t *testing.T) {
	lister := &stubLister{err: errors.New("connection refused")}
	hub := NewHub(lister)

	failures := make(chan error, 4)
	unsubscribe := hub.Subscribe("owner-1", func([]domain.Activity) {
		t.Error("no snapshot expected")
	}, func(err error) {
		failures <- err
	})
	defer unsubscribe()

	require.Error(t, waitFor(t, failures))

	// The owner entry is gone; further notifications are ignored rather
	// than re-firing onError.
	hub.Notify("owner-1")
	select {
	case err := <-failures:
		t.Fatalf("onError fired twice: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	lister := &stubLister{}
	hub := NewHub(lister)

	snapshots := make(chan []domain.Activity, 4)
	unsubscribe := hub.Subscribe("owner-1", func(a []domain.Activity) { snapshots <- a }, func(err error) {
		t.Errorf("unexpected stream error: %v", err)
	})
	waitFor(t, snapshots)

	unsubscribe()
	unsubscribe()

	hub.Notify("owner-1")
	select {
	case <-snapshots:
		t.Fatal("delivery after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNotifyWithoutSubscribersIsANoOp(t *testing.T) {
	lister := &stubLister{}
	hub := NewHub(lister)

	hub.Notify("owner-unknown")
	time.Sleep(50 * time.Millisecond)

	lister.mu.Lock()
	defer lister.mu.Unlock()
	require.Zero(t, lister.calls)
}
