package dashboard

import (
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"example.com/agenda/internal/domain"
)

type fakeSubscriber struct {
	onUpdate   func([]domain.Activity)
	onError    func(error)
	subscribed int
	cancelled  int
}

func (f *fakeSubscriber) Subscribe(_ string, onUpdate func([]domain.Activity), onError func(error)) func() {
	f.subscribed++
	f.onUpdate = onUpdate
	f.onError = onError
	return func() { f.cancelled++ }
}

type fakeMutator struct {
	completionErr error
	deleteErr     error
	completions   int
	deletions     int
	onDelete      func()
}

func (f *fakeMutator) SetCompletion(_ context.Context, _, _ string, completed bool) (*domain.Activity, error) {
	f.completions++
	if f.completionErr != nil {
		return nil, f.completionErr
	}
	return &domain.Activity{IsCompleted: completed}, nil
}

func (f *fakeMutator) Delete(_ context.Context, _, _ string) error {
	f.deletions++
	if f.onDelete != nil {
		f.onDelete()
	}
	return f.deleteErr
}

func newTestController() (*Controller, *fakeSubscriber, *fakeMutator) {
	sub := &fakeSubscriber{}
	mut := &fakeMutator{}
	logger := log.New(&strings.Builder{}, "", 0)
	return NewController("owner-1", sub, mut, logger), sub, mut
}

func TestControllerLifecycle(t *testing.T) {
	ctrl, sub, _ := newTestController()

	if state, _ := ctrl.Snapshot(); state != StateUnsubscribed {
		t.Fatalf("expected unsubscribed got %s", state)
	}

	ctrl.Start()
	if state, _ := ctrl.Snapshot(); state != StateSubscribing {
		t.Fatalf("expected subscribing got %s", state)
	}

	sub.onUpdate([]domain.Activity{{ID: "act-1", Text: "task"}})
	state, activities := ctrl.Snapshot()
	if state != StateActive {
		t.Fatalf("expected active got %s", state)
	}
	if len(activities) != 1 || activities[0].ID != "act-1" {
		t.Fatalf("unexpected snapshot %+v", activities)
	}

	// Deliveries replace the view wholesale.
	sub.onUpdate([]domain.Activity{{ID: "act-2", Text: "other"}})
	_, activities = ctrl.Snapshot()
	if len(activities) != 1 || activities[0].ID != "act-2" {
		t.Fatalf("expected wholesale replacement, got %+v", activities)
	}

	ctrl.Stop()
	if sub.cancelled != 1 {
		t.Fatalf("expected one unsubscribe, got %d", sub.cancelled)
	}
	state, activities = ctrl.Snapshot()
	if state != StateUnsubscribed {
		t.Fatalf("expected unsubscribed got %s", state)
	}
	if len(activities) != 1 {
		t.Fatal("stopping must retain the last snapshot")
	}
}

func TestControllerStartIsIdempotent(t *testing.T) {
	ctrl, sub, _ := newTestController()

	ctrl.Start()
	ctrl.Start()
	if sub.subscribed != 1 {
		t.Fatalf("expected one subscription, got %d", sub.subscribed)
	}
}

func TestControllerErrorState(t *testing.T) {
	ctrl, sub, _ := newTestController()

	ctrl.Start()
	streamErr := errors.New("snapshot query failed")
	sub.onError(streamErr)

	if state, _ := ctrl.Snapshot(); state != StateError {
		t.Fatalf("expected error state got %s", state)
	}
	if !errors.Is(ctrl.Err(), streamErr) {
		t.Fatalf("unexpected error %v", ctrl.Err())
	}
	if ctrl.Status() == "" {
		t.Fatal("expected a status message after stream failure")
	}

	ctrl.Resubscribe()
	if sub.subscribed != 2 {
		t.Fatalf("expected a fresh subscription, got %d", sub.subscribed)
	}
	if state, _ := ctrl.Snapshot(); state != StateSubscribing {
		t.Fatalf("expected subscribing got %s", state)
	}
}

func TestToggleCompletionOptimistic(t *testing.T) {
	ctrl, sub, mut := newTestController()
	ctrl.Start()
	sub.onUpdate([]domain.Activity{{ID: "act-1", Text: "task"}})

	if err := ctrl.ToggleCompletion(context.Background(), "act-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mut.completions != 1 {
		t.Fatalf("expected one completion call, got %d", mut.completions)
	}

	_, activities := ctrl.Snapshot()
	if !activities[0].IsCompleted {
		t.Fatal("expected optimistic completion")
	}
	if activities[0].CompletedAt == nil {
		t.Fatal("expected a completion instant")
	}
}

func TestToggleCompletionRevertsOnFailure(t *testing.T) {
	ctrl, sub, mut := newTestController()
	mut.completionErr = errors.New("persist failed")
	ctrl.Start()
	sub.onUpdate([]domain.Activity{{ID: "act-1", Text: "task"}})

	if err := ctrl.ToggleCompletion(context.Background(), "act-1"); err == nil {
		t.Fatal("expected an error")
	}

	_, activities := ctrl.Snapshot()
	if activities[0].IsCompleted {
		t.Fatal("expected the optimistic flip to be reverted")
	}
	if ctrl.Status() == "" {
		t.Fatal("expected a status message after failure")
	}
}

func TestToggleCompletionUnknownActivity(t *testing.T) {
	ctrl, sub, _ := newTestController()
	ctrl.Start()
	sub.onUpdate(nil)

	err := ctrl.ToggleCompletion(context.Background(), "missing")
	if !errors.Is(err, domain.ErrActivityNotFound) {
		t.Fatalf("expected ErrActivityNotFound got %v", err)
	}
}

func TestDeleteOptimistic(t *testing.T) {
	ctrl, sub, mut := newTestController()
	ctrl.Start()
	sub.onUpdate([]domain.Activity{
		{ID: "act-1", Text: "one"},
		{ID: "act-2", Text: "two"},
	})

	if err := ctrl.Delete(context.Background(), "act-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mut.deletions != 1 {
		t.Fatalf("expected one delete call, got %d", mut.deletions)
	}

	_, activities := ctrl.Snapshot()
	if len(activities) != 1 || activities[0].ID != "act-2" {
		t.Fatalf("unexpected snapshot after delete: %+v", activities)
	}
}

func TestDeleteRestoresOnFailure(t *testing.T) {
	ctrl, sub, mut := newTestController()
	mut.deleteErr = errors.New("persist failed")
	ctrl.Start()
	sub.onUpdate([]domain.Activity{
		{ID: "act-1", Text: "one"},
		{ID: "act-2", Text: "two"},
	})

	if err := ctrl.Delete(context.Background(), "act-1"); err == nil {
		t.Fatal("expected an error")
	}

	_, activities := ctrl.Snapshot()
	if len(activities) != 2 {
		t.Fatalf("expected the activity to be restored, got %d", len(activities))
	}
	if activities[0].ID != "act-1" {
		t.Fatalf("expected act-1 restored in place, got %s", activities[0].ID)
	}
}

func TestDeleteRestoresAfterShrunkDelivery(t *testing.T) {
	ctrl, sub, mut := newTestController()
	mut.deleteErr = errors.New("persist failed")
	ctrl.Start()
	sub.onUpdate([]domain.Activity{
		{ID: "act-1", Text: "one"},
		{ID: "act-2", Text: "two"},
		{ID: "act-3", Text: "three"},
	})
	// A delivery empties the view while the delete is in flight, so the
	// index captured before the optimistic removal no longer exists.
	mut.onDelete = func() { sub.onUpdate(nil) }

	if err := ctrl.Delete(context.Background(), "act-3"); err == nil {
		t.Fatal("expected an error")
	}

	_, activities := ctrl.Snapshot()
	if len(activities) != 1 || activities[0].ID != "act-3" {
		t.Fatalf("expected only the restored activity, got %+v", activities)
	}
}

func TestDeleteDoesNotDuplicateAfterRedelivery(t *testing.T) {
	ctrl, sub, mut := newTestController()
	mut.deleteErr = errors.New("persist failed")
	ctrl.Start()
	sub.onUpdate([]domain.Activity{{ID: "act-1", Text: "one"}})
	// A delivery brings the activity back before the delete resolves;
	// the revert must not insert a second copy.
	mut.onDelete = func() { sub.onUpdate([]domain.Activity{{ID: "act-1", Text: "one"}}) }

	if err := ctrl.Delete(context.Background(), "act-1"); err == nil {
		t.Fatal("expected an error")
	}

	_, activities := ctrl.Snapshot()
	if len(activities) != 1 {
		t.Fatalf("expected exactly one activity, got %d", len(activities))
	}
}

func TestStatusMessageExpires(t *testing.T) {
	ctrl, _, _ := newTestController()

	ctrl.mu.Lock()
	ctrl.setStatusLocked("transient")
	ctrl.statusUntil = time.Now().Add(-time.Second)
	ctrl.mu.Unlock()

	if got := ctrl.Status(); got != "" {
		t.Fatalf("expected expired status, got %q", got)
	}
}
