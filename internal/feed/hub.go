// Package feed fans change notifications out to live subscribers as full
// snapshots of an owner's activity list.
package feed

import (
	"context"
	"log"
	"sync"
	"time"

	"example.com/agenda/internal/domain"
)

// Lister supplies the ordered snapshot delivered on every change.
type Lister interface {
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Activity, error)
}

const defaultQueryTimeout = 10 * time.Second

// Hub tracks subscriptions per owner. Each notification re-queries the
// owner's full ordered list and delivers it to every subscriber; the store
// stays the single source of truth and subscribers never merge deltas.
//
// Notifications arriving while a delivery is in flight coalesce into one
// trailing delivery, so subscribers see at least one snapshot per change but
// not necessarily one per event.
type Hub struct {
	lister       Lister
	queryTimeout time.Duration
	logger       *log.Logger

	mu     sync.Mutex
	nextID int64
	owners map[string]*ownerFeed
}

type ownerFeed struct {
	subs       map[int64]*subscription
	delivering bool
	pending    bool
}

type subscription struct {
	onUpdate func([]domain.Activity)
	onError  func(error)
	stop     sync.Once
}

// NewHub constructs a Hub over the given lister.
func NewHub(lister Lister) *Hub {
	return &Hub{
		lister:       lister,
		queryTimeout: defaultQueryTimeout,
		logger:       log.New(log.Writer(), "[feed] ", log.LstdFlags),
		owners:       make(map[string]*ownerFeed),
	}
}

// Subscribe registers a live snapshot subscription for the owner and
// schedules an initial delivery. onError fires at most once; after that the
// subscription is terminated and the caller must subscribe again to recover.
// The returned unsubscribe is idempotent and safe after termination.
func (h *Hub) Subscribe(ownerID string, onUpdate func([]domain.Activity), onError func(error)) (unsubscribe func()) {
	sub := &subscription{onUpdate: onUpdate, onError: onError}

	h.mu.Lock()
	of, ok := h.owners[ownerID]
	if !ok {
		of = &ownerFeed{subs: make(map[int64]*subscription)}
		h.owners[ownerID] = of
	}
	h.nextID++
	id := h.nextID
	of.subs[id] = sub
	h.mu.Unlock()

	subscriberGauge.Inc()
	h.Notify(ownerID)

	return func() {
		sub.stop.Do(func() {
			h.remove(ownerID, id)
			subscriberGauge.Dec()
		})
	}
}

// Notify schedules a snapshot delivery for the owner. Safe to call for
// owners with no subscribers.
func (h *Hub) Notify(ownerID string) {
	h.mu.Lock()
	of, ok := h.owners[ownerID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if of.delivering {
		of.pending = true
		h.mu.Unlock()
		return
	}
	of.delivering = true
	h.mu.Unlock()

	go h.deliverLoop(ownerID, of)
}

func (h *Hub) deliverLoop(ownerID string, of *ownerFeed) {
	for {
		ctx, cancel := context.WithTimeout(context.Background(), h.queryTimeout)
		snapshot, err := h.lister.ListByOwner(ctx, ownerID)
		cancel()

		if err != nil {
			h.logger.Printf("snapshot query failed, terminating subscriptions (owner=%s): %v", ownerID, err)
			deliveryErrorCounter.Inc()
			h.failOwner(ownerID, of, err)
			return
		}

		h.mu.Lock()
		targets := make([]*subscription, 0, len(of.subs))
		for _, sub := range of.subs {
			targets = append(targets, sub)
		}
		h.mu.Unlock()

		for _, sub := range targets {
			out := make([]domain.Activity, len(snapshot))
			copy(out, snapshot)
			sub.onUpdate(out)
		}
		deliveryCounter.Inc()

		h.mu.Lock()
		if of.pending {
			of.pending = false
			h.mu.Unlock()
			continue
		}
		of.delivering = false
		if len(of.subs) == 0 {
			delete(h.owners, ownerID)
		}
		h.mu.Unlock()
		return
	}
}

// failOwner terminates every subscription of the owner, invoking each
// onError exactly once.
func (h *Hub) failOwner(ownerID string, of *ownerFeed, err error) {
	h.mu.Lock()
	targets := make([]*subscription, 0, len(of.subs))
	for _, sub := range of.subs {
		targets = append(targets, sub)
	}
	of.subs = make(map[int64]*subscription)
	of.delivering = false
	of.pending = false
	delete(h.owners, ownerID)
	h.mu.Unlock()

	for _, sub := range targets {
		target := sub
		target.stop.Do(func() {
			subscriberGauge.Dec()
			target.onError(err)
		})
	}
}

func (h *Hub) remove(ownerID string, id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	of, ok := h.owners[ownerID]
	if !ok {
		return
	}
	delete(of.subs, id)
	if len(of.subs) == 0 && !of.delivering {
		delete(h.owners, ownerID)
	}
}
