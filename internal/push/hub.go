// Package push delivers payment status events to subscribers of a purchase.
// Delivery is at most once: a slow or absent subscriber simply misses events
// and falls back to polling.
package push

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/rafflio/platform/internal/domain"
	"github.com/rafflio/platform/internal/infra"
)

// Event sources reported in metrics.
const (
	SourceLocal = "local"
	SourceRedis = "redis"
)

var (
	ErrHubClosed     = errors.New("push hub closed")
	ErrEmptyPurchase = errors.New("purchase id is required")
)

// Publisher sends an event to every subscriber of its purchase.
type Publisher interface {
	Publish(ctx context.Context, evt domain.PushEvent) error
}

// Handler receives push events for one purchase.
type Handler func(domain.PushEvent)

// Hub keeps the in-process subscriptions, grouped by purchase ID.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[uint64]Handler // purchaseID -> subID -> handler
	nextID  uint64
	closed  bool
	logger  *slog.Logger
	metrics *infra.Metrics
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger, metrics *infra.Metrics) *Hub {
	return &Hub{
		rooms:   make(map[string]map[uint64]Handler),
		logger:  logger,
		metrics: metrics,
	}
}

// Subscribe registers fn for events of purchaseID. The returned function
// removes the subscription and is safe to call more than once.
func (h *Hub) Subscribe(purchaseID string, fn func(domain.PushEvent)) (func(), error) {
	if purchaseID == "" {
		return nil, ErrEmptyPurchase
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}

	h.nextID++
	id := h.nextID
	if h.rooms[purchaseID] == nil {
		h.rooms[purchaseID] = make(map[uint64]Handler)
	}
	h.rooms[purchaseID][id] = fn
	h.metrics.AddSubscribers(1)

	var once sync.Once
	return func() {
		once.Do(func() { h.leave(purchaseID, id) })
	}, nil
}

func (h *Hub) leave(purchaseID string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.rooms[purchaseID]
	if !ok {
		return
	}
	if _, ok := subs[id]; !ok {
		return
	}
	delete(subs, id)
	h.metrics.AddSubscribers(-1)
	if len(subs) == 0 {
		delete(h.rooms, purchaseID)
	}
}

// Publish delivers evt to the local subscribers only.
func (h *Hub) Publish(_ context.Context, evt domain.PushEvent) error {
	h.Deliver(evt, SourceLocal)
	return nil
}

// Deliver invokes every handler subscribed to evt.PurchaseID. Handlers run
// outside the hub lock so they may unsubscribe themselves.
func (h *Hub) Deliver(evt domain.PushEvent, source string) {
	h.mu.RLock()
	subs := h.rooms[evt.PurchaseID]
	handlers := make([]Handler, 0, len(subs))
	for _, fn := range subs {
		handlers = append(handlers, fn)
	}
	h.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}
	for _, fn := range handlers {
		fn(evt)
	}
	h.metrics.IncPush(source)
	h.logger.Debug("push delivered", "purchase_id", evt.PurchaseID, "status", evt.Status,
		"subscribers", len(handlers), "source", source)
}

// SubscriberCount returns the total number of active subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, subs := range h.rooms {
		count += len(subs)
	}
	return count
}

// RoomCount returns the number of purchases with at least one subscriber.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Shutdown drops all subscriptions and rejects new ones.
func (h *Hub) Shutdown(_ context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for purchaseID, subs := range h.rooms {
		h.metrics.AddSubscribers(-float64(len(subs)))
		delete(h.rooms, purchaseID)
	}
	h.closed = true
}
