package notifier

import (
	"sync"

	"pickup-backend/internal/domain"
	"pickup-backend/internal/logger"
	"pickup-backend/internal/metrics"
)

const DefaultQueueSize = 64

// Update is one item of a subscription stream. When Resync is set the
// subscriber missed updates and must re-fetch the activity state before
// applying any further update.
type Update struct {
	ActivityID int32                `json:"activity_id"`
	Event      domain.ActivityEvent `json:"event"`
	Resync     bool                 `json:"resync"`
}

// Hub fans committed activity events out to live subscribers. Publish never
// blocks on a slow subscriber; each subscription owns a bounded queue.
type Hub struct {
	mu        sync.RWMutex
	subs      map[int32]map[*Subscription]struct{}
	queueSize int
	closed    bool
}

// NewHub creates a hub whose subscriptions buffer up to queueSize updates.
func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		subs:      make(map[int32]map[*Subscription]struct{}),
		queueSize: queueSize,
	}
}

// Subscribe starts a live stream for activityID. Only events published after
// this call are delivered.
func (h *Hub) Subscribe(activityID int32) (*Subscription, error) {
	s := newSubscription(h, activityID, h.queueSize)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, domain.ErrSubscriptionClosed
	}
	set, ok := h.subs[activityID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[activityID] = set
	}
	set[s] = struct{}{}
	metrics.NotifierSubscribers.Inc()
	logger.WithComponent("notifier").Debug("Subscriber attached", "activity_id", activityID, "subscribers", len(set))
	return s, nil
}

// Publish delivers events, in order, to every subscriber of activityID.
// Callers must publish the events of one activity in commit order.
func (h *Hub) Publish(activityID int32, events ...domain.ActivityEvent) {
	if len(events) == 0 {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[activityID] {
		for _, ev := range events {
			s.enqueue(Update{ActivityID: activityID, Event: ev})
		}
	}
	metrics.NotifierPublished.Add(float64(len(events)))
}

// SubscriberCount returns the number of live subscriptions for activityID.
func (h *Hub) SubscriberCount(activityID int32) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[activityID])
}

// Close ends every subscription. Later Subscribe calls fail.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	var all []*Subscription
	for _, set := range h.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	h.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
	logger.WithComponent("notifier").Info("Notifier hub closed", "subscriptions_closed", len(all))
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[s.activityID]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.activityID)
	}
	metrics.NotifierSubscribers.Dec()
}
