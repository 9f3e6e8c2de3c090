package notifier

import (
	"context"
	"sync"

	"pickup-backend/internal/domain"
	"pickup-backend/internal/metrics"
)

// Subscription is a lazy, unbounded stream of updates for one activity.
// There is no replay: after Close, or after a Resync update, the observer
// re-fetches state and continues from the live stream.
type Subscription struct {
	hub        *Hub
	activityID int32

	mu     sync.Mutex
	queue  []Update
	head   int
	size   int
	resync bool

	signal    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newSubscription(h *Hub, activityID int32, capacity int) *Subscription {
	return &Subscription{
		hub:        h,
		activityID: activityID,
		queue:      make([]Update, capacity),
		signal:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

func (s *Subscription) ActivityID() int32 {
	return s.activityID
}

// Next blocks until an update is available, ctx ends, or the subscription is
// closed.
func (s *Subscription) Next(ctx context.Context) (Update, error) {
	for {
		select {
		case <-s.done:
			return Update{}, domain.ErrSubscriptionClosed
		default:
		}

		if u, ok := s.pop(); ok {
			return u, nil
		}

		select {
		case <-ctx.Done():
			return Update{}, ctx.Err()
		case <-s.done:
			return Update{}, domain.ErrSubscriptionClosed
		case <-s.signal:
		}
	}
}

// Pending returns the number of queued updates.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Close detaches the subscription. It is safe to call more than once and
// never affects other subscribers.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.hub.remove(s)
	})
}

// enqueue appends u, dropping the oldest queued update and flagging a resync
// when the queue is full.
func (s *Subscription) enqueue(u Update) {
	s.mu.Lock()
	if s.size == len(s.queue) {
		s.head = (s.head + 1) % len(s.queue)
		s.size--
		if !s.resync {
			metrics.NotifierResyncs.Inc()
		}
		s.resync = true
		metrics.NotifierDropped.Inc()
	}
	s.queue[(s.head+s.size)%len(s.queue)] = u
	s.size++
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription) pop() (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resync {
		s.resync = false
		return Update{ActivityID: s.activityID, Resync: true}, true
	}
	if s.size == 0 {
		return Update{}, false
	}
	u := s.queue[s.head]
	s.queue[s.head] = Update{}
	s.head = (s.head + 1) % len(s.queue)
	s.size--
	return u, true
}
