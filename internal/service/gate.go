package service

import (
	"context"
	"sync"
	"time"

	"pickup-backend/internal/domain"
	"pickup-backend/internal/metrics"
)

// ActivityGate serializes work per activity. Each activity gets a one-slot
// channel that exists only while someone holds or waits for it, so requests
// for different activities never contend.
type ActivityGate struct {
	mu      sync.Mutex
	slots   map[int32]*gateSlot
	timeout time.Duration
}

type gateSlot struct {
	token chan struct{}
	refs  int
}

// NewActivityGate creates a gate. A positive timeout bounds how long Acquire
// waits even when the caller's context allows longer.
func NewActivityGate(timeout time.Duration) *ActivityGate {
	return &ActivityGate{
		slots:   make(map[int32]*gateSlot),
		timeout: timeout,
	}
}

// Acquire blocks until the caller owns activityID or ctx ends. The returned
// release func must be called exactly once.
func (g *ActivityGate) Acquire(ctx context.Context, activityID int32) (func(), error) {
	slot := g.ref(activityID)

	waitCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	started := time.Now()
	select {
	case slot.token <- struct{}{}:
	case <-waitCtx.Done():
		g.unref(activityID, slot)
		metrics.CoordinatorGateTimeouts.Inc()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, domain.ErrActivityBusy
	}
	metrics.CoordinatorGateWait.Observe(time.Since(started).Seconds())

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.token
			g.unref(activityID, slot)
		})
	}, nil
}

// Held returns the number of activities currently held or waited on.
func (g *ActivityGate) Held() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.slots)
}

func (g *ActivityGate) ref(activityID int32) *gateSlot {
	g.mu.Lock()
	defer g.mu.Unlock()
	slot, ok := g.slots[activityID]
	if !ok {
		slot = &gateSlot{token: make(chan struct{}, 1)}
		g.slots[activityID] = slot
	}
	slot.refs++
	return slot
}

func (g *ActivityGate) unref(activityID int32, slot *gateSlot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(g.slots, activityID)
	}
}
