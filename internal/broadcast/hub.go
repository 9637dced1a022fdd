// ABOUTME: In-memory fan-out hub delivering call events to all subscribers of a call
// ABOUTME: Evicts slow consumers and heartbeats idle subscriptions

package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscription. A
	// subscriber that falls this far behind is considered broken and evicted.
	subscriberBufferSize = 64

	// DefaultHeartbeatInterval paces heartbeats to idle subscriptions.
	DefaultHeartbeatInterval = time.Second
)

// Subscription is one live, directional delivery channel bound to a single
// call. Owned by the Hub for its registered lifetime.
type Subscription struct {
	ID     string
	CallID string

	ch       chan Event
	lastSend atomic.Int64 // unix nanos of the last delivered event

	// mu guards closed so a concurrent publish can never send on a channel
	// an eviction just closed.
	mu     sync.Mutex
	closed bool
}

// Events returns the receive side of the subscription's channel. The channel
// is closed when the subscription is removed or the hub shuts down.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Hub provides per-call pub/sub for session events. Delivery to one
// subscriber never blocks delivery to another or the publisher: sends are
// non-blocking, and a subscriber whose buffer is full is dropped from the
// registry entirely.
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[string]map[string]*Subscription // call_id -> sub_id -> sub
	heartbeat     time.Duration
	logger        *slog.Logger
	done          chan struct{}
	closeOnce     sync.Once
}

// NewHub creates a hub and starts its heartbeat loop. A non-positive interval
// uses the default. Pass nil logger for default.
func NewHub(heartbeatInterval time.Duration, logger *slog.Logger) *Hub {
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		subscriptions: make(map[string]map[string]*Subscription),
		heartbeat:     heartbeatInterval,
		logger:        logger.With("component", "broadcast-hub"),
		done:          make(chan struct{}),
	}
	go h.heartbeatLoop()
	return h
}

// Subscribe registers a subscriber for events on the given call. The
// subscription is automatically removed when ctx is cancelled. Subscriptions
// survive call completion so observers can watch the summary event.
func (h *Hub) Subscribe(ctx context.Context, callID string) *Subscription {
	sub := &Subscription{
		ID:     uuid.New().String(),
		CallID: callID,
		ch:     make(chan Event, subscriberBufferSize),
	}
	sub.lastSend.Store(time.Now().UnixNano())

	h.mu.Lock()
	if _, ok := h.subscriptions[callID]; !ok {
		h.subscriptions[callID] = make(map[string]*Subscription)
	}
	h.subscriptions[callID][sub.ID] = sub
	h.mu.Unlock()

	h.logger.Debug("subscriber added", "call_id", callID, "sub_id", sub.ID)

	go func() {
		select {
		case <-ctx.Done():
			h.Unsubscribe(sub)
		case <-h.done:
		}
	}()

	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub.CallID, sub.ID)
}

// SubscriberCount returns the number of live subscriptions for a call.
func (h *Hub) SubscriberCount(callID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[callID])
}

// Publish delivers the event to every current subscription for the call.
// Subscribers that cannot accept the event are evicted, never waited on.
func (h *Hub) Publish(callID string, event Event) {
	h.mu.RLock()
	subs, ok := h.subscriptions[callID]
	if !ok || len(subs) == 0 {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Subscription, 0, len(subs))
	for _, sub := range subs {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	var evicted []*Subscription
	for _, sub := range targets {
		if !h.trySend(sub, event) {
			evicted = append(evicted, sub)
		}
	}

	for _, sub := range evicted {
		h.logger.Warn("dropping slow subscriber",
			"call_id", callID,
			"sub_id", sub.ID,
			"event_type", event.Type)
		h.Unsubscribe(sub)
	}
}

// SendSnapshot delivers an event to a single subscription, typically the
// connection_established snapshot right after Subscribe.
func (h *Hub) SendSnapshot(sub *Subscription, event Event) {
	if !h.trySend(sub, event) {
		h.Unsubscribe(sub)
	}
}

// Close shuts down the heartbeat loop and closes all subscriber channels.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		defer h.mu.Unlock()
		for callID, subs := range h.subscriptions {
			for id, sub := range subs {
				sub.mu.Lock()
				sub.closed = true
				close(sub.ch)
				sub.mu.Unlock()
				delete(subs, id)
			}
			delete(h.subscriptions, callID)
		}

		h.logger.Debug("hub closed")
	})
}

// trySend performs a non-blocking delivery and stamps the send time.
func (h *Hub) trySend(sub *Subscription, event Event) bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.closed {
		return false
	}
	select {
	case sub.ch <- event:
		sub.lastSend.Store(time.Now().UnixNano())
		return true
	default:
		return false
	}
}

// removeLocked deletes a subscription and closes its channel. Caller holds h.mu.
func (h *Hub) removeLocked(callID, subID string) {
	subs, ok := h.subscriptions[callID]
	if !ok {
		return
	}
	sub, ok := subs[subID]
	if !ok {
		return
	}

	delete(subs, subID)
	sub.mu.Lock()
	sub.closed = true
	close(sub.ch)
	sub.mu.Unlock()
	if len(subs) == 0 {
		delete(h.subscriptions, callID)
	}

	h.logger.Debug("subscriber removed", "call_id", callID, "sub_id", subID)
}

// heartbeatLoop delivers a Heartbeat to every subscription that has not
// received an event for a full interval, so transport idle timeouts do not
// fire and subscribers can detect a silent pipeline.
func (h *Hub) heartbeatLoop() {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case now := <-ticker.C:
			h.deliverHeartbeats(now)
		}
	}
}

func (h *Hub) deliverHeartbeats(now time.Time) {
	h.mu.RLock()
	var idle []*Subscription
	for _, subs := range h.subscriptions {
		for _, sub := range subs {
			if now.UnixNano()-sub.lastSend.Load() >= h.heartbeat.Nanoseconds() {
				idle = append(idle, sub)
			}
		}
	}
	h.mu.RUnlock()

	for _, sub := range idle {
		beat := Event{Type: EventHeartbeat, CallID: sub.CallID, Timestamp: now}
		if !h.trySend(sub, beat) {
			h.Unsubscribe(sub)
		}
	}
}
