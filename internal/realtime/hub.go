package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/yungbote/mindmesh-backend/internal/observability"
	"github.com/yungbote/mindmesh-backend/internal/platform/logger"
)

// Subscriber is one live client channel. Send must not block indefinitely.
type Subscriber interface {
	ID() string
	Send(ctx context.Context, frame []byte) error
}

// Hub maps session ids to their live subscribers.
type Hub struct {
	mu            sync.RWMutex
	log           *logger.Logger
	metrics       *observability.Metrics
	subscriptions map[string]map[Subscriber]struct{}
}

func NewHub(log *logger.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{
		log:           log.With("component", "Hub"),
		metrics:       metrics,
		subscriptions: make(map[string]map[Subscriber]struct{}),
	}
}

// Session ids are compared after trimming surrounding whitespace.
func sessionKey(sessionID string) string { return strings.TrimSpace(sessionID) }

// Subscribe is idempotent.
func (h *Hub) Subscribe(sessionID string, sub Subscriber) {
	sessionID = sessionKey(sessionID)
	if sessionID == "" || sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscriptions[sessionID]
	if !ok {
		subs = make(map[Subscriber]struct{})
		h.subscriptions[sessionID] = subs
	}
	if _, dup := subs[sub]; dup {
		return
	}
	subs[sub] = struct{}{}
	h.metrics.AddSubscribers(1)
	h.log.Debug("Subscriber added", "session_id", sessionID, "subscriber", sub.ID())
}

// Unsubscribe is idempotent.
func (h *Hub) Unsubscribe(sessionID string, sub Subscriber) {
	sessionID = sessionKey(sessionID)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.removeLocked(sessionID, sub) {
		h.log.Debug("Subscriber removed", "session_id", sessionID, "subscriber", sub.ID())
	}
}

func (h *Hub) removeLocked(sessionID string, sub Subscriber) bool {
	subs, ok := h.subscriptions[sessionID]
	if !ok {
		return false
	}
	if _, ok := subs[sub]; !ok {
		return false
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.subscriptions, sessionID)
	}
	h.metrics.AddSubscribers(-1)
	return true
}

// Subscribers returns a snapshot of the session's subscribers.
func (h *Hub) Subscribers(sessionID string) []Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()
	subs := h.subscriptions[sessionKey(sessionID)]
	out := make([]Subscriber, 0, len(subs))
	for s := range subs {
		out = append(out, s)
	}
	return out
}

type BroadcastResult struct {
	Delivered int
	Removed   int
}

// Broadcast sends msg to a snapshot of the session's subscribers. Subscribers
// whose Send fails are removed after the pass. It never fails as a whole.
func (h *Hub) Broadcast(ctx context.Context, sessionID string, msg Envelope) BroadcastResult {
	sessionID = sessionKey(sessionID)
	frame, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("Broadcast encode failed", "session_id", sessionID, "error", err)
		return BroadcastResult{}
	}

	var res BroadcastResult
	var failed []Subscriber
	for _, s := range h.Subscribers(sessionID) {
		if err := s.Send(ctx, frame); err != nil {
			h.log.Warn("Delivery failed, dropping subscriber", "session_id", sessionID, "subscriber", s.ID(), "error", err)
			failed = append(failed, s)
			h.metrics.IncDelivery(false)
			continue
		}
		res.Delivered++
		h.metrics.IncDelivery(true)
	}

	if len(failed) > 0 {
		h.mu.Lock()
		for _, s := range failed {
			if h.removeLocked(sessionID, s) {
				res.Removed++
			}
		}
		h.mu.Unlock()
	}
	return res
}

// SendTo delivers msg to a single subscriber without touching the registry.
func SendTo(ctx context.Context, sub Subscriber, msg Envelope) error {
	frame, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return sub.Send(ctx, frame)
}
