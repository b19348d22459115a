// Package realtime provides real-time communication adapters.
package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"indexer_server/core/domain"
	"indexer_server/core/port/out"
)

// =============================================================================
// SSE Adapter - RealtimePort implementation
// =============================================================================

// SSEAdapter implements out.RealtimePort using Server-Sent Events. Index
// state frames are fanned out to every connection of the target user; a full
// client buffer drops the frame rather than stalling the indexer.
type SSEAdapter struct {
	clients map[string]map[chan *domain.RealtimeEvent]struct{} // userID -> channels
	mu      sync.RWMutex
	log     zerolog.Logger

	messagesSent    int64
	messagesDropped int64
	seqCounter      int64 // global sequence counter
}

// NewSSEAdapter creates a new SSE adapter.
func NewSSEAdapter(log zerolog.Logger) *SSEAdapter {
	return &SSEAdapter{
		clients: make(map[string]map[chan *domain.RealtimeEvent]struct{}),
		log:     log.With().Str("component", "sse_adapter").Logger(),
	}
}

// Subscribe creates a new subscription channel for a user.
func (a *SSEAdapter) Subscribe(userID string) <-chan *domain.RealtimeEvent {
	a.mu.Lock()
	defer a.mu.Unlock()

	ch := make(chan *domain.RealtimeEvent, 256) // buffer for backpressure

	if a.clients[userID] == nil {
		a.clients[userID] = make(map[chan *domain.RealtimeEvent]struct{})
	}
	a.clients[userID][ch] = struct{}{}

	a.log.Debug().
		Str("user_id", userID).
		Int("total_connections", len(a.clients[userID])).
		Msg("client subscribed")

	return ch
}

// Unsubscribe removes a subscription channel.
func (a *SSEAdapter) Unsubscribe(userID string, ch <-chan *domain.RealtimeEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if channels, ok := a.clients[userID]; ok {
		for c := range channels {
			if c == ch {
				delete(channels, c)
				close(c)
				break
			}
		}
		if len(channels) == 0 {
			delete(a.clients, userID)
		}
	}
}

// Push sends an event to a specific user.
func (a *SSEAdapter) Push(ctx context.Context, userID string, event *domain.RealtimeEvent) error {
	event.Seq = atomic.AddInt64(&a.seqCounter, 1)
	event.UserID = userID

	a.mu.RLock()
	channels, ok := a.clients[userID]
	if !ok || len(channels) == 0 {
		a.mu.RUnlock()
		return nil // no active connections
	}

	chList := make([]chan *domain.RealtimeEvent, 0, len(channels))
	for ch := range channels {
		chList = append(chList, ch)
	}
	a.mu.RUnlock()

	for _, ch := range chList {
		select {
		case ch <- event:
			atomic.AddInt64(&a.messagesSent, 1)
		default:
			// Channel full, drop (backpressure)
			atomic.AddInt64(&a.messagesDropped, 1)
			a.log.Warn().
				Str("user_id", userID).
				Str("event_type", string(event.Type)).
				Int64("seq", event.Seq).
				Msg("dropped event due to full buffer")
		}
	}

	return nil
}

// ConnectedCount returns the number of connected users.
func (a *SSEAdapter) ConnectedCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.clients)
}

// =============================================================================
// SSE Hub - HTTP handler attachment
// =============================================================================

// SSEHub manages SSE connections for HTTP handlers.
type SSEHub struct {
	adapter *SSEAdapter
	log     zerolog.Logger

	heartbeatInterval time.Duration
}

// NewSSEHub creates a new SSE hub.
func NewSSEHub(adapter *SSEAdapter, log zerolog.Logger) *SSEHub {
	return &SSEHub{
		adapter:           adapter,
		log:               log.With().Str("component", "sse_hub").Logger(),
		heartbeatInterval: 30 * time.Second,
	}
}

// CreateClient creates a new SSE client for a user.
func (h *SSEHub) CreateClient(userID string) *SSEClient {
	return &SSEClient{
		UserID: userID,
		Events: h.adapter.Subscribe(userID),
		Done:   make(chan struct{}),
		hub:    h,
	}
}

// RemoveClient removes an SSE client.
func (h *SSEHub) RemoveClient(client *SSEClient) {
	h.adapter.Unsubscribe(client.UserID, client.Events)
}

// SSEClient represents an SSE client connection.
type SSEClient struct {
	UserID string
	Events <-chan *domain.RealtimeEvent
	Done   chan struct{}
	hub    *SSEHub
}

// Close closes the client connection.
func (c *SSEClient) Close() {
	close(c.Done)
	c.hub.RemoveClient(c)
}

// HeartbeatInterval returns the heartbeat interval.
func (c *SSEClient) HeartbeatInterval() time.Duration {
	return c.hub.heartbeatInterval
}

// =============================================================================
// Event Serialization
// =============================================================================

// SerializeEvent converts a RealtimeEvent to its SSE data payload.
func SerializeEvent(event *domain.RealtimeEvent) ([]byte, error) {
	payload := map[string]interface{}{
		"type":      event.Type,
		"seq":       event.Seq,
		"data":      event.Data,
		"timestamp": event.Timestamp.Format(time.RFC3339),
	}
	return json.Marshal(payload)
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.RealtimePort = (*SSEAdapter)(nil)
