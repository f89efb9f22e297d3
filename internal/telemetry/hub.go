package telemetry

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/store"
)

// channelName is the single record-store pub/sub channel telemetry rides
// on; subscribers filter by the envelope's Type field.
const channelName = "telemetry:events"

// Envelope wraps an event's type alongside its JSON-encoded payload, so a
// single channel can carry every event type spec.md §6 enumerates.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub publishes telemetry events. Publishing is always best-effort per
// spec.md §7: a failed publish is logged, never escalated to the caller.
type Hub struct {
	st  store.Store
	log zerolog.Logger

	mu        sync.RWMutex
	listeners []chan Envelope
}

// NewHub returns a Hub that rides on st's pub/sub channel.
func NewHub(st store.Store, logger zerolog.Logger) *Hub {
	return &Hub{
		st:  st,
		log: logger.With().Str("component", "telemetry.hub").Logger(),
	}
}

// Publish encodes data and publishes it under the shared telemetry
// channel. Errors are logged, never returned, matching the best-effort
// publish policy.
func (h *Hub) Publish(ctx context.Context, data EventData) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.log.Error().Err(err).Str("event_type", string(data.EventType())).Msg("encode telemetry event")
		return
	}
	envelope := Envelope{Type: data.EventType(), Payload: payload}

	h.mu.RLock()
	for _, ch := range h.listeners {
		select {
		case ch <- envelope:
		default:
			h.log.Warn().Str("event_type", string(data.EventType())).Msg("telemetry listener channel full, dropping event")
		}
	}
	h.mu.RUnlock()

	if _, err := h.st.Publish(ctx, channelName, envelope); err != nil {
		h.log.Error().Err(err).Str("event_type", string(data.EventType())).Msg("publish telemetry event")
	}
}

// Listen registers an in-process channel that receives every published
// event, for the websocket broadcast endpoint or other local consumers.
// The returned function deregisters it.
func (h *Hub) Listen(buffer int) (<-chan Envelope, func()) {
	ch := make(chan Envelope, buffer)
	h.mu.Lock()
	h.listeners = append(h.listeners, ch)
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, c := range h.listeners {
			if c == ch {
				h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
				break
			}
		}
		close(ch)
	}
	return ch, cancel
}
