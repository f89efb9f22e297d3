package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// BroadcastHandler serves a websocket endpoint that mirrors every event
// published to the Hub, for dashboards that want a live feed instead of
// polling the record store's pub/sub channel directly. It is the single
// sliver of "interface only" transport the spec allows — never a general
// API router.
type BroadcastHandler struct {
	hub *Hub
	log zerolog.Logger
}

// NewBroadcastHandler returns an http.Handler backed by hub.
func NewBroadcastHandler(hub *Hub, logger zerolog.Logger) *BroadcastHandler {
	return &BroadcastHandler{hub: hub, log: logger.With().Str("component", "telemetry.broadcast").Logger()}
}

func (b *BroadcastHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		b.log.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "closing")

	events, cancel := b.hub.Listen(64)
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-events:
			if !ok {
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, env)
			cancelWrite()
			if err != nil {
				b.log.Debug().Err(err).Msg("websocket write failed, closing")
				return
			}
		}
	}
}
