package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/bastion/internal/events"
)

// StreamHandlers pushes engine events to clients over SSE and
// websockets.
type StreamHandlers struct {
	bus *events.Bus
	log zerolog.Logger
}

// NewStreamHandlers creates the streaming handler set.
func NewStreamHandlers(bus *events.Bus, log zerolog.Logger) *StreamHandlers {
	return &StreamHandlers{
		bus: bus,
		log: log.With().Str("handler", "stream").Logger(),
	}
}

// RegisterRoutes registers the streaming routes.
func (h *StreamHandlers) RegisterRoutes(r chi.Router) {
	r.Get("/events/stream", h.HandleEventStream)
	r.Get("/risk/alerts/ws", h.HandleAlertSocket)
}

// HandleEventStream serves the full event feed as server-sent events.
func (h *StreamHandlers) HandleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ch, unsubscribe := h.bus.Subscribe()
	defer unsubscribe()

	// Heartbeat keeps intermediaries from closing idle streams.
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case ev, open := <-ch:
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				h.log.Error().Err(err).Msg("failed to encode event")
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
			flusher.Flush()
		}
	}
}

// Event types pushed on the alert websocket.
var alertSocketEvents = map[events.EventType]bool{
	events.AlertRaised:          true,
	events.AlertResolved:        true,
	events.MitigationExecuted:   true,
	events.EmergencyStopEngaged: true,
	events.EmergencyStopCleared: true,
}

// HandleAlertSocket serves the live alert feed over a websocket.
func (h *StreamHandlers) HandleAlertSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin is checked by the CORS layer in dev
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ch, unsubscribe := h.bus.Subscribe()
	defer unsubscribe()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if !alertSocketEvents[ev.Type] {
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, ev)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Msg("websocket write failed, closing")
				return
			}
		}
	}
}
