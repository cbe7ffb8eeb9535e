package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/voice-annotation/internal/ingest"
	"github.com/codebuildervaibhav/voice-annotation/internal/metrics"
	"github.com/codebuildervaibhav/voice-annotation/internal/types"
)

// Envelope frames every realtime message in both directions
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// RealtimeHandler handles WebSocket sessions
type RealtimeHandler struct {
	pipeline *ingest.Pipeline
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewRealtimeHandler(pipeline *ingest.Pipeline, logger *slog.Logger, m *metrics.Metrics) *RealtimeHandler {
	return &RealtimeHandler{pipeline: pipeline, logger: logger, metrics: m}
}

// Handle processes one connection. Events of a connection are handled in
// order; closing the connection clears the session's accumulated segments.
func (h *RealtimeHandler) Handle(c *websocket.Conn) {
	sid := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	h.metrics.SessionOpened()
	h.logger.Info("WebSocket connection established", "session", sid)

	defer func() {
		cancel()
		h.pipeline.Disconnect(sid)
		h.metrics.SessionClosed()
		c.Close()
		h.logger.Info("WebSocket connection closed", "session", sid)
	}()

	for {
		messageType, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("WebSocket read error", "session", sid, "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			h.logger.Warn("Malformed realtime message", "session", sid, "error", err)
			continue
		}
		if env.Event == types.EventDisconnect {
			return
		}

		event, payload, ok := h.dispatch(ctx, sid, env)
		if !ok {
			continue
		}
		if err := c.WriteJSON(outbound{Event: event, Data: payload}); err != nil {
			h.logger.Warn("WebSocket write error", "session", sid, "error", err)
			return
		}
	}
}

func (h *RealtimeHandler) dispatch(ctx context.Context, sid string, env Envelope) (event string, payload any, ok bool) {
	h.metrics.RecordEvent(env.Event)

	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Panic handling realtime event",
				"session", sid, "event", env.Event, "panic", r, "stack", string(debug.Stack()))
			h.metrics.RecordEventError(env.Event)
			event, payload, ok = errorEventFor(env.Event), ingest.ErrorPayload{Error: fmt.Sprint(r)}, true
		}
	}()

	switch env.Event {
	case types.EventAudioBlob:
		event, payload = h.pipeline.HandleAudioBlob(ctx, sid, env.Data)
	case types.EventAnnotationAudioBlob:
		event, payload = h.pipeline.HandleAnnotationBlob(ctx, sid, env.Data)
	default:
		h.logger.Warn("Unknown realtime event", "session", sid, "event", env.Event)
		return "", nil, false
	}
	return event, payload, true
}

func errorEventFor(event string) string {
	if event == types.EventAnnotationAudioBlob {
		return types.EventAnnotationError
	}
	return types.EventTranscriptionUpdate
}
