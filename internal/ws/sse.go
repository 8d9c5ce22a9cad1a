package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/teknowguy/autopilot-backend/internal/events"
)

type SSEHandler struct {
	bus            *events.Bus
	allowedOrigins []string
	heartbeat      time.Duration
	logger         *zap.SugaredLogger
}

func NewSSEHandler(bus *events.Bus, allowedOrigins []string, logger *zap.SugaredLogger) *SSEHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SSEHandler{
		bus:            bus,
		allowedOrigins: append([]string(nil), allowedOrigins...),
		heartbeat:      30 * time.Second,
		logger:         logger,
	}
}

// HandleSSE streams bus events. ?topics=notifications,progress narrows the
// stream; by default every topic is sent.
func (h *SSEHandler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if origin := r.Header.Get("Origin"); origin != "" && originAllowed(h.allowedOrigins, origin) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
	}
	w.Header().Set("Access-Control-Allow-Headers", "Cache-Control")

	channels := channelsForTopics(parseTopics(r.URL.Query().Get("topics")))
	if len(channels) == 0 {
		http.Error(w, "no known topics requested", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := h.bus.Subscribe(ctx, channels...)
	defer sub.Close()

	h.logger.Debugw("SSE connection established", "channels", channels, "in_memory", h.bus.InMemory())
	h.stream(ctx, w, sub)
}

func (h *SSEHandler) stream(ctx context.Context, w http.ResponseWriter, sub events.Subscription) {
	h.sendEvent(w, "connected", "0", nil)

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debugw("SSE client disconnected")
			return

		case <-heartbeat.C:
			h.sendEvent(w, "heartbeat", "ping", map[string]interface{}{
				"timestamp": time.Now().Unix(),
			})

		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var data interface{}
			if err := json.Unmarshal([]byte(msg.Payload), &data); err != nil {
				h.logger.Warnw("Failed to parse message payload", "error", err)
				continue
			}
			h.sendEvent(w, topicForChannel(msg.Channel), msg.Channel, data)
		}
	}
}

func (h *SSEHandler) sendEvent(w http.ResponseWriter, eventType, id string, data interface{}) {
	payload := []byte("{}")
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			h.logger.Errorw("Failed to marshal SSE data", "error", err)
			return
		}
		payload = b
	}
	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "id: %s\n", id)
	fmt.Fprintf(w, "data: %s\n\n", payload)

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}
