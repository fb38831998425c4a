package sse

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/fracturesim/cache"
	"go.uber.org/zap"
)

const defaultKeepAlive = 30 * time.Second

// streams maps the names clients ask for onto pub/sub channels.
var streams = map[string]string{
	"world":  cache.ChannelWorld,
	"combat": cache.ChannelCombat,
	"turns":  cache.ChannelTurns,
}

// Handler streams simulation events to browsers.
type Handler struct {
	pubsub    cache.PubSub
	keepAlive time.Duration
	logger    *zap.Logger
}

// NewHandler creates a new SSE Handler. keepAlive <= 0 uses 30s.
func NewHandler(pubsub cache.PubSub, keepAlive time.Duration, logger *zap.Logger) *Handler {
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	return &Handler{pubsub: pubsub, keepAlive: keepAlive, logger: logger}
}

// parseStreams resolves ?streams=world,combat. Empty selects every stream.
func parseStreams(q string) (names map[string]string, channels []string, err error) {
	names = map[string]string{}
	if strings.TrimSpace(q) == "" {
		for name, ch := range streams {
			names[ch] = name
			channels = append(channels, ch)
		}
		return names, channels, nil
	}
	for _, part := range strings.Split(q, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		ch, ok := streams[name]
		if !ok {
			return nil, nil, fmt.Errorf("unknown stream %q", part)
		}
		if _, dup := names[ch]; !dup {
			names[ch] = name
			channels = append(channels, ch)
		}
	}
	return names, channels, nil
}

// ServeSSE handles GET /sse?streams=world,combat,turns.
// Each message becomes an event named after its stream.
func (h *Handler) ServeSSE(c *gin.Context) {
	names, channels, err := parseStreams(c.Query("streams"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "VALIDATION_ERROR", "message": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	msgCh, unsub, err := h.pubsub.Subscribe(ctx, channels...)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsub()

	fmt.Fprintf(c.Writer, "event: connected\ndata: %s\n\n", strings.Join(channels, ","))
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			writeEvent(c.Writer, names[msg.Channel], msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			fmt.Fprint(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-ctx.Done():
			return
		}
	}
}

// writeEvent frames payload as one event; multi-line payloads become
// several data lines.
func writeEvent(w http.ResponseWriter, event, payload string) {
	fmt.Fprintf(w, "event: %s\n", event)
	for _, line := range strings.Split(payload, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
}
