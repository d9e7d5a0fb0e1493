package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"clanforge/backend/internal/hub"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = 30 * time.Second
	keepAlive     = 15 * time.Second
	maxClientRead = 512
)

// StreamHandler pushes lobby events to browsers over websocket or SSE.
type StreamHandler struct {
	hub      *hub.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewStreamHandler accepts websocket upgrades from the given origins, and
// from clients that send no Origin header.
func NewStreamHandler(h *hub.Hub, origins []string, logger *zap.Logger) *StreamHandler {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return &StreamHandler{
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
		logger: logger,
	}
}

// ServeWebSocket godoc
// @Summary      Lobby event stream (websocket)
// @Description  Sends {"type":"lobbies_updated"} and {"type":"stats_updated"} text frames. Client frames are ignored.
// @Tags         events
// @Router       /ws [get]
func (h *StreamHandler) ServeWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already written the error response
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	client := hub.NewClient()
	h.hub.Subscribe(client)
	defer h.hub.Unsubscribe(client)
	h.logger.Debug("websocket client connected", zap.String("remote", c.ClientIP()))

	done := make(chan struct{})
	go h.discardReads(conn, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// dropped by the hub
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too slow"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *StreamHandler) discardReads(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(maxClientRead)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket closed", zap.Error(err))
			}
			return
		}
	}
}

// ServeEvents godoc
// @Summary      Lobby event stream (SSE)
// @Description  Server-Sent Events alternative to /ws. Event names are lobbies_updated and stats_updated.
// @Tags         events
// @Produce      text/event-stream
// @Router       /events [get]
func (h *StreamHandler) ServeEvents(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	client := hub.NewClient()
	h.hub.Subscribe(client)
	defer h.hub.Unsubscribe(client)

	fmt.Fprint(c.Writer, ": connected\n\n")
	flusher.Flush()

	ctx := c.Request.Context()
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(c.Writer, ": keep-alive\n\n")
			flusher.Flush()
		case msg, ok := <-client:
			if !ok {
				return
			}
			var event hub.Event
			if err := json.Unmarshal(msg, &event); err != nil {
				continue
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: {}\n\n", event.Type)
			flusher.Flush()
		}
	}
}
