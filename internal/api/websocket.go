package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/smarthome-bridge/internal/bridge"
)

// Client frame types. Anything else is treated as a keep-alive.
const (
	WSTypeCommand = "command"

	// defaultSendBuffer is the per-connection outbound queue length.
	defaultSendBuffer = 256
)

// WSFrame is a message sent by a websocket client.
type WSFrame struct {
	Type   string `json:"type"`
	Action string `json:"action,omitempty"`
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// wsSink is a websocket connection registered with the bridge.
//
// Send only queues onto the buffered send channel; writePump is the sole
// writer to the connection, so frames leave in the order they were queued.
type wsSink struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func newWSSink(conn *websocket.Conn, buffer int) *wsSink {
	return &wsSink{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, buffer),
	}
}

// ID implements bridge.Sink.
func (c *wsSink) ID() string { return c.id }

// Send implements bridge.Sink. It never blocks.
func (c *wsSink) Send(msg []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return bridge.ErrSinkClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return bridge.ErrSinkBufferFull
	}
}

// Close implements bridge.Sink. Closing the send channel lets writePump
// flush a close frame and release the connection.
func (c *wsSink) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.send)
	return nil
}

// handleWebSocket upgrades the request and registers the connection as a
// sink. Telemetry broadcasts start with the next dispatched event.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	sink := newWSSink(conn, s.wsCfg.SendBuffer)
	registry := s.bridge.Registry()
	registry.Add(sink)

	s.logger.Debug("websocket client connected",
		"sink", sink.id,
		"request_id", r.Context().Value(ctxKeyRequestID),
	)

	go s.writePump(sink, registry)
	go s.readPump(sink, registry)
}

// readPump consumes client frames until the connection fails. There is no
// read deadline: an idle client that sends nothing stays connected.
func (s *Server) readPump(c *wsSink, registry *bridge.SinkRegistry) {
	defer func() {
		registry.Remove(c)
		//nolint:errcheck // Idempotent
		c.Close()
	}()

	if s.wsCfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(s.wsCfg.MaxMessageSize))
	}

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "sink", c.id, "error", err)
			} else {
				s.logger.Debug("websocket closed", "sink", c.id, "error", err)
			}
			return
		}
		s.handleFrame(c, message)
	}
}

// writePump is the only goroutine writing to c.conn. A failed write takes
// the sink out of the registry at once rather than waiting for readPump or
// the next broadcast to notice.
func (s *Server) writePump(c *wsSink, registry *bridge.SinkRegistry) {
	writeWait := time.Duration(s.wsCfg.WriteTimeout) * time.Second
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}

	var ping <-chan time.Time
	if s.wsCfg.PingInterval > 0 {
		ticker := time.NewTicker(time.Duration(s.wsCfg.PingInterval) * time.Second)
		defer ticker.Stop()
		ping = ticker.C
	}

	defer c.conn.Close()

	for {
		select {
		case message, ok := <-c.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Debug("websocket write failed", "sink", c.id, "error", err)
				registry.Remove(c)
				//nolint:errcheck // Idempotent
				c.Close()
				return
			}
		case <-ping:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Debug("websocket ping failed", "sink", c.id, "error", err)
				registry.Remove(c)
				//nolint:errcheck // Idempotent
				c.Close()
				return
			}
		}
	}
}

// handleFrame routes command frames to the control endpoint. Malformed and
// unknown frames are keep-alives.
func (s *Server) handleFrame(c *wsSink, data []byte) {
	var frame WSFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Type != WSTypeCommand {
		return
	}
	if s.control == nil {
		s.logger.Warn("websocket command ignored, control endpoint not configured", "sink", c.id)
		return
	}

	cmd, err := s.control.Execute(frame.Action)
	switch {
	case errors.Is(err, bridge.ErrInvalidCommand):
		s.logger.Debug("websocket command rejected", "sink", c.id, "action", frame.Action)
	case err != nil:
		s.logger.Warn("websocket command failed", "sink", c.id, "action", frame.Action, "error", err)
	default:
		s.logger.Info("websocket command issued", "sink", c.id, "command", string(cmd))
	}
}

var _ bridge.Sink = (*wsSink)(nil)
