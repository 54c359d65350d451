package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/deepdrone/deepdrone/pkg/logging"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The operator API binds to loopback by default; same-host UIs
		// connect from arbitrary origins.
		return true
	},
}

// handleWebSocket streams telemetry hub events to the client as JSON frames.
// The subscription is dropped when the client goes away; a slow client loses
// events rather than stalling publishers.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn(logging.CategoryAPI, "ws_upgrade_failed", "websocket upgrade failed", map[string]any{
			"error": err.Error(),
		})
		return
	}

	events, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()
	defer conn.Close()

	// Read pump: discard inbound frames, notice the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
