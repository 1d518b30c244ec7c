package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/eldtechnologies/sechat/internal/realtime"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxInboundSize = 512
)

// Realtime upgrades to a websocket streaming the room's events. The hub
// subscription exists before the handshake completes, so every event
// committed after the client sees the upgrade is delivered; viewers
// reconcile the rest with a full fetch.
func (h *Handler) Realtime(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.RoomInfo(r.Context(), chi.URLParam(r, "roomId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	roomID := room.ID.String()

	sub := h.hub.Subscribe(roomID)
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		h.logger.Debug().Err(err).Str("room_id", roomID).Msg("websocket upgrade failed")
		return
	}

	done := make(chan struct{})

	go h.readPump(conn, done)
	h.writePump(conn, sub, done)
}

// readPump discards inbound frames and keeps the read deadline fresh. It
// closes done when the peer goes away.
func (h *Handler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(maxInboundSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
	}
}

// writePump owns all writes to conn.
func (h *Handler) writePump(conn *websocket.Conn, sub *realtime.Subscription, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		sub.Close()
		conn.Close()
	}()

	for {
		select {
		case ev, ok := <-sub.Events():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}
