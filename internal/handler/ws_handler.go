package handler

import (
	"net/http"

	"whiteboard-sync/internal/websocket"

	ws "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WebSocketHandler upgrades inbound peer connections and hands them to the
// connection manager.
type WebSocketHandler struct {
	manager  *websocket.Manager
	upgrader ws.Upgrader
	log      *logrus.Entry
}

func NewWebSocketHandler(manager *websocket.Manager) *WebSocketHandler {
	return &WebSocketHandler{
		manager: manager,
		upgrader: ws.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: logrus.WithField("component", "websocket"),
	}
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).WithField("remote", r.RemoteAddr).Warn("upgrade failed")
		return
	}
	h.manager.Accept(conn)
}
