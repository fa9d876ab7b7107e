package handler

import (
	"whiteboard-sync/internal/domain"
	"whiteboard-sync/internal/service"
	"whiteboard-sync/internal/websocket"

	"github.com/sirupsen/logrus"
)

type route func(conn service.Conn, arg string) error

// PeerMessageHandler dispatches board and sharing messages arriving on peer
// connections and forwards connection lifecycle events to the session
// monitor.
type PeerMessageHandler struct {
	sessions *service.SessionService
	routes   map[websocket.MessageType]route
	log      *logrus.Entry
}

func NewPeerMessageHandler(sessions *service.SessionService, sync *service.SyncService, sharing *service.SharingService) *PeerMessageHandler {
	h := &PeerMessageHandler{
		sessions: sessions,
		log:      logrus.WithField("component", "peer"),
	}
	h.routes = map[websocket.MessageType]route{
		websocket.TypeListenBoard:      sync.HandleListen,
		websocket.TypeUnlistenBoard:    sync.HandleUnlisten,
		websocket.TypeGetBoardData:     sync.HandleGetBoardData,
		websocket.TypeBoardData:        sync.HandleBoardData,
		websocket.TypeBoardPathUpdate:  updateRoute(sync, domain.MutationAddPath),
		websocket.TypeBoardUndoUpdate:  updateRoute(sync, domain.MutationUndo),
		websocket.TypeBoardClearUpdate: updateRoute(sync, domain.MutationClear),
		websocket.TypeBoardDeleted:     sync.HandleBoardDeleted,
		websocket.TypeBoardError:       sync.HandleBoardError,
		websocket.TypeSharingBoard:     sharing.HandleSharing,
		websocket.TypeUnsharingBoard:   sharing.HandleUnsharing,
	}
	return h
}

func updateRoute(sync *service.SyncService, kind domain.MutationKind) route {
	return func(conn service.Conn, arg string) error {
		return sync.HandleUpdate(conn, kind, arg)
	}
}

func (h *PeerMessageHandler) HandleWebSocketMessage(client *websocket.Client, msg *websocket.Message) error {
	return h.Handle(client, msg)
}

// Handle runs the route for msg. Messages from connections that are not
// currently established are dropped.
func (h *PeerMessageHandler) Handle(conn service.Conn, msg *websocket.Message) error {
	if !h.sessions.Accepts(conn) {
		h.log.WithFields(logrus.Fields{"conn": conn.ID(), "type": msg.Type}).Debug("dropped message from unknown connection")
		return nil
	}
	r, ok := h.routes[msg.Type]
	if !ok {
		h.log.WithFields(logrus.Fields{"conn": conn.ID(), "type": msg.Type}).Warn("unknown message type")
		return nil
	}
	return r(conn, msg.Arg)
}

func (h *PeerMessageHandler) ConnectionEstablished(client *websocket.Client) {
	h.sessions.Established(client, client.Direction() == websocket.Inbound)
}

func (h *PeerMessageHandler) ConnectionStopped(client *websocket.Client) {
	h.sessions.Stopped(client)
}

func (h *PeerMessageHandler) ConnectionErrored(client *websocket.Client, err error) {
	h.sessions.Errored(client, err)
}
