package directory

import "whiteboard-sync/internal/websocket"

// Handler connects Service to the websocket connection manager.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) HandleWebSocketMessage(client *websocket.Client, msg *websocket.Message) error {
	return h.service.Handle(client, msg)
}

func (h *Handler) ConnectionEstablished(client *websocket.Client) {
	h.service.Join(client)
}

func (h *Handler) ConnectionStopped(client *websocket.Client) {
	h.service.Leave(client)
}

func (h *Handler) ConnectionErrored(client *websocket.Client, err error) {
	h.service.Leave(client)
}
