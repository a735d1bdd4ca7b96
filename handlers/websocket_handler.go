package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/playloop/arena/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checking is delegated to the CORS layer; the events themselves
	// carry no ambient authority.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WebSocketHandler struct {
	hub     *realtime.Hub
	gateway *realtime.Gateway
	logger  *slog.Logger
}

func NewWebSocketHandler(hub *realtime.Hub, gateway *realtime.Gateway, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, gateway: gateway, logger: logger}
}

// ServeWs upgrades the connection and starts the read/write pumps. The
// connection joins a tournament room only once it sends a create, join or
// reconnect event; until then it receives nothing.
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	client := realtime.NewClient(h.hub, conn)
	h.logger.Info("websocket connected", slog.String("connection_id", client.ID))

	go client.WritePump()
	go client.ReadPump(h.gateway.HandleMessage)
}
