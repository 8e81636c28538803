package api

import (
	"net/http"

	gorillaws "github.com/gorilla/websocket"

	"github.com/Nomu-MDS/Nomu-Back/internal/auth"
	"github.com/Nomu-MDS/Nomu-Back/internal/infrastructure/websocket"
	"github.com/Nomu-MDS/Nomu-Back/internal/observability"
	apperrors "github.com/Nomu-MDS/Nomu-Back/pkg/errors"
)

type WebSocketHandler struct {
	hub      *websocket.Hub
	resolver *auth.Resolver
	upgrader *gorillaws.Upgrader
}

func NewWebSocketHandler(hub *websocket.Hub, resolver *auth.Resolver, allowedOrigins string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		resolver: resolver,
		upgrader: websocket.NewUpgrader(allowedOrigins),
	}
}

// ServeChatWs authenticates the handshake and hands the connection to the
// hub. A failed handshake terminates here; the server keeps no retry state,
// clients reconnect with a fresh credential.
func (h *WebSocketHandler) ServeChatWs(w http.ResponseWriter, r *http.Request) {
	identity, err := h.resolver.ResolveRequest(r)
	if err != nil {
		observability.LoggerFromContext(r.Context()).Info("websocket authentication failed", "error", err)
		http.Error(w, apperrors.MessageOf(err), apperrors.HTTPStatus(err))
		return
	}
	websocket.ServeWs(h.hub, h.upgrader, w, r, *identity)
}
