package websocket

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Nomu-MDS/Nomu-Back/internal/auth"
	"github.com/Nomu-MDS/Nomu-Back/internal/observability"
	apperrors "github.com/Nomu-MDS/Nomu-Back/pkg/errors"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
	sendBufferSize = 256
)

// Client is one live connection, bound to a resolved identity for its whole
// lifetime. Events for a single connection are handled one at a time in
// arrival order by readPump; connections run concurrently with each other.
// The joined set is guarded by the hub mutex and discarded on disconnect.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	identity auth.Identity
	joined   map[uuid.UUID]bool

	ctx       context.Context
	closeOnce sync.Once
}

// NewUpgrader builds the handshake upgrader. allowedOrigins is a
// comma-separated list; "*" accepts any origin.
func NewUpgrader(allowedOrigins string) *websocket.Upgrader {
	allowAll := allowedOrigins == "*"
	origins := strings.Split(allowedOrigins, ",")
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range origins {
				if origin == strings.TrimSpace(allowed) {
					return true
				}
			}
			return false
		},
	}
}

// ServeWs upgrades an already-authenticated request and runs the connection
// until it drops. The caller must have resolved identity at handshake time;
// no event handler re-authenticates.
func ServeWs(hub *Hub, upgrader *websocket.Upgrader, w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		observability.Logger().Info("websocket upgrade failed", "error", err)
		return
	}

	// The request context dies with the handler; the connection outlives it.
	ctx := observability.WithRequestID(context.Background(), uuid.NewString())

	client := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
		identity: identity,
		joined:   make(map[uuid.UUID]bool),
		ctx:      ctx,
	}

	observability.LoggerFromContext(ctx).Info("client connected", "user_id", identity.UserID)

	go client.writePump()
	go client.readPump()
}

// enqueue queues an outbound frame without blocking the handler.
func (c *Client) enqueue(payload []byte) {
	select {
	case <-c.done:
	case c.send <- payload:
	default:
		go c.close()
	}
}

// close tears the connection down exactly once: all joined associations are
// discarded immediately, with no grace period and no replay.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.hub.detach(c)
		close(c.done)
		_ = c.conn.Close()
		observability.LoggerFromContext(c.ctx).Info("client disconnected", "user_id", c.identity.UserID)
	})
}

func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				observability.LoggerFromContext(c.ctx).Info("websocket read error",
					"user_id", c.identity.UserID, "error", err)
			}
			return
		}
		c.dispatch(raw)
	}
}

func (c *Client) dispatch(raw []byte) {
	var evt clientEvent
	if err := unmarshalEvent(raw, &evt); err != nil {
		c.enqueue(errorEvent(apperrors.InvalidArg("invalid event format")))
		return
	}

	switch evt.Type {
	case EventJoinConversation:
		c.hub.handleJoin(c.ctx, c, evt)
	case EventLeaveConversation:
		c.hub.handleLeave(c.ctx, c, evt)
	case EventSendMessage:
		c.hub.handleSendMessage(c.ctx, c, evt)
	case EventTyping:
		c.hub.handleTyping(c.ctx, c, evt)
	case EventMessageRead:
		c.hub.handleMessageRead(c.ctx, c, evt)
	default:
		c.enqueue(errorEvent(apperrors.InvalidArg("unknown event type")))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
