package websocket

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Nomu-MDS/Nomu-Back/internal/application/services"
	"github.com/Nomu-MDS/Nomu-Back/internal/observability"
	apperrors "github.com/Nomu-MDS/Nomu-Back/pkg/errors"
)

// Hub tracks which live connections are subscribed to which conversations
// and fans events out to them. Subscription state is an optimization for
// fan-out targeting only: every state-changing event re-validates
// participancy through ConversationService.
type Hub struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]map[*Client]bool

	conversations services.ConversationService
	chat          services.ChatService
}

func NewHub(convSvc services.ConversationService, chatSvc services.ChatService) *Hub {
	return &Hub{
		rooms:         make(map[uuid.UUID]map[*Client]bool),
		conversations: convSvc,
		chat:          chatSvc,
	}
}

func (h *Hub) subscribe(conversationID uuid.UUID, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[conversationID] == nil {
		h.rooms[conversationID] = make(map[*Client]bool)
	}
	h.rooms[conversationID][c] = true
	c.joined[conversationID] = true
}

// unsubscribe is idempotent: leaving a conversation the connection never
// joined is a no-op.
func (h *Hub) unsubscribe(conversationID uuid.UUID, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(conversationID, c)
}

// detach removes a disconnecting client from every conversation it joined.
func (h *Hub) detach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conversationID := range c.joined {
		h.dropLocked(conversationID, c)
	}
}

func (h *Hub) dropLocked(conversationID uuid.UUID, c *Client) {
	delete(c.joined, conversationID)
	if room := h.rooms[conversationID]; room != nil {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, conversationID)
		}
	}
}

func (h *Hub) isSubscribed(conversationID uuid.UUID, c *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.joined[conversationID]
}

// broadcast delivers payload to every connection subscribed to the
// conversation, excluding exclude when non-nil. Connections whose send
// buffer is full are dropped rather than blocking the fan-out.
func (h *Hub) broadcast(conversationID uuid.UUID, payload []byte, exclude *Client) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[conversationID] {
		if c == exclude {
			continue
		}
		select {
		case c.send <- payload:
		default:
			observability.Logger().Warn("dropping slow websocket client",
				"user_id", c.identity.UserID, "conversation_id", conversationID)
			go c.close()
		}
	}
}

// Event handlers below sequence validate -> persist -> broadcast -> ack.
// Failures are reported to the originating connection only and never reach
// other participants; broadcast happens strictly after persistence.

func (h *Hub) handleJoin(ctx context.Context, c *Client, evt clientEvent) {
	if evt.ConversationID == uuid.Nil {
		c.enqueue(errorEvent(apperrors.InvalidArg("conversation_id is required")))
		return
	}
	if _, err := h.conversations.AssertParticipant(ctx, evt.ConversationID, c.identity.UserID); err != nil {
		c.enqueue(errorEvent(err))
		return
	}
	h.subscribe(evt.ConversationID, c)
	c.enqueue(joinedConversationEvent(evt.ConversationID))
	observability.LoggerFromContext(ctx).Info("client joined conversation",
		"user_id", c.identity.UserID, "conversation_id", evt.ConversationID)
}

func (h *Hub) handleLeave(ctx context.Context, c *Client, evt clientEvent) {
	if evt.ConversationID == uuid.Nil {
		c.enqueue(errorEvent(apperrors.InvalidArg("conversation_id is required")))
		return
	}
	h.unsubscribe(evt.ConversationID, c)
}

func (h *Hub) handleSendMessage(ctx context.Context, c *Client, evt clientEvent) {
	if evt.ConversationID == uuid.Nil || evt.Content == "" {
		c.enqueue(errorEvent(apperrors.InvalidArg("conversation_id and content are required")))
		return
	}
	if _, err := h.conversations.AssertParticipant(ctx, evt.ConversationID, c.identity.UserID); err != nil {
		c.enqueue(errorEvent(err))
		return
	}

	message, err := h.chat.Append(ctx, evt.ConversationID, c.identity.UserID, evt.Content, evt.Attachment)
	if err != nil {
		c.enqueue(errorEvent(err))
		return
	}

	// Every subscribed connection gets new_message, the sender's own devices
	// included; the originating connection additionally gets message_sent so
	// clients can tell "my send succeeded" from "a message arrived".
	h.broadcast(evt.ConversationID, newMessageEvent(message), nil)
	c.enqueue(messageSentEvent(message))
}

func (h *Hub) handleTyping(ctx context.Context, c *Client, evt clientEvent) {
	if evt.ConversationID == uuid.Nil {
		c.enqueue(errorEvent(apperrors.InvalidArg("conversation_id is required")))
		return
	}
	// Typing is a low-stakes ephemeral signal: the local joined set is the
	// precondition, no directory round-trip. Nothing is persisted, deduped
	// or expired server-side, and exclusion is per-connection, so a user's
	// other devices do see their typing events.
	if !h.isSubscribed(evt.ConversationID, c) {
		c.enqueue(errorEvent(apperrors.FailedPrecondition("join the conversation before sending typing updates")))
		return
	}
	h.broadcast(evt.ConversationID, userTypingEvent(evt.ConversationID, c.identity.UserID, c.identity.Name, evt.IsTyping), c)
}

func (h *Hub) handleMessageRead(ctx context.Context, c *Client, evt clientEvent) {
	if evt.MessageID == 0 {
		c.enqueue(errorEvent(apperrors.InvalidArg("message_id is required")))
		return
	}
	message, err := h.chat.MarkRead(ctx, evt.MessageID, c.identity.UserID)
	if err != nil {
		c.enqueue(errorEvent(err))
		return
	}
	h.broadcast(message.ConversationID, messageReadUpdateEvent(message.ID, message.ConversationID, c.identity.UserID), nil)
}
