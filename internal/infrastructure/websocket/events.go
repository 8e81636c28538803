package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/Nomu-MDS/Nomu-Back/internal/domain"
	apperrors "github.com/Nomu-MDS/Nomu-Back/pkg/errors"
)

// Client-to-server event types.
const (
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventSendMessage       = "send_message"
	EventTyping            = "typing"
	EventMessageRead       = "message_read"
)

// Server-to-client event types.
const (
	EventJoinedConversation = "joined_conversation"
	EventNewMessage         = "new_message"
	EventMessageSent        = "message_sent"
	EventUserTyping         = "user_typing"
	EventMessageReadUpdate  = "message_read_update"
	EventError              = "error"
)

// clientEvent is the single inbound envelope; fields beyond Type are
// event-specific and zero-valued when absent.
type clientEvent struct {
	Type           string    `json:"type"`
	ConversationID uuid.UUID `json:"conversation_id,omitempty"`
	Content        string    `json:"content,omitempty"`
	Attachment     string    `json:"attachment,omitempty"`
	IsTyping       bool      `json:"is_typing,omitempty"`
	MessageID      int64     `json:"message_id,omitempty"`
}

type messageBody struct {
	ID             int64     `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	SenderName     string    `json:"sender_name"`
	Content        string    `json:"content"`
	Attachment     *string   `json:"attachment"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`
}

func newMessageBody(m *domain.Message) messageBody {
	body := messageBody{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderName:     m.Sender.Name,
		Content:        m.Content,
		Read:           m.Read,
		CreatedAt:      m.CreatedAt,
	}
	if m.Attachment.Valid {
		body.Attachment = &m.Attachment.String
	}
	return body
}

func unmarshalEvent(raw []byte, evt *clientEvent) error {
	return json.Unmarshal(raw, evt)
}

func marshalEvent(v any) []byte {
	// All payload types here marshal without error.
	b, _ := json.Marshal(v)
	return b
}

func joinedConversationEvent(conversationID uuid.UUID) []byte {
	return marshalEvent(struct {
		Type           string    `json:"type"`
		ConversationID uuid.UUID `json:"conversation_id"`
	}{EventJoinedConversation, conversationID})
}

func newMessageEvent(m *domain.Message) []byte {
	return marshalEvent(struct {
		Type    string      `json:"type"`
		Message messageBody `json:"message"`
	}{EventNewMessage, newMessageBody(m)})
}

func messageSentEvent(m *domain.Message) []byte {
	return marshalEvent(struct {
		Type    string      `json:"type"`
		Message messageBody `json:"message"`
	}{EventMessageSent, newMessageBody(m)})
}

func userTypingEvent(conversationID, userID uuid.UUID, userName string, isTyping bool) []byte {
	return marshalEvent(struct {
		Type           string    `json:"type"`
		ConversationID uuid.UUID `json:"conversation_id"`
		UserID         uuid.UUID `json:"user_id"`
		UserName       string    `json:"user_name"`
		IsTyping       bool      `json:"is_typing"`
	}{EventUserTyping, conversationID, userID, userName, isTyping})
}

func messageReadUpdateEvent(messageID int64, conversationID, readBy uuid.UUID) []byte {
	return marshalEvent(struct {
		Type           string    `json:"type"`
		MessageID      int64     `json:"message_id"`
		ConversationID uuid.UUID `json:"conversation_id"`
		Read           bool      `json:"read"`
		ReadBy         uuid.UUID `json:"read_by"`
	}{EventMessageReadUpdate, messageID, conversationID, true, readBy})
}

func errorEvent(err error) []byte {
	return marshalEvent(struct {
		Type    string         `json:"type"`
		Code    apperrors.Code `json:"code"`
		Message string         `json:"message"`
	}{EventError, apperrors.CodeOf(err), apperrors.MessageOf(err)})
}
