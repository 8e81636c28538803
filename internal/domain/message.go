package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// MaxContentLength bounds message content, in characters.
const MaxContentLength = 2000

// Message is append-only: once persisted, only the Read flag may change, and
// only through ChatService.MarkRead. The ID is a database-assigned
// monotonically increasing sequence, so (created_at, id) is the total order
// within a conversation and ties are impossible.
type Message struct {
	ID             int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID uuid.UUID      `gorm:"column:conversation_id;type:uuid;not null;index:idx_message_conversation_order,priority:1" json:"conversation_id"`
	SenderID       uuid.UUID      `gorm:"column:sender_id;type:uuid;not null;index" json:"sender_id"`
	Content        string         `gorm:"column:content;type:text;not null" json:"content"`
	Attachment     sql.NullString `gorm:"column:attachment" json:"-"`
	Read           bool           `gorm:"column:read;not null;default:false" json:"read"`
	CreatedAt      time.Time      `gorm:"index:idx_message_conversation_order,priority:2" json:"created_at"`

	Conversation Conversation `gorm:"foreignKey:ConversationID;references:ID" json:"-"`
	Sender       User         `gorm:"foreignKey:SenderID;references:ID" json:"sender"`
}

// AttachmentRef returns the attachment reference or "" when none is set.
func (m *Message) AttachmentRef() string {
	if m.Attachment.Valid {
		return m.Attachment.String
	}
	return ""
}
