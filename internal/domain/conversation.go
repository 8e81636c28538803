package domain

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation pairs exactly two distinct users. The pair is stored in
// canonical order (ParticipantAID < ParticipantBID byte-wise) so the unique
// index holds regardless of which participant initiated; see CanonicalPair.
type Conversation struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ParticipantAID uuid.UUID `gorm:"column:participant_a_id;type:uuid;not null;uniqueIndex:idx_conversation_pair" json:"participant_a_id"`
	ParticipantBID uuid.UUID `gorm:"column:participant_b_id;type:uuid;not null;uniqueIndex:idx_conversation_pair" json:"participant_b_id"`
	LastActivityAt time.Time `gorm:"column:last_activity_at;not null" json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	ParticipantA User `gorm:"foreignKey:ParticipantAID;references:ID" json:"participant_a"`
	ParticipantB User `gorm:"foreignKey:ParticipantBID;references:ID" json:"participant_b"`
}

// CanonicalPair orders two user IDs into the storage order.
func CanonicalPair(x, y uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(x[:], y[:]) < 0 {
		return x, y
	}
	return y, x
}

// BeforeCreate enforces distinctness and canonical order. The pair is
// immutable once the row exists; later writes only touch last_activity_at
// and must not re-run this check against a zero-valued model.
func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ParticipantAID == c.ParticipantBID {
		return fmt.Errorf("conversation participants must be distinct: %s", c.ParticipantAID)
	}
	c.ParticipantAID, c.ParticipantBID = CanonicalPair(c.ParticipantAID, c.ParticipantBID)
	return nil
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.ParticipantAID == userID || c.ParticipantBID == userID
}

// Peer returns the other participant's ID. The caller must already have
// verified participancy.
func (c *Conversation) Peer(userID uuid.UUID) uuid.UUID {
	if c.ParticipantAID == userID {
		return c.ParticipantBID
	}
	return c.ParticipantAID
}
