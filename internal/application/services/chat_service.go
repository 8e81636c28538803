package services

import (
	"context"
	"database/sql"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Nomu-MDS/Nomu-Back/internal/domain"
	"github.com/Nomu-MDS/Nomu-Back/internal/observability"
	apperrors "github.com/Nomu-MDS/Nomu-Back/pkg/errors"
)

// ChatService is the durable, ordered message log. It does not enforce
// conversation-level authorization on Append and Page; callers go through
// ConversationService.AssertParticipant first. MarkRead re-checks
// participancy itself because its caller only holds a message ID.
type ChatService interface {
	Append(ctx context.Context, conversationID, senderID uuid.UUID, content, attachmentRef string) (*domain.Message, error)
	Page(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]domain.Message, error)
	GetMessage(ctx context.Context, messageID int64) (*domain.Message, error)
	MarkRead(ctx context.Context, messageID int64, readerID uuid.UUID) (*domain.Message, error)
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type chatService struct {
	db *gorm.DB
}

func NewChatService(db *gorm.DB) ChatService {
	return &chatService{db: db}
}

func (s *chatService) Append(ctx context.Context, conversationID, senderID uuid.UUID, content, attachmentRef string) (*domain.Message, error) {
	if content == "" {
		return nil, apperrors.InvalidArg("message content is required")
	}
	if utf8.RuneCountInString(content) > domain.MaxContentLength {
		return nil, apperrors.InvalidArg("message content exceeds maximum length of 2000 characters")
	}
	normalizedRef, err := ValidateAttachment(attachmentRef)
	if err != nil {
		return nil, err
	}

	message := domain.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	if normalizedRef != "" {
		message.Attachment = sql.NullString{String: normalizedRef, Valid: true}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&message).Error; err != nil {
			return err
		}
		return tx.Model(&domain.Conversation{}).
			Where("id = ?", conversationID).
			Update("last_activity_at", message.CreatedAt).Error
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to save message", err)
	}

	observability.LoggerFromContext(ctx).Info("message appended",
		"message_id", message.ID, "conversation_id", conversationID, "sender_id", senderID)

	return s.load(ctx, message.ID)
}

func (s *chatService) Page(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	var messages []domain.Message
	err := s.db.WithContext(ctx).
		Preload("Sender").
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to load messages", err)
	}
	return messages, nil
}

func (s *chatService) GetMessage(ctx context.Context, messageID int64) (*domain.Message, error) {
	return s.load(ctx, messageID)
}

func (s *chatService) MarkRead(ctx context.Context, messageID int64, readerID uuid.UUID) (*domain.Message, error) {
	message, err := s.load(ctx, messageID)
	if err != nil {
		return nil, err
	}

	var conv domain.Conversation
	if err := s.db.WithContext(ctx).First(&conv, "id = ?", message.ConversationID).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "internal server error", err)
	}
	if !conv.HasParticipant(readerID) {
		return nil, apperrors.Forbidden("access denied to this conversation")
	}
	if message.SenderID == readerID {
		return nil, apperrors.FailedPrecondition("cannot mark your own message as read")
	}

	if message.Read {
		// already read, idempotent no-op
		return message, nil
	}

	if err := s.db.WithContext(ctx).Model(message).Update("read", true).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to mark message as read", err)
	}
	message.Read = true
	return message, nil
}

func (s *chatService) load(ctx context.Context, messageID int64) (*domain.Message, error) {
	var message domain.Message
	err := s.db.WithContext(ctx).Preload("Sender").First(&message, "id = ?", messageID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("message not found")
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, "internal server error", err)
	}
	return &message, nil
}
