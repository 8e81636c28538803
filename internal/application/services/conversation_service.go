package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Nomu-MDS/Nomu-Back/internal/domain"
	"github.com/Nomu-MDS/Nomu-Back/internal/observability"
	apperrors "github.com/Nomu-MDS/Nomu-Back/pkg/errors"
)

// ConversationPreview is a conversation annotated with its most recent
// message, for the conversation-list surface.
type ConversationPreview struct {
	Conversation domain.Conversation `json:"conversation"`
	LastMessage  *domain.Message     `json:"last_message,omitempty"`
}

// ConversationService owns the two-party pair invariants and is the single
// authorization choke point: every read, write, join and read-receipt path
// goes through AssertParticipant.
type ConversationService interface {
	FindOrCreate(ctx context.Context, requesterID, otherUserID uuid.UUID) (*domain.Conversation, bool, error)
	AssertParticipant(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Conversation, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]ConversationPreview, error)
	Get(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Conversation, error)
}

type conversationService struct {
	db *gorm.DB
}

func NewConversationService(db *gorm.DB) ConversationService {
	return &conversationService{db: db}
}

func (s *conversationService) FindOrCreate(ctx context.Context, requesterID, otherUserID uuid.UUID) (*domain.Conversation, bool, error) {
	if requesterID == otherUserID {
		return nil, false, apperrors.FailedPrecondition("cannot create a conversation with yourself")
	}

	var other domain.User
	if err := s.db.WithContext(ctx).First(&other, "id = ?", otherUserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, apperrors.InvalidArg("other user not found")
		}
		return nil, false, apperrors.Wrap(apperrors.CodeInternal, "internal server error", err)
	}
	if !other.Active {
		return nil, false, apperrors.InvalidArg("other user is inactive")
	}

	a, b := domain.CanonicalPair(requesterID, otherUserID)

	if conv, err := s.pair(ctx, a, b); err == nil {
		return conv, true, nil
	} else if apperrors.CodeOf(err) != apperrors.CodeNotFound {
		return nil, false, err
	}

	conv := domain.Conversation{
		ID:             uuid.New(),
		ParticipantAID: a,
		ParticipantBID: b,
		LastActivityAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&conv).Error; err != nil {
		// Both participants may race to create; the pair index is the source
		// of truth, so a duplicate key means the other side won and we read
		// their row.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, lookupErr := s.pair(ctx, a, b)
			if lookupErr != nil {
				return nil, false, lookupErr
			}
			return existing, true, nil
		}
		return nil, false, apperrors.Wrap(apperrors.CodeInternal, "failed to create conversation", err)
	}

	observability.LoggerFromContext(ctx).Info("conversation created",
		"conversation_id", conv.ID, "participant_a", a, "participant_b", b)

	created, err := s.pair(ctx, a, b)
	if err != nil {
		return nil, false, err
	}
	return created, false, nil
}

func (s *conversationService) pair(ctx context.Context, a, b uuid.UUID) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := s.db.WithContext(ctx).
		Preload("ParticipantA").
		Preload("ParticipantB").
		First(&conv, "participant_a_id = ? AND participant_b_id = ?", a, b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("conversation not found")
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, "internal server error", err)
	}
	return &conv, nil
}

func (s *conversationService) AssertParticipant(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := s.db.WithContext(ctx).First(&conv, "id = ?", conversationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("conversation not found")
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, "internal server error", err)
	}
	if !conv.HasParticipant(userID) {
		return nil, apperrors.Forbidden("access denied to this conversation")
	}
	return &conv, nil
}

func (s *conversationService) ListForUser(ctx context.Context, userID uuid.UUID) ([]ConversationPreview, error) {
	var conversations []domain.Conversation
	err := s.db.WithContext(ctx).
		Preload("ParticipantA").
		Preload("ParticipantB").
		Where("participant_a_id = ? OR participant_b_id = ?", userID, userID).
		Order("last_activity_at DESC").
		Find(&conversations).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to list conversations", err)
	}

	previews := make([]ConversationPreview, 0, len(conversations))
	for _, conv := range conversations {
		preview := ConversationPreview{Conversation: conv}
		var last domain.Message
		err := s.db.WithContext(ctx).
			Preload("Sender").
			Where("conversation_id = ?", conv.ID).
			Order("created_at DESC, id DESC").
			First(&last).Error
		switch {
		case err == nil:
			preview.LastMessage = &last
		case errors.Is(err, gorm.ErrRecordNotFound):
			// empty conversation, no preview
		default:
			return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to load conversation preview", err)
		}
		previews = append(previews, preview)
	}
	return previews, nil
}

func (s *conversationService) Get(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Conversation, error) {
	conv, err := s.AssertParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	hydrated, err := s.pair(ctx, conv.ParticipantAID, conv.ParticipantBID)
	if err != nil {
		return nil, err
	}
	return hydrated, nil
}
