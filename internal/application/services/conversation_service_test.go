package services

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Nomu-MDS/Nomu-Back/internal/domain"
	apperrors "github.com/Nomu-MDS/Nomu-Back/pkg/errors"
)

func TestFindOrCreate(t *testing.T) {
	db := newTestDB(t)
	svc := NewConversationService(db)
	ctx := context.Background()

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	conv, existed, err := svc.FindOrCreate(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, existed)
	assert.True(t, bytes.Compare(conv.ParticipantAID[:], conv.ParticipantBID[:]) < 0,
		"pair must be stored in canonical order")
	assert.True(t, conv.HasParticipant(alice.ID))
	assert.True(t, conv.HasParticipant(bob.ID))
	assert.NotEmpty(t, conv.ParticipantA.Name)
	assert.NotEmpty(t, conv.ParticipantB.Name)

	// The reversed direction resolves to the same conversation.
	same, existed, err := svc.FindOrCreate(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, conv.ID, same.ID)

	var count int64
	require.NoError(t, db.Model(&domain.Conversation{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestFindOrCreateWithSelf(t *testing.T) {
	db := newTestDB(t)
	svc := NewConversationService(db)

	alice := seedUser(t, db, "alice")

	_, _, err := svc.FindOrCreate(context.Background(), alice.ID, alice.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeFailedPrecondition, apperrors.CodeOf(err))
}

func TestFindOrCreateWithUnknownUser(t *testing.T) {
	db := newTestDB(t)
	svc := NewConversationService(db)

	alice := seedUser(t, db, "alice")

	_, _, err := svc.FindOrCreate(context.Background(), alice.ID, uuid.New())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))
}

func TestFindOrCreateWithInactiveUser(t *testing.T) {
	db := newTestDB(t)
	svc := NewConversationService(db)

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	require.NoError(t, db.Model(&domain.User{}).Where("id = ?", bob.ID).Update("active", false).Error)

	_, _, err := svc.FindOrCreate(context.Background(), alice.ID, bob.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))
}

func TestPairIndexRejectsDuplicates(t *testing.T) {
	db := newTestDB(t)

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	a, b := domain.CanonicalPair(alice.ID, bob.ID)

	first := domain.Conversation{ID: uuid.New(), ParticipantAID: a, ParticipantBID: b, LastActivityAt: time.Now()}
	require.NoError(t, db.Create(&first).Error)

	// A second insert for the same pair, even reversed, hits the unique
	// index; FindOrCreate relies on this being reported as ErrDuplicatedKey.
	second := domain.Conversation{ID: uuid.New(), ParticipantAID: b, ParticipantBID: a, LastActivityAt: time.Now()}
	err := db.Create(&second).Error
	require.Error(t, err)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

// TestFindOrCreateLosesCreationRace drives the duplicate-key recovery path:
// a competing connection commits the pair row after the lookup misses but
// before the insert lands, and the loser must adopt the winner's row instead
// of failing.
func TestFindOrCreateLosesCreationRace(t *testing.T) {
	// A file-backed database so a second connection can commit independently
	// of the transaction under test.
	path := filepath.Join(t.TempDir(), "race.db")
	open := func() *gorm.DB {
		db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.Silent),
		})
		require.NoError(t, err)
		return db
	}
	db := open()
	require.NoError(t, db.AutoMigrate(&domain.User{}, &domain.Conversation{}, &domain.Message{}))
	rival := open()

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	a, b := domain.CanonicalPair(alice.ID, bob.ID)
	winner := domain.Conversation{ID: uuid.New(), ParticipantAID: a, ParticipantBID: b, LastActivityAt: time.Now()}

	err := db.Callback().Create().Before("gorm:create").Register("rival_create", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Model.(*domain.Conversation); !ok {
			return
		}
		require.NoError(t, rival.Create(&winner).Error)
	})
	require.NoError(t, err)

	conv, existed, err := NewConversationService(db).FindOrCreate(context.Background(), alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, winner.ID, conv.ID)

	var count int64
	require.NoError(t, db.Model(&domain.Conversation{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestConversationRejectsIdenticalParticipants(t *testing.T) {
	db := newTestDB(t)

	alice := seedUser(t, db, "alice")
	conv := domain.Conversation{ID: uuid.New(), ParticipantAID: alice.ID, ParticipantBID: alice.ID, LastActivityAt: time.Now()}
	require.Error(t, db.Create(&conv).Error)
}

func TestAssertParticipant(t *testing.T) {
	db := newTestDB(t)
	svc := NewConversationService(db)
	ctx := context.Background()

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	mallory := seedUser(t, db, "mallory")

	conv, _, err := svc.FindOrCreate(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	got, err := svc.AssertParticipant(ctx, conv.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)

	_, err = svc.AssertParticipant(ctx, conv.ID, mallory.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodePermissionDenied, apperrors.CodeOf(err))

	_, err = svc.AssertParticipant(ctx, uuid.New(), alice.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}

func TestGet(t *testing.T) {
	db := newTestDB(t)
	svc := NewConversationService(db)
	ctx := context.Background()

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	mallory := seedUser(t, db, "mallory")

	conv, _, err := svc.FindOrCreate(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	got, err := svc.Get(ctx, conv.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
	assert.NotEmpty(t, got.ParticipantA.Name)
	assert.NotEmpty(t, got.ParticipantB.Name)

	_, err = svc.Get(ctx, conv.ID, mallory.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodePermissionDenied, apperrors.CodeOf(err))
}

func TestListForUser(t *testing.T) {
	db := newTestDB(t)
	conversations := NewConversationService(db)
	chat := NewChatService(db)
	ctx := context.Background()

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	carol := seedUser(t, db, "carol")

	withBob, _, err := conversations.FindOrCreate(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	withCarol, _, err := conversations.FindOrCreate(ctx, alice.ID, carol.ID)
	require.NoError(t, err)

	_, err = chat.Append(ctx, withCarol.ID, carol.ID, "hi from carol", "")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = chat.Append(ctx, withBob.ID, bob.ID, "hi from bob", "")
	require.NoError(t, err)

	previews, err := conversations.ListForUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, previews, 2)

	// Most recently active first, each with its latest message hydrated.
	assert.Equal(t, withBob.ID, previews[0].Conversation.ID)
	require.NotNil(t, previews[0].LastMessage)
	assert.Equal(t, "hi from bob", previews[0].LastMessage.Content)
	assert.Equal(t, "bob", previews[0].LastMessage.Sender.Name)

	assert.Equal(t, withCarol.ID, previews[1].Conversation.ID)
	require.NotNil(t, previews[1].LastMessage)
	assert.Equal(t, "hi from carol", previews[1].LastMessage.Content)

	// A user with no conversations gets an empty list, not an error.
	dave := seedUser(t, db, "dave")
	previews, err = conversations.ListForUser(ctx, dave.ID)
	require.NoError(t, err)
	assert.Empty(t, previews)
}

func TestListForUserEmptyConversation(t *testing.T) {
	db := newTestDB(t)
	conversations := NewConversationService(db)
	ctx := context.Background()

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	_, _, err := conversations.FindOrCreate(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	previews, err := conversations.ListForUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, previews, 1)
	assert.Nil(t, previews[0].LastMessage)
}
