package services

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Nomu-MDS/Nomu-Back/internal/domain"
)

// newTestDB opens an in-memory sqlite database with the same gorm
// configuration the postgres setup uses. A single connection keeps the
// in-memory database alive for the whole test.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&domain.User{}, &domain.Conversation{}, &domain.Message{}))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, name string) domain.User {
	t.Helper()

	user := domain.User{
		ID:     uuid.New(),
		Name:   name,
		Email:  name + "@example.com",
		Active: true,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}
