package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Nomu-MDS/Nomu-Back/internal/domain"
	apperrors "github.com/Nomu-MDS/Nomu-Back/pkg/errors"
)

const testSecret = "auth-test-secret"

func newAuthDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.User{}))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, name string, active bool) domain.User {
	t.Helper()
	user := domain.User{ID: uuid.New(), Name: name, Email: name + "@example.com", Active: true}
	require.NoError(t, db.Create(&user).Error)
	// Active defaults to true at the column level, so a zero value would be
	// dropped on insert; deactivation has to be an explicit update.
	if !active {
		require.NoError(t, db.Model(&domain.User{}).Where("id = ?", user.ID).Update("active", false).Error)
		user.Active = false
	}
	return user
}

func requestWithHeader(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestResolveRequestHeader(t *testing.T) {
	db := newAuthDB(t)
	resolver := NewResolver(db, testSecret)
	user := seedUser(t, db, "alice", true)

	token, err := GenerateToken(testSecret, user.ID)
	require.NoError(t, err)

	identity, err := resolver.ResolveRequest(requestWithHeader(token))
	require.NoError(t, err)
	assert.Equal(t, user.ID, identity.UserID)
	assert.Equal(t, "alice", identity.Name)
}

func TestResolveRequestQueryParam(t *testing.T) {
	db := newAuthDB(t)
	resolver := NewResolver(db, testSecret)
	user := seedUser(t, db, "alice", true)

	token, err := GenerateToken(testSecret, user.ID)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ws/chat?token="+token, nil)
	identity, err := resolver.ResolveRequest(req)
	require.NoError(t, err)
	assert.Equal(t, user.ID, identity.UserID)
}

func TestResolveRequestFailures(t *testing.T) {
	db := newAuthDB(t)
	resolver := NewResolver(db, testSecret)
	user := seedUser(t, db, "alice", true)
	inactive := seedUser(t, db, "bob", false)

	goodToken, err := GenerateToken(testSecret, user.ID)
	require.NoError(t, err)
	wrongSecret, err := GenerateToken("some-other-secret", user.ID)
	require.NoError(t, err)
	unknownUser, err := GenerateToken(testSecret, uuid.New())
	require.NoError(t, err)
	inactiveUser, err := GenerateToken(testSecret, inactive.ID)
	require.NoError(t, err)

	// A token signed with "none" must not be accepted even if claims parse.
	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone,
		jwt.MapClaims{"user_id": user.ID.String()}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name string
		req  *http.Request
	}{
		{"missing token", httptest.NewRequest(http.MethodGet, "/conversations", nil)},
		{"malformed header", func() *http.Request {
			req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
			req.Header.Set("Authorization", goodToken)
			return req
		}()},
		{"garbage token", requestWithHeader("not.a.jwt")},
		{"wrong secret", requestWithHeader(wrongSecret)},
		{"none algorithm", requestWithHeader(noneToken)},
		{"unknown user", requestWithHeader(unknownUser)},
		{"inactive user", requestWithHeader(inactiveUser)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolver.ResolveRequest(tt.req)
			require.Error(t, err)
			assert.Equal(t, apperrors.CodeUnauthenticated, apperrors.CodeOf(err))
		})
	}
}

func TestMiddleware(t *testing.T) {
	db := newAuthDB(t)
	resolver := NewResolver(db, testSecret)
	user := seedUser(t, db, "alice", true)

	var seen *Identity
	handler := resolver.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	token, err := GenerateToken(testSecret, user.ID)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithHeader(token))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, user.ID, seen.UserID)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
