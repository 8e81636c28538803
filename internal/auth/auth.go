package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Nomu-MDS/Nomu-Back/internal/domain"
	"github.com/Nomu-MDS/Nomu-Back/internal/observability"
	apperrors "github.com/Nomu-MDS/Nomu-Back/pkg/errors"
)

type ctxKey string

const identityContextKey ctxKey = "identity"

// Identity is the resolved, immutable caller identity. It is produced once
// per request (REST) or once per connection at handshake time (websocket);
// handlers read it from context or from the connection and never re-resolve
// the credential.
type Identity struct {
	UserID uuid.UUID
	Name   string
}

// Resolver turns a bearer credential into an Identity backed by an existing,
// active user row.
type Resolver struct {
	db     *gorm.DB
	secret []byte
}

func NewResolver(db *gorm.DB, accessSecret string) *Resolver {
	return &Resolver{db: db, secret: []byte(accessSecret)}
}

// ResolveRequest authenticates an HTTP request. The token is taken from the
// Authorization header, or from the "token" query parameter for websocket
// handshakes where browsers cannot set headers.
func (r *Resolver) ResolveRequest(req *http.Request) (*Identity, error) {
	token, err := bearerToken(req)
	if err != nil {
		return nil, err
	}
	return r.resolve(req.Context(), token)
}

func bearerToken(req *http.Request) (string, error) {
	header := req.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return "", apperrors.Unauthorized("invalid authorization header format")
		}
		return parts[1], nil
	}
	if token := req.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", apperrors.Unauthorized("authentication token missing")
}

func (r *Resolver) resolve(ctx context.Context, tokenString string) (*Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, apperrors.Unauthorized("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperrors.Unauthorized("invalid token claims")
	}
	userIDStr, ok := claims["user_id"].(string)
	if !ok {
		return nil, apperrors.Unauthorized("invalid token claims: user_id missing")
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid user ID in token claims")
	}

	var user domain.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Unauthorized("user not found")
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, "internal server error", err)
	}
	if !user.Active {
		return nil, apperrors.Unauthorized("user account is inactive")
	}

	return &Identity{UserID: user.ID, Name: user.Name}, nil
}

// Middleware authenticates REST requests and stores the Identity in the
// request context.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		identity, err := r.ResolveRequest(req)
		if err != nil {
			observability.LoggerFromContext(req.Context()).Info("authentication failed", "error", err)
			http.Error(w, apperrors.MessageOf(err), apperrors.HTTPStatus(err))
			return
		}
		ctx := context.WithValue(req.Context(), identityContextKey, identity)
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

// IdentityFromContext returns the Identity stored by Middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	return identity, ok
}

// GenerateToken signs an HS256 access token for userID. Token issuance is
// owned by the account service; this helper exists for tests and local
// tooling.
func GenerateToken(secret string, userID uuid.UUID) (string, error) {
	claims := jwt.MapClaims{"user_id": userID.String()}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
