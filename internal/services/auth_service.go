package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"agora-chat/config"
	agora_errors "agora-chat/pkg/errors"
	"agora-chat/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AuthService verifies access tokens minted by the external session module.
type AuthService struct {
	jwtSecret []byte
}

func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{jwtSecret: []byte(cfg.JWTSecret)}
}

type AccessClaims struct {
	UserID    string `json:"sub"`
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

func (s *AuthService) ParseAccessToken(tokenString string) (AccessClaims, error) {
	if tokenString == "" {
		return AccessClaims{}, agora_errors.ErrUnauthorized
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, agora_errors.ErrUnauthorized
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return AccessClaims{}, agora_errors.ErrUnauthorized
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return AccessClaims{}, agora_errors.ErrUnauthorized
	}

	return *claims, nil
}

// Authenticate parses a token and returns the caller identity.
func (s *AuthService) Authenticate(tokenString string) (uuid.UUID, error) {
	claims, err := s.ParseAccessToken(tokenString)
	if err != nil {
		return uuid.Nil, err
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, agora_errors.ErrUnauthorized
	}
	return userID, nil
}

// IssueAccessToken signs an HS256 token for userID. Production tokens come from
// the session module; this exists for development tooling and tests.
func (s *AuthService) IssueAccessToken(userID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, agora_errors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, agora_errors.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, agora_errors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, agora_errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, agora_errors.ErrAlreadyExists), errors.Is(err, agora_errors.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, agora_errors.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, agora_errors.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type ctxKey string

var userIDKey ctxKey = "user_id"

// WithUserContext stores the caller identity, and mirrors it for the logger.
func WithUserContext(ctx context.Context, userID uuid.UUID) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, logger.UserIdKey, userID.String())
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	value := ctx.Value(userIDKey)
	if value == nil {
		return uuid.Nil, false
	}
	userID, ok := value.(uuid.UUID)
	return userID, ok
}
