package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-attempt/internal/config"
)

// Common auth errors.
var (
	ErrNoActiveSession    = errors.New("no active session")
	ErrSessionInvalidated = errors.New("session invalidated")
)

// TokenType distinguishes student vs admin tokens.
type TokenType string

const (
	TokenTypeStudent TokenType = "student"
	TokenTypeAdmin   TokenType = "admin"
)

// Claims extends JWT standard claims with app-specific fields. Tokens are
// issued by the main backend; this service only verifies them.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"token_type"`
	UserID    int       `json:"user_id"`
	ClassID   int       `json:"class_id,omitempty"`
}

// AuthService verifies student tokens and their single-device login.
type AuthService struct {
	secret       []byte
	rdb          *redis.Client
	singleDevice bool
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, rdb *redis.Client) *AuthService {
	return &AuthService{
		secret:       []byte(cfg.JWTSecret),
		rdb:          rdb,
		singleDevice: cfg.SingleDeviceSessions && rdb != nil,
	}
}

// GenerateStudentToken issues a student token the way the main backend does.
// It is used by tests and local tooling; it does not register a login, see
// RegisterLogin.
func (s *AuthService) GenerateStudentToken(studentID, classID int, ttl time.Duration) (string, string, error) {
	now := time.Now()
	jti := uuid.NewString()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   strconv.Itoa(studentID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TokenType: TokenTypeStudent,
		UserID:    studentID,
		ClassID:   classID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", "", fmt.Errorf("sign token: %w", err)
	}
	return signed, jti, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}

// ValidateStudentSession checks that the token's JTI matches the active login
// in Redis. It always passes when single-device sessions are disabled.
func (s *AuthService) ValidateStudentSession(ctx context.Context, studentID int, jti string) error {
	if !s.singleDevice {
		return nil
	}

	stored, err := s.rdb.Get(ctx, config.CacheKey.StudentSessionKey(studentID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNoActiveSession
		}
		return fmt.Errorf("check session: %w", err)
	}
	if stored != jti {
		return ErrSessionInvalidated
	}
	return nil
}

// RegisterLogin records jti as the student's active login, replacing any
// earlier one.
func (s *AuthService) RegisterLogin(ctx context.Context, studentID int, jti string, ttl time.Duration) error {
	if s.rdb == nil {
		return nil
	}
	if err := s.rdb.Set(ctx, config.CacheKey.StudentSessionKey(studentID), jti, ttl).Err(); err != nil {
		return fmt.Errorf("register login: %w", err)
	}
	return nil
}
