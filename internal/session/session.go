// Package session is the identity provider: it verifies credentials,
// issues opaque tokens kept in Redis with a TTL, and resolves tokens back
// to users. The rest of the system receives user identity as explicit
// parameters and never reaches into ambient request state.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rolandlluka/simple-ecommerce/internal/models"
)

const tokenKeyPrefix = "session:"

// UserLookup is the slice of the store the session manager needs.
type UserLookup interface {
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByID(ctx context.Context, id uuid.UUID) (models.User, error)
}

type Manager struct {
	rdb   *redis.Client
	users UserLookup
	ttl   time.Duration
}

func NewManager(redisURL string, users UserLookup, ttl time.Duration) (*Manager, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &Manager{rdb: rdb, users: users, ttl: ttl}, nil
}

func (m *Manager) Close() error { return m.rdb.Close() }

// HashPassword derives the stored form of a password.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Login verifies the credentials and issues a session token. Bad email and
// bad password are indistinguishable to the caller.
func (m *Manager) Login(ctx context.Context, email, password string) (string, models.User, error) {
	user, err := m.users.UserByEmail(ctx, email)
	if err != nil {
		return "", models.User{}, fmt.Errorf("invalid credentials: %w", models.ErrForbidden)
	}
	hashed := HashPassword(password)
	if subtle.ConstantTimeCompare([]byte(hashed), []byte(user.PasswordHash)) != 1 {
		return "", models.User{}, fmt.Errorf("invalid credentials: %w", models.ErrForbidden)
	}

	token, err := newToken()
	if err != nil {
		return "", models.User{}, err
	}
	if err := m.rdb.Set(ctx, tokenKeyPrefix+token, user.ID.String(), m.ttl).Err(); err != nil {
		return "", models.User{}, fmt.Errorf("failed to store session: %w", err)
	}
	return token, user, nil
}

// Logout drops the token. Unknown tokens are a no-op.
func (m *Manager) Logout(ctx context.Context, token string) error {
	if err := m.rdb.Del(ctx, tokenKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// UserForToken resolves a session token to its user and refreshes the TTL.
func (m *Manager) UserForToken(ctx context.Context, token string) (models.User, error) {
	val, err := m.rdb.Get(ctx, tokenKeyPrefix+token).Result()
	if err == redis.Nil {
		return models.User{}, fmt.Errorf("unknown session: %w", models.ErrForbidden)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to load session: %w", err)
	}

	userID, err := uuid.Parse(val)
	if err != nil {
		return models.User{}, fmt.Errorf("corrupt session: %w", models.ErrForbidden)
	}
	user, err := m.users.UserByID(ctx, userID)
	if err != nil {
		return models.User{}, fmt.Errorf("unknown session user: %w", models.ErrForbidden)
	}

	m.rdb.Expire(ctx, tokenKeyPrefix+token, m.ttl)
	return user, nil
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
