package lockout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/warp/approval-desk/approval"
)

const (
	DefaultSessionTTL = 30 * time.Minute

	RoleAdmin = "admin"

	sessionPrefix = "session:"
)

var ErrInvalidSession = errors.New("invalid or expired admin session")

// AdminClaims are the claims of an admin session token.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Sessions issues HS256 admin tokens. Each token's id is also stored in the
// KV so a session can be revoked before it expires.
type Sessions struct {
	Store  approval.KV
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

func NewSessions(store approval.KV, secret string, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{Store: store, Secret: []byte(secret), TTL: ttl, Now: time.Now}
}

func (s *Sessions) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Issue returns a signed token for subject and when it expires.
func (s *Sessions) Issue(ctx context.Context, subject string) (string, time.Time, error) {
	if len(s.Secret) == 0 {
		return "", time.Time{}, errors.New("admin token secret not configured")
	}

	now := s.now()
	expiresAt := now.Add(s.TTL)
	claims := AdminClaims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign admin token: %w", err)
	}
	if err := s.Store.Set(ctx, sessionPrefix+claims.ID, []byte(subject), s.TTL); err != nil {
		return "", time.Time{}, fmt.Errorf("store admin session: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify parses token and checks that its session is still live.
func (s *Sessions) Verify(ctx context.Context, token string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.Secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidSession
	}
	if claims.Role != RoleAdmin || claims.ID == "" {
		return nil, ErrInvalidSession
	}

	if _, err := s.Store.Get(ctx, sessionPrefix+claims.ID); err != nil {
		if errors.Is(err, approval.ErrKeyNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	return claims, nil
}

// Revoke ends a session before its expiry.
func (s *Sessions) Revoke(ctx context.Context, claims *AdminClaims) error {
	return s.Store.Delete(ctx, sessionPrefix+claims.ID)
}
