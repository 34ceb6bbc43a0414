// Package auth issues and validates the signed bearer tokens that gate the
// mutating endpoints, and hashes user credentials.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kirinyoku/tix-events/internal/domain"
)

var (
	// ErrMissingToken means no credential was presented (401).
	ErrMissingToken = errors.New("missing token")
	// ErrInvalidToken covers bad signatures, malformed and expired tokens (403).
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Identity is the subject a token was issued for.
type Identity struct {
	UserID string      `json:"id"`
	Email  string      `json:"email"`
	Role   domain.Role `json:"role"`
}

type Config struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
}

type Service struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source used for issuing and validating.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(cfg Config, opts ...Option) (*Service, error) {
	const op = "auth.New"

	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("%s: empty signing secret", op)
	}

	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}

	if cfg.Issuer == "" {
		cfg.Issuer = "tix-events"
	}

	s := &Service{
		secret: cfg.Secret,
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}

	return s, nil
}

type claims struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for id that expires after the configured TTL.
func (s *Service) IssueToken(id Identity) (string, error) {
	const op = "auth.Service.IssueToken"

	if id.UserID == "" {
		return "", fmt.Errorf("%s: empty subject", op)
	}

	now := s.now()
	c := claims{
		Email: id.Email,
		Role:  id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// ValidateToken verifies signature, issuer and expiry and returns the
// embedded identity.
//
// Returns:
//   - error: auth.ErrMissingToken if token is empty.
//   - error: auth.ErrInvalidToken for every other failure.
func (s *Service) ValidateToken(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	var c claims
	parsed, err := jwt.ParseWithClaims(
		token,
		&c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.issuer),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !parsed.Valid || c.Subject == "" {
		return Identity{}, ErrInvalidToken
	}

	return Identity{UserID: c.Subject, Email: c.Email, Role: c.Role}, nil
}

// ExtractToken accepts both "Bearer <token>" and a bare token, the form the
// web client sends.
func ExtractToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}
