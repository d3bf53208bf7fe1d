// Package session implements the shared-password gate in front of the API.
// It is a convenience gate, not a security boundary.
package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/meteo-rt/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrUnauthorized is returned for a wrong password or an unusable token.
var ErrUnauthorized = errors.New("unauthorized")

const issuer = "meteo-rt"

// Session is the explicit authentication state handed back to callers.
type Session struct {
	Authenticated bool      `json:"authenticated"`
	ExpiresAt     time.Time `json:"expires_at"`
}

type claims struct {
	jwt.RegisteredClaims
}

// Gate checks the shared password and issues signed session tokens.
type Gate struct {
	hash   []byte
	secret []byte
	ttl    time.Duration
}

// NewGate hashes password with bcrypt. An empty secret is replaced by random
// bytes, so tokens do not survive a restart.
func NewGate(password, secret string, ttl time.Duration) (*Gate, error) {
	if password == "" {
		return nil, errors.New("session password must not be empty")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("invalid session ttl %s", ttl)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash session password: %w", err)
	}

	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
	}
	return &Gate{hash: hash, secret: key, ttl: ttl}, nil
}

// Login exchanges the shared password for a session and its token.
func (g *Gate) Login(password string) (Session, string, error) {
	if err := bcrypt.CompareHashAndPassword(g.hash, []byte(password)); err != nil {
		return Session{}, "", ErrUnauthorized
	}

	now := domain.Now()
	expires := now.Add(g.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString(g.secret)
	if err != nil {
		return Session{}, "", fmt.Errorf("sign session token: %w", err)
	}
	return Session{Authenticated: true, ExpiresAt: expires.Truncate(time.Second)}, signed, nil
}

// Verify validates a token and returns the session it carries.
func (g *Gate) Verify(token string) (Session, error) {
	if token == "" {
		return Session{}, ErrUnauthorized
	}

	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return g.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(domain.Now),
	)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return Session{Authenticated: true, ExpiresAt: c.ExpiresAt.Time}, nil
}
