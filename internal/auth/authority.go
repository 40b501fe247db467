// Package auth issues and validates the short-lived session tokens that bind
// a connection attempt to one identity.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dkeye/Relay/internal/domain"
)

const DefaultTTL = time.Hour

var ErrInvalidToken = errors.New("invalid session token")

// Session is what a valid token asserts.
type Session struct {
	ID        domain.SessionID
	Identity  domain.Identity
	ExpiresAt time.Time
}

// Authority signs tokens with an injected key. Tokens are self-contained, so
// validation needs no storage and expired tokens need no cleanup.
type Authority struct {
	key    []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewAuthority(key []byte, ttl time.Duration) (*Authority, error) {
	if len(key) == 0 {
		return nil, errors.New("auth: empty signing key")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Authority{key: key, ttl: ttl, issuer: "relay", now: time.Now}, nil
}

type claims struct {
	jwt.RegisteredClaims
}

// Issue returns a token for id. Every call mints a new session id; all of an
// identity's tokens validate to that identity until they expire.
func (a *Authority) Issue(id domain.Identity) (string, Session, error) {
	now := a.now()
	sess := Session{
		ID:        domain.SessionID(uuid.NewString()),
		Identity:  id,
		ExpiresAt: now.Add(a.ttl).Truncate(time.Second),
	}
	c := claims{jwt.RegisteredClaims{
		Subject:   string(id),
		ID:        string(sess.ID),
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(a.key)
	if err != nil {
		return "", Session{}, fmt.Errorf("sign token: %w", err)
	}
	return token, sess, nil
}

// Validate never panics; any failure is ErrInvalidToken and means "reject".
func (a *Authority) Validate(token string) (Session, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c,
		func(t *jwt.Token) (any, error) { return a.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !parsed.Valid {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	id, err := domain.NewIdentity(c.Subject)
	if err != nil || c.ID == "" {
		return Session{}, fmt.Errorf("%w: missing subject or id", ErrInvalidToken)
	}
	return Session{ID: domain.SessionID(c.ID), Identity: id, ExpiresAt: c.ExpiresAt.Time}, nil
}

// ValidateFor checks that token asserts exactly id.
func (a *Authority) ValidateFor(token string, id domain.Identity) (Session, error) {
	sess, err := a.Validate(token)
	if err != nil {
		return Session{}, err
	}
	if sess.Identity != id {
		return Session{}, fmt.Errorf("%w: token is for another identity", ErrInvalidToken)
	}
	return sess, nil
}
