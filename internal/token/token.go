// Package token issues and validates signed, time-bounded session tokens.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/tasktracker/internal/errs"
	"github.com/and161185/tasktracker/internal/model"
)

// DefaultTTL is the session lifetime.
const DefaultTTL = 7 * 24 * time.Hour

// Service signs HS256 JWTs whose subject is the owner's user ID.
type Service struct {
	signKey []byte
	ttl     time.Duration
	now     func() time.Time
}

// NewService constructs a token Service. A non-positive ttl selects DefaultTTL.
func NewService(signKey []byte, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{signKey: signKey, ttl: ttl, now: time.Now}
}

// Issue creates a signed token for userID valid for the configured TTL.
func (s *Service) Issue(userID uuid.UUID) (model.Tokens, error) {
	if userID == uuid.Nil {
		return model.Tokens{}, errors.New("issue token: empty user id")
	}
	jti, err := uuid.NewV4()
	if err != nil {
		return model.Tokens{}, err
	}
	// NumericDate keeps whole seconds; the returned expiry matches the signed claim.
	now := s.now().Truncate(time.Second)
	exp := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		ID:        jti.String(),
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
	if err != nil {
		return model.Tokens{}, fmt.Errorf("sign token: %w", err)
	}
	return model.Tokens{AccessToken: signed, ExpiresAt: exp}, nil
}

// Validate verifies the signature and expiry of tok and returns its subject.
// Tampered or malformed tokens yield errs.ErrInvalidToken, expired ones errs.ErrExpiredToken.
func (s *Service) Validate(tok string) (uuid.UUID, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tok, &claims,
		func(*jwt.Token) (any, error) { return s.signKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, errs.ErrExpiredToken
		}
		return uuid.Nil, fmt.Errorf("%w: %v", errs.ErrInvalidToken, err)
	}

	id, err := uuid.FromString(claims.Subject)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", errs.ErrInvalidToken)
	}
	return id, nil
}
