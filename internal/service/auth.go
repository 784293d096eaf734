// Package service contains application services for authentication, tasks and stats.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pkgcrypto "github.com/and161185/tasktracker/internal/crypto"
	"github.com/and161185/tasktracker/internal/errs"
	"github.com/and161185/tasktracker/internal/limiter"
	"github.com/and161185/tasktracker/internal/model"
	"github.com/and161185/tasktracker/internal/repository"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// AuthService defines registration, login and bearer-token resolution.
type AuthService interface {
	// Register creates a new user and opens a session for it.
	Register(ctx context.Context, username, email, password string) (model.Tokens, model.User, error)
	// LoginWithIP applies rate-limiting and authenticates the user by email.
	LoginWithIP(ctx context.Context, email, password, ip string) (model.Tokens, model.User, error)
	// Authenticate resolves a bearer token to a live user.
	Authenticate(ctx context.Context, token string) (model.User, error)
}

// TokenService issues and validates session tokens.
type TokenService interface {
	Issue(userID uuid.UUID) (model.Tokens, error)
	Validate(token string) (uuid.UUID, error)
}

type AuthServiceImpl struct {
	users   repository.UserRepository
	tokens  TokenService
	lim     limiter.Limiter
	timeout time.Duration
	log     *zap.Logger

	hash      func(string) (string, error)
	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService constructs AuthService with required dependencies.
// timeout bounds every store round-trip; zero disables the bound.
func NewAuthService(users repository.UserRepository, tokens TokenService, lim limiter.Limiter, timeout time.Duration) *AuthServiceImpl {
	if lim == nil {
		lim = limiter.Nop{}
	}
	return &AuthServiceImpl{
		users:   users,
		tokens:  tokens,
		lim:     lim,
		timeout: timeout,
		log:     zap.NewNop(),
		hash:    pkgcrypto.HashPassword,
	}
}

// WithLogger sets the logger for limiter faults that do not fail the login.
func (s *AuthServiceImpl) WithLogger(log *zap.Logger) *AuthServiceImpl {
	if log != nil {
		s.log = log
	}
	return s
}

type registerInput struct {
	Username string `json:"username" validate:"min=3,max=64"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"min=6,max=256"`
}

// NormalizeEmail applies the email case policy: trimmed and lower-cased.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register validates input, hashes the password and inserts the user. Uniqueness is
// enforced by the store, so a concurrent duplicate fails with errs.ErrAlreadyExists.
func (s *AuthServiceImpl) Register(ctx context.Context, username, email, password string) (model.Tokens, model.User, error) {
	in := registerInput{
		Username: strings.TrimSpace(username),
		Email:    NormalizeEmail(email),
		Password: password,
	}
	if err := validateStruct(in); err != nil {
		return model.Tokens{}, model.User{}, err
	}

	uid, err := uuid.NewV4()
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	pwdHash, err := s.hash(in.Password)
	if err != nil {
		return model.Tokens{}, model.User{}, fmt.Errorf("hash password: %w", err)
	}

	u := &model.User{
		ID:       uid,
		Username: in.Username,
		Email:    in.Email,
		PwdHash:  pwdHash,
	}
	sctx, cancel := storeCtx(ctx, s.timeout)
	defer cancel()
	if err := s.users.Create(sctx, u); err != nil {
		return model.Tokens{}, model.User{}, storeErr("create user", err)
	}

	tok, err := s.tokens.Issue(u.ID)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	return tok, publicUser(*u), nil
}

// LoginWithIP authenticates with rate limiting by (email, ip).
// Unknown email and wrong password are indistinguishable to the caller.
func (s *AuthServiceImpl) LoginWithIP(ctx context.Context, email, password, ip string) (model.Tokens, model.User, error) {
	email = NormalizeEmail(email)
	clientHash := limiter.HashClient(ip)

	sctx, cancel := storeCtx(ctx, s.timeout)
	defer cancel()

	allowed, _, err := s.lim.Allow(sctx, email, clientHash)
	if err != nil {
		return model.Tokens{}, model.User{}, storeErr("login limiter", err)
	}
	if !allowed {
		return model.Tokens{}, model.User{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByEmail(sctx, email)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		// burn the same work as a real check
		_, _ = pkgcrypto.VerifyPassword(password, s.dummy())
		return model.Tokens{}, model.User{}, s.fail(sctx, email, clientHash)
	case err != nil:
		return model.Tokens{}, model.User{}, storeErr("load user", err)
	}

	ok, err := pkgcrypto.VerifyPassword(password, u.PwdHash)
	if err != nil {
		return model.Tokens{}, model.User{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return model.Tokens{}, model.User{}, s.fail(sctx, email, clientHash)
	}

	// Success: reset counters (best-effort).
	if err := s.lim.Success(sctx, email, clientHash); err != nil {
		s.log.Warn("login limiter reset failed", zap.Error(err))
	}

	tok, err := s.tokens.Issue(u.ID)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	return tok, publicUser(*u), nil
}

// fail records a failed attempt and picks the error to report.
func (s *AuthServiceImpl) fail(ctx context.Context, email string, clientHash []byte) error {
	blocked, _, err := s.lim.Failure(ctx, email, clientHash)
	if err != nil {
		// the attempt went uncounted; the caller still gets the credential error
		s.log.Warn("login limiter failure not recorded", zap.Error(err))
		return errs.ErrUnauthorized
	}
	if blocked {
		return errs.ErrRateLimited
	}
	return errs.ErrUnauthorized
}

func (s *AuthServiceImpl) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hash("not-a-real-password")
	})
	return s.dummyHash
}

// Authenticate validates the token and checks that its subject still exists.
// Token failures keep their errs.ErrInvalidToken / errs.ErrExpiredToken identity for logging.
func (s *AuthServiceImpl) Authenticate(ctx context.Context, token string) (model.User, error) {
	uid, err := s.tokens.Validate(token)
	if err != nil {
		return model.User{}, err
	}

	sctx, cancel := storeCtx(ctx, s.timeout)
	defer cancel()
	u, err := s.users.GetByID(sctx, uid)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.User{}, fmt.Errorf("%w: token subject no longer exists", errs.ErrUnauthorized)
		}
		return model.User{}, storeErr("load user", err)
	}
	return publicUser(*u), nil
}

func publicUser(u model.User) model.User {
	u.PwdHash = ""
	return u
}
