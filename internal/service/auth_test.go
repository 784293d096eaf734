package service

import (
	"context"
	"errors"
	"testing"
	"time"

	pkgcrypto "github.com/and161185/tasktracker/internal/crypto"
	"github.com/and161185/tasktracker/internal/errs"
	"github.com/and161185/tasktracker/internal/limiter"
	"github.com/and161185/tasktracker/internal/model"
	"github.com/and161185/tasktracker/internal/repository"
	"github.com/and161185/tasktracker/internal/token"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var cheapParams = pkgcrypto.Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func cheapHash(pw string) (string, error) { return pkgcrypto.HashPasswordWithParams(pw, cheapParams) }

type fakeUsers struct {
	byEmail map[string]*model.User

	createErr error
	getErr    error
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.byEmail == nil {
		f.byEmail = map[string]*model.User{}
	}
	for _, ex := range f.byEmail {
		if ex.Username == u.Username || ex.Email == u.Email {
			return errs.ErrAlreadyExists
		}
	}
	cpy := *u
	f.byEmail[u.Email] = &cpy
	return nil
}
func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.byEmail {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}
func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byEmail[email]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error
	successErr  error

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

func newAuth(users repository.UserRepository, lim limiter.Limiter) (*AuthServiceImpl, *token.Service) {
	tokens := token.NewService([]byte("secret"), 0)
	s := NewAuthService(users, tokens, lim, time.Second)
	s.hash = cheapHash
	return s, tokens
}

func TestAuth_Register_TokenResolvesToUser(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{}
	s, tokens := newAuth(users, nil)

	tok, u, err := s.Register(context.Background(), "alice", "a@x.com", "secret1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.ID == uuid.Nil || u.Username != "alice" || u.Email != "a@x.com" {
		t.Fatalf("bad user: %+v", u)
	}
	if u.PwdHash != "" {
		t.Fatalf("password hash must not leave the service")
	}
	stored := users.byEmail["a@x.com"]
	if stored == nil || stored.PwdHash == "" || stored.PwdHash == "secret1" {
		t.Fatalf("stored hash missing or plaintext: %+v", stored)
	}

	sub, err := tokens.Validate(tok.AccessToken)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if sub != u.ID {
		t.Fatalf("token subject %s != user id %s", sub, u.ID)
	}
}

func TestAuth_Register_Validation(t *testing.T) {
	t.Parallel()
	s, _ := newAuth(&fakeUsers{}, nil)

	cases := []struct {
		name                      string
		username, email, password string
		fields                    []string
	}{
		{"short username", "al", "a@x.com", "secret1", []string{"username"}},
		{"blank username", "   ", "a@x.com", "secret1", []string{"username"}},
		{"bad email", "alice", "not-an-email", "secret1", []string{"email"}},
		{"short password", "alice", "a@x.com", "12345", []string{"password"}},
		{"all bad", "", "", "", []string{"username", "email", "password"}},
	}
	for _, tc := range cases {
		_, _, err := s.Register(context.Background(), tc.username, tc.email, tc.password)
		var ve *errs.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("%s: want ValidationError, got %v", tc.name, err)
		}
		if len(ve.Fields) != len(tc.fields) {
			t.Fatalf("%s: fields %v, want %v", tc.name, ve.Fields, tc.fields)
		}
		for i := range tc.fields {
			if ve.Fields[i] != tc.fields[i] {
				t.Fatalf("%s: fields %v, want %v", tc.name, ve.Fields, tc.fields)
			}
		}
	}
}

func TestAuth_Register_CasePolicy(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{}
	s, _ := newAuth(users, nil)
	ctx := context.Background()

	_, u, err := s.Register(ctx, "Alice", "  Alice@X.com ", "secret1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Email != "alice@x.com" {
		t.Fatalf("email not normalized: %q", u.Email)
	}

	// email is case-insensitive
	if _, _, err := s.Register(ctx, "bob", "ALICE@x.com", "secret1"); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists on email differing in case, got %v", err)
	}
	// username is case-sensitive
	if _, _, err := s.Register(ctx, "alice", "other@x.com", "secret1"); err != nil {
		t.Fatalf("usernames differing in case are distinct: %v", err)
	}
	if _, _, err := s.Register(ctx, "Alice", "third@x.com", "secret1"); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists on same username, got %v", err)
	}
}

func TestAuth_Register_StoreErrors(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{createErr: errors.New("boom")}
	s, _ := newAuth(users, nil)
	if _, _, err := s.Register(context.Background(), "bob", "b@x.com", "secret1"); err == nil {
		t.Fatalf("want propagated repo error")
	}

	users.createErr = context.DeadlineExceeded
	if _, _, err := s.Register(context.Background(), "bob", "b@x.com", "secret1"); !errors.Is(err, errs.ErrUnavailable) {
		t.Fatalf("want ErrUnavailable on timeout, got %v", err)
	}
}

func TestAuth_LoginWithIP_RateLimiterAndCreds(t *testing.T) {
	t.Parallel()

	users := &fakeUsers{}
	lim := &fakeLimiter{allowOK: true}
	s, tokens := newAuth(users, lim)
	ctx := context.Background()

	_, registered, err := s.Register(ctx, "alice", "a@x.com", "correct")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	lim.allowErr = errors.New("lim-err")
	if _, _, err := s.LoginWithIP(ctx, "a@x.com", "correct", "1.2.3.4"); err == nil {
		t.Fatalf("want limiter error propagate")
	}
	lim.allowErr = nil

	lim.allowOK = false
	if _, _, err := s.LoginWithIP(ctx, "a@x.com", "correct", "1.2.3.4"); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited, got %v", err)
	}
	lim.allowOK = true

	if _, _, err := s.LoginWithIP(ctx, "nobody@x.com", "x", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on missing user, got %v", err)
	}
	if lim.failureCalls != 1 {
		t.Fatalf("unknown email must count as a failure")
	}

	lim.failBlocked = true
	if _, _, err := s.LoginWithIP(ctx, "a@x.com", "wrong", ""); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited on blocked after failure, got %v", err)
	}
	lim.failBlocked = false

	if _, _, err := s.LoginWithIP(ctx, "a@x.com", "wrong", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on wrong password, got %v", err)
	}

	tok, got, err := s.LoginWithIP(ctx, " A@X.COM", "correct", "127.0.0.1")
	if err != nil {
		t.Fatalf("LoginWithIP success: %v", err)
	}
	if got.ID != registered.ID || got.PwdHash != "" {
		t.Fatalf("bad user returned: %+v", got)
	}
	if sub, err := tokens.Validate(tok.AccessToken); err != nil || sub != registered.ID {
		t.Fatalf("token does not resolve to user: %v %v", sub, err)
	}
	if lim.successCalls == 0 {
		t.Fatalf("expected Success() to be called")
	}

	users.getErr = context.DeadlineExceeded
	if _, _, err := s.LoginWithIP(ctx, "a@x.com", "correct", ""); !errors.Is(err, errs.ErrUnavailable) {
		t.Fatalf("want ErrUnavailable when store times out, got %v", err)
	}
}

func TestAuth_LoginWithIP_LimiterWriteErrorsAreLogged(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	users := &fakeUsers{}
	lim := &fakeLimiter{allowOK: true, failErr: errors.New("limiter store down"), successErr: errors.New("reset timed out")}
	s, _ := newAuth(users, lim)
	s.WithLogger(zap.New(core))
	ctx := context.Background()

	if _, _, err := s.Register(ctx, "alice", "a@x.com", "correct"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, _, err := s.LoginWithIP(ctx, "a@x.com", "wrong", "1.2.3.4"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
	entries := logs.FilterMessage("login limiter failure not recorded").All()
	if len(entries) != 1 || entries[0].ContextMap()["error"] != "limiter store down" {
		t.Fatalf("want one warning carrying the limiter error, got %+v", entries)
	}

	if _, _, err := s.LoginWithIP(ctx, "a@x.com", "correct", "1.2.3.4"); err != nil {
		t.Fatalf("reset failure must not fail the login: %v", err)
	}
	if n := logs.FilterMessage("login limiter reset failed").Len(); n != 1 {
		t.Fatalf("want reset warning, got %d", n)
	}
}

func TestAuth_Authenticate(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{}
	s, tokens := newAuth(users, nil)
	ctx := context.Background()

	tok, u, err := s.Register(ctx, "alice", "a@x.com", "secret1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := s.Authenticate(ctx, tok.AccessToken)
	if err != nil || got.ID != u.ID {
		t.Fatalf("Authenticate: %+v %v", got, err)
	}

	if _, err := s.Authenticate(ctx, "garbage"); !errors.Is(err, errs.ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken, got %v", err)
	}

	ghost, err := tokens.Issue(uuid.Must(uuid.NewV4()))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := s.Authenticate(ctx, ghost.AccessToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized for dangling subject, got %v", err)
	}
}
