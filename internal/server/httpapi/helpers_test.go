package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/and161185/tasktracker/internal/errs"
	"github.com/and161185/tasktracker/internal/model"
	"github.com/and161185/tasktracker/internal/repository/memory"
	"github.com/and161185/tasktracker/internal/service"
	"github.com/and161185/tasktracker/internal/token"
)

var testKey = []byte("test-secret")

type testAPI struct {
	e     *echo.Echo
	users *memory.UserRepo
	logs  *observer.ObservedLogs
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core)

	users := memory.NewUserRepo()
	tasks := memory.NewTaskRepo()
	auth := service.NewAuthService(users, token.NewService(testKey, 0), nil, time.Second)
	srv := New(auth, service.NewTaskService(tasks, time.Second), service.NewStatsService(tasks, time.Second), log)
	return &testAPI{e: NewEcho(srv, Options{BodyLimit: "64K"}), users: users, logs: logs}
}

// stubAuth is an AuthService with scripted answers. It records login client IPs.
type stubAuth struct {
	authErr error

	mu  sync.Mutex
	ips []string
}

func (s *stubAuth) Register(context.Context, string, string, string) (model.Tokens, model.User, error) {
	return model.Tokens{}, model.User{}, errs.ErrAlreadyExists
}

func (s *stubAuth) LoginWithIP(_ context.Context, _, _, ip string) (model.Tokens, model.User, error) {
	s.mu.Lock()
	s.ips = append(s.ips, ip)
	s.mu.Unlock()
	return model.Tokens{}, model.User{}, errs.ErrUnauthorized
}

func (s *stubAuth) Authenticate(context.Context, string) (model.User, error) {
	return model.User{}, s.authErr
}

func (s *stubAuth) loginIPs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ips...)
}

func newStubAPI(t *testing.T, auth service.AuthService, opts Options) *testAPI {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core)

	tasks := memory.NewTaskRepo()
	srv := New(auth, service.NewTaskService(tasks, time.Second), service.NewStatsService(tasks, time.Second), log)
	return &testAPI{e: NewEcho(srv, opts), logs: logs}
}

func (a *testAPI) do(t *testing.T, method, path, tok, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if tok != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

// register creates an account and returns its token.
func (a *testAPI) register(t *testing.T, username, email string) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/auth/register", "",
		`{"username":"`+username+`","email":"`+email+`","password":"secret123"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		Token string `json:"token"`
	}
	decodeBody(t, rec, &out)
	require.NotEmpty(t, out.Token)
	return out.Token
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func errBody(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var b ErrorBody
	decodeBody(t, rec, &b)
	return b
}

func makeJWT(t *testing.T, sub string, key []byte, method jwt.SigningMethod, iat time.Time, ttl time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(iat),
		ExpiresAt: jwt.NewNumericDate(iat.Add(ttl)),
	}
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}
