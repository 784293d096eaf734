// Package httpapi exposes the task tracker REST API on echo.
package httpapi

import (
	"errors"
	"net"
	"net/http"

	"github.com/gofrs/uuid/v5"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/and161185/tasktracker/internal/convert"
	"github.com/and161185/tasktracker/internal/errs"
	"github.com/and161185/tasktracker/internal/service"
)

// Server wires services into HTTP handlers.
type Server struct {
	auth  service.AuthService
	tasks service.TaskService
	stats service.StatsService
	log   *zap.Logger
}

// New constructs the handler set with injected services.
func New(auth service.AuthService, tasks service.TaskService, stats service.StatsService, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{auth: auth, tasks: tasks, stats: stats, log: log}
}

// Options tune the echo instance built by NewEcho.
type Options struct {
	BodyLimit    string   // e.g. "1M"
	AllowOrigins []string // CORS; empty disables the middleware
	// TrustedProxies lists proxy networks allowed to set X-Forwarded-For.
	// Empty means the client IP is always the TCP peer address.
	TrustedProxies []*net.IPNet
}

// NewEcho builds a ready-to-serve echo instance with middleware and routes.
func NewEcho(s *Server, opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler(s.log)
	e.IPExtractor = ipExtractor(opts.TrustedProxies)

	e.Use(RequestLogger(s.log))
	e.Use(Recover(s.log))
	if opts.BodyLimit != "" {
		e.Use(middleware.BodyLimit(opts.BodyLimit))
	}
	if len(opts.AllowOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: opts.AllowOrigins,
			AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType},
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		}))
	}

	s.Routes(e)
	return e
}

// ipExtractor decides what c.RealIP returns. The login limiter keys on it, so
// forwarding headers count only when they come from a listed proxy.
func ipExtractor(trusted []*net.IPNet) echo.IPExtractor {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range trusted {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

// Routes registers all API routes on e.
func (s *Server) Routes(e *echo.Echo) {
	api := e.Group("/api")

	// public
	api.POST("/auth/register", s.Register)
	api.POST("/auth/login", s.Login)

	guarded := api.Group("", Guard(s.auth, s.log))
	guarded.GET("/auth/me", s.Me)
	guarded.POST("/tasks", s.CreateTask)
	guarded.GET("/tasks", s.ListTasks)
	guarded.GET("/tasks/stats", s.Stats)
	guarded.PUT("/tasks/:id", s.UpdateTask)
	guarded.PATCH("/tasks/:id", s.UpdateTask)
	guarded.DELETE("/tasks/:id", s.DeleteTask)
}

// --- Auth ---

// Register creates an account and returns it with a fresh token.
func (s *Server) Register(c echo.Context) error {
	var req convert.RegisterRequest
	if err := decodeStrict(c, &req); err != nil {
		return err
	}
	tok, u, err := s.auth.Register(c.Request().Context(), req.Username, req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, convert.ToAuthView(u, tok))
}

// Login authenticates by email and password.
func (s *Server) Login(c echo.Context) error {
	var req convert.LoginRequest
	if err := decodeStrict(c, &req); err != nil {
		return err
	}
	tok, u, err := s.auth.LoginWithIP(c.Request().Context(), req.Email, req.Password, c.RealIP())
	if err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			return errInvalidCredentials
		}
		return err
	}
	return c.JSON(http.StatusOK, convert.ToAuthView(u, tok))
}

// Me returns the caller's public profile.
func (s *Server) Me(c echo.Context) error {
	u, ok := UserFromCtx(c.Request().Context())
	if !ok {
		return errs.ErrUnauthorized
	}
	return c.JSON(http.StatusOK, map[string]any{"user": convert.ToUserView(u)})
}

// --- Tasks ---

func (s *Server) CreateTask(c echo.Context) error {
	userID, ok := UserIDFromCtx(c.Request().Context())
	if !ok {
		return errs.ErrUnauthorized
	}
	var req convert.CreateTaskRequest
	if err := decodeStrict(c, &req); err != nil {
		return err
	}
	t, err := s.tasks.Create(c.Request().Context(), userID, convert.FromCreateTaskRequest(req))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, convert.ToTaskView(*t))
}

func (s *Server) ListTasks(c echo.Context) error {
	userID, ok := UserIDFromCtx(c.Request().Context())
	if !ok {
		return errs.ErrUnauthorized
	}
	ts, err := s.tasks.List(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, convert.ToTaskViews(ts))
}

// UpdateTask serves both PUT and PATCH; either way only supplied fields change.
func (s *Server) UpdateTask(c echo.Context) error {
	userID, ok := UserIDFromCtx(c.Request().Context())
	if !ok {
		return errs.ErrUnauthorized
	}
	taskID, err := taskIDParam(c)
	if err != nil {
		return err
	}
	var req convert.UpdateTaskRequest
	if err := decodeStrict(c, &req); err != nil {
		return err
	}
	t, err := s.tasks.Update(c.Request().Context(), userID, taskID, convert.FromUpdateTaskRequest(req))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, convert.ToTaskView(*t))
}

func (s *Server) DeleteTask(c echo.Context) error {
	userID, ok := UserIDFromCtx(c.Request().Context())
	if !ok {
		return errs.ErrUnauthorized
	}
	taskID, err := taskIDParam(c)
	if err != nil {
		return err
	}
	if err := s.tasks.Delete(c.Request().Context(), userID, taskID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// --- Stats ---

func (s *Server) Stats(c echo.Context) error {
	userID, ok := UserIDFromCtx(c.Request().Context())
	if !ok {
		return errs.ErrUnauthorized
	}
	st, err := s.stats.Compute(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, convert.ToStatsView(st))
}

// taskIDParam parses :id. A malformed id cannot name an existing task, so it is a 404.
func taskIDParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.FromString(c.Param("id"))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, errs.ErrNotFound
	}
	return id, nil
}
