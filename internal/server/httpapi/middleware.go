package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/and161185/tasktracker/internal/errs"
	"github.com/and161185/tasktracker/internal/service"
)

// RequestLogger writes one structured line per request.
func RequestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				// render now so the status below is the one the client gets
				c.Error(err)
			}
			req := c.Request()
			// no bodies, no headers: only request metadata
			log.Info("http",
				zap.String("method", req.Method),
				zap.String("route", c.Path()),
				zap.Int("status", c.Response().Status),
				zap.Duration("dur", time.Since(start)),
				zap.String("remote", c.RealIP()),
			)
			return nil
		}
	}
}

// Recover turns a handler panic into a 500 and logs the stack.
func Recover(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					if r == http.ErrAbortHandler {
						panic(r)
					}
					log.Error("panic",
						zap.Any("reason", r),
						zap.ByteString("stack", debug.Stack()),
						zap.String("route", c.Path()),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(c)
		}
	}
}

// Guard resolves "Authorization: Bearer <token>" to a live user and stores it in the
// request context. Every rejection looks the same to the client.
func Guard(auth service.AuthService, log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			tok, err := bearerToken(req.Header.Values(echo.HeaderAuthorization))
			if err != nil {
				log.Info("auth rejected", zap.String("reason", err.Error()), zap.String("route", c.Path()))
				return errs.ErrUnauthorized
			}

			u, err := auth.Authenticate(req.Context(), tok)
			if err != nil {
				if !isAuthRejection(err) {
					// store outages and internal faults keep their own status
					return err
				}
				log.Info("auth rejected", zap.String("reason", rejectReason(err)), zap.String("route", c.Path()))
				return errs.ErrUnauthorized
			}

			c.SetRequest(req.WithContext(WithUser(req.Context(), u)))
			return next(c)
		}
	}
}

func isAuthRejection(err error) bool {
	return errors.Is(err, errs.ErrInvalidToken) ||
		errors.Is(err, errs.ErrExpiredToken) ||
		errors.Is(err, errs.ErrUnauthorized)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, errs.ErrExpiredToken):
		return "token expired"
	case errors.Is(err, errs.ErrInvalidToken):
		return "invalid token"
	case errors.Is(err, errs.ErrUnauthorized):
		return "user gone"
	default:
		return err.Error()
	}
}

func bearerToken(values []string) (string, error) {
	if len(values) == 0 {
		return "", errors.New("no authorization header")
	}
	for _, v := range values {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			t := strings.TrimSpace(v[7:])
			if t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}
