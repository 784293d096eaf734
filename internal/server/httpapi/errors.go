package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/and161185/tasktracker/internal/errs"
)

// ErrorBody is the JSON shape of every error reply.
type ErrorBody struct {
	Kind   string   `json:"kind"`
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

// apiError overrides the default reply for a known condition.
type apiError struct {
	status int
	body   ErrorBody
}

func (e *apiError) Error() string { return e.body.Error }

var errInvalidCredentials = &apiError{
	status: http.StatusUnauthorized,
	body:   ErrorBody{Kind: "unauthorized", Error: "invalid credentials"},
}

// classify maps an error to a status and a client-safe body.
func classify(err error) (int, ErrorBody) {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.status, ae.body
	}
	var ve *errs.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, ErrorBody{Kind: "validation", Error: errs.ErrValidation.Error(), Fields: ve.Fields}
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, ErrorBody{Kind: kindOf(he.Code), Error: fmt.Sprint(he.Message)}
	}

	switch {
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest, ErrorBody{Kind: "validation", Error: errs.ErrValidation.Error()}
	case errors.Is(err, errs.ErrUnauthorized),
		errors.Is(err, errs.ErrInvalidToken),
		errors.Is(err, errs.ErrExpiredToken):
		return http.StatusUnauthorized, ErrorBody{Kind: "unauthorized", Error: errs.ErrUnauthorized.Error()}
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, ErrorBody{Kind: "not_found", Error: errs.ErrNotFound.Error()}
	case errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict, ErrorBody{Kind: "conflict", Error: errs.ErrAlreadyExists.Error()}
	case errors.Is(err, errs.ErrVersionConflict):
		return http.StatusConflict, ErrorBody{Kind: "conflict", Error: errs.ErrVersionConflict.Error()}
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests, ErrorBody{Kind: "rate_limited", Error: "too many failed attempts, try later"}
	case errors.Is(err, errs.ErrUnavailable):
		return http.StatusServiceUnavailable, ErrorBody{Kind: "unavailable", Error: "service temporarily unavailable"}
	default:
		return http.StatusInternalServerError, ErrorBody{Kind: "internal", Error: "internal error"}
	}
}

func kindOf(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "validation"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusServiceUnavailable:
		return "unavailable"
	}
	if code >= 500 {
		return "internal"
	}
	return "request"
}

// ErrorHandler is the echo.HTTPErrorHandler for the API. Internal errors are logged
// in full and answered with a generic message.
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := classify(err)
		switch {
		case status == http.StatusServiceUnavailable:
			log.Warn("store unavailable", zap.Error(err), zap.String("route", c.Path()))
			c.Response().Header().Set("Retry-After", "1")
		case status >= 500:
			log.Error("request failed", zap.Error(err), zap.String("route", c.Path()), zap.Int("status", status))
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			log.Warn("write error reply", zap.Error(werr))
		}
	}
}
