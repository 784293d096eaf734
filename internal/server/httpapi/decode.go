package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/and161185/tasktracker/internal/errs"
)

// decodeStrict reads exactly one JSON object into dst. Unknown fields, mistyped
// values and trailing data are validation errors naming the offending field.
func decodeStrict(c echo.Context, dst any) error {
	dec := json.NewDecoder(c.Request().Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return decodeErr(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errs.NewValidation("body")
	}
	return nil
}

func decodeErr(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		// body limit
		return err
	}
	var te *json.UnmarshalTypeError
	if errors.As(err, &te) && te.Field != "" {
		return errs.NewValidation(te.Field)
	}
	// encoding/json has no typed error for unknown fields
	if name, ok := strings.CutPrefix(err.Error(), `json: unknown field "`); ok {
		return errs.NewValidation(strings.TrimSuffix(name, `"`))
	}
	return errs.NewValidation("body")
}
