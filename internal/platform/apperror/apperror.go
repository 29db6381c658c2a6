// Package apperror defines the operational error taxonomy used across the
// API and the echo error handler that turns any error into the stable
// {"status","message"} response envelope.
package apperror

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Error is an operational error that is safe to surface to the caller.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string { return e.Message }

// StatusLabel returns "fail" for 4xx errors and "error" otherwise.
func (e *Error) StatusLabel() string {
	if e.Code >= 400 && e.Code < 500 {
		return "fail"
	}
	return "error"
}

func New(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

func BadRequest(message string) *Error   { return New(http.StatusBadRequest, message) }
func Unauthorized(message string) *Error { return New(http.StatusUnauthorized, message) }
func Forbidden(message string) *Error    { return New(http.StatusForbidden, message) }
func NotFound(message string) *Error     { return New(http.StatusNotFound, message) }

// IsNotFound reports whether err is an operational 404.
func IsNotFound(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Code == http.StatusNotFound
}

// errorResponse is the wire shape of every error the API returns.
type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HTTPErrorHandler returns an echo error handler that normalizes all errors.
// Operational errors keep their message; anything else is logged and
// collapsed to a generic 500 so internals never leak to the caller.
func HTTPErrorHandler(logger zerolog.Logger, dev bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var ae *Error
		if errors.As(err, &ae) {
			_ = c.JSON(ae.Code, errorResponse{Status: ae.StatusLabel(), Message: ae.Message})
			return
		}

		// echo.NewHTTPError raised by middleware or echo itself.
		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg := http.StatusText(he.Code)
			if s, ok := he.Message.(string); ok {
				msg = s
			}
			status := "error"
			if he.Code >= 400 && he.Code < 500 {
				status = "fail"
			}
			_ = c.JSON(he.Code, errorResponse{Status: status, Message: msg})
			return
		}

		if dev {
			logger.Error().Err(err).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("unhandled error")
		}
		_ = c.JSON(http.StatusInternalServerError, errorResponse{
			Status:  "error",
			Message: "Something went wrong",
		})
	}
}
