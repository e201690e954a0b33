package view

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/chela967/medicare/internal/platform/auth"
	"github.com/chela967/medicare/internal/platform/middleware"
)

type errorPage struct {
	Status  int
	Message string
}

// ErrorHandler renders unhandled errors: JSON for AJAX and the API, the
// "error" page otherwise. Details of 5xx errors are logged, never shown.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		message := "Something went wrong. Please try again."
		var he *echo.HTTPError
		switch {
		case errors.As(err, &he):
			status = he.Code
			if m, ok := he.Message.(string); ok && status < 500 {
				message = m
			} else if status < 500 {
				message = http.StatusText(status)
			}
		case errors.Is(err, auth.ErrForbidden):
			status = http.StatusForbidden
			message = err.Error()
		}
		if status >= 500 {
			logger.Error().Err(err).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else if middleware.IsAJAX(c) {
			err = JSONError(c, status, message)
		} else {
			err = Render(c, status, "error", http.StatusText(status), errorPage{Status: status, Message: message})
		}
		if err != nil {
			logger.Error().Err(err).Msg("writing error response")
		}
	}
}
