package middleware

import (
	"fmt"
	"net/http"
	"runtime"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// IsAJAX reports whether the client expects a JSON body instead of a page.
func IsAJAX(c echo.Context) bool {
	req := c.Request()
	return req.Header.Get("X-Requested-With") == "XMLHttpRequest" ||
		strings.Contains(req.Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
}

// Recovery turns a panic into a 500. AJAX callers get the
// {"success":false,"error":...} envelope so their JSON parser never sees a
// half-written page.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					var stack [4096]byte
					n := runtime.Stack(stack[:], false)

					logger.Error().
						Str("request_id", fmt.Sprintf("%v", c.Get("request_id"))).
						Str("panic", fmt.Sprintf("%v", r)).
						Str("stack", string(stack[:n])).
						Msg("panic recovered")

					if IsAJAX(c) && !c.Response().Committed {
						err = c.JSON(http.StatusInternalServerError, map[string]interface{}{
							"success": false,
							"error":   "internal server error",
						})
						return
					}
					err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
				}
			}()
			return next(c)
		}
	}
}
