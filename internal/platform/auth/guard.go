package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chela967/medicare/internal/platform/middleware"
	"github.com/chela967/medicare/internal/platform/session"
)

// RequireLogin sends anonymous visitors to the login page with a flash.
// AJAX callers get a 401 JSON envelope instead.
func RequireLogin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s := session.From(c)
			if s.Authenticated() {
				return next(c)
			}
			if middleware.IsAJAX(c) {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"success": false,
					"error":   "please sign in to continue",
				})
			}
			s.AddFlash(session.FlashWarning, "Please sign in to continue.")
			return c.Redirect(http.StatusSeeOther, "/login")
		}
	}
}

// RequireRole admits signed-in users holding one of roles. Others are sent
// to their own portal with an error flash.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	login := RequireLogin()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return login(func(c echo.Context) error {
			s := session.From(c)
			if allowed[s.Role] {
				return next(c)
			}
			if middleware.IsAJAX(c) {
				return c.JSON(http.StatusForbidden, map[string]interface{}{
					"success": false,
					"error":   "unauthorized access",
				})
			}
			s.AddFlash(session.FlashError, "You are not authorized to access that page.")
			return c.Redirect(http.StatusSeeOther, HomeFor(s.Role))
		})
	}
}
