package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	CookieName = "medicare_session"
	ctxKey     = "session"

	CSRFFormField = "csrf_token"
	CSRFHeader    = "X-CSRF-Token"
)

// Manager loads the session for each request and writes it back before the
// response headers go out.
type Manager struct {
	store  Store
	secret []byte
	ttl    time.Duration
	secure bool
	logger zerolog.Logger
}

func NewManager(store Store, secret string, ttl time.Duration, secure bool, logger zerolog.Logger) *Manager {
	return &Manager{store: store, secret: []byte(secret), ttl: ttl, secure: secure, logger: logger}
}

// From returns the request's session. Handlers behind Middleware always get
// a non-nil value; elsewhere a throwaway anonymous session is returned.
func From(c echo.Context) *Session {
	if s, ok := c.Get(ctxKey).(*Session); ok {
		return s
	}
	s := New()
	c.Set(ctxKey, s)
	return s
}

// Attach binds s to the request context. Used by Middleware and tests.
func Attach(c echo.Context, s *Session) {
	c.Set(ctxKey, s)
	if s.Authenticated() {
		c.Set("user_id", s.UserID)
	}
}

func (m *Manager) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			s := m.load(ctx, c)
			Attach(c, s)

			c.Response().Before(func() {
				cur := From(c)
				if !cur.Dirty() {
					return
				}
				if err := m.store.Save(context.WithoutCancel(ctx), cur, m.ttl); err != nil {
					m.logger.Error().Err(err).Msg("save session")
					return
				}
				token, err := m.sign(cur.ID)
				if err != nil {
					m.logger.Error().Err(err).Msg("sign session cookie")
					return
				}
				c.SetCookie(&http.Cookie{
					Name:     CookieName,
					Value:    token,
					Path:     "/",
					HttpOnly: true,
					Secure:   m.secure,
					SameSite: http.SameSiteLaxMode,
					MaxAge:   int(m.ttl.Seconds()),
				})
			})

			return next(c)
		}
	}
}

func (m *Manager) load(ctx context.Context, c echo.Context) *Session {
	cookie, err := c.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return New()
	}
	sid, err := m.parse(cookie.Value)
	if err != nil {
		return New()
	}
	s, err := m.store.Load(ctx, sid)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.logger.Warn().Err(err).Msg("load session")
		}
		return New()
	}
	return s
}

// Renew swaps the session id and CSRF token, keeping flashes. Call it on
// every privilege change so a pre-login id can't be reused.
func (m *Manager) Renew(c echo.Context) *Session {
	old := From(c)
	if err := m.store.Delete(c.Request().Context(), old.ID); err != nil {
		m.logger.Warn().Err(err).Msg("delete old session")
	}
	s := New()
	s.Flashes = old.Flashes
	Attach(c, s)
	return s
}

// Destroy drops the session and starts an anonymous one.
func (m *Manager) Destroy(c echo.Context) *Session {
	old := From(c)
	if err := m.store.Delete(c.Request().Context(), old.ID); err != nil {
		m.logger.Warn().Err(err).Msg("delete session")
	}
	s := New()
	c.Set(ctxKey, s)
	return s
}

func (m *Manager) sign(sid string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        sid,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *Manager) parse(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("parse session cookie: %w", err)
	}
	if claims.ID == "" {
		return "", errors.New("session cookie has no id")
	}
	return claims.ID, nil
}

// ValidCSRF compares the submitted token with the session's.
func ValidCSRF(c echo.Context) bool {
	sent := c.Request().Header.Get(CSRFHeader)
	if sent == "" {
		sent = c.FormValue(CSRFFormField)
	}
	want := From(c).CSRFToken
	if sent == "" || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(sent), []byte(want)) == 1
}

// RequireCSRF rejects unsafe methods whose token does not match. onFail
// renders the rejection; nil means a plain 403.
func RequireCSRF(onFail echo.HandlerFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			switch c.Request().Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(c)
			}
			if ValidCSRF(c) {
				return next(c)
			}
			if onFail != nil {
				return onFail(c)
			}
			return echo.NewHTTPError(http.StatusForbidden, "invalid or missing CSRF token")
		}
	}
}
