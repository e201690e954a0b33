package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newManager(store Store) *Manager {
	return NewManager(store, "test-secret-test-secret-test-secret", time.Hour, false, zerolog.Nop())
}

func TestFlashes_PopClears(t *testing.T) {
	s := New()
	s.AddFlash(FlashSuccess, "saved")
	s.AddFlash(FlashError, "oops")

	got := s.PopFlashes()
	if len(got) != 2 || got[0].Message != "saved" || got[1].Kind != FlashError {
		t.Fatalf("unexpected flashes: %+v", got)
	}
	if s.PopFlashes() != nil {
		t.Error("flashes must be cleared after pop")
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	s := New()
	if err := store.Save(context.Background(), s, time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(context.Background(), s.ID); err != nil {
		t.Fatalf("expected session, got %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := store.Load(context.Background(), s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestManager_RoundTrip(t *testing.T) {
	store := NewMemoryStore()
	m := newManager(store)
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/set", func(c echo.Context) error {
		From(c).SetUser(7, "doctor", "Dr. Who", "who@example.com", 3)
		From(c).AddFlash(FlashSuccess, "welcome")
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/get", func(c echo.Context) error {
		s := From(c)
		flashes := s.PopFlashes()
		if len(flashes) != 1 {
			return c.String(http.StatusOK, "no-flash")
		}
		return c.String(http.StatusOK, s.Role+":"+flashes[0].Message)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/set", nil))
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != CookieName {
		t.Fatalf("expected session cookie, got %+v", cookies)
	}
	if !cookies[0].HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}

	req := httptest.NewRequest(http.MethodGet, "/get", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Body.String() != "doctor:welcome" {
		t.Fatalf("expected doctor:welcome, got %q", rec.Body.String())
	}

	// Flash was consumed on the second request.
	req = httptest.NewRequest(http.MethodGet, "/get", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Body.String() != "no-flash" {
		t.Fatalf("expected flash to be gone, got %q", rec.Body.String())
	}
}

func TestManager_TamperedCookieStartsFresh(t *testing.T) {
	m := newManager(NewMemoryStore())
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/", func(c echo.Context) error {
		if From(c).Authenticated() {
			return c.String(http.StatusOK, "auth")
		}
		return c.String(http.StatusOK, "anon")
	})

	other := NewManager(NewMemoryStore(), "another-secret", time.Hour, false, zerolog.Nop())
	forged, err := other.sign("victim-session")
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: forged})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Body.String() != "anon" {
		t.Fatalf("expected anonymous session, got %q", rec.Body.String())
	}
}

func TestManager_RenewChangesIDAndKeepsFlashes(t *testing.T) {
	store := NewMemoryStore()
	m := newManager(store)
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/login", nil), httptest.NewRecorder())

	old := New()
	old.AddFlash(FlashInfo, "hello")
	store.Save(context.Background(), old, time.Hour)
	Attach(c, old)

	renewed := m.Renew(c)
	if renewed.ID == old.ID || renewed.CSRFToken == old.CSRFToken {
		t.Error("expected new id and CSRF token")
	}
	if len(renewed.Flashes) != 1 {
		t.Error("expected flashes to survive renewal")
	}
	if _, err := store.Load(context.Background(), old.ID); !errors.Is(err, ErrNotFound) {
		t.Error("expected old session to be deleted")
	}
	if From(c) != renewed {
		t.Error("expected renewed session to be attached")
	}
}

func TestValidCSRF(t *testing.T) {
	e := echo.New()
	s := New()

	form := url.Values{CSRFFormField: {s.CSRFToken}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	c := e.NewContext(req, httptest.NewRecorder())
	Attach(c, s)
	if !ValidCSRF(c) {
		t.Error("expected matching form token to be valid")
	}

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(CSRFHeader, "wrong")
	c = e.NewContext(req, httptest.NewRecorder())
	Attach(c, s)
	if ValidCSRF(c) {
		t.Error("expected mismatched header token to be invalid")
	}

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	c = e.NewContext(req, httptest.NewRecorder())
	Attach(c, s)
	if ValidCSRF(c) {
		t.Error("expected missing token to be invalid")
	}
}

func TestRequireCSRF(t *testing.T) {
	e := echo.New()
	called := false
	next := func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	}
	failed := false
	mw := RequireCSRF(func(c echo.Context) error {
		failed = true
		return c.Redirect(http.StatusSeeOther, "/")
	})

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	Attach(c, New())
	mw(next)(c)
	if !called {
		t.Error("GET must bypass CSRF check")
	}

	called = false
	c = e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	Attach(c, New())
	mw(next)(c)
	if called || !failed {
		t.Error("POST without token must be rejected")
	}
}
