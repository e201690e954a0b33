package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestIPLimiter_BurstThenReject(t *testing.T) {
	l := NewIPLimiter(0.001, 3)
	for i := 0; i < 3; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed within burst", i)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Error("expected fourth request to be limited")
	}
	if !l.Allow("10.0.0.2") {
		t.Error("other IPs have their own bucket")
	}
}

func TestRateLimit_Returns429(t *testing.T) {
	e := echo.New()
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 0.5, BurstSize: 1})
	h := mw(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	call := func() (*httptest.ResponseRecorder, error) {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		return rec, h(e.NewContext(req, rec))
	}

	if _, err := call(); err != nil {
		t.Fatalf("first request should pass: %v", err)
	}
	rec, err := call()
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if rec.Header().Get("Retry-After") != "3" {
		t.Errorf("expected Retry-After 3, got %q", rec.Header().Get("Retry-After"))
	}
}

func TestRateLimit_CustomOnLimit(t *testing.T) {
	e := echo.New()
	mw := RateLimit(RateLimitConfig{
		RequestsPerSecond: 0.001,
		BurstSize:         1,
		OnLimit: func(c echo.Context) error {
			return c.Redirect(http.StatusSeeOther, "/login")
		},
	})
	h := mw(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "192.0.2.9:1234"
		rec := httptest.NewRecorder()
		if err := h(e.NewContext(req, rec)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if i == 1 && rec.Code != http.StatusSeeOther {
			t.Errorf("expected redirect on limit, got %d", rec.Code)
		}
	}
}

func TestMetrics_CountsRequests(t *testing.T) {
	m := NewMetrics()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/health", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", m.Handler())

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `medicare_http_requests_total{method="GET",route="/health",status="200"} 1`) {
		t.Errorf("expected request counter for /health in metrics output")
	}
}
