package pagination

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
)

func ctxWithQuery(q string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/admin/users?"+q, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", DefaultLimit, 0},
		{"page=3", DefaultLimit, 40},
		{"page=2&per_page=10", 10, 10},
		{"page=-4&per_page=500", MaxLimit, 0},
		{"page=abc", DefaultLimit, 0},
	}
	for _, tt := range tests {
		p := FromContext(ctxWithQuery(tt.query))
		if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
			t.Errorf("query %q: got limit=%d offset=%d, want %d/%d", tt.query, p.Limit, p.Offset, tt.wantLimit, tt.wantOffset)
		}
	}
}

func TestNewPager(t *testing.T) {
	p := Params{Limit: 20, Offset: 20}
	pg := NewPager(p, 45, "/admin/users", url.Values{"role": {"doctor"}})

	if pg.Page != 2 || pg.Pages != 3 || pg.Total != 45 {
		t.Fatalf("unexpected pager %+v", pg)
	}
	if pg.PrevURL != "/admin/users?page=1&role=doctor" {
		t.Errorf("unexpected prev %q", pg.PrevURL)
	}
	if pg.NextURL != "/admin/users?page=3&role=doctor" {
		t.Errorf("unexpected next %q", pg.NextURL)
	}

	last := NewPager(Params{Limit: 20, Offset: 40}, 45, "/x", nil)
	if last.NextURL != "" {
		t.Error("last page must not have a next link")
	}
	empty := NewPager(Params{Limit: 20}, 0, "/x", nil)
	if empty.Pages != 1 || empty.PrevURL != "" {
		t.Errorf("unexpected empty pager %+v", empty)
	}
}
