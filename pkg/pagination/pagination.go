package pagination

import (
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads ?page= (1-based) and ?per_page= from the request.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("per_page"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	return Params{Limit: limit, Offset: (page - 1) * limit}
}

// Page is the current page number, starting at 1.
func (p Params) Page() int {
	if p.Limit <= 0 {
		return 1
	}
	return p.Offset/p.Limit + 1
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Offset > 0
}

// Pager is what list templates render below a table.
type Pager struct {
	Page    int
	Pages   int
	Total   int
	PrevURL string
	NextURL string
}

// NewPager builds links that keep the request's other query parameters.
func NewPager(p Params, total int, path string, query url.Values) Pager {
	pages := 1
	if p.Limit > 0 && total > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	pg := Pager{Page: p.Page(), Pages: pages, Total: total}

	link := func(page int) string {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("page", strconv.Itoa(page))
		return path + "?" + q.Encode()
	}
	if p.HasPrevious() {
		pg.PrevURL = link(pg.Page - 1)
	}
	if p.HasNext(total) {
		pg.NextURL = link(pg.Page + 1)
	}
	return pg
}
