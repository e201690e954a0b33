// Package view renders the server-side HTML pages and the small set of
// response helpers every portal handler shares.
package view

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/chela967/medicare/internal/platform/auth"
	"github.com/chela967/medicare/internal/platform/middleware"
	"github.com/chela967/medicare/internal/platform/session"
)

//go:embed templates
var templateFS embed.FS

// Page is the value every template executes against.
type Page struct {
	Title     string
	User      auth.Actor
	Flashes   []session.Flash
	CSRFToken string
	Errors    []string
	Form      map[string]string
	Path      string
	Data      interface{}
}

// Renderer implements echo.Renderer over the embedded templates. Each page
// is parsed together with the layout and partials.
type Renderer struct {
	pages map[string]*template.Template
}

func NewRenderer() (*Renderer, error) {
	return newRenderer(templateFS)
}

func newRenderer(fsys fs.FS) (*Renderer, error) {
	base, err := template.New("base").Funcs(Funcs).ParseFS(fsys, "templates/layout.html", "templates/partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	r := &Renderer{pages: make(map[string]*template.Template)}
	err = fs.WalkDir(fsys, "templates", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".html") {
			return nil
		}
		name := strings.TrimSuffix(strings.TrimPrefix(p, "templates/"), ".html")
		if name == "layout" || strings.HasPrefix(name, "partials/") {
			return nil
		}
		t, err := base.Clone()
		if err != nil {
			return err
		}
		if _, err := t.ParseFS(fsys, p); err != nil {
			return fmt.Errorf("parse %s: %w", p, err)
		}
		r.pages[name] = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return t.ExecuteTemplate(w, "layout", data)
}

// Has reports whether a page template exists.
func (r *Renderer) Has(name string) bool {
	_, ok := r.pages[name]
	return ok
}

// Funcs are available in every template.
var Funcs = template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("Jan 2, 2006")
	},
	"datetime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("Jan 2, 2006 15:04")
	},
	"isodate": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02")
	},
	"money": func(v float64) string { return fmt.Sprintf("$%.2f", v) },
	"label": func(s string) string {
		s = strings.ReplaceAll(s, "_", " ")
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	},
	"badge": func(status string) string {
		switch status {
		case "approved", "active", "completed", "delivered", "paid", "confirmed":
			return "success"
		case "pending", "processing", "scheduled", "shipped":
			return "warning"
		case "rejected", "cancelled", "failed", "suspended", "no_show", "refunded", "inactive":
			return "danger"
		}
		return "secondary"
	},
	"flashClass": func(kind string) string {
		if kind == session.FlashError {
			return "danger"
		}
		return kind
	},
	"list": func(v ...string) []string { return v },
	"seq": func(n int) []int {
		out := make([]int, n)
		for i := range out {
			out[i] = i + 1
		}
		return out
	},
}

// Render fills the common page fields from the session and renders name.
func Render(c echo.Context, status int, name, title string, data interface{}) error {
	return RenderForm(c, status, name, title, data, nil, nil)
}

// RenderForm re-renders a form with validation errors and the prior input.
func RenderForm(c echo.Context, status int, name, title string, data interface{}, errs []string, form map[string]string) error {
	s := session.From(c)
	p := Page{
		Title:     title,
		User:      auth.ActorFrom(c),
		Flashes:   s.PopFlashes(),
		CSRFToken: s.CSRFToken,
		Errors:    errs,
		Form:      form,
		Path:      c.Request().URL.Path,
		Data:      data,
	}
	return c.Render(status, name, p)
}

// FormValues copies the submitted form into a map for RenderForm, leaving
// out secrets.
func FormValues(c echo.Context) map[string]string {
	out := map[string]string{}
	params, err := c.FormParams()
	if err != nil {
		return out
	}
	for k, v := range params {
		if strings.Contains(k, "password") || k == session.CSRFFormField || len(v) == 0 {
			continue
		}
		out[k] = v[0]
	}
	return out
}

// Redirect sets a flash and redirects with 303 See Other.
func Redirect(c echo.Context, to, kind, message string) error {
	if message != "" {
		session.From(c).AddFlash(kind, message)
	}
	return c.Redirect(http.StatusSeeOther, to)
}

// Back redirects to the same-site Referer, or fallback.
func Back(c echo.Context, fallback, kind, message string) error {
	return Redirect(c, SafeReferer(c, fallback), kind, message)
}

// SafeReferer returns the Referer path when it points at this host.
func SafeReferer(c echo.Context, fallback string) string {
	ref := c.Request().Referer()
	if ref == "" {
		return fallback
	}
	u, err := url.Parse(ref)
	if err != nil || (u.Host != "" && u.Host != c.Request().Host) || !strings.HasPrefix(u.Path, "/") {
		return fallback
	}
	p := path.Clean(u.Path)
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}

// CSRFFailure builds the handler RequireCSRF calls on a token mismatch:
// AJAX gets a JSON error, pages are redirected to target with an error flash.
func CSRFFailure(target string) echo.HandlerFunc {
	return func(c echo.Context) error {
		if middleware.IsAJAX(c) {
			return JSONError(c, http.StatusForbidden, "Invalid request token. Please reload the page.")
		}
		return Redirect(c, target, session.FlashError, "Invalid request token. Please try again.")
	}
}

// JSONOK writes {"success":true, key: value}.
func JSONOK(c echo.Context, key string, value interface{}) error {
	body := map[string]interface{}{"success": true}
	if key != "" {
		body[key] = value
	}
	return c.JSON(http.StatusOK, body)
}

// JSONError writes {"success":false,"error":message}.
func JSONError(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]interface{}{"success": false, "error": message})
}

// Recorder is an echo.Renderer that keeps the last render for handler tests.
type Recorder struct {
	Name string
	Page Page
}

func (r *Recorder) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	r.Name = name
	if p, ok := data.(Page); ok {
		r.Page = p
	}
	_, err := io.WriteString(w, name)
	return err
}
