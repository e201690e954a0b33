package admin

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/chela967/medicare/internal/platform/audit"
	"github.com/chela967/medicare/internal/platform/auth"
	"github.com/chela967/medicare/internal/platform/session"
	"github.com/chela967/medicare/internal/platform/view"
	"github.com/chela967/medicare/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the dashboard, reports and audit log on the
// admin-only group.
func (h *Handler) RegisterRoutes(admin *echo.Group) {
	admin.GET("", h.Dashboard)
	admin.GET("/reports", h.Reports)
	admin.GET("/reports/appointments.pdf", h.AppointmentReport)
	admin.GET("/audit", h.AuditLog)
}

func (h *Handler) Dashboard(c echo.Context) error {
	d, err := h.svc.Dashboard(c.Request().Context(), auth.ActorFrom(c))
	if err != nil {
		return err
	}
	return view.Render(c, http.StatusOK, "admin/dashboard", "Dashboard", d)
}

type reportsPage struct {
	From string
	To   string
}

func (h *Handler) Reports(c echo.Context) error {
	now := time.Now()
	return view.Render(c, http.StatusOK, "admin/reports", "Reports", reportsPage{
		From: now.AddDate(0, -1, 0).Format("2006-01-02"),
		To:   now.Format("2006-01-02"),
	})
}

func (h *Handler) AppointmentReport(c echo.Context) error {
	from, errFrom := time.Parse("2006-01-02", c.QueryParam("from"))
	to, errTo := time.Parse("2006-01-02", c.QueryParam("to"))
	if errFrom != nil || errTo != nil {
		return view.Redirect(c, "/admin/reports", session.FlashError, "Please choose a valid report period.")
	}
	r := ReportRange{From: from, To: to}
	if !r.Valid() {
		return view.Redirect(c, "/admin/reports", session.FlashError, ErrInvalidRange.Error())
	}

	var buf bytes.Buffer
	err := h.svc.AppointmentReportPDF(c.Request().Context(), auth.ActorFrom(c), r, &buf)
	if errors.Is(err, auth.ErrForbidden) {
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="appointments_%s_%s.pdf"`, from.Format("20060102"), to.Format("20060102")))
	return c.Blob(http.StatusOK, "application/pdf", buf.Bytes())
}

type auditPage struct {
	Entries []*audit.Entry
	Pager   pagination.Pager
}

func (h *Handler) AuditLog(c echo.Context) error {
	p := pagination.FromContext(c)
	entries, total, err := h.svc.AuditLog(c.Request().Context(), auth.ActorFrom(c), p.Limit, p.Offset)
	if err != nil {
		return err
	}
	return view.Render(c, http.StatusOK, "admin/audit", "Audit log", auditPage{
		Entries: entries,
		Pager:   pagination.NewPager(p, total, c.Request().URL.Path, c.QueryParams()),
	})
}
