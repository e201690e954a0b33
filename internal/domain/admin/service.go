package admin

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chela967/medicare/internal/domain/scheduling"
	"github.com/chela967/medicare/internal/platform/audit"
	"github.com/chela967/medicare/internal/platform/auth"
	"github.com/chela967/medicare/internal/platform/reporting"
)

// Measures evaluates the predefined reporting measures.
type Measures interface {
	Evaluate(ctx context.Context, id string) (*reporting.MeasureReport, error)
}

// Appointments lists appointments for the report.
type Appointments interface {
	ListRange(ctx context.Context, from, to time.Time) ([]*scheduling.Appointment, error)
}

type Service struct {
	measures     Measures
	appointments Appointments
	audit        audit.Reader
	policy       auth.Policy
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(measures Measures, appointments Appointments, auditLog audit.Reader, policy auth.Policy, logger zerolog.Logger) *Service {
	return &Service{
		measures:     measures,
		appointments: appointments,
		audit:        auditLog,
		policy:       policy,
		logger:       logger.With().Str("component", "admin").Logger(),
		now:          time.Now,
	}
}

// Dashboard gathers every measure. A failing measure fails the page.
func (s *Service) Dashboard(ctx context.Context, actor auth.Actor) (*Dashboard, error) {
	if err := s.policy.Authorize(actor, auth.ActViewReports, auth.Resource{}); err != nil {
		return nil, err
	}

	d := &Dashboard{GeneratedAt: s.now()}
	counts := map[string]*map[string]int{
		reporting.MeasureUsersByRole:          &d.UsersByRole,
		reporting.MeasureAppointmentsByStatus: &d.AppointmentsByStatus,
		reporting.MeasureOrdersByStatus:       &d.OrdersByStatus,
	}
	for id, dst := range counts {
		r, err := s.measures.Evaluate(ctx, id)
		if err != nil {
			return nil, err
		}
		*dst = reporting.Counts(r)
	}
	for _, n := range d.UsersByRole {
		d.TotalUsers += n
	}
	for _, n := range d.AppointmentsByStatus {
		d.TotalAppointments += n
	}

	doctors, err := s.measures.Evaluate(ctx, reporting.MeasureDoctorsByStatus)
	if err != nil {
		return nil, err
	}
	d.PendingDoctors = reporting.Counts(doctors)["pending"]

	revenue, err := s.measures.Evaluate(ctx, reporting.MeasureRevenue)
	if err != nil {
		return nil, err
	}
	if len(revenue.Results) > 0 {
		d.AppointmentRevenue = reporting.Number(revenue.Results[0]["appointments"])
		d.OrderRevenue = reporting.Number(revenue.Results[0]["orders"])
	}
	return d, nil
}

// AppointmentReportPDF writes the appointments dated within r as a PDF.
func (s *Service) AppointmentReportPDF(ctx context.Context, actor auth.Actor, r ReportRange, w io.Writer) error {
	if err := s.policy.Authorize(actor, auth.ActViewReports, auth.Resource{}); err != nil {
		return err
	}
	if !r.Valid() {
		return ErrInvalidRange
	}

	appts, err := s.appointments.ListRange(ctx, r.From, r.To)
	if err != nil {
		return fmt.Errorf("list appointments: %w", err)
	}

	table := reporting.Table{
		Title:    "Appointment Report",
		Subtitle: fmt.Sprintf("%s to %s, generated %s", r.From.Format("Jan 2, 2006"), r.To.Format("Jan 2, 2006"), s.now().Format("Jan 2, 2006 15:04")),
		Columns: []reporting.Column{
			{Header: "#", Width: 15, Align: "R"},
			{Header: "Date", Width: 28},
			{Header: "Time", Width: 18},
			{Header: "Patient", Width: 55},
			{Header: "Doctor", Width: 55},
			{Header: "Status", Width: 30},
			{Header: "Payment", Width: 25},
			{Header: "Fee", Width: 30, Align: "R"},
		},
	}
	var paid float64
	for _, a := range appts {
		table.Rows = append(table.Rows, []string{
			strconv.FormatInt(a.ID, 10),
			a.Date.Format("2006-01-02"),
			a.Time,
			a.PatientName,
			a.DoctorName,
			statusLabel(string(a.Status)),
			statusLabel(a.PaymentStatus),
			fmt.Sprintf("%.2f", a.ConsultationFee),
		})
		if a.PaymentStatus == scheduling.PaymentPaid {
			paid += a.ConsultationFee
		}
	}
	table.Footer = fmt.Sprintf("%d appointments, paid fees %.2f", len(appts), paid)

	return reporting.WritePDF(w, table)
}

// AuditLog lists audit entries newest first.
func (s *Service) AuditLog(ctx context.Context, actor auth.Actor, limit, offset int) ([]*audit.Entry, int, error) {
	if err := s.policy.Authorize(actor, auth.ActViewReports, auth.Resource{}); err != nil {
		return nil, 0, err
	}
	return s.audit.List(ctx, limit, offset)
}

func statusLabel(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
