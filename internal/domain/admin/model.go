package admin

import (
	"errors"
	"time"
)

var ErrInvalidRange = errors.New("the report period must end after it starts and span at most one year")

// MaxReportDays caps the appointment report period.
const MaxReportDays = 366

// Dashboard is the admin landing page summary.
type Dashboard struct {
	UsersByRole          map[string]int
	TotalUsers           int
	PendingDoctors       int
	AppointmentsByStatus map[string]int
	TotalAppointments    int
	OrdersByStatus       map[string]int
	AppointmentRevenue   float64
	OrderRevenue         float64
	GeneratedAt          time.Time
}

// Revenue is paid consultation fees plus completed or delivered orders.
func (d *Dashboard) Revenue() float64 {
	return d.AppointmentRevenue + d.OrderRevenue
}

// ReportRange is an inclusive date range.
type ReportRange struct {
	From time.Time
	To   time.Time
}

func (r ReportRange) Valid() bool {
	if r.From.IsZero() || r.To.IsZero() || r.To.Before(r.From) {
		return false
	}
	return r.To.Sub(r.From) <= MaxReportDays*24*time.Hour
}
