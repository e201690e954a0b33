package view_test

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/chela967/medicare/internal/domain/admin"
	"github.com/chela967/medicare/internal/domain/doctor"
	"github.com/chela967/medicare/internal/domain/messaging"
	"github.com/chela967/medicare/internal/domain/pharmacy"
	"github.com/chela967/medicare/internal/domain/scheduling"
	"github.com/chela967/medicare/internal/platform/auth"
	"github.com/chela967/medicare/internal/platform/session"
	"github.com/chela967/medicare/internal/platform/view"
)

var pages = []string{
	"home", "error", "notifications",
	"auth/login", "auth/register", "auth/register_doctor",
	"admin/dashboard", "admin/users", "admin/doctors", "admin/doctors_pending", "admin/specialties",
	"admin/appointments", "admin/medicines", "admin/medicine_form", "admin/categories",
	"admin/orders", "admin/order", "admin/reports", "admin/audit",
	"doctor/dashboard", "doctor/appointments", "doctor/consultation", "doctor/patients",
	"doctor/prescriptions", "doctor/profile", "doctor/schedule",
	"patient/dashboard", "patient/doctors", "patient/book", "patient/appointments", "patient/appointment",
	"patient/profile", "patient/shop", "patient/orders", "patient/order", "patient/prescriptions",
}

func TestRenderer_ParsesEveryPage(t *testing.T) {
	r, err := view.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	for _, name := range pages {
		if !r.Has(name) {
			t.Errorf("missing template %q", name)
		}
	}
	if r.Has("layout") || r.Has("partials/nav") {
		t.Error("layout and partials must not be registered as pages")
	}
}

func sampleAppointment() *scheduling.Appointment {
	send := time.Date(2024, 5, 2, 9, 15, 0, 0, time.UTC)
	return &scheduling.Appointment{
		ID: 42, PatientID: 1, PatientName: "Pat Patient", DoctorID: 7, DoctorName: "Dr. Grey",
		Date: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), Time: "09:30",
		Status: scheduling.StatusScheduled, Reason: "Checkup", ConsultationFee: 50,
		PaymentStatus: scheduling.PaymentPending, MeetingLink: "https://meet.example/abc",
		ReminderSendTime: &send,
	}
}

func TestRenderer_RendersPages(t *testing.T) {
	r, err := view.NewRenderer()
	if err != nil {
		t.Fatal(err)
	}
	catID := int64(3)
	tests := []struct {
		name string
		user auth.Actor
		data interface{}
		want string
	}{
		{"home", auth.Actor{}, nil, "Create a patient account"},
		{"auth/login", auth.Actor{}, nil, `name="csrf_token" value="tok"`},
		{"admin/dashboard", auth.Actor{UserID: 1, Role: auth.RoleAdmin, Name: "Ada"}, &admin.Dashboard{
			UsersByRole:          map[string]int{"patient": 4, "doctor": 2},
			TotalUsers:           6,
			PendingDoctors:       1,
			AppointmentsByStatus: map[string]int{"no_show": 1},
			AppointmentRevenue:   100,
			OrderRevenue:         20.5,
		}, "$120.50"},
		{"doctor/consultation", auth.Actor{UserID: 70, Role: auth.RoleDoctor, DoctorID: 7}, sampleAppointment(), `data-appointment="42"`},
		{"patient/appointment", auth.Actor{UserID: 1, Role: auth.RolePatient}, sampleAppointment(), "Join online consultation"},
		{"patient/dashboard", auth.Actor{UserID: 1, Role: auth.RolePatient}, []*scheduling.Appointment{sampleAppointment()}, "Dr. Grey"},
		{"doctor/profile", auth.Actor{UserID: 70, Role: auth.RoleDoctor, DoctorID: 7}, &doctor.Doctor{
			ID: 7, Name: "Dr. Grey", Status: doctor.StatusApproved, ConsultationFee: 50, Available: true,
		}, "50.00"},
		{"notifications", auth.Actor{UserID: 1, Role: auth.RolePatient}, []*messaging.Notification{
			{ID: 1, Title: "New message", Message: "Hello", Link: "/patient/appointments/42"},
		}, "/patient/appointments/42"},
		{"patient/prescriptions", auth.Actor{UserID: 1, Role: auth.RolePatient}, []*pharmacy.Prescription{
			{ID: 1, AppointmentID: 42, Medication: "Amoxicillin", DoctorName: "Dr. Grey"},
		}, "Amoxicillin"},
		{"admin/categories", auth.Actor{UserID: 1, Role: auth.RoleAdmin}, []*pharmacy.Category{
			{ID: catID, Name: "Antibiotics", MedicineCount: 2},
		}, "/admin/medicines?category=3"},
		{"error", auth.Actor{}, struct {
			Status  int
			Message string
		}{404, "Not Found"}, "404"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			p := view.Page{Title: "T", User: tt.user, CSRFToken: "tok", Data: tt.data}
			if err := r.Render(&buf, tt.name, p, nil); err != nil {
				t.Fatalf("render: %v", err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output does not contain %q", tt.want)
			}
		})
	}
}

func TestRender_FillsPageFromSession(t *testing.T) {
	e := echo.New()
	rec := &view.Recorder{}
	e.Renderer = rec
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/patient", nil), httptest.NewRecorder())
	s := session.New()
	s.SetUser(1, auth.RolePatient, "Pat", "pat@example.com", 0)
	s.AddFlash(session.FlashSuccess, "Saved.")
	session.Attach(c, s)

	if err := view.Render(c, http.StatusOK, "patient/dashboard", "Dashboard", nil); err != nil {
		t.Fatal(err)
	}
	if rec.Page.User.UserID != 1 || rec.Page.CSRFToken != s.CSRFToken || rec.Page.Path != "/patient" {
		t.Errorf("unexpected page %+v", rec.Page)
	}
	if len(rec.Page.Flashes) != 1 || len(s.PopFlashes()) != 0 {
		t.Error("flashes must move from the session to the page")
	}
}

func TestFuncs(t *testing.T) {
	label := view.Funcs["label"].(func(string) string)
	badge := view.Funcs["badge"].(func(string) string)
	money := view.Funcs["money"].(func(float64) string)
	if label("no_show") != "No show" || badge("no_show") != "danger" || badge("paid") != "success" {
		t.Error("unexpected label or badge")
	}
	if money(12.5) != "$12.50" {
		t.Errorf("money = %q", money(12.5))
	}
}

func TestSafeReferer(t *testing.T) {
	e := echo.New()
	for ref, want := range map[string]string{
		"":                                   "/fallback",
		"http://example.com/admin/users?x=1": "/admin/users?x=1",
		"https://evil.test/steal":            "/fallback",
		"/doctor/../admin":                   "/admin",
	} {
		req := httptest.NewRequest(http.MethodPost, "http://example.com/x", nil)
		req.Header.Set("Referer", ref)
		c := e.NewContext(req, httptest.NewRecorder())
		if got := view.SafeReferer(c, "/fallback"); got != want {
			t.Errorf("SafeReferer(%q) = %q, want %q", ref, got, want)
		}
	}
}

func TestErrorHandler(t *testing.T) {
	e := echo.New()
	rec := &view.Recorder{}
	e.Renderer = rec
	h := view.ErrorHandler(zerolog.Nop())

	res := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	h(echo.NewHTTPError(http.StatusNotFound, "appointment not found"), e.NewContext(req, res))
	if res.Code != http.StatusNotFound || !strings.Contains(res.Body.String(), `"success":false`) {
		t.Errorf("unexpected AJAX response %d %s", res.Code, res.Body.String())
	}

	res = httptest.NewRecorder()
	h(errors.New("db password leaked"), e.NewContext(httptest.NewRequest(http.MethodGet, "/doctor", nil), res))
	if res.Code != http.StatusInternalServerError || rec.Name != "error" {
		t.Fatalf("unexpected page response %d %q", res.Code, rec.Name)
	}
	if strings.Contains(res.Body.String(), "leaked") {
		t.Error("internal error details must not be rendered")
	}

	res = httptest.NewRecorder()
	h(auth.ErrForbidden, e.NewContext(httptest.NewRequest(http.MethodGet, "/admin", nil), res))
	if res.Code != http.StatusForbidden {
		t.Errorf("expected 403 for ErrForbidden, got %d", res.Code)
	}
}
