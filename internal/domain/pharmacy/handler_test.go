package pharmacy

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/chela967/medicare/internal/platform/auth"
	"github.com/chela967/medicare/internal/platform/session"
	"github.com/chela967/medicare/internal/platform/view"
)

func newTestServer(t *testing.T, s *session.Session) (*echo.Echo, *testDeps, *view.Recorder) {
	t.Helper()
	svc, d := newTestService(t)
	e := echo.New()
	rec := &view.Recorder{}
	e.Renderer = rec
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			session.Attach(c, s)
			return next(c)
		}
	})
	NewHandler(svc).RegisterRoutes(e.Group("/admin"), e.Group("/doctor"), e.Group("/patient"))
	return e, d, rec
}

func sessionFor(a auth.Actor) *session.Session {
	s := session.New()
	s.SetUser(a.UserID, a.Role, a.Name, "", a.DoctorID)
	return s
}

func postForm(e *echo.Echo, target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_PlaceOrder(t *testing.T) {
	s := sessionFor(patientOne)
	e, d, _ := newTestServer(t, s)
	a := seedMedicine(d, "Aspirin", 1.5, 10)
	b := seedMedicine(d, "Zinc", 2, 10)

	rec := postForm(e, "/patient/orders", url.Values{
		"medicine_id":         {"1", "2"},
		"quantity":            {"2", ""},
		"shipping_address":    {"12 Main St"},
		session.CSRFFormField: {s.CSRFToken},
	})
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/patient/orders/1" {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Header().Get("Location"))
	}
	if d.medicines.items[a.ID].Stock != 8 || d.medicines.items[b.ID].Stock != 10 {
		t.Error("unexpected stock after order")
	}
	if d.orders.items[1].Total != 3 {
		t.Errorf("expected total 3, got %v", d.orders.items[1].Total)
	}
}

func TestHandler_PlaceOrder_OverStock(t *testing.T) {
	s := sessionFor(patientOne)
	e, d, _ := newTestServer(t, s)
	seedMedicine(d, "Aspirin", 1.5, 1)

	rec := postForm(e, "/patient/orders", url.Values{
		"medicine_id":         {"1"},
		"quantity":            {"5"},
		"shipping_address":    {"12 Main St"},
		session.CSRFFormField: {s.CSRFToken},
	})
	if rec.Header().Get("Location") != "/patient/shop" {
		t.Fatalf("expected redirect to shop, got %s", rec.Header().Get("Location"))
	}
	flashes := s.PopFlashes()
	if len(flashes) != 1 || !strings.Contains(flashes[0].Message, "not enough stock") {
		t.Errorf("unexpected flashes %+v", flashes)
	}
	if len(d.orders.items) != 0 || d.medicines.items[1].Stock != 1 {
		t.Error("nothing may be written")
	}
}

func TestHandler_UpdateOrderStatus_CSRF(t *testing.T) {
	s := sessionFor(adminUser)
	e, d, _ := newTestServer(t, s)
	d.orders.items[1] = &Order{ID: 1, UserID: 1, Status: OrderPending, PaymentStatus: PaymentPending}

	postForm(e, "/admin/orders/1/status", url.Values{"status": {OrderShipped}, "payment_status": {PaymentPaid}})
	if d.orders.items[1].Status != OrderPending {
		t.Fatal("order changed without a CSRF token")
	}

	rec := postForm(e, "/admin/orders/1/status", url.Values{
		"status": {OrderShipped}, "payment_status": {PaymentPaid}, session.CSRFFormField: {s.CSRFToken},
	})
	if rec.Code != http.StatusSeeOther || d.orders.items[1].Status != OrderShipped {
		t.Errorf("expected order to be shipped, got %d %s", rec.Code, d.orders.items[1].Status)
	}
}

func TestHandler_CreateMedicine_Multipart(t *testing.T) {
	s := sessionFor(adminUser)
	e, d, rv := newTestServer(t, s)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	w.WriteField("name", "Cetirizine")
	w.WriteField("price", "4.20")
	w.WriteField("stock", "12")
	w.WriteField(session.CSRFFormField, s.CSRFToken)
	part, _ := w.CreateFormFile("image", "ceti.png")
	part.Write(pngBytes)
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/admin/medicines", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d (%s %v)", rec.Code, rv.Name, rv.Page.Errors)
	}
	if len(d.medicines.items) != 1 || d.medicines.items[1].Image == "" {
		t.Errorf("expected stored medicine with image, got %+v", d.medicines.items)
	}
}

func TestHandler_CreateMedicine_InvalidRerenders(t *testing.T) {
	s := sessionFor(adminUser)
	e, _, rv := newTestServer(t, s)

	rec := postForm(e, "/admin/medicines", url.Values{
		"name": {""}, "price": {"3"}, session.CSRFFormField: {s.CSRFToken},
	})
	if rec.Code != http.StatusUnprocessableEntity || rv.Name != "admin/medicine_form" {
		t.Fatalf("expected form re-render, got %d %s", rec.Code, rv.Name)
	}
	if rv.Page.Form["price"] != "3" || len(rv.Page.Errors) == 0 {
		t.Errorf("expected prior input and errors, got %+v %v", rv.Page.Form, rv.Page.Errors)
	}
}

func TestHandler_Prescribe_ForeignDoctor(t *testing.T) {
	s := sessionFor(doctorNine)
	e, d, _ := newTestServer(t, s)

	rec := postForm(e, "/doctor/appointments/5/prescriptions", url.Values{
		"medication": {"Amoxicillin"}, session.CSRFFormField: {s.CSRFToken},
	})
	if rec.Header().Get("Location") != "/doctor/appointments" {
		t.Errorf("expected redirect, got %d %s", rec.Code, rec.Header().Get("Location"))
	}
	if len(d.prescriptions.items) != 0 {
		t.Error("no prescription expected")
	}
}
