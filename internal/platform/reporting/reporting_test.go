package reporting

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestPredefinedMeasures(t *testing.T) {
	expectedIDs := []string{
		MeasureUsersByRole,
		MeasureDoctorsByStatus,
		MeasureAppointmentsByStatus,
		MeasureOrdersByStatus,
		MeasureRevenue,
	}
	if len(PredefinedMeasures) != len(expectedIDs) {
		t.Fatalf("expected %d predefined measures, got %d", len(expectedIDs), len(PredefinedMeasures))
	}
	for i, expectedID := range expectedIDs {
		m := PredefinedMeasures[i]
		if m.ID != expectedID {
			t.Errorf("expected measure[%d].ID = %s, got %s", i, expectedID, m.ID)
		}
		if m.SQL == "" || m.Name == "" || m.Description == "" {
			t.Errorf("measure %s is incomplete", m.ID)
		}
	}
}

func TestFindMeasure(t *testing.T) {
	if m := FindMeasure(MeasureRevenue); m == nil || m.Name != "Revenue" {
		t.Errorf("expected revenue measure, got %+v", m)
	}
	if FindMeasure("nonexistent") != nil {
		t.Error("expected nil for nonexistent measure")
	}
}

func TestCounts(t *testing.T) {
	r := &MeasureReport{Results: []map[string]interface{}{
		{"key": "patient", "total": int64(12)},
		{"key": "doctor", "total": int32(3)},
		{"key": "admin", "total": "bogus"},
	}}
	got := Counts(r)
	if got["patient"] != 12 || got["doctor"] != 3 || got["admin"] != 0 {
		t.Errorf("unexpected counts %v", got)
	}
}

func TestNumber(t *testing.T) {
	for _, tt := range []struct {
		in   interface{}
		want float64
	}{
		{int64(4), 4}, {float64(2.5), 2.5}, {float32(1.5), 1.5}, {nil, 0}, {"7", 0},
	} {
		if got := Number(tt.in); got != tt.want {
			t.Errorf("Number(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

type stubSource map[string]*MeasureReport

func (s stubSource) Evaluate(_ context.Context, id string) (*MeasureReport, error) {
	r, ok := s[id]
	if !ok {
		return nil, ErrMeasureNotFound
	}
	return r, nil
}

func TestHandler_EvaluateMeasure(t *testing.T) {
	e := echo.New()
	NewHandler(stubSource{MeasureRevenue: {MeasureID: MeasureRevenue}}).RegisterRoutes(e.Group("/admin"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/reports/measures/revenue", nil))
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`"measure_id":"revenue"`)) {
		t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/reports/measures/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestWritePDF(t *testing.T) {
	table := Table{
		Title:    "Appointments",
		Subtitle: "May 1, 2024 to May 31, 2024",
		Columns: []Column{
			{Header: "Date", Width: 30},
			{Header: "Patient", Width: 60},
			{Header: "Fee", Width: 25, Align: "R"},
		},
		Footer: "Total: 120.00",
	}
	for i := 0; i < 80; i++ {
		table.Rows = append(table.Rows, []string{"2024-05-01", fmt.Sprintf("Patient with a rather long name number %d", i), "12.00"})
	}

	var buf bytes.Buffer
	if err := WritePDF(&buf, table); err != nil {
		t.Fatalf("WritePDF: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Error("output is not a PDF")
	}

	buf.Reset()
	if err := WritePDF(&buf, Table{Title: "Empty", Columns: table.Columns}); err != nil {
		t.Fatalf("WritePDF empty: %v", err)
	}
}
