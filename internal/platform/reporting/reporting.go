// Package reporting evaluates the predefined measures shown on the admin
// dashboard and renders tabular reports as PDF.
package reporting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

var ErrMeasureNotFound = errors.New("measure not found")

// Measure IDs.
const (
	MeasureUsersByRole          = "users-by-role"
	MeasureDoctorsByStatus      = "doctors-by-status"
	MeasureAppointmentsByStatus = "appointments-by-status"
	MeasureOrdersByStatus       = "orders-by-status"
	MeasureRevenue              = "revenue"
)

// MeasureDefinition defines a reporting measure with its SQL query.
// Grouped measures return (key, total) rows.
type MeasureDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SQL         string `json:"-"`
}

// MeasureReport holds the results of evaluating a measure.
type MeasureReport struct {
	MeasureID   string                   `json:"measure_id"`
	MeasureName string                   `json:"measure_name"`
	GeneratedAt time.Time                `json:"generated_at"`
	Results     []map[string]interface{} `json:"results"`
}

// PredefinedMeasures is the list of available reporting measures.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          MeasureUsersByRole,
		Name:        "Users by Role",
		Description: "Number of user accounts per role",
		SQL:         `SELECT role AS key, COUNT(*) AS total FROM users GROUP BY role ORDER BY role`,
	},
	{
		ID:          MeasureDoctorsByStatus,
		Name:        "Doctors by Status",
		Description: "Doctor registrations per approval status",
		SQL:         `SELECT status AS key, COUNT(*) AS total FROM doctors GROUP BY status ORDER BY status`,
	},
	{
		ID:          MeasureAppointmentsByStatus,
		Name:        "Appointments by Status",
		Description: "Appointments per lifecycle status",
		SQL:         `SELECT status AS key, COUNT(*) AS total FROM appointments GROUP BY status ORDER BY status`,
	},
	{
		ID:          MeasureOrdersByStatus,
		Name:        "Orders by Status",
		Description: "Pharmacy orders per fulfilment status",
		SQL:         `SELECT status AS key, COUNT(*) AS total FROM orders GROUP BY status ORDER BY status`,
	},
	{
		ID:          MeasureRevenue,
		Name:        "Revenue",
		Description: "Paid consultation fees and completed or delivered pharmacy orders",
		SQL: `SELECT
			(SELECT COALESCE(SUM(consultation_fee), 0)::float8 FROM appointments WHERE payment_status = 'paid') AS appointments,
			(SELECT COALESCE(SUM(total), 0)::float8 FROM orders WHERE status IN ('completed', 'delivered')) AS orders`,
	},
}

// FindMeasure looks up a measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}

// Evaluator runs measures against the database.
type Evaluator struct {
	pool *pgxpool.Pool
}

func NewEvaluator(pool *pgxpool.Pool) *Evaluator {
	return &Evaluator{pool: pool}
}

func (e *Evaluator) Evaluate(ctx context.Context, id string) (*MeasureReport, error) {
	m := FindMeasure(id)
	if m == nil {
		return nil, ErrMeasureNotFound
	}
	results, err := e.executeSQL(ctx, m.SQL)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", id, err)
	}
	return &MeasureReport{MeasureID: m.ID, MeasureName: m.Name, GeneratedAt: time.Now(), Results: results}, nil
}

// executeSQL runs a SQL query and returns results as a slice of maps.
func (e *Evaluator) executeSQL(ctx context.Context, sql string) ([]map[string]interface{}, error) {
	rows, err := e.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	results := []map[string]interface{}{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(fieldDescs))
		for i, fd := range fieldDescs {
			row[fd.Name] = values[i]
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// Counts folds a grouped (key, total) report into a map.
func Counts(r *MeasureReport) map[string]int {
	out := make(map[string]int, len(r.Results))
	for _, row := range r.Results {
		key, _ := row["key"].(string)
		out[key] = int(Number(row["total"]))
	}
	return out
}

// Number converts a numeric column value to float64.
func Number(v interface{}) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case int:
		return float64(n)
	case float64:
		return n
	case float32:
		return float64(n)
	}
	return 0
}

// MeasureSource is what Handler serves.
type MeasureSource interface {
	Evaluate(ctx context.Context, id string) (*MeasureReport, error)
}

// Handler exposes the measures as JSON.
type Handler struct {
	source MeasureSource
}

func NewHandler(source MeasureSource) *Handler {
	return &Handler{source: source}
}

// RegisterRoutes mounts the measure endpoints on an admin-only group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/reports/measures", h.ListMeasures)
	g.GET("/reports/measures/:id", h.EvaluateMeasure)
}

func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

func (h *Handler) EvaluateMeasure(c echo.Context) error {
	report, err := h.source.Evaluate(c.Request().Context(), c.Param("id"))
	if errors.Is(err, ErrMeasureNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "measure not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}
