package pharmacy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chela967/medicare/internal/platform/db"
)

// -- Categories --

type categoryRepoPG struct{ pool *pgxpool.Pool }

func NewCategoryRepoPG(pool *pgxpool.Pool) CategoryRepository { return &categoryRepoPG{pool: pool} }

func (r *categoryRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *categoryRepoPG) List(ctx context.Context) ([]*Category, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT c.id, c.name, c.description, COUNT(m.id), c.created_at
		FROM categories c LEFT JOIN medicines m ON m.category_id = c.id
		GROUP BY c.id ORDER BY c.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.MedicineCount, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (r *categoryRepoPG) Create(ctx context.Context, c *Category) error {
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO categories (name, description) VALUES ($1, $2) RETURNING id, created_at`,
		c.Name, c.Description).Scan(&c.ID, &c.CreatedAt)
	if db.IsUniqueViolation(err) {
		return ErrCategoryExists
	}
	return err
}

// -- Medicines --

type medicineRepoPG struct{ pool *pgxpool.Pool }

func NewMedicineRepoPG(pool *pgxpool.Pool) MedicineRepository { return &medicineRepoPG{pool: pool} }

func (r *medicineRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const medicineCols = `m.id, m.category_id, COALESCE(c.name, ''), m.name, m.description, m.manufacturer,
	m.price, m.stock, m.image, m.status, m.created_at, m.updated_at`

const medicineFrom = ` FROM medicines m LEFT JOIN categories c ON c.id = m.category_id`

func scanMedicine(row pgx.Row) (*Medicine, error) {
	var m Medicine
	err := row.Scan(&m.ID, &m.CategoryID, &m.CategoryName, &m.Name, &m.Description, &m.Manufacturer,
		&m.Price, &m.Stock, &m.Image, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMedicineNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *medicineRepoPG) List(ctx context.Context, f MedicineFilter, limit, offset int) ([]*Medicine, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	if f.CategoryID != 0 {
		where += fmt.Sprintf(` AND m.category_id = $%d`, idx)
		args = append(args, f.CategoryID)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND m.status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where += fmt.Sprintf(` AND (m.name ILIKE $%d OR m.manufacturer ILIKE $%d)`, idx, idx)
		args = append(args, "%"+s+"%")
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medicines m`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + medicineCols + medicineFrom + where +
		fmt.Sprintf(` ORDER BY m.name ASC, m.id ASC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Medicine
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

func (r *medicineRepoPG) GetByID(ctx context.Context, id int64) (*Medicine, error) {
	return scanMedicine(r.conn(ctx).QueryRow(ctx, `SELECT `+medicineCols+medicineFrom+` WHERE m.id = $1`, id))
}

func (r *medicineRepoPG) Create(ctx context.Context, m *Medicine) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medicines (category_id, name, description, manufacturer, price, stock, image, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`,
		m.CategoryID, m.Name, m.Description, m.Manufacturer, m.Price, m.Stock, m.Image, m.Status,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if db.IsForeignKeyViolation(err) {
		return ErrCategoryNotFound
	}
	return err
}

func (r *medicineRepoPG) Update(ctx context.Context, m *Medicine) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE medicines SET category_id = $2, name = $3, description = $4, manufacturer = $5,
			price = $6, stock = $7, image = $8, status = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		m.ID, m.CategoryID, m.Name, m.Description, m.Manufacturer, m.Price, m.Stock, m.Image, m.Status,
	).Scan(&m.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrMedicineNotFound
	case db.IsForeignKeyViolation(err):
		return ErrCategoryNotFound
	}
	return err
}

func (r *medicineRepoPG) SetStatus(ctx context.Context, id int64, status string) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE medicines SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *medicineRepoPG) LockForOrder(ctx context.Context, ids []int64) (map[int64]*Medicine, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+medicineCols+medicineFrom+`
		WHERE m.id = ANY($1)
		ORDER BY m.id
		FOR UPDATE OF m`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]*Medicine, len(ids))
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, err
		}
		out[m.ID] = m
	}
	return out, rows.Err()
}

func (r *medicineRepoPG) DecrementStock(ctx context.Context, id int64, qty int) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE medicines SET stock = stock - $2, updated_at = NOW() WHERE id = $1 AND stock >= $2`, id, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOutOfStock
	}
	return nil
}

// -- Orders --

type orderRepoPG struct{ pool *pgxpool.Pool }

func NewOrderRepoPG(pool *pgxpool.Pool) OrderRepository { return &orderRepoPG{pool: pool} }

func (r *orderRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const orderCols = `o.id, o.user_id, u.name, o.total, o.status, o.payment_status, o.shipping_address,
	o.created_at, o.updated_at`

const orderFrom = ` FROM orders o JOIN users u ON u.id = o.user_id`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.UserName, &o.Total, &o.Status, &o.PaymentStatus, &o.ShippingAddress,
		&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepoPG) Create(ctx context.Context, o *Order) error {
	conn := r.conn(ctx)
	err := conn.QueryRow(ctx, `
		INSERT INTO orders (user_id, total, status, payment_status, shipping_address)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		o.UserID, o.Total, o.Status, o.PaymentStatus, o.ShippingAddress,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	for _, it := range o.Items {
		it.OrderID = o.ID
		err := conn.QueryRow(ctx, `
			INSERT INTO order_items (order_id, medicine_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4) RETURNING id`,
			it.OrderID, it.MedicineID, it.Quantity, it.UnitPrice,
		).Scan(&it.ID)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r *orderRepoPG) GetByID(ctx context.Context, id int64) (*Order, error) {
	o, err := scanOrder(r.conn(ctx).QueryRow(ctx, `SELECT `+orderCols+orderFrom+` WHERE o.id = $1`, id))
	if err != nil {
		return nil, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT i.id, i.order_id, i.medicine_id, m.name, i.quantity, i.unit_price
		FROM order_items i JOIN medicines m ON m.id = i.medicine_id
		WHERE i.order_id = $1 ORDER BY i.id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MedicineID, &it.MedicineName, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, &it)
	}
	return o, rows.Err()
}

func (r *orderRepoPG) List(ctx context.Context, f OrderFilter, limit, offset int) ([]*Order, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	if f.UserID != 0 {
		where += fmt.Sprintf(` AND o.user_id = $%d`, idx)
		args = append(args, f.UserID)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND o.status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM orders o`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + orderCols + orderFrom + where +
		fmt.Sprintf(` ORDER BY o.created_at DESC, o.id DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

func (r *orderRepoPG) UpdateStatus(ctx context.Context, id int64, status, payment string) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE orders SET status = $2, payment_status = $3, updated_at = NOW() WHERE id = $1`,
		id, status, payment)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *orderRepoPG) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

// -- Prescriptions --

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const prescriptionSelect = `
	SELECT p.id, p.appointment_id, a.appointment_date, p.doctor_id, du.name, p.patient_id, pu.name,
		p.medication, p.dosage, p.instructions, p.created_at
	FROM prescriptions p
	JOIN appointments a ON a.id = p.appointment_id
	JOIN doctors d ON d.id = p.doctor_id
	JOIN users du ON du.id = d.user_id
	JOIN users pu ON pu.id = p.patient_id`

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescriptions (appointment_id, doctor_id, patient_id, medication, dosage, instructions)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		p.AppointmentID, p.DoctorID, p.PatientID, p.Medication, p.Dosage, p.Instructions,
	).Scan(&p.ID, &p.CreatedAt)
}

func (r *prescriptionRepoPG) ListForPatient(ctx context.Context, patientID int64) ([]*Prescription, error) {
	return r.list(ctx, prescriptionSelect+` WHERE p.patient_id = $1 ORDER BY p.created_at DESC, p.id DESC`, patientID)
}

func (r *prescriptionRepoPG) ListForAppointment(ctx context.Context, appointmentID int64) ([]*Prescription, error) {
	return r.list(ctx, prescriptionSelect+` WHERE p.appointment_id = $1 ORDER BY p.created_at ASC, p.id ASC`, appointmentID)
}

func (r *prescriptionRepoPG) list(ctx context.Context, query string, args ...interface{}) ([]*Prescription, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Prescription
	for rows.Next() {
		var p Prescription
		if err := rows.Scan(&p.ID, &p.AppointmentID, &p.AppointmentDate, &p.DoctorID, &p.DoctorName,
			&p.PatientID, &p.PatientName, &p.Medication, &p.Dosage, &p.Instructions, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
