package pharmacy

import "context"

type CategoryRepository interface {
	List(ctx context.Context) ([]*Category, error)
	Create(ctx context.Context, c *Category) error
}

type MedicineRepository interface {
	List(ctx context.Context, f MedicineFilter, limit, offset int) ([]*Medicine, int, error)
	GetByID(ctx context.Context, id int64) (*Medicine, error)
	Create(ctx context.Context, m *Medicine) error
	Update(ctx context.Context, m *Medicine) error
	SetStatus(ctx context.Context, id int64, status string) (int64, error)
	// LockForOrder row-locks the given medicines for the surrounding
	// transaction. Unknown ids are missing from the result.
	LockForOrder(ctx context.Context, ids []int64) (map[int64]*Medicine, error)
	DecrementStock(ctx context.Context, id int64, qty int) error
}

type OrderRepository interface {
	// Create inserts the order and its items.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id int64) (*Order, error)
	List(ctx context.Context, f OrderFilter, limit, offset int) ([]*Order, int, error)
	UpdateStatus(ctx context.Context, id int64, status, payment string) (int64, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
}

type PrescriptionRepository interface {
	Create(ctx context.Context, p *Prescription) error
	ListForPatient(ctx context.Context, patientID int64) ([]*Prescription, error)
	ListForAppointment(ctx context.Context, appointmentID int64) ([]*Prescription, error)
}

// Appointments resolves appointment owners. It returns
// ErrAppointmentNotFound for unknown ids.
type Appointments interface {
	AppointmentRef(ctx context.Context, id int64) (*AppointmentRef, error)
}
