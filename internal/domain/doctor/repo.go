package doctor

import "context"

type Repository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id int64) (*Doctor, error)
	GetByUserID(ctx context.Context, userID int64) (*Doctor, error)
	List(ctx context.Context, status string, limit, offset int) ([]*Doctor, int, error)
	ListBookable(ctx context.Context, f DirectoryFilter) ([]*Doctor, error)
	// LockPending selects the doctor FOR UPDATE only while still pending.
	// Must run inside a transaction.
	LockPending(ctx context.Context, id int64) (*Doctor, error)
	SetReview(ctx context.Context, r Review) error
	UpdateProfile(ctx context.Context, d *Doctor) error
	CountByStatus(ctx context.Context) (map[string]int, error)
}

type SpecialtyRepository interface {
	List(ctx context.Context) ([]*Specialty, error)
	GetByID(ctx context.Context, id int64) (*Specialty, error)
	Create(ctx context.Context, s *Specialty) error
	Delete(ctx context.Context, id int64) error
}

// Accounts creates the user row a doctor profile hangs off.
type Accounts interface {
	CreateDoctorUser(ctx context.Context, name, email, phone, passwordHash string) (int64, error)
}
