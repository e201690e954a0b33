package identity

import (
	"context"
)

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, f UserFilter, limit, offset int) ([]*User, int, error)
	UpdateRole(ctx context.Context, id int64, role string) error
	UpdateStatus(ctx context.Context, id int64, status string) error
	UpdateContact(ctx context.Context, id int64, name, phone string) error
	CountByRole(ctx context.Context) (map[string]int, error)
}

type PatientRepository interface {
	Create(ctx context.Context, p *PatientProfile) error
	GetByUserID(ctx context.Context, userID int64) (*PatientProfile, error)
	Update(ctx context.Context, p *PatientProfile) error
}

// DoctorGate tells login whether a doctor account may sign in yet.
type DoctorGate interface {
	LoginStatus(ctx context.Context, userID int64) (doctorID int64, status string, err error)
}
