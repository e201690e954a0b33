package identity

import (
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountInactive    = errors.New("your account is not active; please contact the clinic")
	ErrDoctorPending      = errors.New("your doctor account is awaiting approval")
	ErrDoctorRejected     = errors.New("your doctor registration was not approved")
	ErrSelfChange         = errors.New("you cannot change your own role or status")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidStatus      = errors.New("invalid status")
)

const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

var ValidStatuses = map[string]bool{
	StatusActive:    true,
	StatusInactive:  true,
	StatusSuspended: true,
}

type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type PatientProfile struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Gender      string     `json:"gender"`
	BloodGroup  string     `json:"blood_group"`
	Address     string     `json:"address"`
	CreatedAt   time.Time  `json:"created_at"`
}

// UserFilter narrows the admin user list. Empty fields match everything.
type UserFilter struct {
	Role   string
	Status string
	Search string
}

// LoginResult is what the session needs after a successful sign-in.
type LoginResult struct {
	User     *User
	DoctorID int64
}

// RegisterInput is the patient self-registration form.
type RegisterInput struct {
	Name            string `form:"name" validate:"required,max=120" label:"Name"`
	Email           string `form:"email" validate:"required,email,max=255" label:"Email"`
	Phone           string `form:"phone" validate:"omitempty,phone" label:"Phone"`
	Password        string `form:"password" validate:"required,min=8,max=72" label:"Password"`
	ConfirmPassword string `form:"confirm_password" validate:"required,eqfield=Password" label:"Password confirmation"`
	DateOfBirth     string `form:"date_of_birth" validate:"omitempty,isodate" label:"Date of birth"`
	Gender          string `form:"gender" validate:"omitempty,oneof=male female other" label:"Gender"`
}

// ProfileInput is the patient profile edit form.
type ProfileInput struct {
	Name        string `form:"name" validate:"required,max=120" label:"Name"`
	Phone       string `form:"phone" validate:"omitempty,phone" label:"Phone"`
	DateOfBirth string `form:"date_of_birth" validate:"omitempty,isodate" label:"Date of birth"`
	Gender      string `form:"gender" validate:"omitempty,oneof=male female other" label:"Gender"`
	BloodGroup  string `form:"blood_group" validate:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-" label:"Blood group"`
	Address     string `form:"address" validate:"max=500" label:"Address"`
}
