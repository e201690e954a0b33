package doctor

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("doctor not found")
	ErrNotPending        = errors.New("doctor is not pending review")
	ErrNotBookable       = errors.New("doctor is not accepting appointments")
	ErrEmailTaken        = errors.New("an account with this email already exists")
	ErrSpecialtyNotFound = errors.New("specialty not found")
	ErrSpecialtyInUse    = errors.New("specialty is assigned to doctors and cannot be deleted")
	ErrSpecialtyExists   = errors.New("a specialty with this name already exists")
)

// Review states.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

var ValidStatuses = map[string]bool{
	StatusPending:  true,
	StatusApproved: true,
	StatusRejected: true,
}

// Doctor is a doctor profile joined with its owning user and specialty.
type Doctor struct {
	ID               int64      `json:"id"`
	UserID           int64      `json:"user_id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	Phone            string     `json:"phone"`
	SpecialtyID      *int64     `json:"specialty_id,omitempty"`
	SpecialtyName    string     `json:"specialty_name"`
	LicenseNumber    string     `json:"license_number"`
	Qualifications   string     `json:"qualifications"`
	Bio              string     `json:"bio"`
	ConsultationFee  float64    `json:"consultation_fee"`
	Available        bool       `json:"available"`
	Status           string     `json:"status"`
	ApprovedBy       *int64     `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`
	RejectionReason  string     `json:"rejection_reason,omitempty"`
	VerificationDocs string     `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Bookable reports whether patients may book this doctor.
func (d *Doctor) Bookable() bool {
	return d.Status == StatusApproved && d.Available
}

type Specialty struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	DoctorCount int       `json:"doctor_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Review is the outcome written by Approve or Reject.
type Review struct {
	DoctorID   int64
	Status     string
	ReviewerID int64
	Reason     string
	ClearDocs  bool
}

// DirectoryFilter narrows the patient-facing doctor list.
type DirectoryFilter struct {
	SpecialtyID int64
	Search      string
}

type RegisterInput struct {
	Name            string  `form:"name" validate:"required,max=120" label:"Name"`
	Email           string  `form:"email" validate:"required,email,max=255" label:"Email"`
	Phone           string  `form:"phone" validate:"required,phone" label:"Phone"`
	Password        string  `form:"password" validate:"required,min=8,max=72" label:"Password"`
	ConfirmPassword string  `form:"confirm_password" validate:"required,eqfield=Password" label:"Password confirmation"`
	SpecialtyID     int64   `form:"specialty_id" validate:"required,gt=0" label:"Specialty"`
	LicenseNumber   string  `form:"license_number" validate:"required,max=64" label:"License number"`
	Qualifications  string  `form:"qualifications" validate:"required,max=1000" label:"Qualifications"`
	Bio             string  `form:"bio" validate:"max=2000" label:"Bio"`
	ConsultationFee float64 `form:"consultation_fee" validate:"gte=0" label:"Consultation fee"`
}

type ProfileInput struct {
	Qualifications  string  `form:"qualifications" validate:"required,max=1000" label:"Qualifications"`
	Bio             string  `form:"bio" validate:"max=2000" label:"Bio"`
	ConsultationFee float64 `form:"consultation_fee" validate:"gte=0" label:"Consultation fee"`
	Available       bool    `form:"available" label:"Available"`
}

type SpecialtyInput struct {
	Name        string `form:"name" validate:"required,max=120" label:"Name"`
	Description string `form:"description" validate:"max=1000" label:"Description"`
}
