package scheduling

import (
	"context"
	"time"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id int64) (*Appointment, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error)
	// UpdateStatus returns the number of rows changed; zero means the row
	// was not owned or no longer in From.
	UpdateStatus(ctx context.Context, ch StatusChange) (int64, error)
	SetMeeting(ctx context.Context, m MeetingUpdate) (int64, error)
	// SaveNotes stores notes and marks the appointment completed.
	SaveNotes(ctx context.Context, id, doctorID int64, from Status, notes string) (int64, error)
	HasConflict(ctx context.Context, doctorID int64, date time.Time, clock string) (bool, error)
	DueReminders(ctx context.Context, now time.Time, limit int) ([]*Appointment, error)
	MarkReminderSent(ctx context.Context, id int64, at time.Time) error
	CountByStatus(ctx context.Context) (map[string]int, error)
	ListRange(ctx context.Context, from, to time.Time) ([]*Appointment, error)
	ListPatientsOfDoctor(ctx context.Context, doctorID int64) ([]*PatientSummary, error)
}

type SlotRepository interface {
	List(ctx context.Context, doctorID int64) ([]*Slot, error)
	ListForDay(ctx context.Context, doctorID int64, day string) ([]*Slot, error)
	Create(ctx context.Context, s *Slot) error
	Delete(ctx context.Context, id, doctorID int64) (int64, error)
}

// Doctors resolves a bookable doctor. Implementations return
// ErrDoctorUnavailable for doctors patients may not book.
type Doctors interface {
	BookingInfo(ctx context.Context, doctorID int64) (*BookingDoctor, error)
}
