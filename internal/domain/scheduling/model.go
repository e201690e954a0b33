package scheduling

import (
	"errors"
	"time"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found or not assigned to you")
	ErrInvalidStatus       = errors.New("invalid appointment status")
	ErrInvalidTransition   = errors.New("the appointment cannot move to that status")
	ErrAppointmentClosed   = errors.New("the appointment is already closed")
	ErrEmptyNotes          = errors.New("consultation notes cannot be empty")
	ErrInvalidTimeRange    = errors.New("end time must be after start time")
	ErrSlotNotFound        = errors.New("schedule slot not found")
	ErrPastDate            = errors.New("appointments cannot be booked in the past")
	ErrOutsideSchedule     = errors.New("the doctor is not available at that time")
	ErrSlotTaken           = errors.New("that time is already booked")
	ErrDoctorUnavailable   = errors.New("the doctor is not accepting appointments")
)

// Status is an appointment state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// transitions lists the legal next states. Terminal states have none.
// No action moves an appointment into confirmed; rows already in that state
// keep the same exits as scheduled.
var transitions = map[Status][]Status{
	StatusPending:   {StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow},
	StatusScheduled: {StatusCompleted, StatusCancelled, StatusNoShow},
	StatusConfirmed: {StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow},
	StatusCompleted: nil,
	StatusCancelled: nil,
	StatusNoShow:    nil,
}

// DoctorSettable is the set of states a doctor may pick from the
// appointment list.
var DoctorSettable = map[Status]bool{
	StatusScheduled: true,
	StatusCompleted: true,
	StatusCancelled: true,
	StatusNoShow:    true,
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses returns the doctor-settable states reachable from s, in
// display order.
func NextStatuses(s Status) []Status {
	var out []Status
	for _, next := range []Status{StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow} {
		if DoctorSettable[next] && CanTransition(s, next) {
			out = append(out, next)
		}
	}
	return out
}

// Payment states.
const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentFailed   = "failed"
	PaymentRefunded = "refunded"
)

type Appointment struct {
	ID                int64      `json:"id"`
	PatientID         int64      `json:"patient_id"`
	PatientName       string     `json:"patient_name"`
	PatientEmail      string     `json:"-"`
	DoctorID          int64      `json:"doctor_id"`
	DoctorUserID      int64      `json:"-"`
	DoctorName        string     `json:"doctor_name"`
	Date              time.Time  `json:"appointment_date"`
	Time              string     `json:"appointment_time"`
	Status            Status     `json:"status"`
	Reason            string     `json:"reason"`
	ConsultationFee   float64    `json:"consultation_fee"`
	PaymentStatus     string     `json:"payment_status"`
	ConsultationNotes string     `json:"consultation_notes,omitempty"`
	MeetingLink       string     `json:"meeting_link,omitempty"`
	MeetingID         string     `json:"meeting_id,omitempty"`
	ReminderSendTime  *time.Time `json:"reminder_send_time,omitempty"`
	ReminderSentAt    *time.Time `json:"reminder_sent_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Start combines the appointment date and time in loc.
func (a *Appointment) Start(loc *time.Location) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", a.Date.Format("2006-01-02")+" "+a.Time, loc)
	if err != nil {
		return time.Date(a.Date.Year(), a.Date.Month(), a.Date.Day(), 0, 0, 0, 0, loc)
	}
	return t
}

// NextStatuses is used by the doctor's status dropdown.
func (a *Appointment) NextStatuses() []Status { return NextStatuses(a.Status) }

// Slot is one weekly availability window. Times are "15:04".
type Slot struct {
	ID          int64     `json:"id"`
	DoctorID    int64     `json:"doctor_id"`
	DayOfWeek   string    `json:"day_of_week"`
	StartTime   string    `json:"start_time"`
	EndTime     string    `json:"end_time"`
	IsAvailable bool      `json:"is_available"`
	CreatedAt   time.Time `json:"created_at"`
}

// Covers reports whether clock ("15:04") falls in [StartTime, EndTime).
func (s *Slot) Covers(clock string) bool {
	return s.IsAvailable && clock >= s.StartTime && clock < s.EndTime
}

// StatusChange is a guarded status update. Exactly one of DoctorID and
// PatientID is set and becomes part of the WHERE clause with From.
type StatusChange struct {
	ID        int64
	DoctorID  int64
	PatientID int64
	From      Status
	To        Status
}

type MeetingUpdate struct {
	ID        int64
	DoctorID  int64
	MeetingID string
	Link      string
	SendAt    time.Time
}

// Filter narrows appointment lists. Zero fields match everything.
type Filter struct {
	DoctorID  int64
	PatientID int64
	Status    Status
	Date      *time.Time
	Upcoming  bool
}

// PatientSummary is one row of a doctor's patient list.
type PatientSummary struct {
	PatientID  int64     `json:"patient_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	Visits     int       `json:"visits"`
	LastVisit  time.Time `json:"last_visit"`
	LastApptID int64     `json:"last_appointment_id"`
}

// Parties identifies both sides of an appointment.
type Parties struct {
	AppointmentID int64
	DoctorID      int64
	DoctorUserID  int64
	DoctorName    string
	PatientID     int64
	PatientName   string
	Status        Status
}

// BookingDoctor is what booking needs to know about the doctor.
type BookingDoctor struct {
	ID   int64
	Name string
	Fee  float64
}

type BookInput struct {
	DoctorID int64  `form:"doctor_id" validate:"required,gt=0" label:"Doctor"`
	Date     string `form:"appointment_date" validate:"required,isodate" label:"Date"`
	Time     string `form:"appointment_time" validate:"required,clock" label:"Time"`
	Reason   string `form:"reason" validate:"max=1000" label:"Reason"`
}

type SlotInput struct {
	DayOfWeek   string `form:"day_of_week" validate:"required,weekday" label:"Day"`
	StartTime   string `form:"start_time" validate:"required,clock" label:"Start time"`
	EndTime     string `form:"end_time" validate:"required,clock" label:"End time"`
	IsAvailable bool   `form:"is_available" label:"Available"`
}

// Weekdays in display order.
var Weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}
