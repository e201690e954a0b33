package messaging

import (
	"errors"
	"time"
)

var (
	ErrEmptyMessage        = errors.New("message cannot be empty")
	ErrMessageTooLong      = errors.New("message is too long")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// MaxMessageLength is counted in runes.
const MaxMessageLength = 2000

// Notification types.
const (
	TypeMessage = "message"
	TypeInfo    = "info"
)

// Message is append-only.
type Message struct {
	ID            int64     `json:"id"`
	AppointmentID int64     `json:"appointment_id"`
	SenderID      int64     `json:"sender_id"`
	SenderName    string    `json:"sender_name"`
	RecipientID   int64     `json:"recipient_id"`
	Body          string    `json:"message"`
	Mine          bool      `json:"mine"`
	CreatedAt     time.Time `json:"created_at"`
}

type Notification struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Type      string     `json:"type"`
	Link      string     `json:"link,omitempty"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (n *Notification) Read() bool { return n.ReadAt != nil }

// Parties are the two sides of the appointment a thread belongs to.
// PatientID is a user id; DoctorUserID is the doctor's user id.
type Parties struct {
	AppointmentID int64
	DoctorID      int64
	DoctorUserID  int64
	DoctorName    string
	PatientID     int64
	PatientName   string
}
