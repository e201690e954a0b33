package messaging

import "context"

type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	ListByAppointment(ctx context.Context, appointmentID int64) ([]*Message, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	ListForUser(ctx context.Context, userID int64, limit int) ([]*Notification, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
}

// Appointments resolves the participants of an appointment. It returns
// ErrAppointmentNotFound for unknown ids.
type Appointments interface {
	Parties(ctx context.Context, appointmentID int64) (*Parties, error)
}
