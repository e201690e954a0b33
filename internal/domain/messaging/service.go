package messaging

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/chela967/medicare/internal/platform/auth"
	"github.com/chela967/medicare/internal/platform/db"
)

const (
	notificationLimit = 50
	previewLength     = 120
)

type Service struct {
	messages      MessageRepository
	notifications NotificationRepository
	appointments  Appointments
	tx            db.Transactor
	policy        auth.Policy
	logger        zerolog.Logger
}

func NewService(messages MessageRepository, notifications NotificationRepository, appts Appointments,
	tx db.Transactor, policy auth.Policy, logger zerolog.Logger) *Service {
	return &Service{
		messages: messages, notifications: notifications, appointments: appts,
		tx: tx, policy: policy, logger: logger,
	}
}

// parties loads the appointment's participants and checks action for actor.
func (s *Service) parties(ctx context.Context, actor auth.Actor, action auth.Action, appointmentID int64) (*Parties, error) {
	p, err := s.appointments.Parties(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, action, auth.Resource{DoctorID: p.DoctorID, PatientID: p.PatientID}); err != nil {
		return nil, err
	}
	return p, nil
}

// Send stores a message from actor to the other side of the appointment
// and notifies the recipient. Both rows are written in one transaction.
func (s *Service) Send(ctx context.Context, actor auth.Actor, appointmentID int64, text string) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return nil, ErrMessageTooLong
	}
	p, err := s.parties(ctx, actor, auth.ActSendMessage, appointmentID)
	if err != nil {
		return nil, err
	}

	m := &Message{AppointmentID: appointmentID, SenderID: actor.UserID, SenderName: actor.Name, Body: text, Mine: true}
	n := &Notification{
		Title:   "New message from " + actor.Name,
		Message: preview(text),
		Type:    TypeMessage,
	}
	if actor.IsDoctor() {
		m.RecipientID = p.PatientID
		n.Link = fmt.Sprintf("/patient/appointments/%d", appointmentID)
	} else {
		m.RecipientID = p.DoctorUserID
		n.Link = fmt.Sprintf("/doctor/appointments/%d", appointmentID)
	}
	n.UserID = m.RecipientID

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.messages.Create(ctx, m); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		if err := s.notifications.Create(ctx, n); err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Int64("appointment_id", appointmentID).Int64("sender_id", actor.UserID).Msg("message sent")
	return m, nil
}

// Thread lists the appointment's messages oldest first.
func (s *Service) Thread(ctx context.Context, actor auth.Actor, appointmentID int64) ([]*Message, error) {
	if _, err := s.parties(ctx, actor, auth.ActReadMessages, appointmentID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		m.Mine = m.SenderID == actor.UserID
	}
	return msgs, nil
}

func (s *Service) ListNotifications(ctx context.Context, userID int64) ([]*Notification, error) {
	return s.notifications.ListForUser(ctx, userID, notificationLimit)
}

func (s *Service) UnreadCount(ctx context.Context, userID int64) (int, error) {
	return s.notifications.UnreadCount(ctx, userID)
}

func (s *Service) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	return s.notifications.MarkAllRead(ctx, userID)
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= previewLength {
		return text
	}
	r := []rune(text)
	return string(r[:previewLength-1]) + "…"
}
