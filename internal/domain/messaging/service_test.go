package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chela967/medicare/internal/platform/auth"
)

// -- Mock Repositories --

type mockMessageRepo struct {
	items []*Message
}

func (m *mockMessageRepo) Create(_ context.Context, msg *Message) error {
	msg.ID = int64(len(m.items) + 1)
	msg.CreatedAt = time.Now()
	cp := *msg
	m.items = append(m.items, &cp)
	return nil
}

func (m *mockMessageRepo) ListByAppointment(_ context.Context, appointmentID int64) ([]*Message, error) {
	var out []*Message
	for _, msg := range m.items {
		if msg.AppointmentID == appointmentID {
			cp := *msg
			out = append(out, &cp)
		}
	}
	return out, nil
}

type mockNotificationRepo struct {
	items     []*Notification
	createErr error
}

func (m *mockNotificationRepo) Create(_ context.Context, n *Notification) error {
	if m.createErr != nil {
		return m.createErr
	}
	n.ID = int64(len(m.items) + 1)
	n.CreatedAt = time.Now()
	m.items = append(m.items, n)
	return nil
}

func (m *mockNotificationRepo) ListForUser(_ context.Context, userID int64, limit int) ([]*Notification, error) {
	var out []*Notification
	for i := len(m.items) - 1; i >= 0 && len(out) < limit; i-- {
		if m.items[i].UserID == userID {
			out = append(out, m.items[i])
		}
	}
	return out, nil
}

func (m *mockNotificationRepo) UnreadCount(_ context.Context, userID int64) (int, error) {
	n := 0
	for _, it := range m.items {
		if it.UserID == userID && it.ReadAt == nil {
			n++
		}
	}
	return n, nil
}

func (m *mockNotificationRepo) MarkAllRead(_ context.Context, userID int64) (int64, error) {
	now := time.Now()
	var n int64
	for _, it := range m.items {
		if it.UserID == userID && it.ReadAt == nil {
			it.ReadAt = &now
			n++
		}
	}
	return n, nil
}

type mockAppointments map[int64]*Parties

func (m mockAppointments) Parties(_ context.Context, id int64) (*Parties, error) {
	p, ok := m[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return p, nil
}

// txRecorder runs fn and discards nothing; it counts commits.
type txRecorder struct{ commits int }

func (t *txRecorder) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		return err
	}
	t.commits++
	return nil
}

type testDeps struct {
	messages      *mockMessageRepo
	notifications *mockNotificationRepo
	tx            *txRecorder
}

var (
	doctorSeven = auth.Actor{UserID: 70, Role: auth.RoleDoctor, DoctorID: 7, Name: "Dr. Seven"}
	doctorNine  = auth.Actor{UserID: 90, Role: auth.RoleDoctor, DoctorID: 9, Name: "Dr. Nine"}
	patientOne  = auth.Actor{UserID: 1, Role: auth.RolePatient, Name: "Pat"}
	patientTwo  = auth.Actor{UserID: 2, Role: auth.RolePatient, Name: "Other"}
	adminUser   = auth.Actor{UserID: 100, Role: auth.RoleAdmin, Name: "Admin"}
)

func newTestService(t *testing.T) (*Service, *testDeps) {
	t.Helper()
	policy, err := auth.NewCasbinPolicy(auth.DefaultGrants)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	d := &testDeps{messages: &mockMessageRepo{}, notifications: &mockNotificationRepo{}, tx: &txRecorder{}}
	appts := mockAppointments{
		5: {AppointmentID: 5, DoctorID: 7, DoctorUserID: 70, DoctorName: "Dr. Seven", PatientID: 1, PatientName: "Pat"},
	}
	return NewService(d.messages, d.notifications, appts, d.tx, policy, zerolog.Nop()), d
}

func TestSend_DoctorToPatient(t *testing.T) {
	svc, d := newTestService(t)

	m, err := svc.Send(context.Background(), doctorSeven, 5, "  Please fast before the test.  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.RecipientID != 1 || m.SenderID != 70 || m.Body != "Please fast before the test." || !m.Mine {
		t.Errorf("unexpected message: %+v", m)
	}
	if len(d.notifications.items) != 1 {
		t.Fatalf("expected a notification, got %d", len(d.notifications.items))
	}
	n := d.notifications.items[0]
	if n.UserID != 1 || n.Link != "/patient/appointments/5" || n.Type != TypeMessage {
		t.Errorf("unexpected notification: %+v", n)
	}
	if d.tx.commits != 1 {
		t.Errorf("expected one transaction, got %d", d.tx.commits)
	}
}

func TestSend_PatientToDoctor(t *testing.T) {
	svc, d := newTestService(t)

	m, err := svc.Send(context.Background(), patientOne, 5, "Thank you")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.RecipientID != 70 {
		t.Errorf("expected doctor user as recipient, got %d", m.RecipientID)
	}
	if d.notifications.items[0].Link != "/doctor/appointments/5" {
		t.Errorf("unexpected link %q", d.notifications.items[0].Link)
	}
}

func TestSend_OutsidersWriteNothing(t *testing.T) {
	for _, actor := range []auth.Actor{doctorNine, patientTwo, adminUser} {
		t.Run(actor.Name, func(t *testing.T) {
			svc, d := newTestService(t)
			_, err := svc.Send(context.Background(), actor, 5, "hello")
			if !errors.Is(err, auth.ErrForbidden) {
				t.Errorf("expected ErrForbidden, got %v", err)
			}
			if len(d.messages.items) != 0 || len(d.notifications.items) != 0 {
				t.Error("expected no rows written")
			}
		})
	}
}

func TestSend_Rejections(t *testing.T) {
	svc, d := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Send(ctx, patientOne, 5, " \n\t "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := svc.Send(ctx, patientOne, 5, strings.Repeat("a", MaxMessageLength+1)); !errors.Is(err, ErrMessageTooLong) {
		t.Errorf("expected ErrMessageTooLong, got %v", err)
	}
	if _, err := svc.Send(ctx, patientOne, 404, "hi"); !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("expected ErrAppointmentNotFound, got %v", err)
	}
	if len(d.messages.items) != 0 {
		t.Error("expected no messages")
	}
}

func TestSend_NotificationFailureFailsSend(t *testing.T) {
	svc, d := newTestService(t)
	d.notifications.createErr = errors.New("db down")

	if _, err := svc.Send(context.Background(), patientOne, 5, "hi"); err == nil {
		t.Fatal("expected error")
	}
	if d.tx.commits != 0 {
		t.Error("transaction must not commit")
	}
}

func TestThread(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	svc.Send(ctx, patientOne, 5, "first")
	svc.Send(ctx, doctorSeven, 5, "second")

	msgs, err := svc.Thread(ctx, patientOne, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Body != "first" || !msgs[0].Mine || msgs[1].Mine {
		t.Errorf("unexpected thread: %+v %+v", msgs[0], msgs[1])
	}

	if _, err := svc.Thread(ctx, doctorNine, 5); !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestNotifications(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	svc.Send(ctx, doctorSeven, 5, "one")
	svc.Send(ctx, doctorSeven, 5, "two")

	if n, _ := svc.UnreadCount(ctx, patientOne.UserID); n != 2 {
		t.Errorf("expected 2 unread, got %d", n)
	}
	items, _ := svc.ListNotifications(ctx, patientOne.UserID)
	if len(items) != 2 || items[0].Message != "two" {
		t.Errorf("expected newest first, got %+v", items)
	}
	if n, _ := svc.MarkAllRead(ctx, patientOne.UserID); n != 2 {
		t.Errorf("expected 2 marked, got %d", n)
	}
	if n, _ := svc.UnreadCount(ctx, patientOne.UserID); n != 0 {
		t.Errorf("expected 0 unread, got %d", n)
	}
}

func TestPreview(t *testing.T) {
	if got := preview("a  b\n c"); got != "a b c" {
		t.Errorf("preview collapsed whitespace wrong: %q", got)
	}
	long := strings.Repeat("é", previewLength+10)
	got := preview(long)
	if n := len([]rune(got)); n != previewLength {
		t.Errorf("expected %d runes, got %d", previewLength, n)
	}
}
