package main

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/chela967/medicare/internal/domain/doctor"
	"github.com/chela967/medicare/internal/domain/identity"
	"github.com/chela967/medicare/internal/domain/messaging"
	"github.com/chela967/medicare/internal/domain/pharmacy"
	"github.com/chela967/medicare/internal/domain/scheduling"
	"github.com/chela967/medicare/internal/platform/auth"
)

// Only the methods the adapters call are implemented; the embedded
// interfaces panic on anything else.

type stubDoctorRepo struct {
	doctor.Repository
	byID map[int64]*doctor.Doctor
}

func (r *stubDoctorRepo) GetByID(_ context.Context, id int64) (*doctor.Doctor, error) {
	if d, ok := r.byID[id]; ok {
		return d, nil
	}
	return nil, doctor.ErrNotFound
}

func (r *stubDoctorRepo) GetByUserID(_ context.Context, userID int64) (*doctor.Doctor, error) {
	for _, d := range r.byID {
		if d.UserID == userID {
			return d, nil
		}
	}
	return nil, doctor.ErrNotFound
}

type stubUserRepo struct {
	identity.UserRepository
	created []*identity.User
	err     error
}

func (r *stubUserRepo) Create(_ context.Context, u *identity.User) error {
	if r.err != nil {
		return r.err
	}
	u.ID = int64(len(r.created) + 50)
	r.created = append(r.created, u)
	return nil
}

type stubAppointmentRepo struct {
	scheduling.AppointmentRepository
	byID map[int64]*scheduling.Appointment
}

func (r *stubAppointmentRepo) GetByID(_ context.Context, id int64) (*scheduling.Appointment, error) {
	if a, ok := r.byID[id]; ok {
		return a, nil
	}
	return nil, scheduling.ErrAppointmentNotFound
}

func doctorsFixture() *stubDoctorRepo {
	return &stubDoctorRepo{byID: map[int64]*doctor.Doctor{
		7: {ID: 7, UserID: 70, Name: "Dr. Achieng", Status: doctor.StatusApproved, Available: true, ConsultationFee: 1500},
		8: {ID: 8, UserID: 80, Name: "Dr. Otieno", Status: doctor.StatusPending},
		9: {ID: 9, UserID: 90, Name: "Dr. Wanjiru", Status: doctor.StatusApproved, Available: false},
	}}
}

func TestDoctorGate(t *testing.T) {
	gate := doctorGate{doctors: doctorsFixture()}
	ctx := context.Background()

	tests := []struct {
		name       string
		userID     int64
		wantID     int64
		wantStatus string
	}{
		{"approved", 70, 7, doctor.StatusApproved},
		{"pending", 80, 8, doctor.StatusPending},
		{"no profile", 12, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, status, err := gate.LoginStatus(ctx, tt.userID)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id != tt.wantID || status != tt.wantStatus {
				t.Errorf("got (%d, %q), want (%d, %q)", id, status, tt.wantID, tt.wantStatus)
			}
		})
	}
}

func TestDoctorAccounts(t *testing.T) {
	users := &stubUserRepo{}
	accounts := doctorAccounts{users: users}

	id, err := accounts.CreateDoctorUser(context.Background(), "Dr. Kamau", "kamau@example.com", "0712345678", "hash")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 50 || len(users.created) != 1 {
		t.Fatalf("expected one user with id 50, got id %d and %d users", id, len(users.created))
	}
	u := users.created[0]
	if u.Role != auth.RoleDoctor || u.Status != identity.StatusActive || u.PasswordHash != "hash" {
		t.Errorf("unexpected user %+v", u)
	}

	users.err = identity.ErrEmailTaken
	if _, err := accounts.CreateDoctorUser(context.Background(), "x", "kamau@example.com", "", "hash"); !errors.Is(err, doctor.ErrEmailTaken) {
		t.Errorf("expected doctor.ErrEmailTaken, got %v", err)
	}
}

func TestBookingDoctors(t *testing.T) {
	svc := doctor.NewService(doctorsFixture(), nil, nil, nil, nil, nil, nil, nil, "", zerolog.Nop())
	b := bookingDoctors{doctors: svc}
	ctx := context.Background()

	got, err := b.BookingInfo(ctx, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != 7 || got.Name != "Dr. Achieng" || got.Fee != 1500 {
		t.Errorf("unexpected booking info %+v", got)
	}

	for _, id := range []int64{8, 9, 404} {
		if _, err := b.BookingInfo(ctx, id); !errors.Is(err, scheduling.ErrDoctorUnavailable) {
			t.Errorf("doctor %d: expected ErrDoctorUnavailable, got %v", id, err)
		}
	}
}

func TestAppointmentAdapters(t *testing.T) {
	repo := &stubAppointmentRepo{byID: map[int64]*scheduling.Appointment{
		3: {ID: 3, DoctorID: 7, DoctorUserID: 70, DoctorName: "Dr. Achieng", PatientID: 21, PatientName: "Jane", Status: scheduling.StatusScheduled},
	}}
	svc := scheduling.NewService(repo, nil, nil, nil, nil, scheduling.Config{}, zerolog.Nop())
	ctx := context.Background()

	chat := chatAppointments{appointments: svc}
	p, err := chat.Parties(ctx, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.DoctorUserID != 70 || p.PatientID != 21 || p.PatientName != "Jane" {
		t.Errorf("unexpected parties %+v", p)
	}
	if _, err := chat.Parties(ctx, 4); !errors.Is(err, messaging.ErrAppointmentNotFound) {
		t.Errorf("expected messaging.ErrAppointmentNotFound, got %v", err)
	}

	rx := prescriptionAppointments{appointments: svc}
	ref, err := rx.AppointmentRef(ctx, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.ID != 3 || ref.DoctorID != 7 || ref.PatientID != 21 {
		t.Errorf("unexpected ref %+v", ref)
	}
	if _, err := rx.AppointmentRef(ctx, 4); !errors.Is(err, pharmacy.ErrAppointmentNotFound) {
		t.Errorf("expected pharmacy.ErrAppointmentNotFound, got %v", err)
	}
}
