package main

import (
	"context"
	"errors"

	"github.com/chela967/medicare/internal/domain/doctor"
	"github.com/chela967/medicare/internal/domain/identity"
	"github.com/chela967/medicare/internal/domain/messaging"
	"github.com/chela967/medicare/internal/domain/pharmacy"
	"github.com/chela967/medicare/internal/domain/scheduling"
	"github.com/chela967/medicare/internal/platform/auth"
)

// The domains never import each other. These adapters connect them.

// doctorGate lets identity check a doctor's approval at login.
type doctorGate struct {
	doctors doctor.Repository
}

func (g doctorGate) LoginStatus(ctx context.Context, userID int64) (int64, string, error) {
	d, err := g.doctors.GetByUserID(ctx, userID)
	if errors.Is(err, doctor.ErrNotFound) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", err
	}
	return d.ID, d.Status, nil
}

// doctorAccounts creates the user row behind a doctor registration.
type doctorAccounts struct {
	users identity.UserRepository
}

func (a doctorAccounts) CreateDoctorUser(ctx context.Context, name, email, phone, passwordHash string) (int64, error) {
	u := &identity.User{
		Name:         name,
		Email:        email,
		Phone:        phone,
		PasswordHash: passwordHash,
		Role:         auth.RoleDoctor,
		Status:       identity.StatusActive,
	}
	if err := a.users.Create(ctx, u); err != nil {
		if errors.Is(err, identity.ErrEmailTaken) {
			return 0, doctor.ErrEmailTaken
		}
		return 0, err
	}
	return u.ID, nil
}

type bookingDoctors struct {
	doctors *doctor.Service
}

func (b bookingDoctors) BookingInfo(ctx context.Context, id int64) (*scheduling.BookingDoctor, error) {
	d, err := b.doctors.GetBookable(ctx, id)
	if errors.Is(err, doctor.ErrNotFound) || errors.Is(err, doctor.ErrNotBookable) {
		return nil, scheduling.ErrDoctorUnavailable
	}
	if err != nil {
		return nil, err
	}
	return &scheduling.BookingDoctor{ID: d.ID, Name: d.Name, Fee: d.ConsultationFee}, nil
}

// chatAppointments resolves chat participants.
type chatAppointments struct {
	appointments *scheduling.Service
}

func (c chatAppointments) Parties(ctx context.Context, id int64) (*messaging.Parties, error) {
	p, err := c.appointments.Parties(ctx, id)
	if errors.Is(err, scheduling.ErrAppointmentNotFound) {
		return nil, messaging.ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &messaging.Parties{
		AppointmentID: p.AppointmentID,
		DoctorID:      p.DoctorID,
		DoctorUserID:  p.DoctorUserID,
		DoctorName:    p.DoctorName,
		PatientID:     p.PatientID,
		PatientName:   p.PatientName,
	}, nil
}

// prescriptionAppointments ties prescriptions to their appointment.
type prescriptionAppointments struct {
	appointments *scheduling.Service
}

func (p prescriptionAppointments) AppointmentRef(ctx context.Context, id int64) (*pharmacy.AppointmentRef, error) {
	parties, err := p.appointments.Parties(ctx, id)
	if errors.Is(err, scheduling.ErrAppointmentNotFound) {
		return nil, pharmacy.ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pharmacy.AppointmentRef{ID: parties.AppointmentID, DoctorID: parties.DoctorID, PatientID: parties.PatientID}, nil
}
