package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chela967/medicare/internal/platform/audit"
	"github.com/chela967/medicare/internal/platform/auth"
	"github.com/chela967/medicare/internal/platform/db"
	"github.com/chela967/medicare/internal/platform/notification"
	"github.com/chela967/medicare/internal/platform/validation"
)

const (
	doctorPending  = "pending"
	doctorApproved = "approved"
	doctorRejected = "rejected"
)

type Service struct {
	users    UserRepository
	patients PatientRepository
	doctors  DoctorGate
	tx       db.Transactor
	policy   auth.Policy
	audit    audit.Recorder
	notifier *notification.Notifier
	baseURL  string
	logger   zerolog.Logger
}

func NewService(users UserRepository, patients PatientRepository, doctors DoctorGate, tx db.Transactor,
	policy auth.Policy, rec audit.Recorder, notifier *notification.Notifier, baseURL string, logger zerolog.Logger) *Service {
	return &Service{
		users: users, patients: patients, doctors: doctors, tx: tx,
		policy: policy, audit: rec, notifier: notifier, baseURL: baseURL, logger: logger,
	}
}

// RegisterPatient creates an active patient account and its profile.
func (s *Service) RegisterPatient(ctx context.Context, in RegisterInput) (*User, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u := &User{
		Name:         in.Name,
		Email:        in.Email,
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: hash,
		Role:         auth.RolePatient,
		Status:       StatusActive,
	}
	profile := &PatientProfile{Gender: in.Gender}
	if in.DateOfBirth != "" {
		dob, _ := time.Parse("2006-01-02", in.DateOfBirth)
		profile.DateOfBirth = &dob
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, u); err != nil {
			return err
		}
		profile.UserID = u.ID
		return s.patients.Create(ctx, profile)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, notification.TplWelcome, u.Email, map[string]string{
		"name":      u.Name,
		"login_url": s.baseURL + "/login",
	})
	return u, nil
}

// Authenticate checks credentials and account state. Unknown email and
// wrong password produce the same error.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, err := auth.CheckPassword(u.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if u.Status != StatusActive {
		return nil, ErrAccountInactive
	}

	res := &LoginResult{User: u}
	if u.Role == auth.RoleDoctor {
		doctorID, status, err := s.doctors.LoginStatus(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("load doctor profile: %w", err)
		}
		switch status {
		case doctorApproved:
			res.DoctorID = doctorID
		case doctorRejected:
			return nil, ErrDoctorRejected
		default:
			return nil, ErrDoctorPending
		}
	}
	return res, nil
}

func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context, actor auth.Actor, f UserFilter, limit, offset int) ([]*User, int, error) {
	if err := s.policy.Authorize(actor, auth.ActManageUsers, auth.Resource{}); err != nil {
		return nil, 0, err
	}
	return s.users.List(ctx, f, limit, offset)
}

func (s *Service) CountByRole(ctx context.Context) (map[string]int, error) {
	return s.users.CountByRole(ctx)
}

// ChangeRole sets a user's role. Admins cannot change their own.
func (s *Service) ChangeRole(ctx context.Context, actor auth.Actor, id int64, role string) error {
	if err := s.policy.Authorize(actor, auth.ActManageUsers, auth.Resource{}); err != nil {
		return err
	}
	if !auth.ValidRoles[role] {
		return ErrInvalidRole
	}
	if id == actor.UserID {
		return ErrSelfChange
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		u, err := s.users.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.users.UpdateRole(ctx, id, role); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.Entry{
			ActorID:    actor.UserID,
			Action:     audit.ActionUserRoleChanged,
			EntityType: "user",
			EntityID:   id,
			Details:    map[string]interface{}{"from": u.Role, "to": role},
		})
	})
}

// ChangeStatus activates, deactivates or suspends a user. Users are never
// deleted.
func (s *Service) ChangeStatus(ctx context.Context, actor auth.Actor, id int64, status string) error {
	if err := s.policy.Authorize(actor, auth.ActManageUsers, auth.Resource{}); err != nil {
		return err
	}
	if !ValidStatuses[status] {
		return ErrInvalidStatus
	}
	if id == actor.UserID {
		return ErrSelfChange
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		u, err := s.users.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.users.UpdateStatus(ctx, id, status); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.Entry{
			ActorID:    actor.UserID,
			Action:     audit.ActionUserStatusChanged,
			EntityType: "user",
			EntityID:   id,
			Details:    map[string]interface{}{"from": u.Status, "to": status},
		})
	})
}

// GetProfile returns the user and the patient profile, which is empty for
// patients who never filled it in.
func (s *Service) GetProfile(ctx context.Context, userID int64) (*User, *PatientProfile, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.patients.GetByUserID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return u, &PatientProfile{UserID: userID}, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return u, p, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID int64, in ProfileInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return err
	}
	p := &PatientProfile{
		UserID:     userID,
		Gender:     in.Gender,
		BloodGroup: in.BloodGroup,
		Address:    strings.TrimSpace(in.Address),
	}
	if in.DateOfBirth != "" {
		dob, _ := time.Parse("2006-01-02", in.DateOfBirth)
		p.DateOfBirth = &dob
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.users.UpdateContact(ctx, userID, in.Name, strings.TrimSpace(in.Phone)); err != nil {
			return err
		}
		return s.patients.Update(ctx, p)
	})
}

// CreateAdmin is used by the CLI to bootstrap the first administrator.
func (s *Service) CreateAdmin(ctx context.Context, name, email, password string) (*User, error) {
	email = normalizeEmail(email)
	if strings.TrimSpace(name) == "" || email == "" {
		return nil, fmt.Errorf("name and email are required")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &User{
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: hash,
		Role:         auth.RoleAdmin,
		Status:       StatusActive,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("user_id", u.ID).Str("email", u.Email).Msg("admin user created")
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
