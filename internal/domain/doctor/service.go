package doctor

import (
	"context"
	"errors"
	"mime/multipart"
	"strings"

	"github.com/rs/zerolog"

	"github.com/chela967/medicare/internal/platform/audit"
	"github.com/chela967/medicare/internal/platform/auth"
	"github.com/chela967/medicare/internal/platform/blobstore"
	"github.com/chela967/medicare/internal/platform/db"
	"github.com/chela967/medicare/internal/platform/notification"
	"github.com/chela967/medicare/internal/platform/validation"
)

const defaultRejectReason = "Your documents could not be verified."

type Service struct {
	doctors     Repository
	specialties SpecialtyRepository
	accounts    Accounts
	files       blobstore.Store
	tx          db.Transactor
	policy      auth.Policy
	audit       audit.Recorder
	notifier    *notification.Notifier
	baseURL     string
	logger      zerolog.Logger
}

func NewService(doctors Repository, specialties SpecialtyRepository, accounts Accounts, files blobstore.Store,
	tx db.Transactor, policy auth.Policy, rec audit.Recorder, notifier *notification.Notifier,
	baseURL string, logger zerolog.Logger) *Service {
	return &Service{
		doctors: doctors, specialties: specialties, accounts: accounts, files: files,
		tx: tx, policy: policy, audit: rec, notifier: notifier, baseURL: baseURL, logger: logger,
	}
}

// Register creates a pending doctor with their verification document. The
// uploaded file is removed again if the account cannot be created.
func (s *Service) Register(ctx context.Context, in RegisterInput, doc *multipart.FileHeader) (*Doctor, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if _, err := s.specialties.GetByID(ctx, in.SpecialtyID); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	key, err := blobstore.SaveUpload(ctx, s.files, doc, blobstore.DocumentRules)
	if err != nil {
		return nil, err
	}

	specialtyID := in.SpecialtyID
	d := &Doctor{
		Name:             in.Name,
		Email:            in.Email,
		Phone:            strings.TrimSpace(in.Phone),
		SpecialtyID:      &specialtyID,
		LicenseNumber:    strings.TrimSpace(in.LicenseNumber),
		Qualifications:   strings.TrimSpace(in.Qualifications),
		Bio:              strings.TrimSpace(in.Bio),
		ConsultationFee:  in.ConsultationFee,
		Available:        true,
		Status:           StatusPending,
		VerificationDocs: key,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		userID, err := s.accounts.CreateDoctorUser(ctx, d.Name, d.Email, d.Phone, hash)
		if err != nil {
			return err
		}
		d.UserID = userID
		return s.doctors.Create(ctx, d)
	})
	if err != nil {
		s.removeFile(ctx, key)
		return nil, err
	}

	s.logger.Info().Int64("doctor_id", d.ID).Msg("doctor registered, pending review")
	return d, nil
}

// Approve moves a pending doctor to approved. Doctors that are no longer
// pending are left untouched and ErrNotPending is returned.
func (s *Service) Approve(ctx context.Context, actor auth.Actor, id int64) error {
	if err := s.policy.Authorize(actor, auth.ActReviewDoctor, auth.Resource{}); err != nil {
		return err
	}

	var d *Doctor
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		d, err = s.doctors.LockPending(ctx, id)
		if err != nil {
			return err
		}
		if err := s.doctors.SetReview(ctx, Review{DoctorID: id, Status: StatusApproved, ReviewerID: actor.UserID}); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.Entry{
			ActorID:    actor.UserID,
			Action:     audit.ActionDoctorApproved,
			EntityType: "doctor",
			EntityID:   id,
			Details:    map[string]interface{}{"doctor": d.Name},
		})
	})
	if err != nil {
		return err
	}

	s.notifier.Notify(ctx, notification.TplDoctorApproved, d.Email, map[string]string{
		"name":      d.Name,
		"login_url": s.baseURL + "/login",
	})
	return nil
}

// Reject moves a pending doctor to rejected and discards the verification
// document once the change is committed.
func (s *Service) Reject(ctx context.Context, actor auth.Actor, id int64, reason string) error {
	if err := s.policy.Authorize(actor, auth.ActReviewDoctor, auth.Resource{}); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultRejectReason
	}

	var d *Doctor
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		d, err = s.doctors.LockPending(ctx, id)
		if err != nil {
			return err
		}
		err = s.doctors.SetReview(ctx, Review{
			DoctorID:   id,
			Status:     StatusRejected,
			ReviewerID: actor.UserID,
			Reason:     reason,
			ClearDocs:  true,
		})
		if err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.Entry{
			ActorID:    actor.UserID,
			Action:     audit.ActionDoctorRejected,
			EntityType: "doctor",
			EntityID:   id,
			Details:    map[string]interface{}{"doctor": d.Name, "reason": reason},
		})
	})
	if err != nil {
		return err
	}

	s.notifier.Notify(ctx, notification.TplDoctorRejected, d.Email, map[string]string{
		"name":   d.Name,
		"reason": reason,
	})
	s.removeFile(ctx, d.VerificationDocs)
	return nil
}

func (s *Service) removeFile(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.files.Delete(context.WithoutCancel(ctx), key); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		s.logger.Warn().Err(err).Str("key", key).Msg("remove verification document")
	}
}

func (s *Service) Get(ctx context.Context, id int64) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) GetByUserID(ctx context.Context, userID int64) (*Doctor, error) {
	return s.doctors.GetByUserID(ctx, userID)
}

// GetBookable returns the doctor only when patients may book them.
func (s *Service) GetBookable(ctx context.Context, id int64) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.Bookable() {
		return nil, ErrNotBookable
	}
	return d, nil
}

func (s *Service) ListPending(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, StatusPending, limit, offset)
}

func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]*Doctor, int, error) {
	if status != "" && !ValidStatuses[status] {
		status = ""
	}
	return s.doctors.List(ctx, status, limit, offset)
}

func (s *Service) ListBookable(ctx context.Context, f DirectoryFilter) ([]*Doctor, error) {
	return s.doctors.ListBookable(ctx, f)
}

func (s *Service) CountByStatus(ctx context.Context) (map[string]int, error) {
	return s.doctors.CountByStatus(ctx)
}

// VerificationDocument opens the pending doctor's uploaded document for an
// admin reviewer.
func (s *Service) VerificationDocument(ctx context.Context, actor auth.Actor, id int64) (*Doctor, error) {
	if err := s.policy.Authorize(actor, auth.ActReviewDoctor, auth.Resource{}); err != nil {
		return nil, err
	}
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.VerificationDocs == "" {
		return nil, blobstore.ErrNotFound
	}
	return d, nil
}

func (s *Service) UpdateProfile(ctx context.Context, actor auth.Actor, in ProfileInput) error {
	if err := s.policy.Authorize(actor, auth.ActManageSchedule, auth.Resource{DoctorID: actor.DoctorID}); err != nil {
		return err
	}
	if err := validation.Struct(in); err != nil {
		return err
	}
	return s.doctors.UpdateProfile(ctx, &Doctor{
		ID:              actor.DoctorID,
		Qualifications:  strings.TrimSpace(in.Qualifications),
		Bio:             strings.TrimSpace(in.Bio),
		ConsultationFee: in.ConsultationFee,
		Available:       in.Available,
	})
}

// -- Specialties --

func (s *Service) ListSpecialties(ctx context.Context) ([]*Specialty, error) {
	return s.specialties.List(ctx)
}

func (s *Service) CreateSpecialty(ctx context.Context, actor auth.Actor, in SpecialtyInput) (*Specialty, error) {
	if err := s.policy.Authorize(actor, auth.ActManageCatalog, auth.Resource{}); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	sp := &Specialty{Name: in.Name, Description: strings.TrimSpace(in.Description)}
	if err := s.specialties.Create(ctx, sp); err != nil {
		return nil, err
	}
	return sp, nil
}

func (s *Service) DeleteSpecialty(ctx context.Context, actor auth.Actor, id int64) error {
	if err := s.policy.Authorize(actor, auth.ActManageCatalog, auth.Resource{}); err != nil {
		return err
	}
	return s.specialties.Delete(ctx, id)
}
