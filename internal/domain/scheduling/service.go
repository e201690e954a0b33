package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chela967/medicare/internal/platform/auth"
	"github.com/chela967/medicare/internal/platform/notification"
	"github.com/chela967/medicare/internal/platform/validation"
)

// Config holds the consultation settings.
type Config struct {
	// MeetingURLTemplate has one %s for the meeting id.
	MeetingURLTemplate string
	// ReminderLead is how long before the start the reminder goes out.
	ReminderLead time.Duration
	Location     *time.Location
}

type Service struct {
	appointments AppointmentRepository
	slots        SlotRepository
	doctors      Doctors
	policy       auth.Policy
	notifier     *notification.Notifier
	cfg          Config
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(appts AppointmentRepository, slots SlotRepository, doctors Doctors, policy auth.Policy,
	notifier *notification.Notifier, cfg Config, logger zerolog.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MeetingURLTemplate == "" {
		cfg.MeetingURLTemplate = "https://meet.jit.si/%s"
	}
	return &Service{
		appointments: appts, slots: slots, doctors: doctors, policy: policy,
		notifier: notifier, cfg: cfg, logger: logger, now: time.Now,
	}
}

func owner(a *Appointment) auth.Resource {
	return auth.Resource{DoctorID: a.DoctorID, PatientID: a.PatientID}
}

// load fetches the appointment and checks action against its owners.
func (s *Service) load(ctx context.Context, actor auth.Actor, action auth.Action, id int64) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, action, owner(a)); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, actor auth.Actor, id int64) (*Appointment, error) {
	return s.load(ctx, actor, auth.ActViewAppointment, id)
}

// UpdateStatus applies a doctor's status change. The update is guarded by
// owner and current status, so a lost race or a foreign appointment
// changes nothing and reports ErrAppointmentNotFound.
func (s *Service) UpdateStatus(ctx context.Context, actor auth.Actor, id int64, to Status) error {
	if !DoctorSettable[to] {
		return ErrInvalidStatus
	}
	a, err := s.load(ctx, actor, auth.ActAppointmentStatus, id)
	if err != nil {
		return err
	}
	if !CanTransition(a.Status, to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, a.Status, to)
	}

	n, err := s.appointments.UpdateStatus(ctx, StatusChange{ID: id, DoctorID: actor.DoctorID, From: a.Status, To: to})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAppointmentNotFound
	}

	s.logger.Info().Int64("appointment_id", id).Str("from", string(a.Status)).Str("to", string(to)).Msg("appointment status changed")
	s.notifier.Notify(ctx, notification.TplAppointmentStatus, a.PatientEmail, map[string]string{
		"patient": a.PatientName,
		"doctor":  a.DoctorName,
		"date":    a.Date.Format("Jan 2, 2006"),
		"time":    a.Time,
		"status":  strings.ReplaceAll(string(to), "_", " "),
	})
	return nil
}

// Cancel lets a patient cancel their own appointment.
func (s *Service) Cancel(ctx context.Context, actor auth.Actor, id int64) error {
	a, err := s.load(ctx, actor, auth.ActCancelAppointment, id)
	if err != nil {
		return err
	}
	if !CanTransition(a.Status, StatusCancelled) {
		return ErrAppointmentClosed
	}
	n, err := s.appointments.UpdateStatus(ctx, StatusChange{ID: id, PatientID: actor.UserID, From: a.Status, To: StatusCancelled})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

// GenerateMeetingLink assigns a fresh meeting and schedules the reminder
// ReminderLead before the start, or immediately when that is already past.
func (s *Service) GenerateMeetingLink(ctx context.Context, actor auth.Actor, id int64) (*Appointment, error) {
	a, err := s.load(ctx, actor, auth.ActMeetingLink, id)
	if err != nil {
		return nil, err
	}
	if a.Status.Terminal() {
		return nil, ErrAppointmentClosed
	}

	meetingID := "medicare-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	link := fmt.Sprintf(s.cfg.MeetingURLTemplate, meetingID)

	now := s.now()
	sendAt := a.Start(s.cfg.Location).Add(-s.cfg.ReminderLead)
	if sendAt.Before(now) {
		sendAt = now
	}

	n, err := s.appointments.SetMeeting(ctx, MeetingUpdate{
		ID: id, DoctorID: actor.DoctorID, MeetingID: meetingID, Link: link, SendAt: sendAt,
	})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrAppointmentNotFound
	}
	a.MeetingID, a.MeetingLink, a.ReminderSendTime, a.ReminderSentAt = meetingID, link, &sendAt, nil
	return a, nil
}

// SaveNotes records consultation notes and completes the appointment.
// Empty notes leave the appointment as it was.
func (s *Service) SaveNotes(ctx context.Context, actor auth.Actor, id int64, notes string) error {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return ErrEmptyNotes
	}
	a, err := s.load(ctx, actor, auth.ActConsultationNotes, id)
	if err != nil {
		return err
	}
	if a.Status != StatusCompleted {
		if a.Status.Terminal() {
			return ErrAppointmentClosed
		}
		if !CanTransition(a.Status, StatusCompleted) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, a.Status, StatusCompleted)
		}
	}

	n, err := s.appointments.SaveNotes(ctx, id, actor.DoctorID, a.Status, notes)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

// -- Weekly schedule --

func (s *Service) ListSlots(ctx context.Context, doctorID int64) ([]*Slot, error) {
	return s.slots.List(ctx, doctorID)
}

// AddSlot adds an availability window for the signed-in doctor.
// Overlapping windows are allowed.
func (s *Service) AddSlot(ctx context.Context, actor auth.Actor, in SlotInput) (*Slot, error) {
	if err := s.policy.Authorize(actor, auth.ActManageSchedule, auth.Resource{DoctorID: actor.DoctorID}); err != nil {
		return nil, err
	}
	in.DayOfWeek = strings.ToLower(strings.TrimSpace(in.DayOfWeek))
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	start, _ := time.Parse("15:04", in.StartTime)
	end, _ := time.Parse("15:04", in.EndTime)
	if !start.Before(end) {
		return nil, ErrInvalidTimeRange
	}

	sl := &Slot{
		DoctorID:    actor.DoctorID,
		DayOfWeek:   in.DayOfWeek,
		StartTime:   start.Format("15:04"),
		EndTime:     end.Format("15:04"),
		IsAvailable: in.IsAvailable,
	}
	if err := s.slots.Create(ctx, sl); err != nil {
		return nil, err
	}
	return sl, nil
}

func (s *Service) DeleteSlot(ctx context.Context, actor auth.Actor, id int64) error {
	if err := s.policy.Authorize(actor, auth.ActManageSchedule, auth.Resource{DoctorID: actor.DoctorID}); err != nil {
		return err
	}
	n, err := s.slots.Delete(ctx, id, actor.DoctorID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSlotNotFound
	}
	return nil
}

// -- Booking --

// Book creates a pending appointment for the signed-in patient.
func (s *Service) Book(ctx context.Context, actor auth.Actor, in BookInput) (*Appointment, error) {
	if err := s.policy.Authorize(actor, auth.ActBookAppointment, auth.Resource{PatientID: actor.UserID}); err != nil {
		return nil, err
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	doc, err := s.doctors.BookingInfo(ctx, in.DoctorID)
	if err != nil {
		return nil, err
	}

	loc := s.cfg.Location
	date, _ := time.ParseInLocation("2006-01-02", in.Date, loc)
	start, _ := time.ParseInLocation("2006-01-02 15:04", in.Date+" "+in.Time, loc)
	if start.Before(s.now()) {
		return nil, ErrPastDate
	}

	day := strings.ToLower(date.Weekday().String())
	slots, err := s.slots.ListForDay(ctx, doc.ID, day)
	if err != nil {
		return nil, err
	}
	if len(slots) > 0 && !anyCovers(slots, in.Time) {
		return nil, ErrOutsideSchedule
	}

	taken, err := s.appointments.HasConflict(ctx, doc.ID, date, in.Time)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrSlotTaken
	}

	a := &Appointment{
		PatientID:       actor.UserID,
		PatientName:     actor.Name,
		DoctorID:        doc.ID,
		DoctorName:      doc.Name,
		Date:            date,
		Time:            in.Time,
		Status:          StatusPending,
		Reason:          strings.TrimSpace(in.Reason),
		ConsultationFee: doc.Fee,
		PaymentStatus:   PaymentPending,
	}
	if err := s.appointments.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func anyCovers(slots []*Slot, clock string) bool {
	for _, sl := range slots {
		if sl.Covers(clock) {
			return true
		}
	}
	return false
}

// -- Listing --

func (s *Service) ListForDoctor(ctx context.Context, doctorID int64, status Status, limit, offset int) ([]*Appointment, int, error) {
	if status != "" && !status.Valid() {
		status = ""
	}
	return s.appointments.List(ctx, Filter{DoctorID: doctorID, Status: status}, limit, offset)
}

func (s *Service) Today(ctx context.Context, doctorID int64) ([]*Appointment, error) {
	now := s.now().In(s.cfg.Location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	items, _, err := s.appointments.List(ctx, Filter{DoctorID: doctorID, Date: &today}, 100, 0)
	return items, err
}

func (s *Service) Upcoming(ctx context.Context, f Filter, limit int) ([]*Appointment, error) {
	f.Upcoming = true
	items, _, err := s.appointments.List(ctx, f, limit, 0)
	return items, err
}

func (s *Service) ListForPatient(ctx context.Context, patientID int64, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.List(ctx, Filter{PatientID: patientID}, limit, offset)
}

func (s *Service) ListAll(ctx context.Context, status Status, limit, offset int) ([]*Appointment, int, error) {
	if status != "" && !status.Valid() {
		status = ""
	}
	return s.appointments.List(ctx, Filter{Status: status}, limit, offset)
}

func (s *Service) ListPatients(ctx context.Context, doctorID int64) ([]*PatientSummary, error) {
	return s.appointments.ListPatientsOfDoctor(ctx, doctorID)
}

func (s *Service) CountByStatus(ctx context.Context) (map[string]int, error) {
	return s.appointments.CountByStatus(ctx)
}

func (s *Service) ListRange(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	return s.appointments.ListRange(ctx, from, to)
}

// Parties resolves both participants of an appointment.
func (s *Service) Parties(ctx context.Context, id int64) (*Parties, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Parties{
		AppointmentID: a.ID,
		DoctorID:      a.DoctorID,
		DoctorUserID:  a.DoctorUserID,
		DoctorName:    a.DoctorName,
		PatientID:     a.PatientID,
		PatientName:   a.PatientName,
		Status:        a.Status,
	}, nil
}

// IsUserError reports whether err should be shown to the user as a flash
// rather than treated as a server failure.
func IsUserError(err error) bool {
	for _, target := range []error{
		ErrAppointmentNotFound, ErrInvalidStatus, ErrInvalidTransition, ErrAppointmentClosed,
		ErrEmptyNotes, ErrInvalidTimeRange, ErrSlotNotFound, ErrPastDate, ErrOutsideSchedule,
		ErrSlotTaken, ErrDoctorUnavailable, auth.ErrForbidden,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
