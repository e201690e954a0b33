package scheduling

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/chela967/medicare/internal/platform/locker"
	"github.com/chela967/medicare/internal/platform/notification"
)

const (
	reminderLockKey = "reminders:leader"
	reminderBatch   = 100
)

// ReminderDispatcher mails consultation reminders whose send time has
// passed. Only the instance holding the leader lock runs a batch.
type ReminderDispatcher struct {
	appointments AppointmentRepository
	notifier     *notification.Notifier
	locker       locker.Locker
	spec         string
	lockTTL      time.Duration
	logger       zerolog.Logger
	now          func() time.Time

	cron   *cron.Cron
	cancel context.CancelFunc
}

func NewReminderDispatcher(appts AppointmentRepository, notifier *notification.Notifier, lk locker.Locker,
	spec string, logger zerolog.Logger) *ReminderDispatcher {
	if spec == "" {
		spec = "@every 1m"
	}
	return &ReminderDispatcher{
		appointments: appts,
		notifier:     notifier,
		locker:       lk,
		spec:         spec,
		lockTTL:      2 * time.Minute,
		logger:       logger,
		now:          time.Now,
	}
}

// Start schedules the dispatcher. It returns an error for a bad cron spec.
func (d *ReminderDispatcher) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New()
	if _, err := c.AddFunc(d.spec, func() { d.tick(runCtx) }); err != nil {
		cancel()
		return err
	}
	d.cron, d.cancel = c, cancel
	c.Start()
	d.logger.Info().Str("spec", d.spec).Msg("reminder dispatcher started")
	return nil
}

// Stop waits for a running batch to finish.
func (d *ReminderDispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.cron != nil {
		<-d.cron.Stop().Done()
	}
}

func (d *ReminderDispatcher) tick(ctx context.Context) {
	token, ok, err := d.locker.TryLock(ctx, reminderLockKey, d.lockTTL)
	if err != nil {
		d.logger.Warn().Err(err).Msg("reminder leader lock failed")
		return
	}
	if !ok {
		d.logger.Debug().Msg("reminder leader lock held elsewhere")
		return
	}
	defer func() {
		if err := d.locker.Unlock(context.WithoutCancel(ctx), reminderLockKey, token); err != nil {
			d.logger.Warn().Err(err).Msg("release reminder lock")
		}
	}()

	if _, err := d.RunOnce(ctx); err != nil {
		d.logger.Error().Err(err).Msg("reminder batch failed")
	}
}

// RunOnce sends every due reminder and returns how many were processed.
func (d *ReminderDispatcher) RunOnce(ctx context.Context) (int, error) {
	now := d.now()
	due, err := d.appointments.DueReminders(ctx, now, reminderBatch)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, a := range due {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		d.notifier.Notify(ctx, notification.TplConsultationReminder, a.PatientEmail, map[string]string{
			"patient":      a.PatientName,
			"doctor":       a.DoctorName,
			"date":         a.Date.Format("Jan 2, 2006"),
			"time":         a.Time,
			"meeting_link": a.MeetingLink,
		})
		if err := d.appointments.MarkReminderSent(ctx, a.ID, now); err != nil {
			return sent, err
		}
		sent++
	}
	if sent > 0 {
		d.logger.Info().Int("count", sent).Msg("consultation reminders sent")
	}
	return sent, nil
}
