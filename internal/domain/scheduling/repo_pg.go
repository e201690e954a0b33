package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chela967/medicare/internal/platform/db"
)

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const apptCols = `a.id, a.patient_id, pu.name, pu.email, a.doctor_id, d.user_id, du.name,
	a.appointment_date, to_char(a.appointment_time, 'HH24:MI'), a.status, a.reason,
	a.consultation_fee, a.payment_status, a.consultation_notes, a.meeting_link, a.meeting_id,
	a.reminder_send_time, a.reminder_sent_at, a.created_at, a.updated_at`

const apptFrom = ` FROM appointments a
	JOIN users pu ON pu.id = a.patient_id
	JOIN doctors d ON d.id = a.doctor_id
	JOIN users du ON du.id = d.user_id`

func (r *appointmentRepoPG) scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	err := row.Scan(&a.ID, &a.PatientID, &a.PatientName, &a.PatientEmail, &a.DoctorID, &a.DoctorUserID, &a.DoctorName,
		&a.Date, &a.Time, &status, &a.Reason,
		&a.ConsultationFee, &a.PaymentStatus, &a.ConsultationNotes, &a.MeetingLink, &a.MeetingID,
		&a.ReminderSendTime, &a.ReminderSentAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Status = Status(status)
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (patient_id, doctor_id, appointment_date, appointment_time, status,
			reason, consultation_fee, payment_status)
		VALUES ($1, $2, $3, $4::text::time, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`,
		a.PatientID, a.DoctorID, a.Date, a.Time, string(a.Status), a.Reason, a.ConsultationFee, a.PaymentStatus,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrSlotTaken
	}
	return err
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id int64) (*Appointment, error) {
	return r.scanAppt(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+apptFrom+` WHERE a.id = $1`, id))
}

func (r *appointmentRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.DoctorID != 0 {
		where += fmt.Sprintf(` AND a.doctor_id = $%d`, idx)
		args = append(args, f.DoctorID)
		idx++
	}
	if f.PatientID != 0 {
		where += fmt.Sprintf(` AND a.patient_id = $%d`, idx)
		args = append(args, f.PatientID)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND a.status = $%d`, idx)
		args = append(args, string(f.Status))
		idx++
	}
	if f.Date != nil {
		where += fmt.Sprintf(` AND a.appointment_date = $%d`, idx)
		args = append(args, *f.Date)
		idx++
	}
	order := ` ORDER BY a.appointment_date DESC, a.appointment_time DESC`
	if f.Upcoming {
		where += ` AND a.appointment_date >= CURRENT_DATE AND a.status NOT IN ('completed', 'cancelled', 'no_show')`
		order = ` ORDER BY a.appointment_date, a.appointment_time`
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments a`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + apptCols + apptFrom + where + order + fmt.Sprintf(` LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)
	items, err := r.query(ctx, query, args...)
	return items, total, err
}

func (r *appointmentRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, ch StatusChange) (int64, error) {
	owner, ownerID := "doctor_id", ch.DoctorID
	if ch.DoctorID == 0 {
		owner, ownerID = "patient_id", ch.PatientID
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET status = $4, updated_at = NOW()
		WHERE id = $1 AND `+owner+` = $2 AND status = $3`,
		ch.ID, ownerID, string(ch.From), string(ch.To))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *appointmentRepoPG) SetMeeting(ctx context.Context, m MeetingUpdate) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments
		SET meeting_id = $3, meeting_link = $4, reminder_send_time = $5, reminder_sent_at = NULL, updated_at = NOW()
		WHERE id = $1 AND doctor_id = $2`,
		m.ID, m.DoctorID, m.MeetingID, m.Link, m.SendAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *appointmentRepoPG) SaveNotes(ctx context.Context, id, doctorID int64, from Status, notes string) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET consultation_notes = $4, status = 'completed', updated_at = NOW()
		WHERE id = $1 AND doctor_id = $2 AND status = $3`,
		id, doctorID, string(from), notes)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *appointmentRepoPG) HasConflict(ctx context.Context, doctorID int64, date time.Time, clock string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1 AND appointment_date = $2 AND appointment_time = $3::text::time
				AND status <> 'cancelled'
		)`, doctorID, date, clock).Scan(&exists)
	return exists, err
}

func (r *appointmentRepoPG) DueReminders(ctx context.Context, now time.Time, limit int) ([]*Appointment, error) {
	return r.query(ctx, `SELECT `+apptCols+apptFrom+`
		WHERE a.reminder_send_time <= $1 AND a.reminder_sent_at IS NULL
			AND a.meeting_link <> '' AND a.status NOT IN ('completed', 'cancelled', 'no_show')
		ORDER BY a.reminder_send_time
		LIMIT $2`, now, limit)
}

func (r *appointmentRepoPG) MarkReminderSent(ctx context.Context, id int64, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointments SET reminder_sent_at = $2 WHERE id = $1 AND reminder_sent_at IS NULL`, id, at)
	return err
}

func (r *appointmentRepoPG) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT status, COUNT(*) FROM appointments GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

func (r *appointmentRepoPG) ListRange(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	return r.query(ctx, `SELECT `+apptCols+apptFrom+`
		WHERE a.appointment_date BETWEEN $1 AND $2
		ORDER BY a.appointment_date, a.appointment_time`, from, to)
}

func (r *appointmentRepoPG) ListPatientsOfDoctor(ctx context.Context, doctorID int64) ([]*PatientSummary, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT u.id, u.name, u.email, u.phone, COUNT(a.id), MAX(a.appointment_date),
			(ARRAY_AGG(a.id ORDER BY a.appointment_date DESC, a.appointment_time DESC))[1]
		FROM appointments a JOIN users u ON u.id = a.patient_id
		WHERE a.doctor_id = $1
		GROUP BY u.id
		ORDER BY MAX(a.appointment_date) DESC`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*PatientSummary
	for rows.Next() {
		var p PatientSummary
		if err := rows.Scan(&p.PatientID, &p.Name, &p.Email, &p.Phone, &p.Visits, &p.LastVisit, &p.LastApptID); err != nil {
			return nil, err
		}
		items = append(items, &p)
	}
	return items, rows.Err()
}

type slotRepoPG struct{ pool *pgxpool.Pool }

func NewSlotRepoPG(pool *pgxpool.Pool) SlotRepository { return &slotRepoPG{pool: pool} }

func (r *slotRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const slotCols = `id, doctor_id, day_of_week, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), is_available, created_at`

func (r *slotRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Slot, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Slot
	for rows.Next() {
		var s Slot
		if err := rows.Scan(&s.ID, &s.DoctorID, &s.DayOfWeek, &s.StartTime, &s.EndTime, &s.IsAvailable, &s.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &s)
	}
	return items, rows.Err()
}

func (r *slotRepoPG) List(ctx context.Context, doctorID int64) ([]*Slot, error) {
	return r.query(ctx, `SELECT `+slotCols+` FROM doctor_schedules WHERE doctor_id = $1
		ORDER BY array_position(ARRAY['monday','tuesday','wednesday','thursday','friday','saturday','sunday']::varchar[], day_of_week),
			start_time`, doctorID)
}

func (r *slotRepoPG) ListForDay(ctx context.Context, doctorID int64, day string) ([]*Slot, error) {
	return r.query(ctx, `SELECT `+slotCols+` FROM doctor_schedules
		WHERE doctor_id = $1 AND day_of_week = $2 ORDER BY start_time`, doctorID, day)
}

func (r *slotRepoPG) Create(ctx context.Context, s *Slot) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor_schedules (doctor_id, day_of_week, start_time, end_time, is_available)
		VALUES ($1, $2, $3::text::time, $4::text::time, $5)
		RETURNING id, created_at`,
		s.DoctorID, s.DayOfWeek, s.StartTime, s.EndTime, s.IsAvailable,
	).Scan(&s.ID, &s.CreatedAt)
}

func (r *slotRepoPG) Delete(ctx context.Context, id, doctorID int64) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor_schedules WHERE id = $1 AND doctor_id = $2`, id, doctorID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
