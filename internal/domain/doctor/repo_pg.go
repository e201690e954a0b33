package doctor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chela967/medicare/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const doctorCols = `d.id, d.user_id, u.name, u.email, u.phone, d.specialty_id, COALESCE(s.name, ''),
	d.license_number, d.qualifications, d.bio, d.consultation_fee, d.available, d.status,
	d.approved_by, d.approved_at, d.rejection_reason, d.verification_docs, d.created_at, d.updated_at`

const doctorFrom = ` FROM doctors d
	JOIN users u ON u.id = d.user_id
	LEFT JOIN specialties s ON s.id = d.specialty_id`

func (r *repoPG) scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.UserID, &d.Name, &d.Email, &d.Phone, &d.SpecialtyID, &d.SpecialtyName,
		&d.LicenseNumber, &d.Qualifications, &d.Bio, &d.ConsultationFee, &d.Available, &d.Status,
		&d.ApprovedBy, &d.ApprovedAt, &d.RejectionReason, &d.VerificationDocs, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repoPG) Create(ctx context.Context, d *Doctor) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctors (user_id, specialty_id, license_number, qualifications, bio,
			consultation_fee, available, status, verification_docs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		d.UserID, d.SpecialtyID, d.LicenseNumber, d.Qualifications, d.Bio,
		d.ConsultationFee, d.Available, d.Status, d.VerificationDocs,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Doctor, error) {
	return r.scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+doctorFrom+` WHERE d.id = $1`, id))
}

func (r *repoPG) GetByUserID(ctx context.Context, userID int64) (*Doctor, error) {
	return r.scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+doctorFrom+` WHERE d.user_id = $1`, userID))
}

func (r *repoPG) List(ctx context.Context, status string, limit, offset int) ([]*Doctor, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	if status != "" {
		where += fmt.Sprintf(` AND d.status = $%d`, idx)
		args = append(args, status)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctors d`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + doctorCols + doctorFrom + where +
		fmt.Sprintf(` ORDER BY d.created_at ASC, d.id ASC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	items, err := r.query(ctx, query, args...)
	return items, total, err
}

func (r *repoPG) ListBookable(ctx context.Context, f DirectoryFilter) ([]*Doctor, error) {
	where := ` WHERE d.status = 'approved' AND d.available AND u.status = 'active'`
	var args []interface{}
	idx := 1
	if f.SpecialtyID != 0 {
		where += fmt.Sprintf(` AND d.specialty_id = $%d`, idx)
		args = append(args, f.SpecialtyID)
		idx++
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where += fmt.Sprintf(` AND (u.name ILIKE $%d OR s.name ILIKE $%d)`, idx, idx)
		args = append(args, "%"+s+"%")
	}
	return r.query(ctx, `SELECT `+doctorCols+doctorFrom+where+` ORDER BY u.name`, args...)
}

func (r *repoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Doctor, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Doctor
	for rows.Next() {
		d, err := r.scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *repoPG) LockPending(ctx context.Context, id int64) (*Doctor, error) {
	d, err := r.scanDoctor(r.conn(ctx).QueryRow(ctx,
		`SELECT `+doctorCols+doctorFrom+` WHERE d.id = $1 AND d.status = 'pending' FOR UPDATE OF d`, id))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotPending
	}
	return d, err
}

func (r *repoPG) SetReview(ctx context.Context, rv Review) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctors
		SET status = $2, approved_by = $3, approved_at = NOW(), rejection_reason = $4,
			verification_docs = CASE WHEN $5 THEN '' ELSE verification_docs END,
			updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`,
		rv.DoctorID, rv.Status, rv.ReviewerID, rv.Reason, rv.ClearDocs)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

func (r *repoPG) UpdateProfile(ctx context.Context, d *Doctor) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctors SET qualifications = $2, bio = $3, consultation_fee = $4, available = $5, updated_at = NOW()
		WHERE id = $1`,
		d.ID, d.Qualifications, d.Bio, d.ConsultationFee, d.Available)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT status, COUNT(*) FROM doctors GROUP BY status`)
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

type specialtyRepoPG struct{ pool *pgxpool.Pool }

func NewSpecialtyRepoPG(pool *pgxpool.Pool) SpecialtyRepository { return &specialtyRepoPG{pool: pool} }

func (r *specialtyRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *specialtyRepoPG) List(ctx context.Context) ([]*Specialty, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT s.id, s.name, s.description, COUNT(d.id), s.created_at
		FROM specialties s LEFT JOIN doctors d ON d.specialty_id = s.id
		GROUP BY s.id ORDER BY s.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Specialty
	for rows.Next() {
		var s Specialty
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.DoctorCount, &s.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &s)
	}
	return items, rows.Err()
}

func (r *specialtyRepoPG) GetByID(ctx context.Context, id int64) (*Specialty, error) {
	var s Specialty
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, name, description, created_at FROM specialties WHERE id = $1`, id,
	).Scan(&s.ID, &s.Name, &s.Description, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSpecialtyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *specialtyRepoPG) Create(ctx context.Context, s *Specialty) error {
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO specialties (name, description) VALUES ($1, $2) RETURNING id, created_at`,
		s.Name, s.Description,
	).Scan(&s.ID, &s.CreatedAt)
	if db.IsUniqueViolation(err) {
		return ErrSpecialtyExists
	}
	return err
}

func (r *specialtyRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM specialties WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return ErrSpecialtyInUse
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSpecialtyNotFound
	}
	return nil
}
