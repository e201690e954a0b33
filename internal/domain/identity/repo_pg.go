package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chela967/medicare/internal/platform/db"
)

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository { return &userRepoPG{pool: pool} }

func (r *userRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const userCols = `id, name, email, phone, password_hash, role, status, created_at, updated_at`

func (r *userRepoPG) scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.PasswordHash, &u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (name, email, phone, password_hash, role, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		u.Name, u.Email, u.Phone, u.PasswordHash, u.Role, u.Status,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

func (r *userRepoPG) GetByID(ctx context.Context, id int64) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (r *userRepoPG) List(ctx context.Context, f UserFilter, limit, offset int) ([]*User, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Role != "" {
		where += fmt.Sprintf(` AND role = $%d`, idx)
		args = append(args, f.Role)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where += fmt.Sprintf(` AND (name ILIKE $%d OR email ILIKE $%d)`, idx, idx)
		args = append(args, "%"+s+"%")
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + userCols + ` FROM users` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*User
	for rows.Next() {
		u, err := r.scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, u)
	}
	return items, total, rows.Err()
}

func (r *userRepoPG) exec(ctx context.Context, sql string, args ...interface{}) error {
	tag, err := r.conn(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepoPG) UpdateRole(ctx context.Context, id int64, role string) error {
	return r.exec(ctx, `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`, id, role)
}

func (r *userRepoPG) UpdateStatus(ctx context.Context, id int64, status string) error {
	return r.exec(ctx, `UPDATE users SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
}

func (r *userRepoPG) UpdateContact(ctx context.Context, id int64, name, phone string) error {
	return r.exec(ctx, `UPDATE users SET name = $2, phone = $3, updated_at = NOW() WHERE id = $1`, id, name, phone)
}

func (r *userRepoPG) CountByRole(ctx context.Context) (map[string]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		out[role] = n
	}
	return out, rows.Err()
}

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *patientRepoPG) Create(ctx context.Context, p *PatientProfile) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (user_id, date_of_birth, gender, blood_group, address)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		p.UserID, p.DateOfBirth, p.Gender, p.BloodGroup, p.Address,
	).Scan(&p.ID, &p.CreatedAt)
}

func (r *patientRepoPG) GetByUserID(ctx context.Context, userID int64) (*PatientProfile, error) {
	var p PatientProfile
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, user_id, date_of_birth, gender, blood_group, address, created_at
		FROM patients WHERE user_id = $1`, userID,
	).Scan(&p.ID, &p.UserID, &p.DateOfBirth, &p.Gender, &p.BloodGroup, &p.Address, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *PatientProfile) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (user_id, date_of_birth, gender, blood_group, address)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET date_of_birth = EXCLUDED.date_of_birth, gender = EXCLUDED.gender,
			blood_group = EXCLUDED.blood_group, address = EXCLUDED.address`,
		p.UserID, p.DateOfBirth, p.Gender, p.BloodGroup, p.Address)
	return err
}
