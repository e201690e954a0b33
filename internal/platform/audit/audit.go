// Package audit persists who changed what. Records written with a ctx from
// db.TxManager.WithinTx commit or roll back with the surrounding change.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chela967/medicare/internal/platform/db"
)

// Actions.
const (
	ActionDoctorApproved    = "doctor.approved"
	ActionDoctorRejected    = "doctor.rejected"
	ActionUserRoleChanged   = "user.role_changed"
	ActionUserStatusChanged = "user.status_changed"
	ActionOrderUpdated      = "order.updated"
	ActionMedicineCreated   = "medicine.created"
	ActionMedicineUpdated   = "medicine.updated"
	ActionMedicineRemoved   = "medicine.deactivated"
	ActionCategoryCreated   = "category.created"
)

type Entry struct {
	ID         int64                  `json:"id"`
	ActorID    int64                  `json:"actor_id"`
	ActorName  string                 `json:"actor_name,omitempty"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entity_type"`
	EntityID   int64                  `json:"entity_id"`
	Details    map[string]interface{} `json:"details,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Recorder writes audit entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Reader lists audit entries newest first.
type Reader interface {
	List(ctx context.Context, limit, offset int) ([]*Entry, int, error)
}

type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Record(ctx context.Context, e Entry) error {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	_, err := db.Conn(ctx, s.pool).Exec(ctx, `
		INSERT INTO audit_logs (actor_id, action, entity_type, entity_id, details)
		VALUES ($1, $2, $3, $4, $5)`,
		nullID(e.ActorID), e.Action, e.EntityType, e.EntityID, e.Details)
	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

func (s *PGStore) List(ctx context.Context, limit, offset int) ([]*Entry, int, error) {
	conn := db.Conn(ctx, s.pool)

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	rows, err := conn.Query(ctx, `
		SELECT a.id, COALESCE(a.actor_id, 0), COALESCE(u.name, ''), a.action, a.entity_type, a.entity_id, a.details, a.created_at
		FROM audit_logs a LEFT JOIN users u ON u.id = a.actor_id
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ActorName, &e.Action, &e.EntityType, &e.EntityID, &e.Details, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, &e)
	}
	return out, total, rows.Err()
}

func nullID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

// MemoryRecorder keeps entries in memory. Used by tests and the dev seed.
type MemoryRecorder struct {
	Entries []Entry
	Err     error
}

func (m *MemoryRecorder) Record(_ context.Context, e Entry) error {
	if m.Err != nil {
		return m.Err
	}
	e.ID = int64(len(m.Entries) + 1)
	e.CreatedAt = time.Now().UTC()
	m.Entries = append(m.Entries, e)
	return nil
}

func (m *MemoryRecorder) List(_ context.Context, limit, offset int) ([]*Entry, int, error) {
	total := len(m.Entries)
	var out []*Entry
	for i := total - 1 - offset; i >= 0 && len(out) < limit; i-- {
		e := m.Entries[i]
		out = append(out, &e)
	}
	return out, total, nil
}
