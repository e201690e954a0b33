package messaging

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chela967/medicare/internal/platform/db"
)

type messageRepoPG struct{ pool *pgxpool.Pool }

func NewMessageRepoPG(pool *pgxpool.Pool) MessageRepository { return &messageRepoPG{pool: pool} }

func (r *messageRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *messageRepoPG) Create(ctx context.Context, m *Message) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO messages (appointment_id, sender_id, recipient_id, message)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		m.AppointmentID, m.SenderID, m.RecipientID, m.Body,
	).Scan(&m.ID, &m.CreatedAt)
}

func (r *messageRepoPG) ListByAppointment(ctx context.Context, appointmentID int64) ([]*Message, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT m.id, m.appointment_id, m.sender_id, u.name, m.recipient_id, m.message, m.created_at
		FROM messages m JOIN users u ON u.id = m.sender_id
		WHERE m.appointment_id = $1
		ORDER BY m.created_at ASC, m.id ASC`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.AppointmentID, &m.SenderID, &m.SenderName, &m.RecipientID, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

type notificationRepoPG struct{ pool *pgxpool.Pool }

func NewNotificationRepoPG(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepoPG{pool: pool}
}

func (r *notificationRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *notificationRepoPG) Create(ctx context.Context, n *Notification) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO notifications (user_id, title, message, type, link)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		n.UserID, n.Title, n.Message, n.Type, n.Link,
	).Scan(&n.ID, &n.CreatedAt)
}

func (r *notificationRepoPG) ListForUser(ctx context.Context, userID int64, limit int) ([]*Notification, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, user_id, title, message, type, link, read_at, created_at
		FROM notifications WHERE user_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.Link, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (r *notificationRepoPG) UnreadCount(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL`, userID).Scan(&n)
	return n, err
}

func (r *notificationRepoPG) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE notifications SET read_at = NOW() WHERE user_id = $1 AND read_at IS NULL`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
