// Package session implements server-side sessions referenced by a signed
// cookie, with one-request flash messages and a per-session CSRF token.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"
)

// ErrNotFound is returned by a Store when the session id is unknown or expired.
var ErrNotFound = errors.New("session not found")

// Flash kinds.
const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashWarning = "warning"
	FlashInfo    = "info"
)

// Flash is a notice shown on the next rendered page and then discarded.
type Flash struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Session is the server-side record for one browser.
type Session struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id,omitempty"`
	Role      string    `json:"role,omitempty"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	DoctorID  int64     `json:"doctor_id,omitempty"`
	CSRFToken string    `json:"csrf_token"`
	Flashes   []Flash   `json:"flashes,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	dirty bool
}

// New returns an anonymous session with fresh id and CSRF token.
func New() *Session {
	return &Session{
		ID:        randomToken(32),
		CSRFToken: randomToken(32),
		CreatedAt: time.Now().UTC(),
		dirty:     true,
	}
}

func (s *Session) Authenticated() bool { return s.UserID != 0 }

// SetUser binds the session to a signed-in user.
func (s *Session) SetUser(userID int64, role, name, email string, doctorID int64) {
	s.UserID = userID
	s.Role = role
	s.Name = name
	s.Email = email
	s.DoctorID = doctorID
	s.dirty = true
}

func (s *Session) AddFlash(kind, message string) {
	s.Flashes = append(s.Flashes, Flash{Kind: kind, Message: message})
	s.dirty = true
}

// PopFlashes returns pending flashes and clears them.
func (s *Session) PopFlashes() []Flash {
	if len(s.Flashes) == 0 {
		return nil
	}
	out := s.Flashes
	s.Flashes = nil
	s.dirty = true
	return out
}

// Dirty reports whether the session must be written back to the store.
func (s *Session) Dirty() bool { return s.dirty }

// Store persists sessions between requests.
type Store interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

func randomToken(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("session: crypto/rand unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
