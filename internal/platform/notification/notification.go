// Package notification renders and delivers outbound email. Delivery is
// advisory: Notifier logs failures and never returns them to callers, so
// database state always wins over mail.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Email is one outbound message.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	HTML    bool   `json:"html,omitempty"`
}

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, msg Email) error
}

// Template IDs.
const (
	TplDoctorApproved       = "doctor-approved"
	TplDoctorRejected       = "doctor-rejected"
	TplConsultationReminder = "consultation-reminder"
	TplAppointmentStatus    = "appointment-status"
	TplWelcome              = "welcome"
)

// Template defines a reusable email template.
type Template struct {
	ID      string
	Subject string
	Body    string
}

// TemplateEngine manages templates and renders them with {{key}} replacement.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	for _, t := range builtIn {
		e.RegisterTemplate(t)
	}
	return e
}

var builtIn = []Template{
	{
		ID:      TplDoctorApproved,
		Subject: "Your Medicare doctor account has been approved",
		Body: "Dear Dr. {{name}},\n\nYour registration has been reviewed and approved. " +
			"You can now sign in at {{login_url}} and start accepting appointments.\n\nThe Medicare team",
	},
	{
		ID:      TplDoctorRejected,
		Subject: "Update on your Medicare doctor registration",
		Body: "Dear Dr. {{name}},\n\nWe were unable to approve your registration.\n\nReason: {{reason}}\n\n" +
			"You may register again with updated documents.\n\nThe Medicare team",
	},
	{
		ID:      TplConsultationReminder,
		Subject: "Reminder: consultation with Dr. {{doctor}} on {{date}} at {{time}}",
		Body: "Dear {{patient}},\n\nYour online consultation with Dr. {{doctor}} starts on {{date}} at {{time}}.\n" +
			"Join here: {{meeting_link}}\n\nThe Medicare team",
	},
	{
		ID:      TplAppointmentStatus,
		Subject: "Your appointment on {{date}} is now {{status}}",
		Body: "Dear {{patient}},\n\nYour appointment with Dr. {{doctor}} on {{date}} at {{time}} is now {{status}}.\n\n" +
			"The Medicare team",
	},
	{
		ID:      TplWelcome,
		Subject: "Welcome to Medicare",
		Body:    "Dear {{name}},\n\nYour account is ready. Sign in at {{login_url}}.\n\nThe Medicare team",
	},
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template and substitutes data. Keys missing from data
// are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject, body = t.Subject, t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// Notifier sends templated mail on state transitions.
type Notifier struct {
	sender    EmailSender
	templates *TemplateEngine
	logger    zerolog.Logger
	timeout   time.Duration
}

func NewNotifier(sender EmailSender, templates *TemplateEngine, logger zerolog.Logger) *Notifier {
	return &Notifier{sender: sender, templates: templates, logger: logger, timeout: 10 * time.Second}
}

// Notify renders templateID and sends it to to. Errors are logged and
// swallowed; the caller's request is not cancelled by a slow transport.
func (n *Notifier) Notify(ctx context.Context, templateID, to string, data map[string]string) {
	if n == nil || n.sender == nil || to == "" {
		return
	}
	subject, body, err := n.templates.Render(templateID, data)
	if err != nil {
		n.logger.Error().Err(err).Str("template", templateID).Msg("render email")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	if err := n.sender.SendEmail(ctx, Email{To: to, Subject: subject, Body: body}); err != nil {
		n.logger.Warn().Err(err).Str("template", templateID).Str("to", to).Msg("email not sent")
		return
	}
	n.logger.Debug().Str("template", templateID).Str("to", to).Msg("email sent")
}

// LogSender writes mail to the log instead of delivering it. Used when no
// SMTP host is configured.
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) SendEmail(_ context.Context, msg Email) error {
	s.Logger.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("email (log only)")
	return nil
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []Email
	ShouldFail bool
	FailError  string
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, msg Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, msg)
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded emails.
func (m *MockEmailSender) Calls() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Email, len(m.calls))
	copy(out, m.calls)
	return out
}
