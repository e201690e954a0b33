package notification

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

func TestTemplateEngine_Render(t *testing.T) {
	e := NewTemplateEngine()
	subject, body, err := e.Render(TplConsultationReminder, map[string]string{
		"patient":      "Jane",
		"doctor":       "House",
		"date":         "2024-05-01",
		"time":         "10:30",
		"meeting_link": "https://meet.jit.si/abc",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "Reminder: consultation with Dr. House on 2024-05-01 at 10:30" {
		t.Errorf("unexpected subject %q", subject)
	}
	if !strings.Contains(body, "https://meet.jit.si/abc") {
		t.Errorf("expected meeting link in body: %s", body)
	}
}

func TestTemplateEngine_UnknownTemplate(t *testing.T) {
	if _, _, err := NewTemplateEngine().Render("nope", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestTemplateEngine_MissingKeysLeftAsIs(t *testing.T) {
	_, body, err := NewTemplateEngine().Render(TplDoctorRejected, map[string]string{"name": "Smith"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(body, "{{reason}}") {
		t.Errorf("expected unreplaced placeholder, got %s", body)
	}
}

func TestNotifier_SendsRenderedEmail(t *testing.T) {
	mock := &MockEmailSender{}
	n := NewNotifier(mock, NewTemplateEngine(), zerolog.Nop())

	n.Notify(context.Background(), TplDoctorApproved, "doc@example.com", map[string]string{
		"name": "Smith", "login_url": "http://localhost/login",
	})

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 email, got %d", len(calls))
	}
	if calls[0].To != "doc@example.com" || !strings.Contains(calls[0].Body, "Dr. Smith") {
		t.Errorf("unexpected email %+v", calls[0])
	}
}

func TestNotifier_SwallowsSendErrors(t *testing.T) {
	var buf bytes.Buffer
	mock := &MockEmailSender{ShouldFail: true, FailError: "smtp down"}
	n := NewNotifier(mock, NewTemplateEngine(), zerolog.New(&buf))

	n.Notify(context.Background(), TplDoctorApproved, "doc@example.com", nil)

	if len(mock.Calls()) != 1 {
		t.Fatal("expected send to be attempted")
	}
	if !strings.Contains(buf.String(), "smtp down") {
		t.Error("expected failure to be logged")
	}
}

func TestNotifier_SkipsEmptyRecipientAndNil(t *testing.T) {
	mock := &MockEmailSender{}
	NewNotifier(mock, NewTemplateEngine(), zerolog.Nop()).Notify(context.Background(), TplWelcome, "", nil)
	if len(mock.Calls()) != 0 {
		t.Error("expected no email without recipient")
	}

	var n *Notifier
	n.Notify(context.Background(), TplWelcome, "a@example.com", nil)
}

func TestQueueConsumer_Deliver(t *testing.T) {
	mock := &MockEmailSender{}
	c := NewQueueConsumer(nil, "mail", mock, zerolog.Nop())

	raw, _ := json.Marshal(Email{To: "p@example.com", Subject: "Hi", Body: "Hello"})
	if err := c.Deliver(context.Background(), raw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls := mock.Calls(); len(calls) != 1 || calls[0].Subject != "Hi" {
		t.Fatalf("unexpected calls %+v", calls)
	}

	if err := c.Deliver(context.Background(), []byte("{not json")); err == nil {
		t.Error("expected decode error")
	}
}
