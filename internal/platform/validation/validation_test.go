package validation

import (
	"errors"
	"testing"
)

type slotForm struct {
	Day   string `validate:"required,weekday" label:"Day"`
	Start string `validate:"required,clock" label:"Start time"`
	Email string `validate:"omitempty,email" label:"Email"`
	Pass  string `validate:"min=8" label:"Password"`
}

func TestStruct_Messages(t *testing.T) {
	err := Struct(slotForm{Day: "funday", Start: "9am", Email: "nope", Pass: "short"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	msgs := Messages(err)
	want := map[string]bool{
		"Day must be a day of the week":        true,
		"Start time must be a time like 09:30": true,
		"Email must be a valid email address":  true,
		"Password must be at least 8 characters": true,
	}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %v", len(want), msgs)
	}
	for _, m := range msgs {
		if !want[m] {
			t.Errorf("unexpected message %q", m)
		}
	}
}

func TestStruct_Valid(t *testing.T) {
	if err := Struct(slotForm{Day: "Monday", Start: "09:30", Pass: "longenough"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMessages_PlainError(t *testing.T) {
	msgs := Messages(errors.New("email already registered"))
	if len(msgs) != 1 || msgs[0] != "email already registered" {
		t.Errorf("unexpected %v", msgs)
	}
	if Messages(nil) != nil {
		t.Error("nil error yields no messages")
	}
}
