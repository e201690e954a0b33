package db

import (
	"context"
	"errors"
	"testing"
)

func TestRunChecks_AllHealthy(t *testing.T) {
	report, ok := RunChecks(context.Background(), map[string]Pinger{
		"database": PingFunc(func(context.Context) error { return nil }),
		"redis":    PingFunc(func(context.Context) error { return nil }),
	})
	if !ok {
		t.Fatal("expected healthy")
	}
	if report["database"] != "ok" || report["redis"] != "ok" {
		t.Errorf("unexpected report: %v", report)
	}
}

func TestRunChecks_OneFailing(t *testing.T) {
	report, ok := RunChecks(context.Background(), map[string]Pinger{
		"database": PingFunc(func(context.Context) error { return nil }),
		"redis":    PingFunc(func(context.Context) error { return errors.New("connection refused") }),
	})
	if ok {
		t.Fatal("expected unhealthy")
	}
	if report["redis"] != "connection refused" {
		t.Errorf("expected redis error in report, got %q", report["redis"])
	}
}
