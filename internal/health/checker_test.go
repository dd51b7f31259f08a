package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRegisterCheckRejectsDuplicate(t *testing.T) {
	c, err := NewChecker(&Config{Enabled: true, CheckInterval: time.Hour, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewChecker: %v", err)
	}

	ok := func(ctx context.Context) error { return nil }
	if err := c.RegisterCheck("mdfs_reachable_ns1", "", CategoryStorage, PriorityCritical, ok); err != nil {
		t.Fatalf("first RegisterCheck: %v", err)
	}
	if err := c.RegisterCheck("mdfs_reachable_ns1", "", CategoryStorage, PriorityCritical, ok); err == nil {
		t.Fatal("expected error registering duplicate check name")
	}
}

func TestRunAllChecksMarksCriticalFailureUnhealthy(t *testing.T) {
	c, err := NewChecker(&Config{Enabled: true, CheckInterval: time.Hour, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewChecker: %v", err)
	}

	failing := func(ctx context.Context) error { return errors.New("mdfs root unreachable") }
	if err := c.RegisterCheck("mdfs_reachable_ns1", "", CategoryStorage, PriorityCritical, failing); err != nil {
		t.Fatalf("RegisterCheck: %v", err)
	}

	results, err := c.RunAllChecks(context.Background())
	if err != nil {
		t.Fatalf("RunAllChecks: %v", err)
	}
	if results["mdfs_reachable_ns1"].Status != StatusUnhealthy {
		t.Errorf("expected unhealthy result, got %s", results["mdfs_reachable_ns1"].Status)
	}
	if c.IsHealthy() {
		t.Error("expected checker to be unhealthy after a critical check fails")
	}
	if c.GetStats().OverallStatus != StatusUnhealthy {
		t.Errorf("expected overall status unhealthy, got %s", c.GetStats().OverallStatus)
	}
}

func TestRunAllChecksHealthyWhenAllPass(t *testing.T) {
	c, err := NewChecker(&Config{Enabled: true, CheckInterval: time.Hour, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewChecker: %v", err)
	}

	pass := func(ctx context.Context) error { return nil }
	if err := c.RegisterCheck("mdfs_reachable_ns1", "", CategoryStorage, PriorityCritical, pass); err != nil {
		t.Fatalf("RegisterCheck: %v", err)
	}

	if _, err := c.RunAllChecks(context.Background()); err != nil {
		t.Fatalf("RunAllChecks: %v", err)
	}
	if !c.IsHealthy() {
		t.Error("expected checker to be healthy when all checks pass")
	}
}

func TestStartDisabledIsNoop(t *testing.T) {
	c, err := NewChecker(&Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewChecker: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start on disabled checker should be a no-op, got %v", err)
	}
	if err := c.Stop(); err == nil {
		t.Error("expected error stopping a checker that was never started")
	}
}

func TestStartThenStop(t *testing.T) {
	c, err := NewChecker(&Config{Enabled: true, CheckInterval: time.Hour, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewChecker: %v", err)
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(context.Background()); err == nil {
		t.Error("expected error starting an already-started checker")
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestRunCheckUnknownName(t *testing.T) {
	c, err := NewChecker(nil)
	if err != nil {
		t.Fatalf("NewChecker: %v", err)
	}
	if _, err := c.RunCheck(context.Background(), "does-not-exist"); err == nil {
		t.Error("expected error running an unregistered check")
	}
}
