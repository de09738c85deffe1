package logging

import "testing"

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("production", "loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNewHonorsLevel(t *testing.T) {
	logger, err := New("development", "warn")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if logger.Core().Enabled(-1) {
		t.Fatalf("expected debug to be disabled at warn level")
	}
	if !logger.Core().Enabled(1) {
		t.Fatalf("expected warn to be enabled")
	}
}
