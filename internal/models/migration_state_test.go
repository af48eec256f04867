package models

import "testing"

func TestMigrationStateTransitions(t *testing.T) {
	allowed := []struct {
		from, to string
	}{
		{MigrationStatusRunning, MigrationStatusPaused},
		{MigrationStatusRunning, MigrationStatusCompleted},
		{MigrationStatusRunning, MigrationStatusFailed},
		{MigrationStatusPaused, MigrationStatusRunning},
	}
	for _, tc := range allowed {
		s := &MigrationState{Status: tc.from}
		if err := s.TransitionTo(tc.to); err != nil {
			t.Errorf("%s -> %s should be allowed: %v", tc.from, tc.to, err)
		}
		if s.Status != tc.to {
			t.Errorf("status not updated on %s -> %s", tc.from, tc.to)
		}
	}

	denied := []struct {
		from, to string
	}{
		{MigrationStatusCompleted, MigrationStatusRunning},
		{MigrationStatusFailed, MigrationStatusRunning},
		{MigrationStatusPaused, MigrationStatusCompleted},
		{MigrationStatusPaused, MigrationStatusFailed},
		{MigrationStatusRunning, MigrationStatusRunning},
	}
	for _, tc := range denied {
		s := &MigrationState{Status: tc.from}
		if err := s.TransitionTo(tc.to); err == nil {
			t.Errorf("%s -> %s should be rejected", tc.from, tc.to)
		}
		if s.Status != tc.from {
			t.Errorf("status mutated on rejected %s -> %s", tc.from, tc.to)
		}
	}
}
