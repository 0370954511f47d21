package importer

import "testing"

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusQueued, StatusProcessing, StatusComplete, StatusDeleting, StatusDeleted} {
		if !s.Valid() {
			t.Errorf("Status(%q).Valid() = false, want true", s)
		}
	}
	for _, s := range []Status{"", "pending", "PROCESSING", "done"} {
		if s.Valid() {
			t.Errorf("Status(%q).Valid() = true, want false", s)
		}
	}
}

func TestStatusCanTransition(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusQueued, StatusProcessing, true},
		{StatusProcessing, StatusComplete, true},
		{StatusComplete, StatusDeleting, true},
		{StatusDeleting, StatusDeleted, true},

		// backward moves are never legal
		{StatusProcessing, StatusQueued, false},
		{StatusComplete, StatusProcessing, false},
		{StatusDeleted, StatusDeleting, false},

		// skipping a state is not a single step
		{StatusQueued, StatusComplete, false},
		{StatusComplete, StatusDeleted, false},

		{StatusQueued, StatusQueued, false},
		{StatusDeleted, StatusDeleted, false},
		{Status("bogus"), StatusQueued, false},
		{StatusQueued, Status("bogus"), false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatusFinished(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusQueued, false},
		{StatusProcessing, false},
		{StatusComplete, true},
		{StatusDeleting, true},
		{StatusDeleted, true},
	}

	for _, tt := range tests {
		if got := tt.status.Finished(); got != tt.want {
			t.Errorf("Status(%q).Finished() = %v, want %v", tt.status, got, tt.want)
		}
	}
}
