package payment

import "testing"

// TestValidTransition verifies the legal intent state machine edges.
func TestValidTransition(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"pending to completed", StatusPending, StatusCompleted, true},
		{"pending to failed", StatusPending, StatusFailed, true},
		{"completed to refunded", StatusCompleted, StatusRefunded, true},
		{"pending to refunded", StatusPending, StatusRefunded, false},
		{"completed to failed", StatusCompleted, StatusFailed, false},
		{"completed to pending", StatusCompleted, StatusPending, false},
		{"failed to completed", StatusFailed, StatusCompleted, false},
		{"refunded to completed", StatusRefunded, StatusCompleted, false},
		{"refunded to pending", StatusRefunded, StatusPending, false},
		{"same state pending", StatusPending, StatusPending, false},
		{"same state refunded", StatusRefunded, StatusRefunded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("ValidTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}
