package submit

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{Idle, Submitting, true},
		{Idle, Approving, true},
		{Idle, Paying, true},
		{Idle, Submitted, false},
		{Submitting, Submitted, true},
		{Submitting, Paying, false},
		{Approving, Paying, true},
		{Approving, Submitted, false},
		{Paying, Submitted, true},
		{Paying, Failed, true},
		{Submitted, Idle, false},
		{Failed, Paying, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestStateActive(t *testing.T) {
	for _, s := range []State{Submitting, Approving, Paying} {
		if !s.Active() {
			t.Errorf("%s should be active", s)
		}
	}
	for _, s := range []State{Idle, Submitted, Failed} {
		if s.Active() {
			t.Errorf("%s should not be active", s)
		}
	}
}
