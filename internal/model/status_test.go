package model

import (
	"errors"
	"testing"
)

func TestTransition(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusPending, StatusConfirmed}:   true,
		{StatusPending, StatusCancelled}:   true,
		{StatusConfirmed, StatusCompleted}: true,
		{StatusConfirmed, StatusCancelled}: true,
	}

	for _, from := range Statuses() {
		for _, to := range Statuses() {
			err := Transition(from, to)
			if allowed[[2]Status{from, to}] {
				if err != nil {
					t.Errorf("Transition(%s, %s) error = %v, want nil", from, to, err)
				}
				continue
			}
			var terr *IllegalTransitionError
			if !errors.As(err, &terr) {
				t.Errorf("Transition(%s, %s) error = %v, want *IllegalTransitionError", from, to, err)
				continue
			}
			if terr.From != from || terr.To != to {
				t.Errorf("Transition(%s, %s) reported %s -> %s", from, to, terr.From, terr.To)
			}
			if !errors.Is(err, ErrIllegalTransition) {
				t.Errorf("Transition(%s, %s) error should match ErrIllegalTransition", from, to)
			}
		}
	}
}

func TestStatus_isTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusConfirmed, false},
		{StatusCancelled, true},
		{StatusCompleted, true},
		{Status("unknown"), true},
	}
	for _, tt := range tests {
		if got := tt.status.isTerminal(); got != tt.want {
			t.Errorf("%q.isTerminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestTransition_TerminalStates(t *testing.T) {
	for _, from := range []Status{StatusCancelled, StatusCompleted} {
		if !from.isTerminal() {
			t.Errorf("%s should be terminal", from)
		}
		for _, to := range Statuses() {
			if err := Transition(from, to); err == nil {
				t.Errorf("Transition(%s, %s) should fail", from, to)
			}
		}
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{in: "pending", want: StatusPending},
		{in: "Confirmed", want: StatusConfirmed},
		{in: " CANCELLED ", want: StatusCancelled},
		{in: "completed", want: StatusCompleted},
		{in: "", wantErr: true},
		{in: "done", wantErr: true},
		{in: "1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStatus(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStatus(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Errorf("ParseStatus(%q) error should match ErrValidation", tt.in)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseStatus(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestStatus_Occupies(t *testing.T) {
	for _, s := range Statuses() {
		want := s != StatusCancelled
		if s.Occupies() != want {
			t.Errorf("%s.Occupies() = %v, want %v", s, s.Occupies(), want)
		}
	}
}
