package trip

import (
	"errors"
	"testing"
	"time"

	"tripshare/internal/config"
)

func TestLeavePenalty(t *testing.T) {
	rule := config.LeaveRule{ForbiddenWithin: 6 * time.Hour, PenaltyWithin: 12 * time.Hour, Penalty: 30}
	cases := []struct {
		untilStart time.Duration
		want       int64
		wantErr    error
	}{
		{5 * time.Hour, 0, ErrLeaveTooLate},
		{6 * time.Hour, 30, nil},
		{8 * time.Hour, 30, nil},
		{12 * time.Hour, 30, nil},
		{15 * time.Hour, 0, nil},
	}
	for _, tc := range cases {
		got, err := LeavePenalty(tc.untilStart, rule)
		if !errors.Is(err, tc.wantErr) {
			t.Errorf("%s: err = %v, want %v", tc.untilStart, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: penalty = %d, want %d", tc.untilStart, got, tc.want)
		}
	}
}

func TestCheckStartWindow(t *testing.T) {
	start := time.Date(2026, 10, 22, 8, 0, 0, 0, time.UTC)
	early, late := 60*time.Minute, 30*time.Minute

	var ow *OutsideStartWindowError
	if err := CheckStartWindow(start.Add(-61*time.Minute), start, early, late); !errors.As(err, &ow) || !ow.TooEarly {
		t.Fatalf("expected too early, got %v", err)
	}
	if err := CheckStartWindow(start.Add(31*time.Minute), start, early, late); !errors.As(err, &ow) || ow.TooEarly {
		t.Fatalf("expected too late, got %v", err)
	}
	for _, offset := range []time.Duration{-60 * time.Minute, 0, 30 * time.Minute} {
		if err := CheckStartWindow(start.Add(offset), start, early, late); err != nil {
			t.Fatalf("offset %s: %v", offset, err)
		}
	}
}
