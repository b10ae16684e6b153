package quota

import "testing"

func TestNewSnapshot_Ratios(t *testing.T) {
	s := NewSnapshot(DefaultLimits(), 2, 50, 50000)

	if s.PercentageUsed.Minute != 0.25 {
		t.Errorf("Minute ratio = %v, want 0.25", s.PercentageUsed.Minute)
	}
	if s.PercentageUsed.Daily != 0.25 {
		t.Errorf("Daily ratio = %v, want 0.25", s.PercentageUsed.Daily)
	}
	if s.PercentageUsed.Tokens != 0.25 {
		t.Errorf("Tokens ratio = %v, want 0.25", s.PercentageUsed.Tokens)
	}
	if s.MaxRequestsPerDay != 200 {
		t.Errorf("MaxRequestsPerDay = %d", s.MaxRequestsPerDay)
	}
}

func TestSnapshot_Remaining(t *testing.T) {
	s := NewSnapshot(DefaultLimits(), 3, 10, 1000)
	r := s.Remaining()
	if r.RequestsThisMinute != 5 || r.RequestsToday != 190 || r.TokensThisMinute != 199000 {
		t.Errorf("unexpected remaining: %+v", r)
	}
}

func TestSnapshot_RemainingClampsAtZero(t *testing.T) {
	l := DefaultLimits()
	l.RequestsPerMinute = 2
	s := NewSnapshot(l, 5, 0, 0)
	if got := s.Remaining().RequestsThisMinute; got != 0 {
		t.Errorf("RequestsThisMinute = %d, want 0", got)
	}
}
