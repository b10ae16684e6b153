package quota

import (
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/replyguard/internal/domain"
)

func TestDefaultLimits(t *testing.T) {
	l := DefaultLimits()
	if l.RequestsPerMinute != 8 {
		t.Errorf("RequestsPerMinute = %d", l.RequestsPerMinute)
	}
	if l.RequestsPerDay != 200 {
		t.Errorf("RequestsPerDay = %d", l.RequestsPerDay)
	}
	if l.TokensPerMinute != 200000 {
		t.Errorf("TokensPerMinute = %d", l.TokensPerMinute)
	}
	if l.Window != time.Minute {
		t.Errorf("Window = %s", l.Window)
	}
	if err := l.Validate(); err != nil {
		t.Fatalf("default limits invalid: %v", err)
	}
}

func TestLimitsValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Limits)
	}{
		{"zero rpm", func(l *Limits) { l.RequestsPerMinute = 0 }},
		{"zero rpd", func(l *Limits) { l.RequestsPerDay = 0 }},
		{"zero tpm", func(l *Limits) { l.TokensPerMinute = 0 }},
		{"zero chars per token", func(l *Limits) { l.CharsPerToken = 0 }},
		{"negative buffer", func(l *Limits) { l.ProcessingBuffer = -1 }},
		{"sub-second window", func(l *Limits) { l.Window = time.Millisecond }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := DefaultLimits()
			tc.mutate(&l)
			if err := l.Validate(); !errors.Is(err, domain.ErrInvalidLimits) {
				t.Errorf("expected ErrInvalidLimits, got %v", err)
			}
		})
	}
}
