package quota

// Counts reports the usage a check was evaluated against.
type Counts struct {
	RequestsThisMinute        int
	RequestsToday             int
	TokensThisMinute          int
	EstimatedTokensForRequest int
}

// ResetTimes reports when the windows free up again.
type ResetTimes struct {
	// MinuteSeconds is the time left in the current wall-clock window, in seconds.
	MinuteSeconds float64
	// DailyHours is the whole number of hours until local midnight, rounded up.
	DailyHours int
}

// Reasons flags every failed check. Several can be set at once.
type Reasons struct {
	RateLimited        bool
	DailyLimitReached  bool
	TokenLimitReached  bool
	StorageUnavailable bool
}

// Any reports whether at least one check failed.
func (r Reasons) Any() bool {
	return r.RateLimited || r.DailyLimitReached || r.TokenLimitReached || r.StorageUnavailable
}

// Names returns the failed checks as stable label values.
func (r Reasons) Names() []string {
	var out []string
	if r.RateLimited {
		out = append(out, "rate_limited")
	}
	if r.DailyLimitReached {
		out = append(out, "daily_limit_reached")
	}
	if r.TokenLimitReached {
		out = append(out, "token_limit_reached")
	}
	if r.StorageUnavailable {
		out = append(out, "storage_unavailable")
	}
	return out
}

// AdmissionResult is the outcome of an admission check. A rejection is a
// normal outcome, not an error.
type AdmissionResult struct {
	CanProceed     bool
	Limits         Counts
	TimeUntilReset ResetTimes
	Reasons        Reasons
}

// RetryAfterSeconds suggests how long a rejected caller should wait.
// The daily limit dominates the minute window when both are hit.
func (a AdmissionResult) RetryAfterSeconds() int {
	if a.CanProceed {
		return 0
	}
	if a.Reasons.DailyLimitReached {
		return a.TimeUntilReset.DailyHours * 3600
	}
	secs := int(a.TimeUntilReset.MinuteSeconds)
	if float64(secs) < a.TimeUntilReset.MinuteSeconds {
		secs++
	}
	return secs
}
