package quota

// Ratios are usage fractions (count/max). Scaling to percent is up to the display.
type Ratios struct {
	Minute float64
	Daily  float64
	Tokens float64
}

// Snapshot is a read-only view of current usage.
type Snapshot struct {
	RequestsThisMinute   int
	MaxRequestsPerMinute int
	RequestsToday        int
	MaxRequestsPerDay    int
	TokensThisMinute     int
	MaxTokensPerMinute   int
	PercentageUsed       Ratios
}

// NewSnapshot builds a snapshot and derives its ratios.
func NewSnapshot(l Limits, requestsThisMinute, requestsToday, tokensThisMinute int) Snapshot {
	return Snapshot{
		RequestsThisMinute:   requestsThisMinute,
		MaxRequestsPerMinute: l.RequestsPerMinute,
		RequestsToday:        requestsToday,
		MaxRequestsPerDay:    l.RequestsPerDay,
		TokensThisMinute:     tokensThisMinute,
		MaxTokensPerMinute:   l.TokensPerMinute,
		PercentageUsed: Ratios{
			Minute: ratio(requestsThisMinute, l.RequestsPerMinute),
			Daily:  ratio(requestsToday, l.RequestsPerDay),
			Tokens: ratio(tokensThisMinute, l.TokensPerMinute),
		},
	}
}

// Remaining is the headroom left under each limit.
type Remaining struct {
	RequestsThisMinute int
	RequestsToday      int
	TokensThisMinute   int
}

// Remaining returns max minus usage, clamped at zero.
func (s Snapshot) Remaining() Remaining {
	return Remaining{
		RequestsThisMinute: clampZero(s.MaxRequestsPerMinute - s.RequestsThisMinute),
		RequestsToday:      clampZero(s.MaxRequestsPerDay - s.RequestsToday),
		TokensThisMinute:   clampZero(s.MaxTokensPerMinute - s.TokensThisMinute),
	}
}

func ratio(count, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(count) / float64(limit)
}

func clampZero(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
