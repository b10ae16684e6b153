package chi

import (
	domquota "github.com/kailas-cloud/replyguard/internal/domain/quota"
)

// ErrorCode is a stable machine-readable error identifier.
type ErrorCode string

// Error codes.
const (
	ErrorCodeBadRequest       ErrorCode = "bad_request"
	ErrorCodeValidationFailed ErrorCode = "validation_failed"
	ErrorCodeUnauthorized     ErrorCode = "unauthorized"
	ErrorCodeNotFound         ErrorCode = "not_found"
	ErrorCodeMethodNotAllowed ErrorCode = "method_not_allowed"
	ErrorCodeQuotaExceeded    ErrorCode = "quota_exceeded"
	ErrorCodeUpstreamError    ErrorCode = "upstream_error"
	ErrorCodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the error envelope of every non-2xx answer except /quota/admit.
type ErrorResponse struct {
	Code      ErrorCode          `json:"code"`
	Message   string             `json:"message"`
	Admission *AdmissionResponse `json:"admission,omitempty"`
}

// QuotaTextRequest is the text a quota operation is evaluated for.
type QuotaTextRequest struct {
	EmailContent string `json:"emailContent"`
	Subject      string `json:"subject"`
}

// GenerateRequest is the reply form submission.
type GenerateRequest struct {
	Subject      string `json:"subject"`
	EmailContent string `json:"emailContent"`
	Tone         string `json:"tone,omitempty"`
	Language     string `json:"language,omitempty"`
}

// AdmissionResponse mirrors domquota.AdmissionResult.
type AdmissionResponse struct {
	CanProceed     bool          `json:"canProceed"`
	Limits         CountsDTO     `json:"limits"`
	TimeUntilReset ResetTimesDTO `json:"timeUntilReset"`
	Reasons        ReasonsDTO    `json:"reasons"`
}

// CountsDTO is the usage an admission was evaluated against.
type CountsDTO struct {
	RequestsThisMinute        int `json:"requestsThisMinute"`
	RequestsToday             int `json:"requestsToday"`
	TokensThisMinute          int `json:"tokensThisMinute"`
	EstimatedTokensForRequest int `json:"estimatedTokensForRequest"`
}

// ResetTimesDTO holds seconds to the minute reset and hours to the daily reset.
type ResetTimesDTO struct {
	Minute float64 `json:"minute"`
	Daily  int     `json:"daily"`
}

// ReasonsDTO flags every failed check.
type ReasonsDTO struct {
	RateLimited        bool `json:"rateLimited"`
	DailyLimitReached  bool `json:"dailyLimitReached"`
	TokenLimitReached  bool `json:"tokenLimitReached"`
	StorageUnavailable bool `json:"storageUnavailable"`
}

// UsageResponse mirrors domquota.Snapshot.
type UsageResponse struct {
	RequestsThisMinute   int       `json:"requestsThisMinute"`
	MaxRequestsPerMinute int       `json:"maxRequestsPerMinute"`
	RequestsToday        int       `json:"requestsToday"`
	MaxRequestsPerDay    int       `json:"maxRequestsPerDay"`
	TokensThisMinute     int       `json:"tokensThisMinute"`
	MaxTokensPerMinute   int       `json:"maxTokensPerMinute"`
	PercentageUsed       RatiosDTO `json:"percentageUsed"`
}

// RatiosDTO holds usage as fractions of each limit.
type RatiosDTO struct {
	Minute float64 `json:"minute"`
	Daily  float64 `json:"daily"`
	Tokens float64 `json:"tokens"`
}

// RemainingResponse mirrors domquota.Remaining.
type RemainingResponse struct {
	RequestsThisMinute int `json:"requestsThisMinute"`
	RequestsToday      int `json:"requestsToday"`
	TokensThisMinute   int `json:"tokensThisMinute"`
}

// EstimateResponse is the token estimate of a text.
type EstimateResponse struct {
	EstimatedTokens int `json:"estimatedTokens"`
}

// HealthResponse is the aggregated health report.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func admissionToDTO(res domquota.AdmissionResult) AdmissionResponse {
	return AdmissionResponse{
		CanProceed: res.CanProceed,
		Limits: CountsDTO{
			RequestsThisMinute:        res.Limits.RequestsThisMinute,
			RequestsToday:             res.Limits.RequestsToday,
			TokensThisMinute:          res.Limits.TokensThisMinute,
			EstimatedTokensForRequest: res.Limits.EstimatedTokensForRequest,
		},
		TimeUntilReset: ResetTimesDTO{
			Minute: res.TimeUntilReset.MinuteSeconds,
			Daily:  res.TimeUntilReset.DailyHours,
		},
		Reasons: ReasonsDTO{
			RateLimited:        res.Reasons.RateLimited,
			DailyLimitReached:  res.Reasons.DailyLimitReached,
			TokenLimitReached:  res.Reasons.TokenLimitReached,
			StorageUnavailable: res.Reasons.StorageUnavailable,
		},
	}
}

func snapshotToDTO(s domquota.Snapshot) UsageResponse {
	return UsageResponse{
		RequestsThisMinute:   s.RequestsThisMinute,
		MaxRequestsPerMinute: s.MaxRequestsPerMinute,
		RequestsToday:        s.RequestsToday,
		MaxRequestsPerDay:    s.MaxRequestsPerDay,
		TokensThisMinute:     s.TokensThisMinute,
		MaxTokensPerMinute:   s.MaxTokensPerMinute,
		PercentageUsed: RatiosDTO{
			Minute: s.PercentageUsed.Minute,
			Daily:  s.PercentageUsed.Daily,
			Tokens: s.PercentageUsed.Tokens,
		},
	}
}
