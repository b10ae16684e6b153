// Package quota holds the value types of the generation quota: limits,
// admission outcomes, usage snapshots and the persisted daily record.
package quota

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/replyguard/internal/domain"
)

// Default limits sit below the upstream free tier (10 rpm, 250 rpd, 250k tpm)
// to leave headroom for requests the client cannot see.
const (
	DefaultRequestsPerMinute      = 8
	DefaultRequestsPerDay         = 200
	DefaultTokensPerMinute        = 200000
	DefaultResponseTokenAllowance = 200
	DefaultProcessingBuffer       = 100
	DefaultCharsPerToken          = 4
	DefaultWindow                 = 60 * time.Second
)

// Limits is the immutable quota configuration of a tracker.
type Limits struct {
	RequestsPerMinute      int
	RequestsPerDay         int
	TokensPerMinute        int
	ResponseTokenAllowance int
	ProcessingBuffer       int
	CharsPerToken          int
	Window                 time.Duration
}

// DefaultLimits returns the compiled-in limits.
func DefaultLimits() Limits {
	return Limits{
		RequestsPerMinute:      DefaultRequestsPerMinute,
		RequestsPerDay:         DefaultRequestsPerDay,
		TokensPerMinute:        DefaultTokensPerMinute,
		ResponseTokenAllowance: DefaultResponseTokenAllowance,
		ProcessingBuffer:       DefaultProcessingBuffer,
		CharsPerToken:          DefaultCharsPerToken,
		Window:                 DefaultWindow,
	}
}

// Validate rejects limits that would make every check trivially true or false.
func (l Limits) Validate() error {
	switch {
	case l.RequestsPerMinute <= 0:
		return fmt.Errorf("%w: requests per minute must be positive, got %d", domain.ErrInvalidLimits, l.RequestsPerMinute)
	case l.RequestsPerDay <= 0:
		return fmt.Errorf("%w: requests per day must be positive, got %d", domain.ErrInvalidLimits, l.RequestsPerDay)
	case l.TokensPerMinute <= 0:
		return fmt.Errorf("%w: tokens per minute must be positive, got %d", domain.ErrInvalidLimits, l.TokensPerMinute)
	case l.CharsPerToken <= 0:
		return fmt.Errorf("%w: chars per token must be positive, got %d", domain.ErrInvalidLimits, l.CharsPerToken)
	case l.ResponseTokenAllowance < 0 || l.ProcessingBuffer < 0:
		return fmt.Errorf("%w: token allowances must not be negative", domain.ErrInvalidLimits)
	case l.Window < time.Second:
		return fmt.Errorf("%w: window must be at least 1s, got %s", domain.ErrInvalidLimits, l.Window)
	}
	return nil
}
