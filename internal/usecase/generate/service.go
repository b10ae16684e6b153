// Package generate gates reply generation behind the quota tracker.
package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/replyguard/internal/domain"
	domquota "github.com/kailas-cloud/replyguard/internal/domain/quota"
	"github.com/kailas-cloud/replyguard/internal/domain/reply"
	"github.com/kailas-cloud/replyguard/internal/logger"
)

// QuotaExceededError carries the admission result that rejected a request.
type QuotaExceededError struct {
	Admission domquota.AdmissionResult
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s: %s", domain.ErrQuotaExceeded.Error(), strings.Join(e.Admission.Reasons.Names(), ", "))
}

func (e *QuotaExceededError) Unwrap() error { return domain.ErrQuotaExceeded }

// Service forwards admitted requests to the upstream API.
type Service struct {
	admitter Admitter
	upstream Upstream
}

// New creates a Service.
func New(admitter Admitter, upstream Upstream) *Service {
	return &Service{admitter: admitter, upstream: upstream}
}

// Generate validates req, admits it against the quota and forwards it.
// An admitted request stays counted even when the upstream call fails.
func (s *Service) Generate(ctx context.Context, mode reply.Mode, req reply.Request, bearer string) (json.RawMessage, error) {
	if !mode.Valid() {
		return nil, domain.NewValidationError("mode", fmt.Sprintf("unknown mode %q", mode))
	}

	req, err := reply.Normalize(req)
	if err != nil {
		return nil, err
	}

	res := s.admitter.TryAdmit(ctx, req.EmailContent, req.Subject)
	if !res.CanProceed {
		return nil, &QuotaExceededError{Admission: res}
	}

	ctx = logger.With(ctx, zap.String("mode", string(mode)))
	log := logger.FromContext(ctx)
	body, err := s.upstream.Generate(ctx, mode, req, bearer)
	if err != nil {
		log.Warn("Reply generation failed",
			zap.Int("estimated_tokens", res.Limits.EstimatedTokensForRequest),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s reply: %w", mode, err)
	}

	log.Debug("Reply generated",
		zap.Int("estimated_tokens", res.Limits.EstimatedTokensForRequest),
		zap.Int("response_bytes", len(body)),
	)
	return body, nil
}
