package health

import (
	"context"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates every component failed.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

const (
	checkStorage  = "storage"
	checkUpstream = "upstream"
)

const defaultCheckTimeout = 3 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	storage  StoragePinger
	upstream UpstreamChecker
	timeout  time.Duration
}

// New creates a Service. upstream can be nil.
func New(storage StoragePinger, upstream UpstreamChecker) *Service {
	return &Service{storage: storage, upstream: upstream, timeout: defaultCheckTimeout}
}

// Check runs health checks against all components, each bounded by its own timeout.
func (s *Service) Check(ctx context.Context) Report {
	checks := map[string]CheckResult{
		checkStorage: s.run(ctx, s.storage.Ping),
	}
	if s.upstream != nil {
		checks[checkUpstream] = s.run(ctx, s.upstream.HealthCheck)
	}

	failed := 0
	for _, v := range checks {
		if v == CheckError {
			failed++
		}
	}

	status := Healthy
	switch {
	case failed == len(checks):
		status = Unhealthy
	case failed > 0:
		status = Degraded
	}

	return Report{Status: status, Checks: checks}
}

func (s *Service) run(ctx context.Context, check func(context.Context) error) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := check(ctx); err != nil {
		return CheckError
	}
	return CheckOK
}
