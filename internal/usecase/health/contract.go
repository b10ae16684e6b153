package health

import "context"

// StoragePinger checks the daily record backend.
type StoragePinger interface {
	Ping(ctx context.Context) error
}

// UpstreamChecker checks the reply generation API.
type UpstreamChecker interface {
	HealthCheck(ctx context.Context) error
}
