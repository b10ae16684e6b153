package quota

import (
	"context"
	"time"

	"go.uber.org/zap"

	domquota "github.com/kailas-cloud/replyguard/internal/domain/quota"
	"github.com/kailas-cloud/replyguard/internal/metrics"
)

// DefaultPollInterval matches the refresh rate of the usage display.
const DefaultPollInterval = 5 * time.Second

// Poller periodically publishes usage snapshots, the way the statistics
// display polls the tracker. It never touches admission state.
type Poller struct {
	reader   UsageReader
	interval time.Duration
	publish  func(domquota.Snapshot)
	logger   *zap.Logger
}

// NewPoller creates a poller that publishes to the Prometheus usage gauges.
func NewPoller(reader UsageReader, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		reader:   reader,
		interval: interval,
		publish:  metrics.PublishUsage,
		logger:   logger,
	}
}

// WithPublisher replaces the snapshot sink.
func (p *Poller) WithPublisher(fn func(domquota.Snapshot)) *Poller {
	p.publish = fn
	return p
}

// Run publishes one snapshot right away and then one per interval until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.publishOnce()
	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("Usage poller stopped")
			return
		case <-ticker.C:
			p.publishOnce()
		}
	}
}

func (p *Poller) publishOnce() {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Usage publisher panicked", zap.Any("panic", r))
		}
	}()
	p.publish(p.reader.UsageStats())
}
