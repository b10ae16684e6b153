package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/replyguard/internal/domain/quota"
)

// Quota Prometheus metrics.
var (
	QuotaChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replyguard",
			Name:      "quota_checks_total",
			Help:      "Admission checks by outcome",
		},
		[]string{"result"}, // "admitted" / "rejected"
	)

	QuotaRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replyguard",
			Name:      "quota_rejections_total",
			Help:      "Failed admission checks by reason",
		},
		[]string{"reason"},
	)

	QuotaRecordedRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "replyguard",
			Name:      "quota_recorded_requests_total",
			Help:      "Requests recorded against the quota",
		},
	)

	QuotaEstimatedTokensTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "replyguard",
			Name:      "quota_estimated_tokens_total",
			Help:      "Estimated tokens of recorded requests",
		},
	)

	QuotaStorageErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replyguard",
			Name:      "quota_storage_errors_total",
			Help:      "Daily record persistence failures",
		},
		[]string{"op"}, // "load" / "save"
	)

	QuotaUsage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "replyguard",
			Name:      "quota_usage",
			Help:      "Current quota usage",
		},
		[]string{"window", "unit"},
	)

	QuotaUsageRatio = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "replyguard",
			Name:      "quota_usage_ratio",
			Help:      "Current quota usage as a fraction of the limit",
		},
		[]string{"window", "unit"},
	)
)

var quotaMetricsRegistered bool

// RegisterQuotaMetrics registers Prometheus quota metrics. Must be called once from main.
func RegisterQuotaMetrics() {
	if quotaMetricsRegistered {
		return
	}
	prometheus.MustRegister(QuotaChecksTotal)
	prometheus.MustRegister(QuotaRejectionsTotal)
	prometheus.MustRegister(QuotaRecordedRequestsTotal)
	prometheus.MustRegister(QuotaEstimatedTokensTotal)
	prometheus.MustRegister(QuotaStorageErrorsTotal)
	prometheus.MustRegister(QuotaUsage)
	prometheus.MustRegister(QuotaUsageRatio)
	quotaMetricsRegistered = true
}

// ObserveAdmission counts a check and each reason it failed on.
func ObserveAdmission(res quota.AdmissionResult) {
	if res.CanProceed {
		QuotaChecksTotal.WithLabelValues("admitted").Inc()
		return
	}
	QuotaChecksTotal.WithLabelValues("rejected").Inc()
	for _, reason := range res.Reasons.Names() {
		QuotaRejectionsTotal.WithLabelValues(reason).Inc()
	}
}

// PublishUsage mirrors a usage snapshot into the usage gauges.
func PublishUsage(s quota.Snapshot) {
	QuotaUsage.WithLabelValues("minute", "requests").Set(float64(s.RequestsThisMinute))
	QuotaUsage.WithLabelValues("minute", "tokens").Set(float64(s.TokensThisMinute))
	QuotaUsage.WithLabelValues("day", "requests").Set(float64(s.RequestsToday))
	QuotaUsageRatio.WithLabelValues("minute", "requests").Set(s.PercentageUsed.Minute)
	QuotaUsageRatio.WithLabelValues("minute", "tokens").Set(s.PercentageUsed.Tokens)
	QuotaUsageRatio.WithLabelValues("day", "requests").Set(s.PercentageUsed.Daily)
}
