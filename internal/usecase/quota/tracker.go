// Package quota implements the client-side generation quota: a sliding
// window of requests and estimated tokens plus a calendar-day request log
// that survives restarts through a DailyStore.
package quota

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	domquota "github.com/kailas-cloud/replyguard/internal/domain/quota"
	"github.com/kailas-cloud/replyguard/internal/metrics"
)

// storeTimeout bounds each Load and Save. Store calls are detached from the
// caller's cancellation: a client hanging up must not turn into a failed
// load.
const storeTimeout = 2 * time.Second

type tokenUsage struct {
	at     time.Time
	tokens int
}

// Tracker decides whether a generation request may go out now and records
// the ones that do, without a server round-trip.
//
// All methods are safe for concurrent use. CanMakeRequest followed by
// RecordRequest is not atomic as a pair: two callers can both be admitted
// before either records. TryAdmit checks and records under one lock.
//
// While the store cannot be read the tracker keeps admitting against the
// last daily log it saw and holds new entries back until a load succeeds.
//
// The daily record is shared through the store with last-write-wins
// semantics, so several processes writing the same key can lose each
// other's requests. Minute-window state is per process.
type Tracker struct {
	mu     sync.Mutex
	limits domquota.Limits
	policy StoragePolicy
	store  DailyStore
	now    func() time.Time
	loc    *time.Location
	logger *zap.Logger

	minute      []time.Time
	tokens      []tokenUsage
	dailyDate   string
	daily       []time.Time
	dailyFailed bool        // last Load failed; the stored record is left alone
	pending     []time.Time // recorded while dailyFailed, merged on recovery
}

// NewTracker creates an in-memory tracker. Attach a store with WithStore.
func NewTracker(limits domquota.Limits, logger *zap.Logger) *Tracker {
	t := &Tracker{
		limits: limits,
		policy: FailOpen,
		now:    time.Now,
		loc:    time.Local,
		logger: logger,
	}
	t.dailyDate = domquota.DateOf(t.now(), t.loc)
	return t
}

// WithClock replaces the wall clock. Call before WithStore.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	t.dailyDate = domquota.DateOf(now(), t.loc)
	return t
}

// WithLocation sets the time zone that defines the calendar day. Call before WithStore.
func (t *Tracker) WithLocation(loc *time.Location) *Tracker {
	t.loc = loc
	t.dailyDate = domquota.DateOf(t.now(), loc)
	return t
}

// WithStoragePolicy sets the behaviour on unreadable daily records.
func (t *Tracker) WithStoragePolicy(p StoragePolicy) *Tracker {
	t.policy = p
	return t
}

// WithStore attaches the daily record store and loads today's requests.
func (t *Tracker) WithStore(ctx context.Context, store DailyStore) *Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.store = store
	t.syncDaily(ctx, t.now())

	t.logger.Info("Daily quota loaded from store",
		zap.String("date", t.dailyDate),
		zap.Int("requests_today", len(t.daily)),
		zap.Bool("load_failed", t.dailyFailed),
	)
	return t
}

// Limits returns the configured limits.
func (t *Tracker) Limits() domquota.Limits { return t.limits }

// EstimateTokens estimates the token cost of text under the tracker's limits.
func (t *Tracker) EstimateTokens(text string) int {
	return EstimateTokens(t.limits, text)
}

// CanMakeRequest evaluates the three quota checks for a prospective request.
// It prunes expired window entries and handles day rollover, but never
// records anything.
func (t *Tracker) CanMakeRequest(ctx context.Context, emailContent, subject string) domquota.AdmissionResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.syncDaily(ctx, now)
	t.prune(now)

	res := t.evaluate(now, t.EstimateTokens(emailContent+subject))
	metrics.ObserveAdmission(res)
	return res
}

// RecordRequest records a request unconditionally. Callers are expected to
// have been admitted by CanMakeRequest first.
func (t *Tracker) RecordRequest(ctx context.Context, emailContent, subject string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.syncDaily(ctx, now)
	t.prune(now)
	t.record(ctx, now, t.EstimateTokens(emailContent+subject))
}

// TryAdmit checks and, when admitted, records the request in one step.
// The returned counts are the ones the decision was made on.
func (t *Tracker) TryAdmit(ctx context.Context, emailContent, subject string) domquota.AdmissionResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.syncDaily(ctx, now)
	t.prune(now)

	estimate := t.EstimateTokens(emailContent + subject)
	res := t.evaluate(now, estimate)
	metrics.ObserveAdmission(res)
	if res.CanProceed {
		t.record(ctx, now, estimate)
	}
	return res
}

// UsageStats returns current usage. Read-only: no pruning, no storage I/O.
func (t *Tracker) UsageStats() domquota.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	cutoff := now.Add(-t.limits.Window)

	requests := 0
	for _, at := range t.minute {
		if at.After(cutoff) {
			requests++
		}
	}
	tokens := 0
	for _, u := range t.tokens {
		if u.at.After(cutoff) {
			tokens += u.tokens
		}
	}
	daily := 0
	if t.dailyDate == domquota.DateOf(now, t.loc) {
		daily = len(t.daily)
	}

	return domquota.NewSnapshot(t.limits, requests, daily, tokens)
}

// RemainingQuota returns the headroom under each limit, clamped at zero.
func (t *Tracker) RemainingQuota() domquota.Remaining {
	return t.UsageStats().Remaining()
}

func (t *Tracker) evaluate(now time.Time, estimate int) domquota.AdmissionResult {
	recentTokens := 0
	for _, u := range t.tokens {
		recentTokens += u.tokens
	}

	storageDown := t.dailyFailed && t.policy == FailClosed
	withinMinute := len(t.minute) < t.limits.RequestsPerMinute
	withinDaily := len(t.daily) < t.limits.RequestsPerDay && !storageDown
	withinTokens := recentTokens+estimate < t.limits.TokensPerMinute

	return domquota.AdmissionResult{
		CanProceed: withinMinute && withinDaily && withinTokens,
		Limits: domquota.Counts{
			RequestsThisMinute:        len(t.minute),
			RequestsToday:             len(t.daily),
			TokensThisMinute:          recentTokens,
			EstimatedTokensForRequest: estimate,
		},
		TimeUntilReset: t.resetTimes(now),
		Reasons: domquota.Reasons{
			RateLimited:        !withinMinute,
			DailyLimitReached:  !withinDaily,
			TokenLimitReached:  !withinTokens,
			StorageUnavailable: storageDown,
		},
	}
}

// resetTimes reports the time left in the current wall-clock window and the
// whole hours until local midnight.
func (t *Tracker) resetTimes(now time.Time) domquota.ResetTimes {
	windowMs := t.limits.Window.Milliseconds()
	elapsed := now.UnixMilli() % windowMs

	local := now.In(t.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, t.loc)

	return domquota.ResetTimes{
		MinuteSeconds: float64(windowMs-elapsed) / 1000,
		DailyHours:    int(math.Ceil(midnight.Sub(local).Hours())),
	}
}

func (t *Tracker) record(ctx context.Context, now time.Time, estimate int) {
	t.minute = append(t.minute, now)
	t.tokens = append(t.tokens, tokenUsage{at: now, tokens: estimate})
	t.daily = append(t.daily, now)

	metrics.QuotaRecordedRequestsTotal.Inc()
	metrics.QuotaEstimatedTokensTotal.Add(float64(estimate))

	if t.dailyFailed {
		t.pending = append(t.pending, now)
		return
	}
	t.persist(ctx)
}

// prune drops window entries at or before now-window.
func (t *Tracker) prune(now time.Time) {
	cutoff := now.Add(-t.limits.Window)
	t.minute = slices.DeleteFunc(t.minute, func(at time.Time) bool { return !at.After(cutoff) })
	t.tokens = slices.DeleteFunc(t.tokens, func(u tokenUsage) bool { return !u.at.After(cutoff) })
}

// syncDaily refreshes the daily log from the store and resets it on a new
// calendar day. A failed load keeps the in-memory log and marks the store
// unreadable; under FailClosed that blocks admission until a load succeeds.
// A corrupt record is overwritten with the in-memory log.
func (t *Tracker) syncDaily(ctx context.Context, now time.Time) {
	today := domquota.DateOf(now, t.loc)
	if t.dailyDate != today {
		t.resetDaily(today)
	}
	if t.store == nil {
		return
	}

	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	rec, ok, err := t.store.Load(lctx)
	cancel()

	save := len(t.pending) > 0
	switch {
	case errors.Is(err, domquota.ErrCorruptRecord):
		metrics.QuotaStorageErrorsTotal.WithLabelValues("load").Inc()
		t.logger.Warn("Overwriting corrupt daily quota record",
			zap.Int("requests_today", len(t.daily)),
			zap.Error(err),
		)
		save = true
	case err != nil:
		metrics.QuotaStorageErrorsTotal.WithLabelValues("load").Inc()
		t.logger.Warn("Failed to load daily quota record",
			zap.String("policy", string(t.policy)),
			zap.Int("pending", len(t.pending)),
			zap.Error(err),
		)
		t.dailyFailed = true
		return
	case !ok:
		// Nothing stored yet: keep what this process recorded today.
	case rec.Date != today:
		t.logger.Info("Daily quota rolled over",
			zap.String("stored_date", rec.Date),
			zap.String("today", today),
			zap.Int("stored_requests", len(rec.Requests)),
		)
		save = true
	default:
		t.daily = append(slices.Clone(rec.Requests), t.pending...)
	}

	if t.dailyFailed && len(t.pending) > 0 {
		t.logger.Info("Daily quota store readable again",
			zap.Int("merged_requests", len(t.pending)),
		)
	}
	t.dailyFailed = false
	t.pending = nil
	if save {
		t.persist(ctx)
	}
}

// resetDaily starts a new day, keeping entries held back for that day.
func (t *Tracker) resetDaily(today string) {
	t.dailyDate = today
	t.pending = slices.DeleteFunc(t.pending, func(at time.Time) bool {
		return domquota.DateOf(at, t.loc) != today
	})
	t.daily = slices.Clone(t.pending)
}

// persist writes the daily log. Failures are logged and counted only: the
// window accounting keeps working and the daily count may under-report
// after a restart.
func (t *Tracker) persist(ctx context.Context) {
	if t.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	rec := domquota.DailyRecord{Date: t.dailyDate, Requests: slices.Clone(t.daily)}
	if err := t.store.Save(ctx, rec); err != nil {
		metrics.QuotaStorageErrorsTotal.WithLabelValues("save").Inc()
		t.logger.Warn("Failed to persist daily quota record",
			zap.String("date", t.dailyDate),
			zap.Int("requests_today", len(t.daily)),
			zap.Error(err),
		)
	}
}
