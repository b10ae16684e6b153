package chi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/replyguard/internal/domain"
	domquota "github.com/kailas-cloud/replyguard/internal/domain/quota"
	"github.com/kailas-cloud/replyguard/internal/domain/reply"
	generateuc "github.com/kailas-cloud/replyguard/internal/usecase/generate"
	healthuc "github.com/kailas-cloud/replyguard/internal/usecase/health"
	quotauc "github.com/kailas-cloud/replyguard/internal/usecase/quota"
)

// --- Mocks ---

type mockGenerator struct {
	body   json.RawMessage
	err    error
	mode   reply.Mode
	req    reply.Request
	bearer string
}

func (m *mockGenerator) Generate(_ context.Context, mode reply.Mode, req reply.Request, bearer string) (json.RawMessage, error) {
	m.mode, m.req, m.bearer = mode, req, bearer
	return m.body, m.err
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(_ context.Context) healthuc.Report { return m.report }

// --- Helpers ---

var fixedNow = time.Date(2025, 3, 14, 12, 0, 30, 0, time.UTC)

func newTestRouter(gen *mockGenerator, health *mockHealth) (http.Handler, *quotauc.Tracker) {
	tracker := quotauc.NewTracker(domquota.DefaultLimits(), zap.NewNop()).
		WithLocation(time.UTC).
		WithClock(func() time.Time { return fixedNow })
	if gen == nil {
		gen = &mockGenerator{body: json.RawMessage(`{}`)}
	}
	if health == nil {
		health = &mockHealth{report: healthuc.Report{Status: healthuc.Healthy}}
	}

	r := chi.NewRouter()
	NewServer(tracker, gen, health, zap.NewNop()).Routes(r)
	return r, tracker
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rr.Body.String())
	}
	return v
}

// --- Quota endpoints ---

func TestCheckQuota_Fresh(t *testing.T) {
	h, _ := newTestRouter(nil, nil)

	rr := do(t, h, "POST", "/quota/check", `{"emailContent":"hello there","subject":"hi"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	res := decode[AdmissionResponse](t, rr)
	if !res.CanProceed {
		t.Error("expected canProceed")
	}
	if res.Limits.EstimatedTokensForRequest != 304 {
		t.Errorf("expected estimate 304, got %d", res.Limits.EstimatedTokensForRequest)
	}
	if res.TimeUntilReset.Minute != 30 {
		t.Errorf("expected 30s to minute reset, got %v", res.TimeUntilReset.Minute)
	}
	if res.TimeUntilReset.Daily != 12 {
		t.Errorf("expected 12h to daily reset, got %d", res.TimeUntilReset.Daily)
	}
}

func TestCheckQuota_EmptyBody(t *testing.T) {
	h, _ := newTestRouter(nil, nil)

	rr := do(t, h, "POST", "/quota/check", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for empty body, got %d", rr.Code)
	}
	if got := decode[AdmissionResponse](t, rr).Limits.EstimatedTokensForRequest; got != 300 {
		t.Errorf("expected estimate 300, got %d", got)
	}
}

func TestCheckQuota_BadJSON(t *testing.T) {
	h, _ := newTestRouter(nil, nil)

	rr := do(t, h, "POST", "/quota/check", `{"emailContent":`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if got := decode[ErrorResponse](t, rr).Code; got != ErrorCodeBadRequest {
		t.Errorf("expected %s, got %s", ErrorCodeBadRequest, got)
	}
}

func TestRecordRequest_ThenUsage(t *testing.T) {
	h, _ := newTestRouter(nil, nil)

	rr := do(t, h, "POST", "/quota/record", `{"emailContent":"abcd","subject":""}`)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}

	usage := decode[UsageResponse](t, do(t, h, "GET", "/quota/usage", ""))
	if usage.RequestsThisMinute != 1 || usage.RequestsToday != 1 {
		t.Errorf("expected 1/1, got minute=%d today=%d", usage.RequestsThisMinute, usage.RequestsToday)
	}
	if usage.TokensThisMinute != 301 {
		t.Errorf("expected 301 tokens, got %d", usage.TokensThisMinute)
	}
	if usage.MaxRequestsPerMinute != 8 || usage.MaxRequestsPerDay != 200 || usage.MaxTokensPerMinute != 200000 {
		t.Errorf("unexpected maxima %+v", usage)
	}
	if usage.PercentageUsed.Minute != 0.125 {
		t.Errorf("expected minute ratio 0.125, got %v", usage.PercentageUsed.Minute)
	}
}

func TestAdmitRequest_RejectsWith429(t *testing.T) {
	h, _ := newTestRouter(nil, nil)

	for i := range 8 {
		rr := do(t, h, "POST", "/quota/admit", `{}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("admit %d: expected 200, got %d", i, rr.Code)
		}
	}

	rr := do(t, h, "POST", "/quota/admit", `{}`)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "30" {
		t.Errorf("expected Retry-After 30, got %q", got)
	}
	res := decode[AdmissionResponse](t, rr)
	if res.CanProceed || !res.Reasons.RateLimited {
		t.Errorf("expected rateLimited rejection, got %+v", res)
	}
}

func TestGetRemaining(t *testing.T) {
	h, tracker := newTestRouter(nil, nil)
	for range 3 {
		tracker.RecordRequest(context.Background(), "", "")
	}

	rem := decode[RemainingResponse](t, do(t, h, "GET", "/quota/remaining", ""))
	if rem.RequestsThisMinute != 5 || rem.RequestsToday != 197 || rem.TokensThisMinute != 199100 {
		t.Errorf("unexpected remaining %+v", rem)
	}
}

func TestEstimateTokens(t *testing.T) {
	h, _ := newTestRouter(nil, nil)

	tests := []struct {
		query string
		want  int
	}{
		{"", 300},
		{"?text=" + strings.Repeat("a", 400), 400},
		{"?text=hello", 302},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("want=%d", tt.want), func(t *testing.T) {
			got := decode[EstimateResponse](t, do(t, h, "GET", "/quota/estimate"+tt.query, ""))
			if got.EstimatedTokens != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got.EstimatedTokens)
			}
		})
	}
}

// --- Generate endpoints ---

func TestGenerate_PassesThroughBody(t *testing.T) {
	gen := &mockGenerator{body: json.RawMessage(`{"summary":"s","replies":["r"]}`)}
	h, _ := newTestRouter(gen, nil)

	rr := do(t, h, "POST", "/email/regenerate",
		`{"subject":"Hi","emailContent":"Long enough content","tone":"casual"}`,
		UpstreamTokenHeader, "jwt-123")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr.Body.String() != `{"summary":"s","replies":["r"]}` {
		t.Errorf("unexpected body %s", rr.Body.String())
	}
	if gen.mode != reply.ModeRegenerate {
		t.Errorf("expected regenerate mode, got %q", gen.mode)
	}
	if gen.bearer != "jwt-123" {
		t.Errorf("expected upstream token, got %q", gen.bearer)
	}
	if gen.req.Tone != "casual" {
		t.Errorf("expected tone passed through, got %q", gen.req.Tone)
	}
}

func TestGenerate_SingleRoute(t *testing.T) {
	gen := &mockGenerator{body: json.RawMessage(`{"summary":"s","reply":"r"}`)}
	h, _ := newTestRouter(gen, nil)

	rr := do(t, h, "POST", "/email/generate-single",
		`{"subject":"Hi","emailContent":"Long enough content"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gen.mode != reply.ModeGenerateSingle {
		t.Errorf("expected generate-single mode, got %q", gen.mode)
	}
}

func TestGenerate_AuthorizationNotForwardedByDefault(t *testing.T) {
	gen := &mockGenerator{body: json.RawMessage(`{}`)}
	h, _ := newTestRouter(gen, nil)

	do(t, h, "POST", "/email/generate", `{}`, "Authorization", "Bearer api-key")
	if gen.bearer != "" {
		t.Errorf("api key must not leak upstream, got %q", gen.bearer)
	}
}

func TestGenerate_ForwardedAuthorization(t *testing.T) {
	gen := &mockGenerator{body: json.RawMessage(`{}`)}
	tracker := quotauc.NewTracker(domquota.DefaultLimits(), zap.NewNop())
	r := chi.NewRouter()
	NewServer(tracker, gen, &mockHealth{}, zap.NewNop()).WithForwardedAuthorization(true).Routes(r)

	do(t, r, "POST", "/email/generate", `{}`, "Authorization", "Bearer jwt-xyz")
	if gen.bearer != "jwt-xyz" {
		t.Errorf("expected forwarded token, got %q", gen.bearer)
	}
}

func TestGenerate_ErrorMapping(t *testing.T) {
	rejected := domquota.AdmissionResult{
		TimeUntilReset: domquota.ResetTimes{MinuteSeconds: 12.3, DailyHours: 5},
		Reasons:        domquota.Reasons{TokenLimitReached: true},
	}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   ErrorCode
	}{
		{"validation", domain.NewValidationError("subject", "email subject is required"),
			http.StatusBadRequest, ErrorCodeValidationFailed},
		{"quota", &generateuc.QuotaExceededError{Admission: rejected},
			http.StatusTooManyRequests, ErrorCodeQuotaExceeded},
		{"upstream", fmt.Errorf("generate reply: %w", domain.ErrUpstream),
			http.StatusBadGateway, ErrorCodeUpstreamError},
		{"unknown", fmt.Errorf("boom"),
			http.StatusInternalServerError, ErrorCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestRouter(&mockGenerator{err: tt.err}, nil)

			rr := do(t, h, "POST", "/email/generate", `{}`)
			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rr.Code)
			}
			if got := decode[ErrorResponse](t, rr).Code; got != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, got)
			}
		})
	}
}

func TestGenerate_QuotaExceededCarriesAdmission(t *testing.T) {
	rejected := domquota.AdmissionResult{
		TimeUntilReset: domquota.ResetTimes{MinuteSeconds: 12.3, DailyHours: 5},
		Reasons:        domquota.Reasons{TokenLimitReached: true},
	}
	h, _ := newTestRouter(&mockGenerator{err: &generateuc.QuotaExceededError{Admission: rejected}}, nil)

	rr := do(t, h, "POST", "/email/generate", `{}`)
	if got := rr.Header().Get("Retry-After"); got != "13" {
		t.Errorf("expected Retry-After 13, got %q", got)
	}
	resp := decode[ErrorResponse](t, rr)
	if resp.Admission == nil || !resp.Admission.Reasons.TokenLimitReached {
		t.Errorf("expected admission with tokenLimitReached, got %+v", resp.Admission)
	}
}

// --- Health and routing ---

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		report     healthuc.Report
		wantStatus int
	}{
		{"healthy", healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{"storage": healthuc.CheckOK}}, http.StatusOK},
		{"degraded", healthuc.Report{Status: healthuc.Degraded, Checks: map[string]healthuc.CheckResult{"upstream": healthuc.CheckError}}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestRouter(nil, &mockHealth{report: tt.report})

			rr := do(t, h, "GET", "/health", "")
			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rr.Code)
			}
			resp := decode[HealthResponse](t, rr)
			if resp.Status != string(tt.report.Status) {
				t.Errorf("expected status %q, got %q", tt.report.Status, resp.Status)
			}
		})
	}
}

func TestRouting_JSONErrors(t *testing.T) {
	h, _ := newTestRouter(nil, nil)

	rr := do(t, h, "GET", "/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
	if got := decode[ErrorResponse](t, rr).Code; got != ErrorCodeNotFound {
		t.Errorf("expected %s, got %s", ErrorCodeNotFound, got)
	}

	rr = do(t, h, "GET", "/quota/check", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rr.Code)
	}
}
