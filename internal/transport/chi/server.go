package chi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/replyguard/internal/domain"
	domquota "github.com/kailas-cloud/replyguard/internal/domain/quota"
	"github.com/kailas-cloud/replyguard/internal/domain/reply"
	"github.com/kailas-cloud/replyguard/internal/logger"
	generateuc "github.com/kailas-cloud/replyguard/internal/usecase/generate"
	healthuc "github.com/kailas-cloud/replyguard/internal/usecase/health"
)

// UpstreamTokenHeader carries the caller's token for the reply generation API.
const UpstreamTokenHeader = "X-Upstream-Token"

const maxBodyBytes = 64 << 10

// QuotaTracker is the quota surface exposed over HTTP.
type QuotaTracker interface {
	CanMakeRequest(ctx context.Context, emailContent, subject string) domquota.AdmissionResult
	RecordRequest(ctx context.Context, emailContent, subject string)
	TryAdmit(ctx context.Context, emailContent, subject string) domquota.AdmissionResult
	UsageStats() domquota.Snapshot
	RemainingQuota() domquota.Remaining
	EstimateTokens(text string) int
}

// Generator forwards admitted reply requests upstream.
type Generator interface {
	Generate(ctx context.Context, mode reply.Mode, req reply.Request, bearer string) (json.RawMessage, error)
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server serves the quota and reply generation API.
type Server struct {
	quota         QuotaTracker
	generator     Generator
	health        HealthChecker
	logger        *zap.Logger
	forwardAuth   bool
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(quota QuotaTracker, generator Generator, health HealthChecker, logger *zap.Logger) *Server {
	s := &Server{
		quota:     quota,
		generator: generator,
		health:    health,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		quotaExceededHandler,
		validationHandler,
		sentinelHandler(domain.ErrQuotaExceeded, http.StatusTooManyRequests, ErrorCodeQuotaExceeded),
		sentinelHandler(domain.ErrUpstream, http.StatusBadGateway, ErrorCodeUpstreamError),
	}
	return s
}

// WithForwardedAuthorization makes the generate endpoints fall back to the
// request's own bearer token when X-Upstream-Token is absent. Only safe
// when the API itself is unauthenticated.
func (s *Server) WithForwardedAuthorization(enabled bool) *Server {
	s.forwardAuth = enabled
	return s
}

// Routes registers all endpoints on r.
func (s *Server) Routes(r chi.Router) {
	r.Route("/quota", func(r chi.Router) {
		r.Post("/check", s.CheckQuota)
		r.Post("/record", s.RecordRequest)
		r.Post("/admit", s.AdmitRequest)
		r.Get("/usage", s.GetUsage)
		r.Get("/remaining", s.GetRemaining)
		r.Get("/estimate", s.EstimateTokens)
	})
	r.Post("/email/generate", s.generateHandler(reply.ModeGenerate))
	r.Post("/email/regenerate", s.generateHandler(reply.ModeRegenerate))
	r.Post("/email/generate-single", s.generateHandler(reply.ModeGenerateSingle))
	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrorCodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrorCodeMethodNotAllowed, "method not allowed")
	})
}

// CheckQuota handles POST /quota/check.
func (s *Server) CheckQuota(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuotaText(w, r)
	if !ok {
		return
	}
	res := s.quota.CanMakeRequest(r.Context(), req.EmailContent, req.Subject)
	writeJSON(w, http.StatusOK, admissionToDTO(res))
}

// RecordRequest handles POST /quota/record.
func (s *Server) RecordRequest(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuotaText(w, r)
	if !ok {
		return
	}
	s.quota.RecordRequest(r.Context(), req.EmailContent, req.Subject)
	w.WriteHeader(http.StatusNoContent)
}

// AdmitRequest handles POST /quota/admit.
func (s *Server) AdmitRequest(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuotaText(w, r)
	if !ok {
		return
	}
	res := s.quota.TryAdmit(r.Context(), req.EmailContent, req.Subject)
	if !res.CanProceed {
		setRetryAfter(w, res)
		writeJSON(w, http.StatusTooManyRequests, admissionToDTO(res))
		return
	}
	writeJSON(w, http.StatusOK, admissionToDTO(res))
}

// GetUsage handles GET /quota/usage.
func (s *Server) GetUsage(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, snapshotToDTO(s.quota.UsageStats()))
}

// GetRemaining handles GET /quota/remaining.
func (s *Server) GetRemaining(w http.ResponseWriter, _ *http.Request) {
	rem := s.quota.RemainingQuota()
	writeJSON(w, http.StatusOK, RemainingResponse{
		RequestsThisMinute: rem.RequestsThisMinute,
		RequestsToday:      rem.RequestsToday,
		TokensThisMinute:   rem.TokensThisMinute,
	})
}

// EstimateTokens handles GET /quota/estimate?text=.
func (s *Server) EstimateTokens(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	writeJSON(w, http.StatusOK, EstimateResponse{EstimatedTokens: s.quota.EstimateTokens(text)})
}

func (s *Server) generateHandler(mode reply.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
			return
		}

		body, err := s.generator.Generate(r.Context(), mode, reply.Request{
			Subject:      req.Subject,
			EmailContent: req.EmailContent,
			Tone:         req.Tone,
			Language:     req.Language,
		}, s.upstreamToken(r))
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

func (s *Server) upstreamToken(r *http.Request) string {
	if tok := strings.TrimSpace(r.Header.Get(UpstreamTokenHeader)); tok != "" {
		return tok
	}
	if s.forwardAuth {
		if tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	return ""
}

// decodeQuotaText reads an optional QuotaTextRequest body. An empty body is
// an empty text.
func decodeQuotaText(w http.ResponseWriter, r *http.Request) (QuotaTextRequest, bool) {
	var req QuotaTextRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return QuotaTextRequest{}, false
	}
	return req, true
}

func setRetryAfter(w http.ResponseWriter, res domquota.AdmissionResult) {
	if secs := res.RetryAfterSeconds(); secs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// quotaExceededHandler answers 429 with Retry-After and the admission result.
func quotaExceededHandler(w http.ResponseWriter, err error) bool {
	var qe *generateuc.QuotaExceededError
	if !errors.As(err, &qe) {
		return false
	}
	adm := admissionToDTO(qe.Admission)
	setRetryAfter(w, qe.Admission)
	writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
		Code:      ErrorCodeQuotaExceeded,
		Message:   domain.ErrQuotaExceeded.Error(),
		Admission: &adm,
	})
	return true
}

// validationHandler exposes the field message, which never carries internals.
func validationHandler(w http.ResponseWriter, err error) bool {
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, ve.Message)
	return true
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, sentinel.Error())
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	for _, h := range s.errorHandlers {
		if h(w, err) {
			log.Debug("request rejected", zap.Error(err))
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
