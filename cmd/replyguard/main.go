package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/replyguard/internal/config"
	"github.com/kailas-cloud/replyguard/internal/db"
	dbMemory "github.com/kailas-cloud/replyguard/internal/db/memory"
	dbRedis "github.com/kailas-cloud/replyguard/internal/db/redis"
	dbSQLite "github.com/kailas-cloud/replyguard/internal/db/sqlite"
	logpkg "github.com/kailas-cloud/replyguard/internal/logger"
	"github.com/kailas-cloud/replyguard/internal/metrics"
	dailyrepo "github.com/kailas-cloud/replyguard/internal/repository/daily"
	chiTransport "github.com/kailas-cloud/replyguard/internal/transport/chi"
	"github.com/kailas-cloud/replyguard/internal/transport/replyapi"
	generateuc "github.com/kailas-cloud/replyguard/internal/usecase/generate"
	healthuc "github.com/kailas-cloud/replyguard/internal/usecase/health"
	quotauc "github.com/kailas-cloud/replyguard/internal/usecase/quota"
	"github.com/kailas-cloud/replyguard/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, logpkg.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting replyguard",
		zap.String("version", version.String()),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("upstream", cfg.Upstream.BaseURL),
	)

	store, err := newStore(cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to create storage", zap.Error(err))
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Storage.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Storage not ready", zap.Error(err))
	}
	logger.Info("Connected to storage")

	// Register quota metrics explicitly (no init())
	metrics.RegisterQuotaMetrics()

	loc, err := cfg.Quota.Location()
	if err != nil {
		logger.Fatal("Invalid quota timezone", zap.Error(err))
	}

	// One tracker per process, shared by every consumer.
	daily := dailyrepo.New(store, cfg.Storage.KeyPrefix, time.Duration(cfg.Storage.RecordTTLHours)*time.Hour)
	tracker := quotauc.NewTracker(cfg.Quota.Limits(), logger).
		WithLocation(loc).
		WithStoragePolicy(quotauc.StoragePolicy(cfg.Quota.OnStorageError)).
		WithStore(ctx, daily)

	go quotauc.NewPoller(tracker, cfg.Quota.PollInterval(), logger).Run(ctx)

	upstream := replyapi.New(cfg.Upstream.BaseURL,
		replyapi.WithTimeout(time.Duration(cfg.Upstream.TimeoutSec)*time.Second))

	generateSvc := generateuc.New(tracker, upstream)
	healthSvc := healthuc.New(store, upstream)

	authEnabled := hasKeys(cfg.Auth.APIKeys)
	server := chiTransport.NewServer(tracker, generateSvc, healthSvc, logger).
		WithForwardedAuthorization(!authEnabled)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr), zap.Bool("auth", authEnabled))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// newStore creates the daily record backend for the configured driver.
func newStore(cfg config.StorageConfig) (db.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return dbMemory.NewStore(), nil
	case config.DriverSQLite:
		return dbSQLite.NewStore(dbSQLite.Config{Path: cfg.Path})
	case config.DriverValkey, config.DriverRedis:
		// valkey speaks the redis protocol; one client serves both.
		return dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Addrs,
			Password: cfg.Password,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func hasKeys(keys []string) bool {
	for _, k := range keys {
		if k != "" {
			return true
		}
	}
	return false
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.String("path", r.URL.Path),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.ErrorCodeInternalError,
						Message: "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int("response_bytes", ww.BytesWritten()),
			}
			if ra := ww.Header().Get("Retry-After"); ra != "" {
				fields = append(fields, zap.String("retry_after", ra))
			}
			reqLogger.Info("http_request", fields...)
		})
	}
}
