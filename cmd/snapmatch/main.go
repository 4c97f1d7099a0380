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

	"github.com/snapmatch-ai/snapmatch/internal/config"
	dbRedis "github.com/snapmatch-ai/snapmatch/internal/db/redis"
	"github.com/snapmatch-ai/snapmatch/internal/domain"
	logpkg "github.com/snapmatch-ai/snapmatch/internal/logger"
	"github.com/snapmatch-ai/snapmatch/internal/metrics"
	budgetrepo "github.com/snapmatch-ai/snapmatch/internal/repository/budget"
	"github.com/snapmatch-ai/snapmatch/internal/repository/embcache"
	recordrepo "github.com/snapmatch-ai/snapmatch/internal/repository/record"
	chiTransport "github.com/snapmatch-ai/snapmatch/internal/transport/chi"
	openaiProvider "github.com/snapmatch-ai/snapmatch/internal/transport/openai"
	s3blob "github.com/snapmatch-ai/snapmatch/internal/transport/s3"
	budgetuc "github.com/snapmatch-ai/snapmatch/internal/usecase/budget"
	healthuc "github.com/snapmatch-ai/snapmatch/internal/usecase/health"
	ingestuc "github.com/snapmatch-ai/snapmatch/internal/usecase/ingest"
	matchuc "github.com/snapmatch-ai/snapmatch/internal/usecase/match"
	provideruc "github.com/snapmatch-ai/snapmatch/internal/usecase/provider"
	"github.com/snapmatch-ai/snapmatch/internal/version"
)

// embeddingCacheTTL bounds how long a description embedding stays reusable.
const embeddingCacheTTL = 14 * 24 * time.Hour

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting snapmatch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterProviderMetrics()
	metrics.RegisterPipelineMetrics()

	// Blob store
	blobCfg := s3blob.Config{
		Endpoint:      cfg.Blob.Endpoint,
		Region:        cfg.Blob.Region,
		Bucket:        cfg.Blob.Bucket,
		KeyPrefix:     cfg.Blob.KeyPrefix,
		AccessKey:     cfg.Blob.AccessKey,
		SecretKey:     cfg.Blob.SecretKey,
		PublicBaseURL: cfg.Blob.PublicBaseURL,
		Logger:        logger,
	}
	blobStore := s3blob.NewStore(s3blob.Connect(blobCfg), blobCfg)

	// Provider decorator chains
	budgetStore := budgetrepo.New(store, 48*time.Hour, 62*24*time.Hour)
	retryCfg := openaiProvider.RetryConfig{
		Attempts: uint64(cfg.Pipeline.RetryAttempts),
		Base:     time.Duration(cfg.Pipeline.RetryBaseMs) * time.Millisecond,
	}

	describer, visionCheck := buildDescriber(ctx, cfg, retryCfg, budgetStore, logger)
	embedder, embeddingCheck := buildEmbedder(ctx, cfg, retryCfg, store, budgetStore, logger)
	logger.Info("Providers created",
		zap.String("vision_model", cfg.Vision.Model),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	// Repositories
	recRepo := recordrepo.New(store, cfg.Embedding.Dimensions).
		WithHNSW(cfg.Database.HNSWM, cfg.Database.HNSWEFConstruct)
	if err := recRepo.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure vector index", zap.Error(err))
	}

	// Use case services
	ingestSvc := ingestuc.New(recRepo, blobStore, describer, embedder, logger).
		WithWorkers(cfg.Pipeline.Workers)
	matchSvc := matchuc.New(recRepo, embedder, logger).
		WithWorkers(cfg.Pipeline.Workers)
	healthSvc := healthuc.New(store).
		WithComponent("blob", blobStore).
		WithComponent("vision", visionCheck).
		WithComponent("embedding", embeddingCheck)

	// HTTP server
	server := chiTransport.NewServer(ingestSvc, matchSvc, healthSvc, logger).
		WithLimits(int64(cfg.HTTP.MaxUploadMB)<<20, cfg.Pipeline.MaxBatchSize)

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

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// newBudget builds a tracker for one provider, or nil when no limits are set.
func newBudget(
	ctx context.Context, provider string, cfg config.BudgetConfig,
	store budgetuc.Store, logger *zap.Logger,
) *budgetuc.Tracker {
	if cfg.DailyTokenLimit <= 0 && cfg.MonthlyTokenLimit <= 0 {
		return nil
	}
	action := budgetuc.ActionWarn
	if cfg.Action == "reject" {
		action = budgetuc.ActionReject
	}
	return budgetuc.NewTracker(
		provider, cfg.DailyTokenLimit, cfg.MonthlyTokenLimit, action, logger,
	).WithStore(ctx, store)
}

// budgetChecker converts a possibly-nil tracker into the checker interface.
// Go gotcha: (*Tracker)(nil) wrapped in BudgetChecker != nil.
func budgetChecker(b *budgetuc.Tracker) provideruc.BudgetChecker {
	if b == nil {
		return nil
	}
	return b
}

// buildDescriber assembles the vision chain: OpenAI -> Retrying -> Instrumented.
// The second return value is the base provider's health check.
func buildDescriber(
	ctx context.Context, cfg config.Config, retryCfg openaiProvider.RetryConfig,
	budgetStore budgetuc.Store, logger *zap.Logger,
) (domain.Describer, healthuc.ComponentChecker) {
	base := openaiProvider.NewDescriber(&openaiProvider.DescriberConfig{
		APIKey:   cfg.Vision.APIKey,
		BaseURL:  cfg.Vision.BaseURL,
		Model:    cfg.Vision.Model,
		Provider: "vision",
		Logger:   logger,
	})

	var describer domain.Describer = openaiProvider.NewRetryingDescriber(base, retryCfg, logger)

	budget := newBudget(ctx, "vision", cfg.Vision.Budget, budgetStore, logger)
	return provideruc.NewInstrumentedDescriber(
		describer, "vision", cfg.Vision.Model, budgetChecker(budget), logger,
	), base
}

// buildEmbedder assembles the embedding chain: OpenAI -> Retrying -> Cached -> Instrumented.
// The second return value is the base provider's health check.
func buildEmbedder(
	ctx context.Context, cfg config.Config, retryCfg openaiProvider.RetryConfig,
	store *dbRedis.Store, budgetStore budgetuc.Store, logger *zap.Logger,
) (domain.Embedder, healthuc.ComponentChecker) {
	base := openaiProvider.NewEmbedder(&openaiProvider.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   "embedding",
		Logger:     logger,
	})

	var embedder domain.Embedder = openaiProvider.NewRetryingEmbedder(base, retryCfg, logger)
	embedder = embcache.New(embedder, store, embeddingCacheTTL, metrics.EmbeddingCacheTotal, logger)

	budget := newBudget(ctx, "embedding", cfg.Embedding.Budget, budgetStore, logger)
	return provideruc.NewInstrumentedEmbedder(
		embedder, "embedding", cfg.Embedding.Model, budgetChecker(budget), logger,
	), base
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
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

			reqLogger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
