package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/outreach-console/cmd/mainconfig"
	"github.com/wolfman30/outreach-console/internal/api/router"
	"github.com/wolfman30/outreach-console/internal/app/bootstrap"
	"github.com/wolfman30/outreach-console/internal/calls"
	appconfig "github.com/wolfman30/outreach-console/internal/config"
	"github.com/wolfman30/outreach-console/internal/customers"
	"github.com/wolfman30/outreach-console/internal/email"
	"github.com/wolfman30/outreach-console/internal/memory"
	"github.com/wolfman30/outreach-console/internal/observability/metrics"
	"github.com/wolfman30/outreach-console/internal/outreach"
	"github.com/wolfman30/outreach-console/internal/script"
	"github.com/wolfman30/outreach-console/pkg/logging"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting outreach console API",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	metricsHandler, outreachMetrics := setupMetrics(prometheus.DefaultRegisterer)
	a, err := buildApp(ctx, cfg, outreachMetrics, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	a.recorder.Start(ctx)

	r := router.New(&router.Config{
		Logger:             logger,
		OutreachHandler:    outreach.NewHandler(a.orch, logger),
		CustomersHandler:   customers.NewHandler(a.repo, logger),
		CallWebhooks:       a.webhooks,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		APIRateLimit:       cfg.APIRateLimit,
		APIRateBurst:       cfg.APIRateBurst,
		HealthChecks:       a.healthChecks(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ExternalTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	a.close()
	stop()
	a.recorder.Wait()

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// app holds the long-lived collaborators main has to shut down.
type app struct {
	orch     *outreach.Orchestrator
	repo     customers.Repository
	recorder *memory.Recorder
	webhooks *calls.WebhookHandler
	redis    *redis.Client
	pool     *pgxpool.Pool
}

func setupMetrics(reg prometheus.Registerer) (http.Handler, *metrics.OutreachMetrics) {
	m := metrics.NewOutreachMetrics(reg)
	if gatherer, ok := reg.(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}), m
	}
	return promhttp.Handler(), m
}

func buildApp(ctx context.Context, cfg *appconfig.Config, mt *metrics.OutreachMetrics, logger *logging.Logger) (*app, error) {
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	a := &app{
		redis: bootstrap.BuildRedisClient(ctx, cfg, logger, true),
		pool:  bootstrap.BuildPostgresPool(ctx, cfg.DatabaseURL, logger),
	}
	a.repo = bootstrap.BuildCustomerRepository(a.pool, logger)
	if err := a.wire(ctx, cfg, &awsCfg, mt, logger); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, mt *metrics.OutreachMetrics, logger *logging.Logger) error {
	gen, err := bootstrap.BuildGenerator(ctx, cfg, awsCfg, logger)
	if err != nil {
		return err
	}
	sender, err := bootstrap.BuildEmailSender(cfg, awsCfg, logger)
	if err != nil {
		return err
	}
	a.recorder, err = bootstrap.BuildMemoryRecorder(cfg, awsCfg, mt, logger)
	if err != nil {
		return err
	}

	var rdb redis.UniversalClient
	if a.redis != nil {
		rdb = a.redis
	}
	callStack, err := bootstrap.BuildCallStack(cfg, rdb, mt, logger)
	if err != nil {
		return err
	}

	policy, err := script.LoadPolicy(cfg.SanitizerPolicyPath)
	if err != nil {
		return err
	}
	sanitizer, err := script.NewSanitizer(policy)
	if err != nil {
		return err
	}

	a.orch, err = outreach.New(outreach.Deps{
		Generator: gen,
		Composer: email.NewComposer(gen, email.ComposerConfig{
			ContextSize: cfg.GenerationContextSize,
			UserID:      cfg.MemoryUserID,
			Timeout:     cfg.ExternalTimeout,
		}, logger),
		Email:     bootstrap.BuildDispatcher(cfg, sender, logger),
		Calls:     callStack.Manager,
		Memory:    a.recorder,
		Customers: a.repo,
		Sanitizer: sanitizer,
		Metrics:   mt,
	}, outreach.Config{
		ContextSize:      cfg.GenerationContextSize,
		OwnerKey:         cfg.MemoryUserID,
		Timeout:          cfg.ExternalTimeout,
		EmailDebounce:    cfg.EmailDebounce,
		RankingFreshness: cfg.RankingFreshness,
	}, logger)
	if err != nil {
		callStack.Manager.Close()
		return err
	}
	a.webhooks = callStack.Webhooks
	return nil
}

func (a *app) healthChecks() map[string]router.HealthCheck {
	checks := map[string]router.HealthCheck{}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	}
	if a.pool != nil {
		checks["postgres"] = a.pool.Ping
	}
	return checks
}

// close is safe on a partially built app.
func (a *app) close() {
	if a.orch != nil {
		a.orch.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
