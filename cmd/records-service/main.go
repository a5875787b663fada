package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/medrex/healthcare-records/internal/api"
	"github.com/medrex/healthcare-records/internal/events"
	"github.com/medrex/healthcare-records/internal/healthcare"
	"github.com/medrex/healthcare-records/internal/storage"
	"github.com/medrex/healthcare-records/pkg/config"
	"github.com/medrex/healthcare-records/pkg/logger"
	"github.com/medrex/healthcare-records/pkg/monitoring"
	"github.com/medrex/healthcare-records/pkg/types"
)

const (
	serviceName    = "healthcare-records"
	serviceVersion = "1.0.0"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	issueToken := flag.String("issue-token", "", "print a bearer token for this identity and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of tokens minted with -issue-token")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	validator := api.NewTokenValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
	if *issueToken != "" {
		identity, err := types.ParseIdentity(*issueToken)
		if err != nil {
			log.Fatalf("Invalid identity: %v", err)
		}
		token, err := validator.IssueToken(identity, *tokenTTL)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	logger := logger.New(cfg.LogLevel)
	if err := run(cfg, validator, logger); err != nil {
		logger.WithError(err).Fatal("Records service failed")
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func run(cfg *config.Config, validator *api.TokenValidator, logger *logger.Logger) error {
	ctx := context.Background()

	backend, err := storage.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s backend: %w", cfg.Storage.Backend, err)
	}
	defer backend.Close()
	logger.WithFields(map[string]interface{}{
		"backend":   cfg.Storage.Backend,
		"encrypted": cfg.Storage.EncryptionKey != "",
	}).Info("Storage backend opened")

	location, err := cfg.Store.Location()
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetricsCollector(serviceName, registry)

	var tracing *monitoring.TracingManager
	if cfg.Monitoring.TracingEnabled {
		tracing, err = monitoring.NewTracingManager(&monitoring.TracingConfig{
			ServiceName:    serviceName,
			ServiceVersion: serviceVersion,
			JaegerEndpoint: cfg.Monitoring.JaegerEndpoint,
			Environment:    cfg.Monitoring.Environment,
			SamplingRate:   cfg.Monitoring.SamplingRate,
		})
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			tracing.Shutdown(shutdownCtx)
		}()
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Events.Enabled {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, cfg.Events.Queue, cfg.Events.RoutingKey)
		if err != nil {
			return err
		}
		publisher = amqpPublisher
		logger.WithField("exchange", cfg.Events.Exchange).Info("Publishing events over AMQP")
	}
	defer publisher.Close()

	store := healthcare.New(backend, logger,
		healthcare.WithPublisher(publisher),
		healthcare.WithMetrics(metrics),
		healthcare.WithFieldLimit(cfg.Store.MaxFieldLength),
		healthcare.WithLocation(location),
	)

	if err := bootstrapOwner(ctx, store, cfg.Store.BootstrapOwner, logger); err != nil {
		return err
	}

	health := monitoring.NewHealthManager(serviceName, serviceVersion)
	health.RegisterChecker("storage", monitoring.NewCustomHealthChecker(func(ctx context.Context) monitoring.HealthCheck {
		initialized, err := store.Initialized(ctx)
		if err != nil {
			return monitoring.HealthCheck{Status: monitoring.HealthStatusUnhealthy, Message: err.Error()}
		}
		if !initialized {
			return monitoring.HealthCheck{Status: monitoring.HealthStatusDegraded, Message: "store has no owner yet"}
		}
		return monitoring.HealthCheck{Status: monitoring.HealthStatusHealthy}
	}))
	registerProbes(health, map[string]interface{}{
		"database": backend,
		"events":   publisher,
	})

	opts := []api.ServerOption{
		api.WithMetrics(metrics, cfg.Monitoring.MetricsPath),
		api.WithHealth(health, cfg.Monitoring.HealthPath),
	}
	if tracing != nil {
		opts = append(opts, api.WithTracing(tracing))
	}
	stopCleanup := make(chan struct{})
	defer close(stopCleanup)
	if cfg.Server.WriteRateLimit > 0 {
		limiter := api.NewRateLimiter(cfg.Server.WriteRateLimit, time.Duration(cfg.Server.WriteRatePeriod)*time.Second)
		limiter.StartCleanup(10*time.Minute, stopCleanup)
		opts = append(opts, api.WithRateLimiter(limiter))
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewServer(store, validator, logger, opts...).Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", server.Addr).Info("Starting records service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		logger.WithField("signal", sig.String()).Info("Shutting down records service")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Records service stopped")
	return nil
}

// bootstrapOwner initializes an empty store with the configured owner. A
// store that already has an owner is left alone.
func bootstrapOwner(ctx context.Context, store *healthcare.Store, raw string, logger *logger.Logger) error {
	if raw == "" {
		return nil
	}
	owner, err := types.ParseIdentity(raw)
	if err != nil {
		return fmt.Errorf("invalid bootstrap owner: %w", err)
	}

	err = store.Initialize(ctx, owner)
	if errors.Is(err, types.ErrAlreadyInitialized) {
		current, err := store.GetOwner(ctx)
		if err != nil {
			return err
		}
		if current != owner {
			logger.WithField("owner", current.String()).Warn("Store already has a different owner; bootstrap owner ignored")
		}
		return nil
	}
	return err
}

// registerProbes adds a reachability check for every dependency that can
// be pinged.
func registerProbes(health *monitoring.HealthManager, deps map[string]interface{}) {
	for name, dep := range deps {
		if prober, ok := dep.(monitoring.Prober); ok {
			health.RegisterChecker(name, monitoring.NewProbeChecker(prober))
		}
	}
}
