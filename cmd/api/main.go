package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/scentora/storefront/internal/di"
	"github.com/scentora/storefront/internal/platform/auth"
	"github.com/scentora/storefront/internal/platform/config"
	"github.com/scentora/storefront/internal/platform/observability"
	"github.com/scentora/storefront/internal/platform/secrets"
	"github.com/scentora/storefront/internal/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "storefront-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	startedAt := time.Now().UTC()

	env, err := config.EnvironmentValues()
	if err != nil {
		return err
	}
	environment := strings.ToLower(strings.TrimSpace(env["STORE_ENVIRONMENT"]))
	if environment == "" {
		environment = "local"
	}

	logger, err := observability.NewLogger(env["STORE_LOG_LEVEL"], environment)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	resolver, err := newSecretResolver(ctx, logger, env, environment)
	if err != nil {
		return fmt.Errorf("init secrets: %w", err)
	}
	defer func() {
		if err := resolver.Close(); err != nil {
			logger.Warn("secret resolver close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(resolver))
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Error("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		return err
	}

	firebase, err := auth.NewFirebaseClient(ctx, cfg.Firebase, environment == "prod")
	if err != nil {
		return err
	}

	container, err := di.NewContainer(ctx, cfg, di.Options{
		Logger:   logger,
		Build:    buildInfo(env, cfg, startedAt),
		Verifier: firebase,
	})
	if err != nil {
		return fmt.Errorf("wire dependencies: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	var wg sync.WaitGroup
	if cfg.Idempotency.CleanupInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sweepIdempotency(ctx, container, cfg.Idempotency.CleanupInterval, logger.Named("idempotency"))
		}()
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      container.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("storefront api listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		stop()
		wg.Wait()
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	wg.Wait()
	return nil
}

func sweepIdempotency(ctx context.Context, container *di.Container, every time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, time.Minute)
			removed, err := container.SweepIdempotency(runCtx, time.Now().UTC())
			cancel()
			if err != nil {
				logger.Error("idempotency sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("idempotency sweep removed keys", zap.Int("count", removed))
			}
		}
	}
}

func newSecretResolver(ctx context.Context, logger *zap.Logger, env map[string]string, environment string) (*secrets.Resolver, error) {
	project := strings.TrimSpace(env["STORE_SECRETS_PROJECT_ID"])
	if project == "" {
		project = strings.TrimSpace(env["STORE_FIREBASE_PROJECT_ID"])
	}
	opts := []secrets.Option{secrets.WithLogger(logger.Named("secrets"))}
	if environment == "local" {
		opts = append(opts, secrets.WithLocalFile(".secrets.local"))
	}
	return secrets.NewResolver(ctx, project, opts...)
}

func buildInfo(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["STORE_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	return services.BuildInfo{
		Version:     version,
		Environment: cfg.Security.Environment,
		StartedAt:   started,
	}
}
