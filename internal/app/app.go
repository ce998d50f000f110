package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/unfurl/internal/config"
	"github.com/MrSnakeDoc/unfurl/internal/httpserver"
	"github.com/MrSnakeDoc/unfurl/internal/httpserver/deps"
	"github.com/MrSnakeDoc/unfurl/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/unfurl/internal/logger"
	"github.com/MrSnakeDoc/unfurl/internal/metrics"
	"github.com/MrSnakeDoc/unfurl/internal/slack"
	"github.com/MrSnakeDoc/unfurl/internal/unfurl"
	"github.com/MrSnakeDoc/unfurl/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
}

// New wires the service from cfg. Redis, when configured, must be reachable.
func New(ctx context.Context, cfg *config.Config, loggerClient logger.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dedupe, redisClient, err := newDeduper(ctx, cfg, loggerClient)
	if err != nil {
		return nil, err
	}

	registry := NewRegistry(cfg, loggerClient)
	if registry.Len() == 0 {
		loggerClient.Warn("no adapter enabled, links will not be unfurled")
	}

	m := metrics.New()

	orchestrator := unfurl.New(unfurl.Deps{
		Registry: registry,
		Poster:   slack.NewPoster(cfg.SlackAPIURL, cfg.SlackToken, newRequester(cfg)),
		Dedupe:   dedupe,
		Metrics:  m,
		Logger:   loggerClient,
	}, unfurl.Options{
		MaxConcurrency: cfg.MaxConcurrency,
		FetchTimeout:   cfg.FetchTimeout,
	})

	d := deps.Deps{
		Logger:             loggerClient,
		StartTime:          time.Now(),
		Version:            version.Version,
		Commit:             version.Commit,
		BuildDate:          version.BuildDate,
		GoVersion:          version.GoVersion,
		TimeNow:            time.Now,
		AllowedHosts:       cfg.AllowedHosts,
		AllowedCIDRS:       cfg.AllowedCIDRS,
		TrustProxy:         cfg.TrustProxy,
		Orchestrator:       orchestrator,
		Metrics:            m,
		RedisClient:        redisClient,
		SigningSecret:      cfg.SlackSigningSecret,
		RequestTimeout:     cfg.RequestTimeout,
		MaxBodyBytes:       handlers.DefaultMaxBodyBytes,
		RateLimitBurst:     cfg.RateLimitBurst,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      httpserver.New(cfg.ListenPort, d),
		redisClient: redisClient,
	}, nil
}

// Run serves until SIGINT/SIGTERM, then shuts down gracefully.
func (a *App) Run() error {
	a.logger.Infof("🚀 Starting %s on %s", version.String(), a.cfg.ListenPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		a.closeRedis()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	a.closeRedis()

	a.logger.Info("✅ unfurl stopped cleanly")
	return nil
}

func (a *App) closeRedis() {
	if a.redisClient == nil {
		return
	}
	if err := a.redisClient.Close(); err != nil {
		a.logger.Warn("failed to close redis", logger.Error(err))
		return
	}
	a.logger.Info("✅ Redis closed cleanly")
}
