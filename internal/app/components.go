package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/unfurl/internal/config"
	"github.com/MrSnakeDoc/unfurl/internal/domain"
	"github.com/MrSnakeDoc/unfurl/internal/index"
	"github.com/MrSnakeDoc/unfurl/internal/logger"
	"github.com/MrSnakeDoc/unfurl/internal/redis"
	"github.com/MrSnakeDoc/unfurl/internal/sources"
	"github.com/MrSnakeDoc/unfurl/internal/sources/outline"
	"github.com/MrSnakeDoc/unfurl/internal/sources/redmine"
	redisstore "github.com/MrSnakeDoc/unfurl/internal/store/redis"
	"github.com/MrSnakeDoc/unfurl/internal/unfurl"
	"github.com/MrSnakeDoc/unfurl/internal/version"
)

// newRequester returns the outbound client of one adapter. Each adapter gets
// its own so that one slow or throttled backend does not starve the other.
func newRequester(cfg *config.Config) *sources.Requester {
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = version.UserAgent()
	}
	burst := int(cfg.AdapterRPS)
	if burst < 1 {
		burst = 1
	}
	return sources.NewRequester(sources.Options{
		Timeout:       cfg.FetchTimeout,
		UserAgent:     userAgent,
		RatePerSecond: cfg.AdapterRPS,
		Burst:         burst,
	})
}

// NewRegistry builds the adapters from cfg. Redmine is registered first and
// therefore wins when both recognize a URL.
func NewRegistry(cfg *config.Config, log logger.Logger) *domain.Registry {
	rm := redmine.New(redmine.Config{
		APIKey:             cfg.Redmine.APIKey,
		MaxLines:           cfg.Redmine.MaxLines,
		MaxChars:           cfg.Redmine.MaxChars,
		ConvertHTML:        cfg.Redmine.ConvertHTML,
		SkipFields:         cfg.Redmine.SkipFields,
		IgnoreCustomFields: cfg.Redmine.IgnoreCustomFields,
	}, newRequester(cfg), log)

	ol := outline.New(outline.Config{
		APIToken:       cfg.Outline.APIToken,
		ExpectedDomain: cfg.Outline.ExpectedDomain,
		MaxLines:       cfg.Outline.MaxLines,
		MaxChars:       cfg.Outline.MaxChars,
	}, newRequester(cfg), log)

	for _, a := range []domain.Adapter{rm, ol} {
		if !a.Enabled() {
			log.Info("adapter disabled, missing credentials", logger.String("adapter", a.Name()))
		}
	}

	return domain.NewRegistry(rm, ol)
}

// newDeduper picks Redis when an address is configured, the in-memory index
// otherwise. The returned client is nil for the in-memory backend.
func newDeduper(ctx context.Context, cfg *config.Config, log logger.Logger) (unfurl.Deduper, *goredis.Client, error) {
	if cfg.RedisAddr == "" {
		log.Info("dedupe: in-memory backend",
			logger.Int("size", cfg.DedupeSize),
			logger.Duration("ttl", cfg.DedupeTTL),
		)
		return index.NewMemoryIndex(cfg.DedupeSize, cfg.DedupeTTL), nil, nil
	}

	log.Info("dedupe: connecting to redis", logger.String("addr", cfg.RedisAddr))
	client, err := redis.New(ctx, redis.ConnectOptions{
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return redisstore.NewStore(client, cfg.DedupeTTL), client, nil
}
