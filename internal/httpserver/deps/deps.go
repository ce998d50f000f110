package deps

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/unfurl/internal/logger"
	"github.com/MrSnakeDoc/unfurl/internal/metrics"
	"github.com/MrSnakeDoc/unfurl/internal/unfurl"
)

type Deps struct {
	Logger         logger.Logger
	StartTime      time.Time
	Version        string
	Commit         string
	BuildDate      string
	GoVersion      string
	TimeNow        func() time.Time     // for testing, defaults to time.Now
	AllowedHosts   []string             // Host headers allowed to access the server
	AllowedCIDRS   []string             // IPs allowed to access infra/metrics endpoints
	TrustProxy     bool                 // true if running behind a trusted reverse proxy (e.g., cloudflared)
	Orchestrator   *unfurl.Orchestrator // handles Slack event bodies
	Metrics        *metrics.Metrics     // nil disables /metrics content
	RedisClient    *redis.Client        // nil when dedupe runs in memory
	SigningSecret  string               // Slack signing secret, empty = no signature check
	RequestTimeout time.Duration        // budget for handling one event, detached from the client connection
	MaxBodyBytes   int64                // cap on the events request body

	RateLimitBurst     int // events route, per client IP
	RateLimitPerMinute int
}
