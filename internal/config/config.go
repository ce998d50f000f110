package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const redacted = "***REDACTED***"

// RedmineConfig configures the issue tracker adapter.
type RedmineConfig struct {
	APIKey             string // REDMINE_API_ACCESS_KEY, adapter disabled when empty
	MaxLines           int
	MaxChars           int
	ConvertHTML        bool // description is HTML, convert it to Slack mrkdwn
	SkipFields         bool
	IgnoreCustomFields bool
}

// OutlineConfig configures the wiki adapter.
type OutlineConfig struct {
	APIToken       string // adapter disabled when empty
	ExpectedDomain string // lowercased, compared with the domain Slack reports for a link
	MaxLines       int
	MaxChars       int
}

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Unfurling
	RequestTimeout time.Duration // whole event processing, detached from the inbound request
	FetchTimeout   time.Duration // one outbound adapter call
	MaxConcurrency int           // links fetched at once per event
	AdapterRPS     float64       // outbound requests per second, per adapter (0 = unlimited)
	UserAgent      string

	Redmine RedmineConfig
	Outline OutlineConfig

	// Slack
	SlackToken         string // SLACK_OAUTH_ACCESS_TOKEN, bot token used for chat.unfurl
	SlackAPIURL        string // chat.unfurl endpoint
	SlackSigningSecret string // optional, signature checks disabled when empty

	// Event dedupe
	DedupeTTL  time.Duration // how long an event ID is remembered
	DedupeSize int           // in-memory backend capacity

	// Redis, optional: empty address => in-memory dedupe
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password when RedisAddr is set
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts

	// Access restrictions
	AllowedHosts []string // optional, restrict access to specific Host headers
	AllowedCIDRS []string // optional, restrict /infra and /metrics to specific IPs or CIDRs
	TrustProxy   bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)

	// Inbound rate limit of the events route, per client IP
	RateLimitBurst     int
	RateLimitPerMinute int
}

// LoadFrom reads the configuration from the environment. When path names a
// YAML file, its values are used as defaults for the adapter and unfurl
// settings; environment variables always win.
func LoadFrom(path string) (*Config, error) {
	file, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return fromEnv(file), nil
}

func fromEnv(file *FileConfig) *Config {
	maxLines := getenvInt("MAX_PREVIEW_LINES", file.MaxPreviewLines)
	maxChars := getenvInt("MAX_CHARS", file.MaxChars)

	cfg := &Config{
		// Server settings
		ListenPort:      getenv("UNFURL_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("UNFURL_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("UNFURL_LOG_LEVEL", "info"),
		PrettyLog: mustBool("UNFURL_PRETTY_LOG", false),

		// Unfurling
		RequestTimeout: mustDuration("UNFURL_REQUEST_TIMEOUT", orDuration(file.RequestTimeout, 15*time.Second)),
		FetchTimeout:   mustDuration("UNFURL_FETCH_TIMEOUT", orDuration(file.FetchTimeout, 5*time.Second)),
		MaxConcurrency: getenvInt("UNFURL_MAX_CONCURRENCY", orInt(file.MaxConcurrency, 4)),
		AdapterRPS:     getenvFloat("UNFURL_ADAPTER_RPS", orFloat(file.AdapterRPS, 10)),
		UserAgent:      getenv("UNFURL_USER_AGENT", file.UserAgent),

		Redmine: RedmineConfig{
			APIKey:             strings.TrimSpace(os.Getenv("REDMINE_API_ACCESS_KEY")),
			MaxLines:           maxLines,
			MaxChars:           maxChars,
			ConvertHTML:        mustFlag("CONVERT_HTML_TO_MARKDOWN", file.Redmine.ConvertHTMLToMarkdown),
			SkipFields:         mustFlag("SKIP_FIELDS", file.Redmine.SkipFields),
			IgnoreCustomFields: mustFlag("IGNORE_CUSTOM_FIELDS", file.Redmine.IgnoreCustomFields),
		},
		Outline: OutlineConfig{
			APIToken:       strings.TrimSpace(os.Getenv("OUTLINE_API_TOKEN")),
			ExpectedDomain: strings.ToLower(strings.TrimSpace(getenv("OUTLINE_EXPECTED_DOMAIN", file.Outline.ExpectedDomain))),
			MaxLines:       getenvInt("OUTLINE_MAX_PREVIEW_LINES", orInt(file.Outline.MaxPreviewLines, maxLines)),
			MaxChars:       getenvInt("OUTLINE_MAX_CHARS", orInt(file.Outline.MaxChars, maxChars)),
		},

		// Slack
		SlackToken:         strings.TrimSpace(os.Getenv("SLACK_OAUTH_ACCESS_TOKEN")),
		SlackAPIURL:        getenv("SLACK_API_URL", "https://slack.com/api/chat.unfurl"),
		SlackSigningSecret: strings.TrimSpace(os.Getenv("SLACK_SIGNING_SECRET")),

		// Event dedupe
		DedupeTTL:  mustDuration("UNFURL_DEDUPE_TTL", 15*time.Minute),
		DedupeSize: getenvInt("UNFURL_DEDUPE_SIZE", 10_000),

		// Redis settings
		RedisAddr:             getenv("UNFURL_REDIS_ADDR", ""),
		RedisUser:             getenv("UNFURL_REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("UNFURL_REDIS_PASSWORD_REQUIRED", true),
		RedisPassword:         getenv("UNFURL_REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("UNFURL_REDIS_DB", 0),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedHosts: splitAndTrim(getenv("UNFURL_ALLOWED_HOSTS", "")),
		AllowedCIDRS: splitAndTrim(getenv("UNFURL_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("UNFURL_TRUST_PROXY", false),

		RateLimitBurst:     getenvInt("UNFURL_RATE_LIMIT_BURST", 30),
		RateLimitPerMinute: getenvInt("UNFURL_RATE_LIMIT_PER_MINUTE", 120),
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		log.Printf("[DEBUG] cfg: %+v\n", cfg.Redacted())
	}

	return cfg
}

// Validate checks what the HTTP service cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.SlackToken == "" {
		errs = append(errs, errors.New("SLACK_OAUTH_ACCESS_TOKEN is not set"))
	}
	if c.RedisAddr != "" && c.RedisPasswordRequired && c.RedisPassword == "" {
		errs = append(errs, errors.New("UNFURL_REDIS_PASSWORD is required when UNFURL_REDIS_PASSWORD_REQUIRED=true"))
	}
	if c.MaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("UNFURL_MAX_CONCURRENCY must be >= 1, got %d", c.MaxConcurrency))
	}
	return errors.Join(errs...)
}

// Redacted returns a copy safe to log.
func (c *Config) Redacted() Config {
	cp := *c
	for _, s := range []*string{&cp.Redmine.APIKey, &cp.Outline.APIToken, &cp.SlackToken, &cp.SlackSigningSecret, &cp.RedisPassword} {
		if *s != "" {
			*s = redacted
		}
	}
	if cp.RedisUser != "" {
		cp.RedisUser = redacted
	}
	return cp
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

// mustFlag reads an opt-in switch: true, t, yes, y and 1 (any case) enable it,
// any other value disables it.
func mustFlag(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "t", "yes", "y", "1":
		return true
	default:
		return false
	}
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

func orInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orFloat(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}

func orDuration(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}
