package domain

import "context"

// Adapter recognizes the links of one backend system and builds previews for them.
//
// Each implementation owns its configuration, read once at construction.
type Adapter interface {
	// Name identifies the adapter in logs and metrics (ex: "redmine").
	Name() string

	// Enabled reports whether every required configuration value is present.
	// Disabled adapters are never matched.
	Enabled() bool

	// Recognizes reports whether rawURL belongs to this adapter. It performs no I/O
	// and returns false for URLs that do not parse. domainHint is "" when absent.
	Recognizes(rawURL, domainHint string) bool

	// Fetch builds the preview for rawURL. It returns nil on any failure, after
	// logging it; errors never escape.
	Fetch(ctx context.Context, rawURL string) *PreviewCard
}
