// Package outline builds previews for Outline wiki documents and shares.
package outline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/MrSnakeDoc/unfurl/internal/domain"
	"github.com/MrSnakeDoc/unfurl/internal/logger"
	"github.com/MrSnakeDoc/unfurl/internal/sources"
)

const (
	// Name identifies the adapter in logs and metrics.
	Name = "outline"
	// AccentColor is the side bar color of Outline cards.
	AccentColor = "#3478F6"

	actionDocumentInfo = "documents.info"
	actionShareGet     = "shares.get"
)

var (
	// ErrMissingField is returned when the response lacks the document, its title or its text.
	ErrMissingField = errors.New("missing field in response")
	// ErrUnsupportedPath is returned when no document identifier can be taken from the URL.
	ErrUnsupportedPath = errors.New("unsupported document path")
)

var (
	documentPathRe = regexp.MustCompile(`/(?:doc(?:ument)?/|s/)[a-zA-Z0-9-]+(?:-[a-zA-Z0-9]{10,12})?$`)
	pathPrefixRe   = regexp.MustCompile(`^/(?:doc(?:ument)?/|s/)`)
)

// Config is read once at startup.
type Config struct {
	APIToken       string
	ExpectedDomain string // compared case-insensitively with the Slack domain hint
	MaxLines       int
	MaxChars       int
}

// Client is the Outline adapter.
type Client struct {
	cfg       Config
	domain    string
	requester *sources.Requester
	truncator domain.Truncator
	logger    logger.Logger
}

// New creates an Outline adapter. A nil requester gets the default one.
func New(cfg Config, requester *sources.Requester, log logger.Logger) *Client {
	if requester == nil {
		requester = sources.NewRequester(sources.Options{})
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Client{
		cfg:       cfg,
		domain:    strings.ToLower(strings.TrimSpace(cfg.ExpectedDomain)),
		requester: requester,
		truncator: domain.NewTruncator(cfg.MaxLines, cfg.MaxChars, false),
		logger:    log.With(logger.String("adapter", Name)),
	}
}

func (c *Client) Name() string { return Name }

// Enabled reports whether both the API token and the expected domain are set.
func (c *Client) Enabled() bool {
	return strings.TrimSpace(c.cfg.APIToken) != "" && c.domain != ""
}

// Recognizes requires the domain hint to be the configured wiki domain and
// the path to look like a document or share link.
func (c *Client) Recognizes(rawURL, domainHint string) bool {
	if c.domain == "" || strings.ToLower(domainHint) != c.domain {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return documentPathRe.MatchString(u.Path)
}

// Fetch returns the document preview, or nil after logging the failure.
func (c *Client) Fetch(ctx context.Context, rawURL string) *domain.PreviewCard {
	card, err := c.fetch(ctx, rawURL)
	if err != nil {
		fields := []logger.Field{logger.String("url", rawURL), logger.Error(err)}
		var statusErr *sources.StatusError
		if errors.As(err, &statusErr) {
			fields = append(fields, logger.Int("status", statusErr.Status), logger.String("body", statusErr.Excerpt))
		}
		c.logger.Warn("Failed to fetch document", fields...)
		return nil
	}
	return card
}

// target is the API call a shared link resolves to.
type target struct {
	endpoint string
	id       string
}

// resolve maps a document URL to its API endpoint and identifier.
// The API lives on the host of the link itself.
func resolve(rawURL string) (target, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return target{}, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return target{}, fmt.Errorf("%w: %q has no host", ErrUnsupportedPath, rawURL)
	}

	match := documentPathRe.FindString(u.Path)
	if match == "" {
		return target{}, fmt.Errorf("%w: %q", ErrUnsupportedPath, u.Path)
	}

	id := pathPrefixRe.ReplaceAllString(match, "")
	if id == "" {
		return target{}, fmt.Errorf("%w: empty identifier in %q", ErrUnsupportedPath, u.Path)
	}

	action := actionDocumentInfo
	if strings.HasPrefix(match, "/s/") {
		action = actionShareGet
	}

	return target{
		endpoint: u.Scheme + "://" + u.Host + "/api/" + action,
		id:       id,
	}, nil
}

func (c *Client) fetch(ctx context.Context, rawURL string) (*domain.PreviewCard, error) {
	t, err := resolve(rawURL)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]string{"id": t.id})
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("Fetching document", logger.String("endpoint", t.endpoint), logger.String("id", t.id))

	body, err := c.requester.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.endpoint, err)
	}

	doc, err := decodeDocument(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w (body: %s)", t.endpoint, err, sources.Excerpt(body))
	}

	return &domain.PreviewCard{
		Title:       *doc.Title,
		TitleLink:   rawURL,
		Body:        c.truncator.Truncate(*doc.Text),
		AccentColor: AccentColor,
	}, nil
}
