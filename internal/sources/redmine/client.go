// Package redmine builds previews for Redmine issue links.
package redmine

import (
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
	Name = "redmine"
	// AccentColor is the side bar color of Redmine cards.
	AccentColor = "#A00F1B"
)

var (
	// ErrPrivateIssue is returned for issues flagged private; they are never previewed.
	ErrPrivateIssue = errors.New("issue is private")
	// ErrMissingField is returned when the response has no issue object.
	ErrMissingField = errors.New("missing field in response")
)

var issueURLRe = regexp.MustCompile(`^https?://.+/issues/\d+$`)

// Config is read once at startup.
type Config struct {
	APIKey             string
	MaxLines           int
	MaxChars           int
	ConvertHTML        bool // description is HTML and must be converted to mrkdwn
	SkipFields         bool
	IgnoreCustomFields bool
}

// Client is the Redmine adapter.
type Client struct {
	cfg       Config
	requester *sources.Requester
	truncator domain.Truncator
	markup    *markupConverter
	logger    logger.Logger
}

// New creates a Redmine adapter. A nil requester gets the default one.
func New(cfg Config, requester *sources.Requester, log logger.Logger) *Client {
	if requester == nil {
		requester = sources.NewRequester(sources.Options{})
	}
	if log == nil {
		log = logger.NewNop()
	}

	c := &Client{
		cfg:       cfg,
		requester: requester,
		truncator: domain.NewTruncator(cfg.MaxLines, cfg.MaxChars, true),
		logger:    log.With(logger.String("adapter", Name)),
	}
	if cfg.ConvertHTML {
		c.markup = newMarkupConverter()
	}
	return c
}

func (c *Client) Name() string { return Name }

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool { return strings.TrimSpace(c.cfg.APIKey) != "" }

// Recognizes matches http(s) URLs whose path ends in /issues/<digits>.
// The domain hint is not consulted.
func (c *Client) Recognizes(rawURL, _ string) bool {
	return issueURLRe.MatchString(rawURL)
}

// Fetch returns the issue preview, or nil after logging the failure.
func (c *Client) Fetch(ctx context.Context, rawURL string) *domain.PreviewCard {
	card, err := c.fetch(ctx, rawURL)
	if err != nil {
		if errors.Is(err, ErrPrivateIssue) {
			c.logger.Debug("Skipping private issue", logger.String("url", rawURL))
			return nil
		}
		fields := []logger.Field{logger.String("url", rawURL), logger.Error(err)}
		var statusErr *sources.StatusError
		if errors.As(err, &statusErr) {
			fields = append(fields, logger.Int("status", statusErr.Status), logger.String("body", statusErr.Excerpt))
		}
		c.logger.Warn("Failed to fetch issue", fields...)
		return nil
	}
	return card
}

func (c *Client) fetch(ctx context.Context, rawURL string) (*domain.PreviewCard, error) {
	endpoint := rawURL + ".json?key=" + url.QueryEscape(c.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("Fetching issue", logger.String("endpoint", rawURL+".json"))

	body, err := c.requester.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	var env issueEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode issue: %w", err)
	}
	if env.Issue == nil {
		return nil, fmt.Errorf("%w: issue", ErrMissingField)
	}

	return c.buildCard(rawURL, env.Issue)
}

func (c *Client) buildCard(rawURL string, issue *Issue) (*domain.PreviewCard, error) {
	if issue.IsPrivate {
		return nil, ErrPrivateIssue
	}

	card := &domain.PreviewCard{
		Title:       issue.ProjectName() + " | " + issue.Subject,
		TitleLink:   rawURL,
		Body:        c.truncator.Truncate(c.description(issue)),
		AccentColor: AccentColor,
	}
	if !c.cfg.SkipFields {
		card.Fields = buildFields(issue, !c.cfg.IgnoreCustomFields)
	}
	return card, nil
}

// description returns the issue body, converted to mrkdwn when enabled.
// A failed conversion keeps the original text.
func (c *Client) description(issue *Issue) string {
	if issue.Description == nil || strings.TrimSpace(*issue.Description) == "" {
		return ""
	}
	text := *issue.Description
	if c.markup == nil {
		return text
	}

	converted, err := c.markup.Convert(text)
	if err != nil {
		c.logger.Warn("Failed to convert description, using raw text",
			logger.Int("issue_id", issue.ID), logger.Error(err))
		return text
	}
	return converted
}
