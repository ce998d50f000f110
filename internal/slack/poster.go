package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/MrSnakeDoc/unfurl/internal/domain"
	"github.com/MrSnakeDoc/unfurl/internal/sources"
)

// DefaultAPIURL is the chat.unfurl endpoint.
const DefaultAPIURL = "https://slack.com/api/chat.unfurl"

// ErrAPI is matched by every ok:false answer from Slack.
var ErrAPI = errors.New("slack api error")

// Attachment is the legacy attachment layout Slack renders as an unfurl.
type Attachment struct {
	Title     string            `json:"title"`
	TitleLink string            `json:"title_link"`
	Text      string            `json:"text"`
	Color     string            `json:"color"`
	Fields    []AttachmentField `json:"fields,omitempty"`
}

// AttachmentField is rendered side by side when Short is set.
type AttachmentField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type unfurlRequest struct {
	Channel string                `json:"channel"`
	TS      string                `json:"ts"`
	Unfurls map[string]Attachment `json:"unfurls"`
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// NewAttachment maps a preview card to its Slack attachment.
func NewAttachment(card *domain.PreviewCard) Attachment {
	a := Attachment{
		Title:     card.Title,
		TitleLink: card.TitleLink,
		Text:      card.Body,
		Color:     card.AccentColor,
	}
	for _, f := range card.Fields {
		a.Fields = append(a.Fields, AttachmentField{Title: f.Label, Value: f.Value, Short: true})
	}
	return a
}

// Poster sends unfurls to Slack.
type Poster struct {
	apiURL    string
	token     string
	requester *sources.Requester
}

// NewPoster returns a chat.unfurl client. An empty apiURL uses DefaultAPIURL.
func NewPoster(apiURL, token string, requester *sources.Requester) *Poster {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if requester == nil {
		requester = sources.NewRequester(sources.Options{})
	}
	return &Poster{apiURL: apiURL, token: token, requester: requester}
}

// PostUnfurls attaches the cards of result to the message (channel, ts).
func (p *Poster) PostUnfurls(ctx context.Context, channel, ts string, result domain.UnfurlResult) error {
	payload := unfurlRequest{
		Channel: channel,
		TS:      ts,
		Unfurls: make(map[string]Attachment, len(result)),
	}
	for link, card := range result {
		if card == nil {
			continue
		}
		payload.Unfurls[link] = NewAttachment(card)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode unfurls: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	body, err := p.requester.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("chat.unfurl: %w", err)
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("chat.unfurl: failed to decode response: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("chat.unfurl: %w: %s", ErrAPI, resp.Error)
	}
	return nil
}
