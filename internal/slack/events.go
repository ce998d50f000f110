// Package slack speaks the Slack Events API: inbound envelopes, request
// signatures and the chat.unfurl call.
package slack

import (
	"encoding/json"
	"fmt"

	"github.com/MrSnakeDoc/unfurl/internal/domain"
)

// Envelope types.
const (
	TypeURLVerification = "url_verification"
	TypeEventCallback   = "event_callback"

	// EventLinkShared is the inner event type carrying shared links.
	EventLinkShared = "link_shared"
)

// Envelope is the outer body of every Events API request.
type Envelope struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge,omitempty"`
	TeamID    string `json:"team_id,omitempty"`
	EventID   string `json:"event_id,omitempty"`
	Event     *Event `json:"event,omitempty"`
}

// Event is the inner event of an event_callback.
type Event struct {
	Type      string `json:"type"`
	Channel   string `json:"channel"`
	User      string `json:"user,omitempty"`
	MessageTS string `json:"message_ts"`
	Links     []Link `json:"links"`
}

// Link is one shared link. Domain is Slack's view of the link host.
type Link struct {
	URL    string `json:"url"`
	Domain string `json:"domain"`
}

// ParseEnvelope decodes a request body.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return &env, nil
}

// LinkShare returns the link_shared event carried by an event_callback.
// ok is false for any other inner event or when the event is missing.
func (e *Envelope) LinkShare() (ev domain.LinkShareEvent, ok bool) {
	if e.Event == nil || e.Event.Type != EventLinkShared {
		return domain.LinkShareEvent{}, false
	}

	links := make([]domain.LinkCandidate, 0, len(e.Event.Links))
	for _, l := range e.Event.Links {
		if l.URL == "" {
			continue
		}
		links = append(links, domain.LinkCandidate{URL: l.URL, DomainHint: l.Domain})
	}

	return domain.LinkShareEvent{
		EventID:   e.EventID,
		Channel:   e.Event.Channel,
		MessageTS: e.Event.MessageTS,
		Links:     links,
	}, true
}

// EventType returns the inner event type, or "" when there is none.
func (e *Envelope) EventType() string {
	if e.Event == nil {
		return ""
	}
	return e.Event.Type
}
