package domain

// LinkCandidate is one link shared in a chat message.
type LinkCandidate struct {
	// URL is the raw URL as posted.
	URL string

	// DomainHint is the hostname the chat platform extracted from the link.
	// Empty when the platform did not supply one.
	DomainHint string
}

// LinkShareEvent is a parsed link-share notification.
// It is built by the transport layer and never modified afterwards.
type LinkShareEvent struct {
	EventID   string // platform event id, used for retry dedupe (may be empty)
	Channel   string
	MessageTS string
	Links     []LinkCandidate
}
