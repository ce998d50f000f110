package redis

import "fmt"

const (
	// KeyPrefixEvent is the prefix for seen Slack event keys
	KeyPrefixEvent = "unfurl:event:"
)

// EventKey returns the Redis key for a Slack event ID
func EventKey(eventID string) string {
	return KeyPrefixEvent + eventID
}

// ExtractEventID extracts the event ID from a Redis key
func ExtractEventID(key string) (string, error) {
	if len(key) <= len(KeyPrefixEvent) || key[:len(KeyPrefixEvent)] != KeyPrefixEvent {
		return "", fmt.Errorf("invalid event key: %s", key)
	}
	return key[len(KeyPrefixEvent):], nil
}
