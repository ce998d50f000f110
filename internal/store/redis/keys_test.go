package redis

import (
	"testing"
	"time"
)

func TestEventKey(t *testing.T) {
	if got := EventKey("Ev123"); got != "unfurl:event:Ev123" {
		t.Errorf("EventKey() = %q, want unfurl:event:Ev123", got)
	}
}

func TestExtractEventID(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{"unfurl:event:Ev123", "Ev123", false},
		{"unfurl:event:", "", true},
		{"other:service:x", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ExtractEventID(tt.key)
		if (err != nil) != tt.wantErr {
			t.Errorf("ExtractEventID(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ExtractEventID(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestNewStoreDefaultTTL(t *testing.T) {
	if s := NewStore(nil, 0); s.ttl != DefaultEventTTL {
		t.Errorf("NewStore() ttl = %v, want %v", s.ttl, DefaultEventTTL)
	}
	if s := NewStore(nil, time.Minute); s.ttl != time.Minute {
		t.Errorf("NewStore() ttl = %v, want 1m", s.ttl)
	}
}
