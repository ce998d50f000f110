package domain

import (
	"context"
	"slices"
	"strings"
	"testing"
)

type fakeAdapter struct {
	name    string
	enabled bool
	prefix  string
	hint    string
}

func (f *fakeAdapter) Name() string  { return f.name }
func (f *fakeAdapter) Enabled() bool { return f.enabled }

func (f *fakeAdapter) Recognizes(rawURL, domainHint string) bool {
	if f.hint != "" && !strings.EqualFold(domainHint, f.hint) {
		return false
	}
	return strings.HasPrefix(rawURL, f.prefix)
}

func (f *fakeAdapter) Fetch(_ context.Context, rawURL string) *PreviewCard {
	return &PreviewCard{Title: f.name, TitleLink: rawURL}
}

func TestNewRegistryDropsDisabled(t *testing.T) {
	reg := NewRegistry(
		&fakeAdapter{name: "a", enabled: true},
		&fakeAdapter{name: "b", enabled: false},
		nil,
		&fakeAdapter{name: "c", enabled: true},
	)

	if reg.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", reg.Len())
	}
	names := reg.Names()
	if !slices.Equal(names, []string{"a", "c"}) {
		t.Errorf("Names() = %v, want [a c]", names)
	}
}

func TestRegistryMatch(t *testing.T) {
	issues := &fakeAdapter{name: "issues", enabled: true, prefix: "https://tracker.example.com/"}
	docs := &fakeAdapter{name: "docs", enabled: true, prefix: "https://", hint: "wiki.example.com"}
	off := &fakeAdapter{name: "off", enabled: false, prefix: "https://"}

	reg := NewRegistry(off, issues, docs)

	tests := []struct {
		name     string
		url      string
		hint     string
		expected string
	}{
		{
			name:     "first adapter",
			url:      "https://tracker.example.com/issues/1",
			expected: "issues",
		},
		{
			name:     "second adapter with hint",
			url:      "https://wiki.example.com/doc/x",
			hint:     "WIKI.example.com",
			expected: "docs",
		},
		{
			name:     "hint mismatch",
			url:      "https://wiki.example.com/doc/x",
			hint:     "other.example.com",
			expected: "",
		},
		{
			name:     "disabled adapter never matches",
			url:      "https://anything.example.com/",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reg.Match(tt.url, tt.hint)
			name := ""
			if got != nil {
				name = got.Name()
			}
			if name != tt.expected {
				t.Errorf("Match(%q, %q) = %q, want %q", tt.url, tt.hint, name, tt.expected)
			}
		})
	}
}

func TestRegistryMatchRegistrationOrderWins(t *testing.T) {
	first := &fakeAdapter{name: "first", enabled: true, prefix: "https://"}
	second := &fakeAdapter{name: "second", enabled: true, prefix: "https://"}

	for i := 0; i < 10; i++ {
		got := NewRegistry(first, second).Match("https://x.example.com/issues/1", "")
		if got == nil || got.Name() != "first" {
			t.Fatalf("Match() = %v, want first", got)
		}
	}

	got := NewRegistry(second, first).Match("https://x.example.com/issues/1", "")
	if got == nil || got.Name() != "second" {
		t.Errorf("Match() = %v, want second", got)
	}
}

func TestEmptyRegistry(t *testing.T) {
	reg := NewRegistry()
	if got := reg.Match("https://example.com", "example.com"); got != nil {
		t.Errorf("Match() = %v, want nil", got)
	}
	if len(reg.Names()) != 0 {
		t.Errorf("Names() = %v, want empty", reg.Names())
	}
}
