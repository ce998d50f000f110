package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MrSnakeDoc/unfurl/internal/config"
	"github.com/MrSnakeDoc/unfurl/internal/logger"
)

func TestNewRegistryOrderAndEnabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want []string
	}{
		{"none", config.Config{}, []string{}},
		{"redmine only", config.Config{Redmine: config.RedmineConfig{APIKey: "k"}}, []string{"redmine"}},
		{
			name: "both, redmine first",
			cfg: config.Config{
				Redmine: config.RedmineConfig{APIKey: "k"},
				Outline: config.OutlineConfig{APIToken: "t", ExpectedDomain: "wiki.example.com"},
			},
			want: []string{"redmine", "outline"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewRegistry(&tt.cfg, logger.NewNop()).Names()
			if len(got) != len(tt.want) {
				t.Fatalf("Names() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Names() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestAdapterLogsCarryOneAdapterField(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := logger.FromZap(zap.New(core))

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	cfg := &config.Config{Redmine: config.RedmineConfig{APIKey: "k"}}
	registry := NewRegistry(cfg, log)

	link := srv.URL + "/issues/1"
	adapter := registry.Match(link, "")
	if adapter == nil {
		t.Fatal("Match() = nil, want redmine")
	}
	if card := adapter.Fetch(context.Background(), link); card != nil {
		t.Fatalf("Fetch() = %+v, want nil on 404", card)
	}

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
	if len(warnings) == 0 {
		t.Fatal("no warning logged for the failed fetch")
	}
	for _, entry := range warnings {
		n := 0
		for _, f := range entry.Context {
			if f.Key == "adapter" {
				n++
			}
		}
		if n != 1 {
			t.Errorf("entry %q has %d adapter fields, want 1", entry.Message, n)
		}
	}
}
