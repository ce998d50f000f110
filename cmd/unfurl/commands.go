package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/unfurl/internal/app"
	"github.com/MrSnakeDoc/unfurl/internal/config"
	"github.com/MrSnakeDoc/unfurl/internal/logger"
	"github.com/MrSnakeDoc/unfurl/internal/slack"
	"github.com/MrSnakeDoc/unfurl/internal/version"
)

var (
	errNoAdapter = errors.New("no enabled adapter recognizes this URL")
	errNoPreview = errors.New("adapter returned no preview")
)

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "unfurl",
		Short: "Slack link preview service",
		Long: `unfurl answers Slack link_shared events with previews of
Redmine issues and Outline documents.

Configuration comes from the environment, optionally seeded by a YAML
file (--config or UNFURL_CONFIG_FILE).`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("UNFURL_CONFIG_FILE"), "YAML config file")

	cmd.AddCommand(
		serveCmd(&configPath),
		previewCmd(&configPath),
		versionCmd(),
	)
	return cmd
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Events API webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFrom(*configPath)
			if err != nil {
				return err
			}
			log := logger.New(cfg.LogLevel, cfg.PrettyLog)
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			return a.Run()
		},
	}
}

func previewCmd(configPath *string) *cobra.Command {
	var (
		domainHint string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "preview <url>",
		Short: "Print the attachment a link would unfurl to",
		Long: `preview resolves one URL with the configured adapters and prints
the Slack attachment as JSON, without talking to Slack.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFrom(*configPath)
			if err != nil {
				return err
			}
			log := logger.New(cfg.LogLevel, cfg.PrettyLog)
			defer func() { _ = log.Sync() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			return preview(ctx, cmd.OutOrStdout(), cfg, log, args[0], domainHint)
		},
	}

	cmd.Flags().StringVar(&domainHint, "domain", "", "Domain reported by Slack for the link (defaults to the URL host)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Overall timeout")
	return cmd
}

func preview(ctx context.Context, w io.Writer, cfg *config.Config, log logger.Logger, rawURL, domainHint string) error {
	if domainHint == "" {
		if u, err := url.Parse(rawURL); err == nil {
			domainHint = u.Hostname()
		}
	}
	domainHint = strings.ToLower(domainHint)

	adapter := app.NewRegistry(cfg, log).Match(rawURL, domainHint)
	if adapter == nil {
		return errNoAdapter
	}

	card := adapter.Fetch(ctx, rawURL)
	if card == nil {
		return fmt.Errorf("%s: %w", adapter.Name(), errNoPreview)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(slack.NewAttachment(card))
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
