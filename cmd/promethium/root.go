package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"promethium-examples/runner/internal/auth"
	"promethium-examples/runner/internal/config"
	"promethium-examples/runner/internal/logging"
	"promethium-examples/runner/internal/repository"
	"promethium-examples/runner/internal/results"
	"promethium-examples/runner/internal/services"
)

// Version is the CLI version.
const Version = "0.1.0"

var (
	cfgFile string
	v       = config.New()
)

var rootCmd = &cobra.Command{
	Use:           "promethium",
	Short:         "Submit conformer search workflows and collect their results",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ./config.yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("output-dir", "output", "directory result files are written to")
	flags.String("gpu-type", config.DefaultGPUType, "GPU type requested for each workflow")
	flags.Duration("poll-interval", 0, "interval between status polls (default from config)")

	// explicitly set flags override config and environment
	for key, name := range map[string]string{
		"log.level":          "log-level",
		"output.dir":         "output-dir",
		"resources.gpu_type": "gpu-type",
		"poll.interval":      "poll-interval",
	} {
		cobra.CheckErr(v.BindPFlag(key, flags.Lookup(name)))
	}

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// app holds the wired dependencies shared by subcommands.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	client *services.HTTPWorkflowClient
	ledger repository.Ledger
	runner *services.Runner
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewLogger(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	logger.Debug("configuration loaded", "config_file", v.ConfigFileUsed(), "base_url", cfg.API.BaseURL)

	creds, err := auth.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	client := services.NewHTTPWorkflowClient(creds.BaseURL,
		services.WithHTTPClient(auth.NewHTTPClient(auth.TokenSource(creds.APIKey), cfg.API.Timeout)),
		services.WithPollInterval(cfg.Poll.Interval),
		services.WithWaitTimeout(cfg.Poll.Timeout),
		services.WithLogger(logger),
	)

	ledger, err := repository.Open(ctx, cfg.Ledger.Driver, cfg.Ledger.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		client: client,
		ledger: ledger,
		runner: services.NewRunner(client, ledger, results.NewWriter(cfg.Output.Dir), logger),
	}, nil
}

func (a *app) Close() {
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			a.logger.Warn("failed to close ledger", "error", err)
		}
	}
	_ = a.logger.Sync()
}
