package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/cwbudde/eemfit/internal/config"
	"github.com/cwbudde/eemfit/internal/store"
	"github.com/spf13/cobra"
)

var (
	logLevel   string
	configPath string
	dataDir    string
	logger     *slog.Logger

	// cfg is loaded before any subcommand runs
	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "eemfit",
	Short: "Fit Electronegativity Equalization Method parameters",
	Long: `eemfit fits EEM atom type parameters against reference partial charges
with a guided minimization: a sampled population is evaluated in parallel,
promising candidates are refined locally and the best one is polished.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if cmd.Flags().Changed("data-dir") {
			cfg.Store.DataDir = dataDir
		}

		// Setup logger
		var level slog.Level
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			return fmt.Errorf("unknown log level %q", cfg.LogLevel)
		}

		opts := &slog.HandlerOptions{Level: level}
		handler := slog.NewJSONHandler(os.Stdout, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "Base directory for stored runs and traces")
}

// openStore opens the configured run store
func openStore() (store.Store, error) {
	runs, err := store.NewStore(cfg.Store.Backend, cfg.Store.DataDir, cfg.Store.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	return runs, nil
}
