package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go-alias-scanner/internal/config"
	"go-alias-scanner/internal/logger"

	"github.com/spf13/cobra"
)

// Version is the application version.
const Version = "0.1.0"

var (
	// cfg is the configuration loaded before every subcommand
	cfg *config.Config
	// appLog is the root structured logger
	appLog *logger.StructuredLogger

	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:     "alias-scanner",
	Short:   "Camera scanner for QR codes, barcodes and payment aliases",
	Version: Version,

	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		appLog, err = logger.NewStructuredLogger(logger.LoggerConfig{
			Level:        logger.ParseLevel(cfg.Logging.Level),
			Service:      cfg.Logging.Service,
			Version:      Version,
			Environment:  cfg.Logging.Environment,
			OutputPath:   cfg.Logging.File,
			EnableCaller: cfg.Logging.Level == "debug",
		})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if appLog != nil {
			appLog.Close()
		}
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if appLog != nil {
			appLog.Fatal("Command failed", err, map[string]interface{}{"command": os.Args[1:]})
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Configuration file (JSON or YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
}
