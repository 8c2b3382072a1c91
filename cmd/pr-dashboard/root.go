package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vilaca/pr-dashboard/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "pr-dashboard",
	Short: "Pull request dashboard sync engine",
	Long: `pr-dashboard keeps a normalized collection of your pull requests
across GitHub and Bitbucket, synced incrementally and served over a
JSON API.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to the YAML config file")
}

// loadConfig loads .env (when present) and then the layered configuration.
func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()
	return config.Load(cfgFile)
}

// newLogger builds the process logger at the configured level.
// Unknown levels fall back to info rather than failing startup.
func newLogger(level string) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.Sugar(), nil
}
