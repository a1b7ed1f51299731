package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fanshares/exchange-core/internal/config"
	"github.com/fanshares/exchange-core/internal/logger"
)

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "fsx",
	Short: "Fan-share exchange core",
	Long: `Fan-share exchange core: a limit order book per player with
price-time matching, time-based share vesting and daily 50/50 contests
settled from fantasy points.

Configuration comes from defaults, an optional YAML file (--config) and
FSX_-prefixed environment variables. A .env file is loaded first when
present.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
}

// bootstrap loads the environment file, configuration and logger shared
// by every command.
func bootstrap() (config.Config, *zap.Logger, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return config.Config{}, nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, log.With(zap.String("env", cfg.App.Env)), nil
}
