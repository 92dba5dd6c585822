package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dayuer/kira-go/internal/config"
)

// Version is set at build time.
var Version = "dev"

var (
	cfgFile  string
	settings = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "kira",
	Short: "Chat bot runtime for group and direct chats",
	Long: "kira receives chat events from bridge adapters, batches bursts per session,\n" +
		"asks an OpenAI-compatible model for a reply and sends it back message by message.",
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
	rootCmd.Version = Version
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ~/.kira/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("model", "", "override agent.model")
	_ = settings.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = settings.BindPFlag("agent.model", rootCmd.PersistentFlags().Lookup("model"))
}

func configPath() string {
	if cfgFile != "" {
		return config.ExpandHome(cfgFile)
	}
	return config.GetConfigPath()
}

// loadConfig loads the config file with flag overrides applied and builds
// the logger it describes.
func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.LoadViper(settings, configPath())
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("loading config: %w", err)
	}
	logger, err := config.NewLogger(cfg.Logging, os.Stderr)
	if err != nil {
		return config.Config{}, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}
