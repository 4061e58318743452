// Package main provides the ideaforge command: the run orchestration API
// server and a CLI for submitting and inspecting runs.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jonathan/ideaforge/internal/config"
	"github.com/jonathan/ideaforge/internal/logging"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "ideaforge",
	Short: "Idea-to-launch run orchestration",
	Long: `ideaforge turns a product idea into a brief, market analysis, product document,
wireframe, prototype, demo media and outreach messages by running a fixed
pipeline of generation steps with retries, checkpoints and review pauses.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML or JSON config file (default ./ideaforge.yaml if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// loadConfig reads configuration and builds the logger every command uses.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if cfg.File() != "" {
		logger.Debug().Str("file", cfg.File()).Msg("loaded config")
	}
	return cfg, logger, nil
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
