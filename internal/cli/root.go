package cli

import (
	"fmt"
	"os"
	"strings"

	"cybersecbot/internal/config"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// RootOptions holds the global flags and the configuration they lead to
type RootOptions struct {
	ConfigFile string
	EnvFile    string

	// Loaded before any subcommand runs
	Config *config.Config
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "cybersecbot",
		Short:         "Discord bot of the cybersecurity club",
		Long:          "Runs giveaways, CTF rosters and event reminders on Discord, and verifies members by university email.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded into the environment when present")

	// Add subcommands
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewCheckConfigCommand(opts))
	cmd.AddCommand(NewCheckTokenCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

func (opts *RootOptions) load() error {

	// Environment
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("error loading %s: %w", opts.EnvFile, err)
		}
	}

	// Configuration
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return err
	}
	opts.Config = cfg

	return setupLogging(cfg.LogLevel, cfg.LogPretty)
}

func setupLogging(level string, pretty bool) error {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	if parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return nil
}
