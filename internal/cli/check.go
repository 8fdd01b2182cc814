package cli

import (
	"fmt"
	"strings"

	"cybersecbot/internal/bot"

	"github.com/spf13/cobra"
)

// NewCheckConfigCommand validates the configuration and prints a summary of it
func NewCheckConfigCommand(opts *RootOptions) *cobra.Command {
	var requireToken bool

	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration without connecting to Discord",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.Config
			if err := cfg.Validate(requireToken); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "database:       %s\n", cfg.DatabasePath)
			fmt.Fprintf(out, "guilds:         %s\n", orNone(strings.Join(cfg.GuildIDs, ", ")))
			fmt.Fprintf(out, "verify domain:  %s\n", cfg.VerifyDomain)
			fmt.Fprintf(out, "email:          %t\n", cfg.EmailConfigured())
			fmt.Fprintf(out, "calendar feed:  %s\n", orNone(cfg.CalendarICSURL))
			fmt.Fprintf(out, "ctf channel:    %s\n", orNone(cfg.CTFChannelID))
			fmt.Fprintf(out, "reminders:      %v\n", cfg.ReminderOffsets)
			fmt.Fprintf(out, "metrics:        %s\n", orNone(cfg.MetricsAddress))
			fmt.Fprintln(out, "configuration is valid")
			return nil
		},
	}

	cmd.Flags().BoolVar(&requireToken, "require-token", false, "fail when DISCORD_TOKEN is missing")
	return cmd
}

// NewCheckTokenCommand logs in with the token and prints the bot user
func NewCheckTokenCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-token",
		Short: "Check that the Discord token is accepted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Config.DiscordToken == "" {
				return fmt.Errorf("DISCORD_TOKEN is required")
			}
			session, err := bot.NewSession(opts.Config.DiscordToken)
			if err != nil {
				return err
			}

			user, err := session.User("@me")
			if err != nil {
				return fmt.Errorf("token rejected: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (%s)\n", user.Username, user.ID)
			return nil
		},
	}
}

func orNone(value string) string {
	if value == "" {
		return "none"
	}
	return value
}
