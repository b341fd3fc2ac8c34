package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"

	"github.com/spf13/cobra"
)

const defaultConfigFile = "relay.yaml"

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay - chat proxy for hosted language models",
	Long: `Relay sits between chat front-ends and a hosted generative language model.

It accepts one message per connection on a line-oriented socket protocol or
over HTTP, and for every message:
  - Validates the message length
  - Prepends the configured persona and knowledge base
  - Calls the model, retrying transient failures with jittered backoff
  - Answers with exactly one reply or a client-safe error

Configuration is read from relay.yaml when present, then overridden by
RELAY_* environment variables (for example RELAY_UPSTREAM_API_KEY).`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", defaultConfigFile, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig loads the configuration file with environment overrides. When
// the default file does not exist the relay starts from defaults; an
// explicitly named file must exist.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := cfgFile
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && !configFlagChanged(cmd) {
		path = ""
	}

	cfg, err := config.LoadConfigWithEnvOverrides(path)
	if err != nil {
		return nil, cli.WrapConfigError("", err)
	}
	return cfg, nil
}

func configFlagChanged(cmd *cobra.Command) bool {
	if cmd == nil {
		return false
	}
	f := cmd.Flag("config")
	return f != nil && f.Changed
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
