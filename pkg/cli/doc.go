/*
Package cli provides command-line helpers shared by the relay commands.

Errors:

Commands return typed errors that ExitCode maps to process exit codes:
ConfigError for unusable configuration or flags, ReplyError for an error
reply received from the relay, anything else as a generic failure.

	if err := rootCmd.Execute(); err != nil {
		os.Exit(cli.ExitCode(err))
	}

Output Formatting:

Results are printed as text or JSON:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, result); err != nil {
		return err
	}

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
*/
package cli
