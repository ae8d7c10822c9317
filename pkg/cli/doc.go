/*
Package cli provides helpers shared by the bitgate commands.

Output formatting (text table, JSON, CSV) for command results:

	format, err := cli.ParseOutputFormat(flag)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(os.Stdout, result)

Results that implement Table render as aligned columns or CSV rows.

Signal handling for graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

Error types ConfigError and CommandError map to process exit codes through
ExitCode.
*/
package cli
