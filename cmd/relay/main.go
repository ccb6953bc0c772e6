package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCommand builds the relay CLI. Without a subcommand the platform is
// taken from HANDLER_PLATFORM or detected from the environment.
func newRootCommand() *cobra.Command {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:           "relay",
		Short:         "Download relay: fetch a remote file and return it as an attachment",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, logLevel, "", "")
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL")

	rootCmd.AddCommand(newServeCommand(&logLevel))
	rootCmd.AddCommand(newLambdaCommand(&logLevel))

	return rootCmd
}

func newServeCommand(logLevel *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay as an HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, *logLevel, "http", addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overrides HTTP_ADDR")

	return cmd
}

func newLambdaCommand(logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Run the relay inside the AWS Lambda runtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, *logLevel, "lambda", "")
		},
	}
}

func run(cmd *cobra.Command, logLevel, platform, addr string) error {
	cfg, err := loadConfiguration(logLevel, platform, addr)
	if err != nil {
		return err
	}

	app := buildApplication(cfg, nil)
	defer app.Close()

	return startApplication(cmd.Context(), app)
}
