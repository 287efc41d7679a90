package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/route1io/connectors/pkg/automation"
	"github.com/route1io/connectors/pkg/config"
	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/connectors/google/credentials"
	"github.com/route1io/connectors/pkg/connectors/google/drive"
	"github.com/route1io/connectors/pkg/connectors/google/sheets"
	"github.com/route1io/connectors/pkg/logger"
	"github.com/route1io/connectors/pkg/metrics"
	"github.com/route1io/connectors/pkg/observability"
)

var version = "0.1.0"

// globalFlags are shared by every command.
type globalFlags struct {
	logLevel    string
	logFormat   string
	envFiles    []string
	trace       bool
	metricsFile string
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run executes the command line in args and then flushes traces and
// metrics, whether or not the command failed.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{}
	root := a.rootCmd()
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if ferr := a.flush(ctx); err == nil {
		err = ferr
	}
	return err
}

// app holds the global flags and whatever PersistentPreRunE set up.
type app struct {
	flags           globalFlags
	shutdownTracing observability.ShutdownFunc
}

// flush ends tracing and writes the metrics textfile.
func (a *app) flush(ctx context.Context) error {
	defer func() { _ = logger.Sync() }()
	var first error
	if a.shutdownTracing != nil {
		first = a.shutdownTracing(ctx)
		a.shutdownTracing = nil
	}
	if a.flags.metricsFile != "" {
		if err := metrics.WriteTextfile(a.flags.metricsFile); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (a *app) setup(cmd *cobra.Command) error {
	if err := loadEnv(a.flags.envFiles); err != nil {
		return err
	}
	v := config.NewViper()
	if err := v.BindPFlag("route1_log_level", cmd.Flags().Lookup("log-level")); err != nil {
		return err
	}
	settings, err := config.SettingsFrom(v)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.Config{Level: settings.LogLevel, Encoding: a.flags.logFormat}); err != nil {
		return err
	}
	a.shutdownTracing, err = observability.InitTracing(observability.TracingConfig{
		Enabled:        a.flags.trace,
		ServiceName:    "route1",
		ServiceVersion: version,
		SamplingRate:   1,
	})
	return err
}

func (a *app) rootCmd() *cobra.Command {
	flags := &a.flags
	root := &cobra.Command{
		Use:           "route1",
		Short:         "route1 - extract and load files through vendor connectors",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&flags.logFormat, "log-format", "console", "Log encoding (console, json)")
	pf.StringSliceVar(&flags.envFiles, "env-file", nil, "Load environment variables from these files (default .env when present)")
	pf.BoolVar(&flags.trace, "trace", false, "Export connector spans to stderr")
	pf.StringVar(&flags.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")

	root.AddCommand(
		newExtractCmd(),
		newLoadCmd(),
		newConnectorsCmd(),
		newGoogleAuthCmd(),
		newVersionCmd(),
	)
	return root
}

// loadEnv loads the given files, or .env when none are given and it
// exists. Variables already set in the environment win.
func loadEnv(files []string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to load env files")
	}
	return nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func newExtractCmd() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Download every source in an extract document",
		Long: `Download every source listed under extract.sources into ROUTE1_WORKING_DIR.

Example:
  route1 extract -c extract.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc config.ExtractDocument
			if err := config.Load(configFile, &doc); err != nil {
				return err
			}
			settings, err := config.LoadSettings()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()

			res, err := automation.RunExtract(ctx, &doc, settings)
			if err != nil {
				return err
			}
			logger.Info("extract finished",
				zap.String("run_id", res.RunID),
				zap.Int("sources", len(res.Completed)),
				zap.Duration("elapsed", res.Elapsed))
			return nil
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "extract.yaml", "Path to the extract document")
	return cmd
}

func newLoadCmd() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Upload every target in a load document",
		Long: `Upload every target listed under load.targets from ROUTE1_WORKING_DIR.

Example:
  route1 load -c load.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc config.LoadDocument
			if err := config.Load(configFile, &doc); err != nil {
				return err
			}
			settings, err := config.LoadSettings()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()

			res, err := automation.RunLoad(ctx, &doc, settings)
			if err != nil {
				return err
			}
			logger.Info("load finished",
				zap.String("run_id", res.RunID),
				zap.Int("targets", len(res.Completed)),
				zap.Duration("elapsed", res.Elapsed))
			return nil
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "load.yaml", "Path to the load document")
	return cmd
}

func newConnectorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connectors",
		Short: "List the source and target types",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Sources:")
			for _, name := range automation.Default().Extractors() {
				fmt.Fprintf(out, "  - %s\n", name)
			}
			fmt.Fprintln(out, "\nTargets:")
			for _, name := range automation.Default().Loaders() {
				fmt.Fprintf(out, "  - %s\n", name)
			}
		},
	}
}

func newGoogleAuthCmd() *cobra.Command {
	var clientSecrets, output string
	var scopes []string
	var port int
	cmd := &cobra.Command{
		Use:   "google-auth",
		Short: "Authorize the Google connectors in a browser",
		Long: `Open the Google consent screen for an OAuth client and save the
authorized-user credentials. The saved refresh token can be used as
GCP_REFRESH_TOKEN.

Example:
  route1 google-auth --client-secrets client_secret.json -o authorized_user.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			creds, err := credentials.FromConsentScreen(ctx, clientSecrets, scopes, port, output)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved credentials to %s (refresh token present: %t)\n",
				output, creds.Token.RefreshToken != "")
			return nil
		},
	}
	cmd.Flags().StringVar(&clientSecrets, "client-secrets", "client_secret.json", "OAuth client secrets file downloaded from the Cloud console")
	cmd.Flags().StringVarP(&output, "output", "o", "authorized_user.json", "Where to save the authorized-user credentials")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{sheets.Scope, drive.Scope}, "OAuth scopes to request")
	cmd.Flags().IntVar(&port, "port", 0, "Loopback port for the redirect (0 picks a free port)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "route1 v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
