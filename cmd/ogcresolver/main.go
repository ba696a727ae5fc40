package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/ogcapi-resolver/internal/app"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/core/config"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/core/fetch"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/core/observability"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/core/server"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/logger"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/metrics"
)

var (
	Version  = "dev"
	Revision = ""
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "ogcresolver",
		Short:         "Resolve OGC API services into map layers and styles",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().String("service", "", "OGC API service url (defaults to SERVICE_URL or STYLES_URL)")
	root.AddCommand(serveCmd(), recordsCmd(), collectionCmd(), stylesCmd())
	return root
}

// setup reads the environment and builds the resolvers; the logger writes to
// stderr so command output stays parseable.
func setup(cmd *cobra.Command, component string) (*app.App, error) {
	cfg := config.FromEnv()
	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: component,
	}, cmd.ErrOrStderr())
	log := logger.NewSlog(&zl)
	a, err := app.New(cmd.Context(), cfg, log)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
		return nil, err
	}
	return a, nil
}

func serviceFlag(cmd *cobra.Command, def string) string {
	if s, _ := cmd.Flags().GetString("service"); s != "" {
		return s
	}
	return def
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// fail prints the user-facing message of an upstream failure.
func fail(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", fetch.Message(err))
	return err
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP facade",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd, "server")
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			ctx := cmd.Context()

			opts := server.Options{}
			if a.Config.MetricsEnabled {
				p := metrics.Init(metrics.Config{Build: metrics.BuildInfo{Version: Version, Revision: Revision}})
				observability.Init(p.Registerer(), true)
				opts.Metrics = p.Handler()
			} else {
				observability.Init(nil, false)
			}
			if err := a.StartInvalidation(ctx); err != nil {
				a.Logger.Error("invalidation disabled", "err", err)
				return err
			}
			opts.Ready = a.ReadyChecks()

			a.Logger.Info("starting ogcresolver", "addr", a.Config.Addr, "version", Version,
				"service", a.Config.ServiceURL, "styles", a.Config.StylesURL)
			if err := server.Run(ctx, a.Config.Addr, a.Logger, server.NewHandler(a.Logger, a.Handlers(), opts)); err != nil {
				a.Logger.Error("server exited with error", "err", err)
				return err
			}
			a.Logger.Info("server stopped")
			return nil
		},
	}
}

func recordsCmd() *cobra.Command {
	var (
		start, maxRecords int
		text              string
	)
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Page through and resolve the collections of a service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd, "cli")
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			page, err := a.Records.GetRecords(cmd.Context(), serviceFlag(cmd, a.Config.ServiceURL), start, maxRecords, text)
			if err != nil {
				return fail(cmd, err)
			}
			return printJSON(cmd, page)
		},
	}
	cmd.Flags().IntVar(&start, "start", 1, "1-based index of the first record")
	cmd.Flags().IntVar(&maxRecords, "max", 10, "maximum number of records")
	cmd.Flags().StringVarP(&text, "query", "q", "", "case-insensitive text filter")
	return cmd
}

func collectionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collection <collection-url>",
		Short: "Resolve one collection into a layer descriptor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, "cli")
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			desc, err := a.Collections.Resolve(cmd.Context(), args[0], serviceFlag(cmd, a.Config.ServiceURL))
			if err != nil {
				return fail(cmd, err)
			}
			return printJSON(cmd, desc)
		},
	}
}

func stylesCmd() *cobra.Command {
	var compose bool
	cmd := &cobra.Command{
		Use:   "styles",
		Short: "List the styles of a styles service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd, "cli")
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			svc := serviceFlag(cmd, a.Config.StylesURL)
			cat, err := a.Styles.ListStyles(cmd.Context(), svc)
			if err != nil {
				return fail(cmd, err)
			}
			if !compose {
				return printJSON(cmd, cat)
			}
			return printJSON(cmd, a.Styles.Compose(cmd.Context(), svc, cat.Styles))
		},
	}
	cmd.Flags().BoolVar(&compose, "compose", false, "resolve every listed style into layers")
	return cmd
}
