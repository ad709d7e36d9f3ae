package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bilal/clashstat/internal/config"
	"github.com/bilal/clashstat/internal/controller"
	"github.com/bilal/clashstat/internal/health"
	"github.com/bilal/clashstat/internal/logger"
	"github.com/bilal/clashstat/internal/metrics"
	"github.com/bilal/clashstat/internal/report"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

// Exit codes.
const (
	ExitOK        = 0
	ExitUsage     = 1
	ExitTransport = 2
	ExitDecode    = 3
	ExitOutput    = 4
)

const usage = `Usage: clashstat [flags] [command]

Commands:
  traffic       print current and total upload/download
  proxies       print every proxy with its type and selected target
  groups        print every proxy group with its candidates, selected one marked
  mode          print the controller's routing mode
  connections   print active connections
  version       print the controller version
  all           traffic followed by proxies (default)
  serve         expose /metrics and /health for Prometheus

Flags:
`

// Run executes one clashstat invocation and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("clashstat", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.StringP("config", "c", "", "path to a YAML config file")
	config.RegisterFlags(fs)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ExitOK
		}
		return ExitUsage
	}
	if fs.NArg() > 1 {
		fmt.Fprintf(stderr, "unexpected arguments: %v\n", fs.Args()[1:])
		fs.Usage()
		return ExitUsage
	}
	command := "all"
	if fs.NArg() == 1 {
		command = fs.Arg(0)
	}

	cfg, err := config.Load(*configPath, fs)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return ExitUsage
	}

	logger.Init(cfg.Logging, stderr)
	if cfg.Controller.Secret == "" {
		log.Warn().Str("controller", cfg.Controller.BaseURL).Msg("controller secret is empty, requests carry no authorization")
	}

	client, err := controller.New(cfg.Controller)
	if err != nil {
		log.Error().Err(err).Msg("create controller client")
		return ExitUsage
	}

	format := cfg.Output.Format
	switch command {
	case "traffic":
		return runReport("traffic", func() error { return report.Traffic(ctx, client, stdout, format) })
	case "proxies":
		return runReport("proxies", func() error { return report.Proxies(ctx, client, stdout, format) })
	case "groups":
		return runReport("groups", func() error { return report.Groups(ctx, client, stdout, format) })
	case "mode":
		return runReport("mode", func() error { return report.Mode(ctx, client, stdout, format) })
	case "connections":
		return runReport("connections", func() error { return report.Connections(ctx, client, stdout, format) })
	case "version":
		return runReport("version", func() error { return report.Version(ctx, client, stdout, format) })
	case "all":
		return runAll(ctx, client, stdout, format)
	case "serve":
		return serve(ctx, cfg, client)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", command)
		fs.Usage()
		return ExitUsage
	}
}

// runAll runs the traffic and proxies reports independently; a failure of
// one does not prevent the other. The first failure decides the exit code.
func runAll(ctx context.Context, client *controller.Client, w io.Writer, format string) int {
	code := runReport("traffic", func() error { return report.Traffic(ctx, client, w, format) })

	// separate documents only when the traffic report wrote one
	if format == report.FormatYAML && code == ExitOK {
		if _, err := io.WriteString(w, "---\n"); err != nil {
			code = ExitOutput
		}
	}

	if c := runReport("proxies", func() error { return report.Proxies(ctx, client, w, format) }); code == ExitOK {
		code = c
	}
	return code
}

func runReport(name string, fn func() error) int {
	err := fn()
	if err == nil {
		return ExitOK
	}
	log.Error().Err(err).Str("report", name).Msg("report failed")
	return exitCode(err)
}

func exitCode(err error) int {
	var te *controller.TransportError
	var de *controller.DecodeError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &te):
		return ExitTransport
	case errors.As(err, &de):
		return ExitDecode
	case errors.Is(err, report.ErrOutput):
		return ExitOutput
	default:
		return ExitUsage
	}
}

func serve(ctx context.Context, cfg *config.Config, client *controller.Client) int {
	reg := prometheus.NewRegistry()
	srv := health.New(cfg.Serve.ListenAddress, reg)
	reg.MustRegister(
		metrics.NewCollector(client, cfg.Serve.MetricPrefix, cfg.Controller.Timeout(), srv),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve()
	}()
	srv.SetRunning(true)
	log.Info().
		Str("listen", cfg.Serve.ListenAddress).
		Str("controller", cfg.Controller.BaseURL).
		Msg("serving metrics")

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("metrics server stopped")
			return ExitUsage
		}
		return ExitOK
	case <-ctx.Done():
	}

	log.Warn().Msg("shutdown signal received")
	srv.SetRunning(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("metrics server shutdown")
	}
	log.Info().Msg("stopped cleanly")
	return ExitOK
}
