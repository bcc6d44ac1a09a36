package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"typelens/internal/config"
	"typelens/internal/metrics"
	"typelens/internal/server"
	"typelens/internal/slogutil"
	"typelens/internal/version"
)

var (
	serveBackend     string
	serveIndex       string
	serveMetricsAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the language server on stdin/stdout",
	Long: `Run typelens as a language server speaking JSON-RPC over stdin/stdout.

Outlines and references come from a SCIP index when one covers the
document, and from the configured language servers otherwise.

Examples:
  typelens serve
  typelens serve --backend scip --index index.scip
  typelens serve --metrics-addr 127.0.0.1:9464`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveBackend, "backend", "", "Preferred backend: lsp or scip (default from config)")
	serveCmd.Flags().StringVar(&serveIndex, "index", "", "SCIP index path (default from config)")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, err := repoRoot()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(loadConfig(root))
	if err != nil {
		return err
	}
	defer closeLog()

	store, err := config.NewStore(root, logger.With(slogutil.ComponentKey, "config"))
	if err != nil {
		return err
	}
	cfg := store.Config()

	docs := server.NewDocuments()
	hosts, err := openHosts(cfg, root, serveBackend, serveIndex, docs, logger)
	if err != nil {
		return err
	}
	defer hosts.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := server.New(server.Options{
		Backend:   hosts.ladder,
		Documents: docs,
		Settings:  store,
		Closer:    hosts.lsp,
		Logger:    logger,
		Observer:  metrics.New(reg),
		Version:   version.Version,
	})

	g, gctx := errgroup.WithContext(ctx)

	if err := store.Watch(gctx); err != nil {
		logger.Debug("Config reload disabled", "error", err.Error())
	}
	if hosts.scipLoaded {
		g.Go(func() error {
			return hosts.scip.Watch(gctx)
		})
	}

	metricsAddr := serveMetricsAddr
	if metricsAddr == "" && cfg.Metrics.Enabled {
		metricsAddr = cfg.Metrics.Addr
	}
	if metricsAddr != "" {
		health := func(ctx context.Context) map[string]any {
			status := hosts.health(ctx)
			status["config"] = store.Status()
			return status
		}
		ms := metrics.NewServer(metricsAddr, reg, health, logger.With(slogutil.ComponentKey, "metrics"))
		g.Go(func() error {
			return ms.Run(gctx)
		})
	}

	logger.Info("typelens server starting",
		"repo", root,
		"backends", hosts.ladder.Order(),
		"version", version.Version,
	)

	// Serve blocks on stdin, so it runs outside the group and is abandoned
	// on a signal.
	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(gctx, os.Stdin, os.Stdout)
	}()

	var serveErr error
	select {
	case serveErr = <-served:
	case <-gctx.Done():
	}
	stop()

	groupErr := g.Wait()
	if serveErr != nil {
		if errors.Is(serveErr, server.ErrExitWithoutShutdown) {
			logger.Warn("Client exited without shutdown")
		}
		return serveErr
	}
	if groupErr != nil && !errors.Is(groupErr, context.Canceled) {
		return groupErr
	}
	return nil
}
