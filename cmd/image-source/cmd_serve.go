package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ironsheep/image-source/internal/server"
)

// serveEnv provides the environment for the serve command.
type serveEnv struct {
	root        *rootEnv
	metricsAddr string
	waitTimeout time.Duration
	maxSources  int
}

// getServeCmd returns the definition of the serve command.
func getServeCmd(root *rootEnv) *cobra.Command {
	env := &serveEnv{root: root}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP tool server on stdin/stdout.",
		Long: `
Reads JSON-RPC requests from stdin, one per line, and writes responses and
notifications to stdout. Configure it as a stdio server in an MCP client.`,
		Args: cobra.NoArgs,
		RunE: env.runServeCmd,
	}
	cmd.Flags().StringVar(&env.metricsAddr, "metrics-addr", ":9090", "Address for the prometheus /metrics endpoint when metrics are enabled")
	cmd.Flags().DurationVar(&env.waitTimeout, "wait-timeout", 30*time.Second, "How long image_request waits for a final delivery")
	cmd.Flags().IntVar(&env.maxSources, "max-sources", server.DefaultSourceLimit, "Sources kept between calls; the least recently used is closed beyond this")
	return cmd
}

// runServeCmd executes the serve command.
func (e *serveEnv) runServeCmd(cmd *cobra.Command, args []string) error {
	cfg, logger, err := e.root.load()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
	}
	var registerer prometheus.Registerer
	if reg != nil {
		registerer = reg
	}
	factory, err := newFactory(cfg, logger, registerer)
	if err != nil {
		return err
	}

	if reg != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		hs := &http.Server{Addr: e.metricsAddr, Handler: mux}
		go func() {
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics endpoint failed", zap.Error(err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = hs.Shutdown(ctx)
		}()
		logger.Info("serving metrics", zap.String("addr", e.metricsAddr))
	}

	logger.Info("starting image-source",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("commit", GitCommit))

	srv := server.New(factory, logger,
		server.WithVersion(Version),
		server.WithWaitTimeout(e.waitTimeout),
		server.WithSourceLimit(e.maxSources))
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Warn("closing sources", zap.Error(err))
		}
	}()
	return srv.Run()
}
