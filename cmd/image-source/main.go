// Command image-source serves image sources as MCP tools over stdio and
// fetches single images from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ironsheep/image-source/internal/assetlib"
	"github.com/ironsheep/image-source/internal/config"
	"github.com/ironsheep/image-source/internal/download"
	"github.com/ironsheep/image-source/internal/logging"
	"github.com/ironsheep/image-source/internal/metrics"
	"github.com/ironsheep/image-source/internal/queue"
	"github.com/ironsheep/image-source/internal/request"
	"github.com/ironsheep/image-source/internal/source"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// rootEnv holds the flags shared by every subcommand.
type rootEnv struct {
	configPath string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root := newRootCmd()
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	env := &rootEnv{}
	cmd := &cobra.Command{
		Use:   "image-source [sub]",
		Short: "Image sources for local files, URLs, asset libraries and crops.",
		Long: `
image-source loads images from local files, HTTP URLs, a directory-backed
asset library or cropped views of any of those.

The serve command speaks MCP over stdin/stdout; fetch writes one image to
a file. Logs go to stderr.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&env.configPath, "config", "", "Path to a YAML configuration file")
	cmd.PersistentFlags().StringVar(&env.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config file")

	cmd.AddCommand(
		getServeCmd(env),
		getFetchCmd(env),
		getVersionCmd(),
	)
	return cmd
}

// load reads the configuration and builds the logger.
func (r *rootEnv) load() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(r.configPath)
	if err != nil {
		return cfg, nil, err
	}
	if r.logLevel != "" {
		cfg.LogLevel = r.logLevel
		if err := config.Validate(cfg); err != nil {
			return cfg, nil, err
		}
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}

// newFactory wires the configured backends into a source.Factory. reg may
// be nil, in which case no metrics are recorded.
func newFactory(cfg config.Config, logger *zap.Logger, reg prometheus.Registerer) (*source.Factory, error) {
	var rec metrics.Recorder = metrics.Nop{}
	if reg != nil {
		p, err := metrics.NewPrometheus(reg, cfg.Metrics.Namespace)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		rec = p
	}

	dl, err := download.NewHTTP(cfg.Remote, nil, logger)
	if err != nil {
		return nil, err
	}

	bg, err := cfg.Crop.BackgroundColor()
	if err != nil {
		return nil, err
	}

	f := &source.Factory{
		Env: source.Env{
			Queues:      queue.NewSet(cfg.Queues),
			Dispatcher:  source.MainDispatcher(),
			IDs:         request.NewGenerator(),
			Logger:      logger,
			Metrics:     rec,
			JPEGQuality: cfg.Encode.JPEGQuality,
		},
		Downloader: dl,
		CropDir:    cfg.Crop.TempDir,
		Background: bg,
	}

	if cfg.Assets.Root != "" {
		lib, err := assetlib.NewLibrary(cfg.Assets, logger)
		if err != nil {
			return nil, err
		}
		f.Assets = lib
		logger.Info("asset library enabled", zap.String("root", cfg.Assets.Root))
	}
	return f, nil
}
