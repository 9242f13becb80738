package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/gonzalop/ftpd/auth"
	"github.com/gonzalop/ftpd/config"
	"github.com/gonzalop/ftpd/metrics"
	"github.com/gonzalop/ftpd/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the FTP server",
	Long: `Start the FTP server and run until interrupted.

Examples:
  ftpd serve --config /etc/ftpd/ftpd.yaml
  FTPD_DEBUG=true ftpd serve --config ./ftpd.yaml`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger, closer, err := config.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	table, err := loadUsers(ctx, cfg, logger)
	if err != nil {
		return err
	}

	driver, err := server.NewFSDriver(cfg.RootDir, table)
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithDriver(driver),
		server.WithLogger(logger),
		server.WithBufferSize(int(cfg.BufferSize)),
		server.WithDataTimeout(cfg.DataTimeout),
		server.WithDataPort(cfg.DataPort),
		server.WithPassive(server.Settings{
			PublicHost:  cfg.Passive.PublicHost,
			PasvMinPort: cfg.Passive.MinPort,
			PasvMaxPort: cfg.Passive.MaxPort,
		}),
		server.WithMaxIdleTime(cfg.IdleTimeout),
		server.WithMaxConnections(cfg.MaxConnections, cfg.MaxConnectionsPerIP),
	}

	var (
		collector *metrics.Collector
		registry  *prometheus.Registry
	)
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		collector = metrics.New(registry)
		opts = append(opts, server.WithMetrics(collector))
	}

	srv, err := server.NewServer(":"+strconv.Itoa(cfg.ControlPort), opts...)
	if err != nil {
		return err
	}

	var metricsSrv *http.Server
	if collector != nil {
		collector.TrackSessions(srv.ActiveSessions)

		var accessLog io.Writer = io.Discard
		if cfg.Debug {
			accessLog = os.Stderr
		}
		metricsSrv = metrics.NewHTTPServer(
			":"+strconv.Itoa(cfg.Metrics.Port),
			metrics.NewRouter(registry, accessLog, logger),
		)
		go func() {
			logger.Info("metrics endpoint listening", "port", cfg.Metrics.Port)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	logger.Info("configuration loaded",
		"source", configSource(),
		"root_dir", cfg.RootDir,
		"users", table.Len(),
		"buffer_size", cfg.BufferSize.String(),
	)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if !errors.Is(err, server.ErrServerClosed) {
			return err
		}
	}

	if err := srv.Shutdown(); err != nil {
		logger.Warn("ftp shutdown error", "error", err)
	}

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown error", "error", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// loadUsers builds the credential table. A users file wins over inline
// users and is watched for changes until ctx is done.
func loadUsers(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*auth.Table, error) {
	if cfg.UsersFile == "" {
		if err := auth.ValidateUsers(cfg.Users); err != nil {
			return nil, fmt.Errorf("invalid users in config: %w", err)
		}
		return auth.NewTable(cfg.Users), nil
	}

	users, err := auth.LoadFile(cfg.UsersFile)
	if err != nil {
		return nil, err
	}
	table := auth.NewTable(users)

	if err := table.Watch(ctx, cfg.UsersFile, logger); err != nil {
		logger.Warn("users file will not be reloaded", "path", cfg.UsersFile, "error", err)
	}
	return table, nil
}

func configSource() string {
	if cfgFile != "" {
		return cfgFile
	}
	return "environment"
}
