package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/stardispatch/internal/api"
	"github.com/mattjoyce/stardispatch/internal/config"
	"github.com/mattjoyce/stardispatch/internal/events"
	"github.com/mattjoyce/stardispatch/internal/log"
	"github.com/mattjoyce/stardispatch/internal/metrics"
	"github.com/mattjoyce/stardispatch/internal/scheduler"
	"github.com/mattjoyce/stardispatch/internal/tracing"
)

func serveCmd(g *globalFlags) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Datastar demo endpoints in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig(g, cmd.ErrOrStderr(), true)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.API.Enabled = true
				cfg.API.Listen = listen
			}
			if !cfg.API.Enabled {
				return errors.New("api is disabled; nothing to serve")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, g, cfg, path)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Override api.listen (host:port)")
	return cmd
}

func serve(ctx context.Context, g *globalFlags, cfg *config.Config, path string) error {
	level := cfg.Service.LogLevel
	if g.logLevel != "" {
		level = g.logLevel
	}
	log.Setup(level)
	logger := log.WithComponent("main")

	attrs := []any{"version", version, "service", cfg.Service.Name}
	if path != "" {
		fp, err := config.Fingerprint(path)
		if err != nil {
			return fmt.Errorf("failed to fingerprint config: %w", err)
		}
		attrs = append(attrs, "config", path, "config_fingerprint", fp)
	}
	logger.Info("stardispatch starting", attrs...)

	tp, err := tracing.Setup(ctx, cfg.Tracing, cfg.Service.Name, version)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()
	if tp.Enabled() {
		logger.Info("exporting traces", "endpoint", cfg.Tracing.Endpoint, "sample_rate", cfg.Tracing.SampleRate)
	}

	dc, err := cfg.DispatchConfig(log.Get(), metrics.Default())
	if err != nil {
		return err
	}
	logger.Info("dispatch configured",
		"scheduler", cfg.Streaming.Scheduler,
		"heartbeat", cfg.Streaming.Heartbeat.Interval.String(),
	)

	hub := events.NewHub(cfg.Events.History)
	srv := api.New(api.Config{Listen: cfg.API.Listen, Dispatch: dc}, hub, log.WithComponent("api"))

	logger.Info("stardispatch running (press Ctrl+C to stop)", "listen", cfg.API.Listen)
	err = srv.Start(ctx)

	if ts, ok := dc.Scheduler.(*scheduler.TaskScheduler); ok {
		logger.Debug("waiting for streaming tasks")
		ts.Wait()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("api server failed", "error", err)
		return err
	}
	logger.Info("stardispatch stopped")
	return nil
}
