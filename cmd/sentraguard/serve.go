package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sentraguard/internal/httpserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and optional periodic scans",
	Long: `Serve exposes status, scan and shutdown controls over HTTP. Pending
auto-restores from a previous run are re-armed on start.

Scans are normally triggered by an external scheduler through
POST /api/v1/scan; --scan-interval runs them in-process instead.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Duration("scan-interval", 0, "run a scan cycle at this interval (0 disables)")
}

func runServe(cmd *cobra.Command, args []string) error {
	interval, _ := cmd.Flags().GetDuration("scan-interval")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return withApp(ctx, func(a *app) error {
		if err := a.machine.Recover(ctx); err != nil {
			return err
		}

		handler := httpserver.NewRouter(httpserver.Deps{
			Logger:         a.logger,
			Auth:           a.authSvc,
			Events:         a.events,
			Scanner:        a.scanner,
			Controls:       a.machine,
			Gatherer:       a.registry,
			SchedulerToken: a.cfg.SchedulerToken,
		})
		server := httpserver.New(a.cfg.HTTPAddr, handler, a.logger)

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()
		if interval > 0 {
			go runScheduler(ctx, a, interval)
		}

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("http shutdown", "err", err)
		}
		return nil
	})
}

func runScheduler(ctx context.Context, a *app, interval time.Duration) {
	a.logger.Info("periodic scans enabled", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.scanner.Run(ctx)
		}
	}
}
