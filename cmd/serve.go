package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApplication(configPath)
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer app.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := app.applyRuntimeState(ctx); err != nil {
			return fmt.Errorf("failed to apply settings: %w", err)
		}
		// warm the artifacts so the first sitemap request is served from the store
		app.notifier.Notify("startup")

		r := app.newRouter()
		r.SetupRoutes()

		errCh := make(chan error, 1)
		go func() {
			errCh <- r.Start(app.cfg.Server.Addr())
		}()

		select {
		case err := <-errCh:
			return fmt.Errorf("server stopped: %w", err)
		case <-ctx.Done():
		}

		app.log.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := r.GetApp().ShutdownWithContext(shutdownCtx); err != nil {
			app.log.WithError(err).Error("Error during shutdown")
		}
		app.log.Info("Server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
