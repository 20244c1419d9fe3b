package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/david/bandi-sentinel/internal/api"
	"github.com/david/bandi-sentinel/internal/auth"
	"github.com/david/bandi-sentinel/internal/ingest"
	"github.com/david/bandi-sentinel/internal/logger"
)

func serveCommand() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read API, metrics and the admin scan trigger",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.pipeline(ingest.PipelineOptions{})
			if err != nil {
				return err
			}
			authService, err := auth.NewService(a.cfg.JWTSecret, a.cfg.AdminPasswordHash)
			if err != nil {
				return err
			}

			if port == "" {
				port = a.cfg.Port
			}
			srv := api.NewServer(a.store, p, authService, a.metrics)

			errCh := make(chan error, 1)
			go func() {
				logger.Log.Infof("[api] listening on :%s", port)
				errCh <- srv.Start(port)
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "listen port (default from PORT)")
	return cmd
}
