package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/banking/audit-risk-service/internal/pkg/logger"
	transport "github.com/banking/audit-risk-service/internal/transport/http"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	a, err := loadApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	handler := transport.NewHandler(a.engine, a.reloadWeights, a.log)
	e := transport.NewServer(&a.cfg.Server, handler, a.registry, a.health, a.log)

	serverAddr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	a.log.Info("Server started",
		logger.StringField("addr", serverAddr),
		logger.StringField("storage", a.cfg.Storage.Backend),
		logger.StringField("version", Version),
	)

	// Wait for interrupt signal to gracefully shutdown the server with a timeout
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	a.log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}

	a.log.Info("Server exited properly")
	return nil
}
