package dispatchservice

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"medilink/internal/applog"
	"medilink/internal/config"
	"medilink/internal/dispatch-service/adapters/driver/myhttp"
)

// Execute runs the dispatch service until the context is cancelled or
// a shutdown signal arrives.
func Execute(ctx context.Context, mylog applog.Logger, cfg *config.Config) error {
	newCtx, stop := signal.NotifyContext(ctx, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := myhttp.NewServer(newCtx, ctx, mylog, cfg)

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- server.Run()
	}()

	select {
	case <-newCtx.Done():
		mylog.Info("shutdown signal received")
		return server.Stop(context.Background())
	case err := <-runErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			mylog.Error("server failed unexpectedly", err)
			return err
		}
		mylog.Info("server exited normally")
		return nil
	}
}
