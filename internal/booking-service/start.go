package bookingservice

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"medilink/internal/applog"
	"medilink/internal/booking-service/adapters/driver/myhttp"
	"medilink/internal/config"
)

// Execute runs the booking service until the context is cancelled or a
// shutdown signal arrives.
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
