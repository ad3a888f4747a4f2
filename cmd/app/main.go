package main

import (
	"context"
	"fmt"
	"os"

	"medilink/internal/applog"
	authservice "medilink/internal/auth-service"
	bookingservice "medilink/internal/booking-service"
	"medilink/internal/config"
	dispatchservice "medilink/internal/dispatch-service"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: app <auth-service|booking-service|dispatch-service>")
		os.Exit(1)
	}

	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot load config: %v\n", err)
		os.Exit(1)
	}

	mylog, err := applog.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	switch os.Args[1] {
	case "auth-service":
		err = authservice.Execute(ctx, mylog.With("service", "auth"), cfg)
	case "booking-service":
		err = bookingservice.Execute(ctx, mylog.With("service", "booking"), cfg)
	case "dispatch-service":
		err = dispatchservice.Execute(ctx, mylog.With("service", "dispatch"), cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown service %q\n", os.Args[1])
		os.Exit(1)
	}
	if err != nil {
		mylog.Error("service exited with error", err)
		os.Exit(1)
	}
}
