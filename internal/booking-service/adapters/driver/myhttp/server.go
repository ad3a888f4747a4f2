package myhttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"medilink/internal/applog"
	"medilink/internal/authmw"
	"medilink/internal/booking-service/adapters/driven/bm"
	"medilink/internal/booking-service/adapters/driven/db"
	"medilink/internal/booking-service/adapters/driver/myhttp/handle"
	"medilink/internal/booking-service/core/services"
	"medilink/internal/config"
	"medilink/internal/postgres"
	"medilink/internal/rabbit"
)

const WaitTime = 10

type Server struct {
	mux    *http.ServeMux
	cfg    *config.Config
	srv    *http.Server
	mylog  applog.Logger
	db     *postgres.DB
	mq     *rabbit.RabbitMQ
	ctx    context.Context
	appCtx context.Context
	mu     sync.Mutex
}

func NewServer(ctx, appCtx context.Context, mylog applog.Logger, cfg *config.Config) *Server {
	return &Server{
		ctx:    ctx,
		appCtx: appCtx,
		cfg:    cfg,
		mylog:  mylog,
		mux:    http.NewServeMux(),
	}
}

// Run connects the driven adapters, wires the core and starts
// listening. It returns when the server stops.
func (s *Server) Run() error {
	mylog := s.mylog.Action("server_start")

	database, err := postgres.New(s.appCtx, s.cfg.DB, s.mylog)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	s.db = database
	mylog.Info("database connected")

	mq, err := rabbit.New(s.appCtx, *s.cfg.RabbitMq, s.mylog)
	if err != nil {
		return fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	s.mq = mq
	mylog.Info("message broker connected")

	s.Configure()

	s.mu.Lock()
	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%v", s.cfg.Srv.BookingServicePort),
		Handler: s.mux,
	}
	s.mu.Unlock()

	mylog.With("port", s.cfg.Srv.BookingServicePort).Info("server is running")
	return s.startHTTPServer()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mylog.Info("shutting down booking service")

	if s.srv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, WaitTime*time.Second)
		defer cancel()

		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.mylog.Error("failed to shut down HTTP server gracefully", err)
			return fmt.Errorf("http server shutdown: %w", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.mylog.Error("failed to close database", err)
			return fmt.Errorf("db close: %w", err)
		}
	}

	s.mylog.Info("booking service shut down gracefully")
	return nil
}

func (s *Server) startHTTPServer() error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		} else {
			errCh <- nil
		}
	}()

	select {
	case <-s.ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Configure wires the reservation core behind the authenticated routes.
func (s *Server) Configure() {
	reservationRepo := db.NewReservationRepo(s.db)
	broker := bm.NewPublisher(s.mq)

	reservationService := services.NewReservationService(s.appCtx, s.mylog, s.cfg.App, reservationRepo, broker)

	reservationHandler := handle.NewReservationHandler(reservationService, s.mylog)
	authMiddleware := authmw.NewAuthMiddleware(s.cfg.App.JwtSecret)

	s.mux.Handle("POST /reservations", authMiddleware.Wrap(reservationHandler.Hold(), "PATIENT"))
	s.mux.Handle("POST /reservations/{reservation_id}/confirm", authMiddleware.Wrap(reservationHandler.Confirm(), "PATIENT"))
	s.mux.Handle("POST /reservations/{reservation_id}/cancel", authMiddleware.Wrap(reservationHandler.Cancel(), "PATIENT"))
	s.mux.Handle("GET /reservations/active", authMiddleware.Wrap(reservationHandler.Active(), "PATIENT"))
}
