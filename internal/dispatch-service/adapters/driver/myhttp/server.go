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
	"medilink/internal/config"
	"medilink/internal/dispatch-service/adapters/driven/bm"
	"medilink/internal/dispatch-service/adapters/driven/consumer"
	"medilink/internal/dispatch-service/adapters/driven/db"
	"medilink/internal/dispatch-service/adapters/driver/myhttp/handle"
	"medilink/internal/dispatch-service/adapters/driver/myhttp/ws"
	"medilink/internal/dispatch-service/core/services"
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

	if err := s.Configure(); err != nil {
		return fmt.Errorf("failed to configure routes: %w", err)
	}

	s.mu.Lock()
	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%v", s.cfg.Srv.DispatchServicePort),
		Handler: s.mux,
	}
	s.mu.Unlock()

	mylog.With("port", s.cfg.Srv.DispatchServicePort).Info("server is running")
	return s.startHTTPServer()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mylog.Info("shutting down dispatch service")

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

	s.mylog.Info("dispatch service shut down gracefully")
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

// Configure wires repositories, core services, websocket channels and
// the broker consumer, then registers the routes.
func (s *Server) Configure() error {
	requestRepo := db.NewRequestRepo(s.db)
	candidateRepo := db.NewCandidateRepo(s.db)

	broker := bm.NewPublisher(s.mq)

	presenceService := services.NewPresenceService(s.appCtx, s.mylog, candidateRepo)
	assignmentService := services.NewAssignmentService(s.appCtx, s.mylog, s.cfg.App, presenceService, requestRepo, broker)

	eventHandler := ws.NewEventHandler(s.cfg.App.JwtSecret, s.mylog, presenceService, assignmentService)
	dispatcher := ws.NewDispatcher(s.mylog, eventHandler)

	notification := consumer.New(s.appCtx, s.mylog, s.mq, dispatcher)
	if err := notification.Run(); err != nil {
		return fmt.Errorf("start broker consumer: %w", err)
	}

	dispatchHandler := handle.NewDispatchHandler(assignmentService, presenceService, s.mylog)
	authMiddleware := authmw.NewAuthMiddleware(s.cfg.App.JwtSecret)

	s.mux.Handle("GET /requests/active", authMiddleware.Wrap(dispatchHandler.ActiveRequest(), "PATIENT", "AMBULANCE", "DOCTOR"))
	s.mux.Handle("GET /presence/me", authMiddleware.Wrap(dispatchHandler.Presence(), "AMBULANCE", "DOCTOR"))

	s.mux.Handle("/ws/candidates/{candidate_id}", dispatcher.WsHandler("candidate_id", ws.ChannelCandidate))
	s.mux.Handle("/ws/requesters/{requester_id}", dispatcher.WsHandler("requester_id", ws.ChannelRequester))

	return nil
}
