package myhttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"medilink/internal/applog"
	"medilink/internal/auth-service/adapters/driven/db"
	"medilink/internal/auth-service/adapters/driver/myhttp/handle"
	"medilink/internal/auth-service/core/services"
	"medilink/internal/config"
	"medilink/internal/postgres"
)

const WaitTime = 10

type Server struct {
	mux    *http.ServeMux
	cfg    *config.Config
	srv    *http.Server
	mylog  applog.Logger
	db     *postgres.DB
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

// Run connects the database, wires the core and starts listening. It
// returns when the server stops.
func (s *Server) Run() error {
	mylog := s.mylog.Action("server_start")

	database, err := postgres.New(s.appCtx, s.cfg.DB, s.mylog)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	s.db = database
	mylog.Info("database connected")

	s.Configure()

	s.mu.Lock()
	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%v", s.cfg.Srv.AuthServicePort),
		Handler: s.mux,
	}
	s.mu.Unlock()

	mylog.With("port", s.cfg.Srv.AuthServicePort).Info("server is running")
	return s.startHTTPServer()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mylog.Info("shutting down auth service")

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

	s.mylog.Info("auth service shut down gracefully")
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

// Configure registers the public auth routes.
func (s *Server) Configure() {
	userRepo := db.NewUserRepo(s.db)
	authService := services.NewAuthService(s.appCtx, s.mylog, s.cfg, userRepo)
	authHandler := handle.NewAuthHandler(authService, s.mylog)

	s.mux.Handle("POST /auth/signup", authHandler.Signup())
	s.mux.Handle("POST /auth/signin", authHandler.Signin())
}
