package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/civicdesk/civicdesk/internal/db"
	"github.com/civicdesk/civicdesk/internal/dispatch"
	"github.com/civicdesk/civicdesk/internal/handlers"
	"github.com/civicdesk/civicdesk/internal/logger"
	"github.com/civicdesk/civicdesk/internal/repository/postgres"
	"github.com/civicdesk/civicdesk/internal/service/auth"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger     logger.Logger
	dispatcher *dispatch.Dispatcher
	sweeper    *auth.Sweeper
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	if c.SecretKey == "" {
		return nil, errors.New("secret key is required, set SECRET_KEY or --secret-key")
	}

	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize services
	signer, err := auth.NewSigner(auth.SignerConfig{SecretKey: c.SecretKey})
	if err != nil {
		return nil, fmt.Errorf("error while creating token signer. Err: %w", err)
	}

	refreshManager, err := auth.NewRefreshManager(auth.RefreshConfig{}, storage)
	if err != nil {
		return nil, fmt.Errorf("error while creating refresh manager. Err: %w", err)
	}

	dispatcher := dispatch.New(dispatch.Config{}, logger)
	dispatcher.RegisterHTTP(auth.TargetEmail, c.EmailServiceAddr)
	dispatcher.RegisterHTTP(auth.TargetAudit, c.AuditServiceAddr)

	sessions, err := auth.NewSessionService(auth.SessionConfig{}, signer, refreshManager, storage.Principal(), dispatcher, logger)
	if err != nil {
		return nil, fmt.Errorf("error while creating session service. Err: %w", err)
	}

	sweeper := auth.NewSweeper(0, refreshManager, logger)

	mux := handlers.NewRouter(sessions, logger)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		logger:     logger,
		dispatcher: dispatcher,
		sweeper:    sweeper,
	}, nil
}

// Run starts background workers and the http server and closes
// everything gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	dispatcherStopped := s.dispatcher.Run(srvCtx)
	sweeperStopped := s.sweeper.Run(srvCtx)

	idleConnsClosed := make(chan struct{})
	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()

	<-idleConnsClosed
	<-dispatcherStopped
	<-sweeperStopped

	return err
}
