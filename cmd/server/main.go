package main

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"medfront/app/internal/assistant"
	"medfront/app/internal/backend"
	"medfront/app/internal/chat"
	"medfront/app/internal/config"
	appdb "medfront/app/internal/db"
	apphttp "medfront/app/internal/http"
	applog "medfront/app/internal/log"
	"medfront/app/internal/ui"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return eris.Wrap(err, "failure loading configuration")
	}

	logger, err := applog.NewLogger(cfg.LogLevel)
	if err != nil {
		return eris.Wrap(err, "failure initialising logger")
	}

	sentryHub, flush, err := applog.InitSentry(logger, applog.SentrySettings{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Environment,
		ServiceName: "medfront",
	})
	if err != nil {
		return eris.Wrap(err, "failure initialising sentry")
	}
	defer flush()

	dbConn, err := appdb.Open(appdb.Options{Path: cfg.DBPath})
	if err != nil {
		return eris.Wrap(err, "opening database")
	}
	defer func() {
		if closeErr := appdb.Close(dbConn); closeErr != nil {
			logger.WithError(closeErr).Error("closing database")
		}
	}()

	if err := chat.Migrate(ctx, dbConn, logger); err != nil {
		return eris.Wrap(err, "running migrations")
	}

	repository, err := chat.NewRepository(dbConn, logger)
	if err != nil {
		return eris.Wrap(err, "building chat repository")
	}

	client, err := backend.NewClient(backend.ClientOptions{
		BaseURL: cfg.BackendURL,
		Timeout: cfg.BackendTimeout,
		Logger:  logger,
	})
	if err != nil {
		return eris.Wrap(err, "creating backend client")
	}

	responder, err := newAssistant(cfg, client, logger)
	if err != nil {
		return eris.Wrap(err, "initialising assistant")
	}

	chatService, err := chat.NewService(repository, client, responder, logger, sentryHub)
	if err != nil {
		return eris.Wrap(err, "creating chat service")
	}

	initialView, err := ui.ParseView(cfg.DefaultView)
	if err != nil {
		return eris.Wrap(err, "parsing default view")
	}

	transport, err := apphttp.NewServer(apphttp.Options{
		Backend:        client,
		Chat:           chatService,
		Sessions:       ui.NewStore(initialView, cfg.SessionTTL),
		Database:       dbConn,
		Logger:         logger,
		SentryHub:      sentryHub,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		SecureCookies:  cfg.Environment == "production",
		RateLimiter: apphttp.RateLimiterSettings{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			ClientTTL:         cfg.RateLimit.ClientTTL,
		},
	})
	if err != nil {
		return eris.Wrap(err, "initialising http transport")
	}
	defer transport.Close()

	httpServer := &stdhttp.Server{
		Addr:    fmt.Sprintf("0.0.0.0:%d", cfg.ServerPort),
		Handler: transport.Handler(),
	}

	logger.WithFields(logrus.Fields{
		"addr":    httpServer.Addr,
		"backend": client.BaseURL(),
	}).Info("starting http server")

	serverErrCh := make(chan error, 1)
	go func() {
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErrCh <- err
		} else {
			serverErrCh <- nil
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErrCh:
		if err != nil {
			return eris.Wrap(err, "http server error")
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "shutting down http server")
	}

	logger.Info("http server shut down cleanly")
	return nil
}

// newAssistant prefers a direct chat completion API when a key is configured
// and falls back to the backend's /gemini proxy otherwise.
func newAssistant(cfg *config.Config, client *backend.Client, logger *logrus.Logger) (assistant.Assistant, error) {
	if cfg.AssistantAPIKey == "" {
		logger.Info("assistant replies proxied through the backend")
		proxy, err := assistant.NewBackend(client)
		if err != nil {
			return nil, err
		}
		return proxy, nil
	}

	openAI, err := assistant.NewOpenAI(assistant.OpenAIOptions{
		APIKey:  cfg.AssistantAPIKey,
		BaseURL: cfg.AssistantEndpoint,
		Model:   cfg.AssistantModel,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	logger.WithField("endpoint", openAI.BaseURL()).Info("assistant replies served by chat completion API")
	return openAI, nil
}
