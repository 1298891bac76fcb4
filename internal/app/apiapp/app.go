package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/app/platform"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/config"
	redrepo "github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/repo/redis"
	authsvc "github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/services/auth"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/services/webhooks"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/transport/http/handlers"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	platform   *platform.Platform
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	p, err := platform.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	var revocations authsvc.RevocationStore
	if p.Redis != nil {
		revocations = redrepo.NewSessionRepo(p.Redis)
	} else {
		log.Warn("redis is not configured, dashboard logout cannot revoke tokens")
	}
	jwtManager := authsvc.NewJWTManager(cfg.Dashboard.JWTSecret, cfg.Dashboard.TokenTTL,
		authsvc.WithIssuer(cfg.Dashboard.Issuer),
		authsvc.WithLeeway(cfg.Dashboard.ClockSkew),
	)
	authService := authsvc.NewService(jwtManager, revocations)

	health := handlers.NewHealthHandler()
	health.AttachCheck("postgres", p.Postgres)
	health.AttachCheck("redis", platform.RedisPinger{Client: p.Redis})

	RegisterRoutes(r, Dependencies{
		AuthService:     authService,
		Ledger:          p.Payments,
		Events:          p.Payments,
		Verifier:        webhooks.NewVerifier(cfg.Payment.WebhookSecret),
		SignatureHeader: cfg.Payment.SignatureHeader,
		Health:          health,
		Gatherer:        p.Registry,
		Logger:          log,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		platform:   p,
		httpRouter: r,
	}, nil
}

func (a *App) Run() error {
	a.logger.Info("api server started",
		zap.String("addr", a.cfg.HTTP.Addr),
		zap.Bool("pix_simulated", a.platform.Gateway.Simulated()),
	)
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if err := a.platform.Payments.Wait(ctx); err != nil {
		a.logger.Warn("webhook deliveries still running at shutdown", zap.Error(err))
	}
	if err := a.platform.Close(); err != nil && shutdownErr == nil {
		shutdownErr = err
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
