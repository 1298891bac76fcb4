package botapp

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/app/platform"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/config"
	redrepo "github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/repo/redis"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/services/rate"
)

type App struct {
	cfg      config.Config
	logger   *zap.Logger
	platform *platform.Platform
	flow     *Flow
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	p, err := platform.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	flow := NewFlow(p.Catalog, p.Payments, p.Bot, logger.Named("flow"))
	if p.Redis != nil {
		flow.AttachThrottle(rate.NewCheckoutLimiter(redrepo.NewRateRepo(p.Redis), cfg.Bot.CheckoutsPerMinute, cfg.Bot.CheckoutsPerHour))
	} else {
		logger.Warn("redis is not configured, checkout throttle disabled")
	}

	return &App{
		cfg:      cfg,
		logger:   logger,
		platform: p,
		flow:     flow,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Info("bot app started",
		zap.String("username", a.platform.Bot.Username()),
		zap.Bool("pix_simulated", a.platform.Gateway.Simulated()),
	)

	err := a.platform.Bot.Listen(ctx, int(a.cfg.Bot.PollTimeout.Seconds()), tginfraHandlers(a.flow))
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("bot app stopped")
	return nil
}

func (a *App) Close() {
	if err := a.platform.Close(); err != nil {
		a.logger.Warn("bot app close failed", zap.Error(err))
	}
}
