package workerapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/app/platform"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/config"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/jobs/expiration"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/jobs/redelivery"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/jobs/scheduler"
	redrepo "github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/repo/redis"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/transport/http/handlers"
)

type App struct {
	cfg       config.Config
	logger    *zap.Logger
	platform  *platform.Platform
	scheduler *scheduler.Scheduler
	server    *http.Server
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	p, err := platform.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if p.Redis == nil {
		_ = p.Close()
		return nil, fmt.Errorf("redis is required for the job queue")
	}

	sched := scheduler.New(redrepo.NewQueueRepo(p.Redis, cfg.Scheduler.QueuePrefix), scheduler.Config{
		MaxAttempts:    cfg.Scheduler.MaxAttempts,
		BackoffInitial: cfg.Scheduler.BackoffInitial,
		PollInterval:   cfg.Scheduler.PollInterval,
	}, log.Named("scheduler"))
	sched.AttachMetrics(p.Metrics)

	jobs := expiration.New(p.Purchases, p.Bot, expiration.Config{
		NotifyDelay: cfg.Scheduler.NotifyDelay,
		DeleteDelay: cfg.Scheduler.DeleteDelay,
	}, log.Named("expiration"))
	jobs.AttachMetrics(p.Metrics)
	redeliver := redelivery.New(p.Purchases, p.Delivery, 0, log.Named("redelivery"))

	if err := registerJobs(sched, cfg.Scheduler, jobs, redeliver, log); err != nil {
		_ = p.Close()
		return nil, err
	}

	health := handlers.NewHealthHandler()
	health.AttachCheck("postgres", p.Postgres)
	health.AttachCheck("redis", platform.RedisPinger{Client: p.Redis})
	r := chi.NewRouter()
	r.Get("/healthz", health.Get)
	r.Get("/readyz", health.Ready)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{}))

	return &App{
		cfg:       cfg,
		logger:    log,
		platform:  p,
		scheduler: sched,
		server: &http.Server{
			Addr:              cfg.Scheduler.MetricsAddr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func registerJobs(sched *scheduler.Scheduler, cfg config.SchedulerConfig, jobs *expiration.Jobs, redeliver *redelivery.Job, log *zap.Logger) error {
	entries := []struct {
		name string
		spec string
		run  func(context.Context) (expiration.Report, error)
	}{
		{name: scheduler.JobWarn7Days, spec: cfg.Warn7DaysSpec, run: jobs.Warn7Days},
		{name: scheduler.JobWarn1Day, spec: cfg.Warn1DaySpec, run: jobs.Warn1Day},
		{name: scheduler.JobExpire, spec: cfg.SweepSpec, run: jobs.Sweep},
	}
	for _, e := range entries {
		if err := sched.Register(e.name, e.spec, reportHandler(e.name, e.run, log)); err != nil {
			return err
		}
	}
	return sched.Register(scheduler.JobRedeliver, cfg.RedeliverSpec, redeliver.Run)
}

func reportHandler(name string, run func(context.Context) (expiration.Report, error), log *zap.Logger) scheduler.Handler {
	return func(ctx context.Context) error {
		report, err := run(ctx)
		if err != nil {
			return err
		}
		log.Info("job finished",
			zap.String("job", name),
			zap.Int("selected", report.Selected),
			zap.Int("succeeded", report.Succeeded),
			zap.Int("failed", report.Failed),
			zap.Int("deleted", report.Deleted),
		)
		return nil
	}
}

// Run blocks until ctx is done or the metrics listener fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("worker started", zap.String("metrics_addr", a.cfg.Scheduler.MetricsAddr))

	errCh := make(chan error, 2)
	go func() {
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()
	go func() {
		errCh <- a.scheduler.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if err := a.platform.Close(); err != nil && shutdownErr == nil {
		shutdownErr = err
	}
	return shutdownErr
}
