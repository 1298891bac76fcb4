package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/infra/metrics"
	redisrepo "github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/repo/redis"
)

const (
	JobWarn7Days = "warn_7d"
	JobWarn1Day  = "warn_1d"
	JobExpire    = "expire"
	JobRedeliver = "redeliver"

	defaultMaxAttempts    = 3
	defaultBackoffInitial = 5 * time.Second
	defaultPollInterval   = time.Second
	defaultDedupeTTL      = time.Hour
)

var ErrUnknownJob = errors.New("unknown job")

type Queue interface {
	Enqueue(ctx context.Context, job redisrepo.QueuedJob, dedupeKey string, dedupeTTL time.Duration) (bool, error)
	Pull(ctx context.Context) (redisrepo.Lease, bool, error)
	Ack(ctx context.Context, lease redisrepo.Lease) error
	Recover(ctx context.Context) (int, error)
}

type Handler func(ctx context.Context) error

type Config struct {
	MaxAttempts    int
	BackoffInitial time.Duration
	PollInterval   time.Duration
	DedupeTTL      time.Duration
}

type entry struct {
	spec    string
	handler Handler
}

// Scheduler turns cron ticks into queue entries and runs queued jobs. Every replica may run
// the cron; the per-tick dedupe key keeps one entry per tick.
type Scheduler struct {
	queue   Queue
	cfg     Config
	cron    *cron.Cron
	mu      sync.RWMutex
	entries map[string]entry
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func New(queue Queue, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = defaultBackoffInitial
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = defaultDedupeTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		queue:   queue,
		cfg:     cfg,
		cron:    cron.New(),
		entries: make(map[string]entry),
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Scheduler) AttachMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Register binds a job name to its handler. An empty spec registers a handler that only runs
// when enqueued explicitly.
func (s *Scheduler) Register(name, spec string, handler Handler) error {
	if name == "" || handler == nil {
		return fmt.Errorf("job name and handler are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	if spec != "" {
		if _, err := s.cron.AddFunc(spec, func() { s.tick(name) }); err != nil {
			return fmt.Errorf("schedule job %s (%q): %w", name, spec, err)
		}
	}
	s.entries[name] = entry{spec: spec, handler: handler}
	return nil
}

// Enqueue queues name for the tick at. Repeated calls for the same tick are dropped.
func (s *Scheduler) Enqueue(ctx context.Context, name string, at time.Time) (bool, error) {
	tick := at.UTC().Truncate(time.Minute)
	job := redisrepo.QueuedJob{
		ID:         uuid.NewString(),
		Name:       name,
		EnqueuedAt: s.now().UTC(),
	}
	return s.queue.Enqueue(ctx, job, name+":"+strconv.FormatInt(tick.Unix(), 10), s.cfg.DedupeTTL)
}

func (s *Scheduler) tick(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	queued, err := s.Enqueue(ctx, name, s.now())
	if err != nil {
		s.logger.Error("enqueue scheduled job failed", zap.String("job", name), zap.Error(err))
		return
	}
	if queued {
		s.logger.Debug("scheduled job enqueued", zap.String("job", name))
	}
}

// Run requeues entries orphaned by a previous worker, starts the cron and processes the
// queue until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	recovered, err := s.queue.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover orphaned jobs: %w", err)
	}
	if recovered > 0 {
		s.logger.Warn("requeued orphaned jobs", zap.Int("count", recovered))
	}

	s.cron.Start()
	defer func() {
		<-s.cron.Stop().Done()
	}()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		for {
			processed, err := s.RunOnce(ctx)
			if err != nil {
				s.logger.Error("job queue pull failed", zap.Error(err))
				break
			}
			if !processed {
				break
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce processes at most one queued job and reports whether one was taken.
func (s *Scheduler) RunOnce(ctx context.Context) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}
	lease, ok, err := s.queue.Pull(ctx)
	if err != nil || !ok {
		return false, err
	}

	s.process(ctx, lease)

	if ctx.Err() != nil {
		// Left in processing; Recover picks it up on the next start.
		return true, nil
	}
	if err := s.queue.Ack(ctx, lease); err != nil {
		s.logger.Error("ack job failed", zap.String("job", lease.Job.Name), zap.String("job_id", lease.Job.ID), zap.Error(err))
	}
	return true, nil
}

func (s *Scheduler) process(ctx context.Context, lease redisrepo.Lease) {
	name := lease.Job.Name
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		s.logger.Error("dropping job", zap.String("job", name), zap.Error(ErrUnknownJob))
		return
	}

	started := s.now()
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		return e.handler(ctx)
	}, s.policy(ctx), func(err error, wait time.Duration) {
		s.logger.Warn("job attempt failed",
			zap.String("job", name),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
	})
	took := s.now().Sub(started)
	s.metrics.JobRun(name, err == nil, took)

	if err != nil {
		s.logger.Error("job failed, waiting for next run",
			zap.String("job", name),
			zap.String("job_id", lease.Job.ID),
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("job completed", zap.String("job", name), zap.Duration("took", took))
}

func (s *Scheduler) policy(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.BackoffInitial
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = s.cfg.BackoffInitial * 8
	bo.MaxElapsedTime = 0
	bo.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.cfg.MaxAttempts-1)), ctx)
}
