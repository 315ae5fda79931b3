package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/tutorconnect/tutorconnect-api/internal/dto"
)

const defaultRunTimeout = 5 * time.Minute

// Task is a recurring background job.
type Task struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs Tasks on fixed intervals. A run that overlaps the previous one is skipped.
type Scheduler struct {
	sched  gocron.Scheduler
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// New registers the tasks without starting them. Tasks with a non-positive interval are skipped.
func New(logger *zap.Logger, tasks ...Task) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sched, err := gocron.NewScheduler(
		gocron.WithLogger(zapLogger{logger.Sugar()}),
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{sched: sched, logger: logger, ctx: ctx, cancel: cancel}
	for _, task := range tasks {
		if task.Interval <= 0 || task.Run == nil {
			logger.Info("scheduled task disabled", zap.String("task", task.Name))
			continue
		}
		if _, err := sched.NewJob(
			gocron.DurationJob(task.Interval),
			gocron.NewTask(s.wrap(task)),
			gocron.WithName(task.Name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			cancel()
			_ = sched.Shutdown()
			return nil, fmt.Errorf("register %s: %w", task.Name, err)
		}
	}
	return s, nil
}

// Start begins running registered tasks.
func (s *Scheduler) Start() {
	s.sched.Start()
}

// Shutdown cancels in-flight runs and waits for them to return.
func (s *Scheduler) Shutdown() error {
	s.cancel()
	return s.sched.Shutdown()
}

func (s *Scheduler) wrap(task Task) func() {
	timeout := task.Timeout
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	return func() {
		ctx, cancel := context.WithTimeout(s.ctx, timeout)
		defer cancel()

		start := time.Now()
		if err := task.Run(ctx); err != nil {
			s.logger.Error("scheduled task failed", zap.String("task", task.Name), zap.Error(err))
			return
		}
		s.logger.Debug("scheduled task finished", zap.String("task", task.Name), zap.Duration("took", time.Since(start)))
	}
}

type sweeper interface {
	Sweep(ctx context.Context, chatID string) (*dto.SweepResponse, error)
}

// SweepTask moves ended confirmed appointments to WAITING_TO_COMPLETE across all chats.
func SweepTask(svc sweeper, interval time.Duration) Task {
	return Task{
		Name:     "appointment-sweep",
		Interval: interval,
		Timeout:  interval,
		Run: func(ctx context.Context) error {
			_, err := svc.Sweep(ctx, "")
			return err
		},
	}
}

type exportCleaner interface {
	CleanupExports(ctx context.Context) (int, error)
}

// ExportCleanupTask removes expired GDPR export files.
func ExportCleanupTask(svc exportCleaner, interval time.Duration, logger *zap.Logger) Task {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Task{
		Name:     "gdpr-export-cleanup",
		Interval: interval,
		Run: func(ctx context.Context) error {
			removed, err := svc.CleanupExports(ctx)
			if err != nil {
				return err
			}
			if removed > 0 {
				logger.Info("expired exports removed", zap.Int("count", removed))
			}
			return nil
		},
	}
}

type limiterPruner interface {
	Prune(idle time.Duration) int
}

// LimiterPruneTask drops rate limiter state for clients idle longer than idle.
func LimiterPruneTask(limiter limiterPruner, interval, idle time.Duration) Task {
	return Task{
		Name:     "rate-limiter-prune",
		Interval: interval,
		Run: func(ctx context.Context) error {
			limiter.Prune(idle)
			return nil
		},
	}
}

type zapLogger struct {
	l *zap.SugaredLogger
}

func (z zapLogger) Debug(msg string, args ...any) { z.l.Debugw(msg, args...) }
func (z zapLogger) Error(msg string, args ...any) { z.l.Errorw(msg, args...) }
func (z zapLogger) Info(msg string, args ...any)  { z.l.Infow(msg, args...) }
func (z zapLogger) Warn(msg string, args ...any)  { z.l.Warnw(msg, args...) }
