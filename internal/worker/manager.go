package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/romanzzaa/catalog-price-watcher/internal/domain"
)

// Runner is satisfied by usecase.IngestService.
type Runner interface {
	RunOnce(ctx context.Context, src domain.Source) domain.RunResult
}

type Options struct {
	Cron        string
	RunOnStart  bool
	MaxParallel int
}

// Manager schedules one independent run per source. Runs of different
// sources never share state; a failing source only logs.
type Manager struct {
	runner  Runner
	sources []domain.Source
	opts    Options
	logger  *slog.Logger
}

func NewManager(runner Runner, sources []domain.Source, opts Options, logger *slog.Logger) *Manager {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 1
	}
	return &Manager{
		runner:  runner,
		sources: sources,
		opts:    opts,
		logger:  logger,
	}
}

// RunAll runs every source once and returns results in source order.
func (m *Manager) RunAll(ctx context.Context) []domain.RunResult {
	results := make([]domain.RunResult, len(m.sources))

	var g errgroup.Group
	g.SetLimit(m.opts.MaxParallel)
	for i, src := range m.sources {
		g.Go(func() error {
			results[i] = m.runner.RunOnce(ctx, src)
			return nil
		})
	}
	_ = g.Wait() // RunOnce reports failures in RunResult.Err

	return results
}

// Start blocks until ctx is cancelled and in-flight runs have finished.
func (m *Manager) Start(ctx context.Context) error {
	cl := cronLogger{logger: m.logger}
	c := cron.New(cron.WithLogger(cl))

	// MaxParallel holds across cron ticks and on-start runs alike.
	sem := semaphore.NewWeighted(int64(m.opts.MaxParallel))

	jobs := make([]cron.Job, 0, len(m.sources))
	for _, src := range m.sources {
		// Один и тот же wrapper для cron и для первого запуска: источник не пересекается сам с собой.
		job := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(func() {
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)
			m.runner.RunOnce(ctx, src)
		}))
		if _, err := c.AddJob(m.opts.Cron, job); err != nil {
			return fmt.Errorf("schedule %s with %q: %w", src.Name, m.opts.Cron, err)
		}
		jobs = append(jobs, job)
	}

	m.logger.Info("Starting scheduler",
		slog.String("cron", m.opts.Cron),
		slog.Int("sources", len(m.sources)),
		slog.Bool("run_on_start", m.opts.RunOnStart))
	c.Start()

	var initial sync.WaitGroup
	if m.opts.RunOnStart {
		for _, job := range jobs {
			initial.Go(job.Run)
		}
	}

	<-ctx.Done()
	m.logger.Info("Stopping scheduler, waiting for running jobs")
	<-c.Stop().Done()
	initial.Wait()
	return nil
}

// cronLogger adapts slog to cron.Logger. cron already passes alternating
// key/value pairs, which slog accepts as is.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err.Error())...)
}
