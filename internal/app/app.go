package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"arxivalert/internal/config"
	"arxivalert/internal/filter"
	"arxivalert/internal/infrastructure/channel"
	"arxivalert/internal/infrastructure/parser"
	"arxivalert/internal/infrastructure/scheduler"
	"arxivalert/internal/infrastructure/storage"
	"arxivalert/internal/ports"
	"arxivalert/internal/retry"
	"arxivalert/internal/scanner"
	"arxivalert/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	ledger   ports.Ledger
	pipeline *usecase.Pipeline
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	ledger, err := storage.Open(cfg.Ledger)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	senders, err := channel.BuildAll(cfg.Channels, baseLogger.With("component", "channel"))
	if err != nil {
		_ = ledger.Close()
		return nil, fmt.Errorf("build channels: %w", err)
	}

	registry := scanner.NewRegistry()
	registry.Register(parser.NewArxivScanner(nil))
	source := parser.NewStrategySource(registry, cfg.Sites, baseLogger.With("component", "source"))

	policy := retry.Policy{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		BaseDelay:      cfg.Retry.BaseDelayDuration(),
		MaxDelay:       cfg.Retry.MaxDelayDuration(),
		JitterFraction: cfg.Retry.JitterFraction,
	}

	dispatcher := usecase.NewDispatcher(usecase.DispatcherDeps{
		Ledger:  ledger,
		Senders: senders,
		Engine:  retry.NewEngine(baseLogger.With("component", "retry")),
		Policy:  policy,
		Logger:  baseLogger.With("component", "dispatcher"),
	})

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:     source,
		Filter:     filter.New(cfg.Filter),
		Dispatcher: dispatcher,
		Logger:     baseLogger.With("component", "pipeline"),
	})

	return &Application{
		cfg:      cfg,
		logger:   baseLogger,
		ledger:   ledger,
		pipeline: pipeline,
	}, nil
}

// RunOnce executes a single dispatch cycle for the current day.
func (a *Application) RunOnce(ctx context.Context) error {
	defer a.close()

	now := time.Now().In(a.cfg.Scheduler.Location())
	_, err := a.pipeline.ProcessDay(ctx, now)
	return err
}

// Run starts the cron scheduler and blocks until the context is cancelled,
// then lets the in-flight cycle finish before shutting down.
func (a *Application) Run(ctx context.Context) error {
	defer a.close()

	driver := scheduler.NewCronScheduler(
		a.cfg.Scheduler.CronExpression,
		a.cfg.Scheduler.Location(),
		a.logger.With("component", "scheduler"),
	)
	sched := usecase.NewScheduler(driver, a.pipeline, a.logger.With("component", "cycle"))

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("scheduler started", "cron", a.cfg.Scheduler.CronExpression, "tz", a.cfg.Scheduler.Timezone)

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return sched.Stop(stopCtx)
}

func (a *Application) close() {
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			a.logger.Warn("close ledger", "error", err)
		}
	}
}
