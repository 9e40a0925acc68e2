package tasks

import (
	"context"
	"fmt"
	"time"

	"billboard/internal/config"
	"billboard/internal/middleware"

	"github.com/hibiken/asynq"
)

// Periodic is a maintenance task and the cron spec it runs on.
type Periodic struct {
	Spec     string
	TaskType string
}

// PeriodicTasks lists the maintenance sweeps configured in cfg. Entries with
// an empty spec are disabled.
func PeriodicTasks(cfg *config.Config) []Periodic {
	all := []Periodic{
		{Spec: cfg.SweepListingsCron, TaskType: TypeExpireListings},
		{Spec: cfg.SweepInvitationsCron, TaskType: TypeExpireInvitations},
		{Spec: cfg.DeadlineReminderCron, TaskType: TypeDeadlineReminders},
	}
	out := all[:0]
	for _, p := range all {
		if p.Spec != "" {
			out = append(out, p)
		}
	}
	return out
}

// NewServer configures the asynq worker pool.
func NewServer(opt asynq.RedisConnOpt, cfg *config.Config) *asynq.Server {
	concurrency := cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      queuePriorities,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			middleware.Logger.ErrorContext(ctx, "task processing error",
				"task_type", task.Type(),
				"retry", retried,
				"max_retry", maxRetry,
				"error", err,
			)
		}),
		ShutdownTimeout: 10 * time.Second,
	})
}

// NewScheduler registers the periodic maintenance tasks. Cron specs are
// evaluated in UTC.
func NewScheduler(opt asynq.RedisConnOpt, cfg *config.Config) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.UTC})
	for _, p := range PeriodicTasks(cfg) {
		task := asynq.NewTask(p.TaskType, nil, asynq.Queue(QueueLow), asynq.MaxRetry(1))
		if _, err := scheduler.Register(p.Spec, task); err != nil {
			return nil, fmt.Errorf("register %s on %q: %w", p.TaskType, p.Spec, err)
		}
	}
	return scheduler, nil
}
