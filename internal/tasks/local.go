package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"billboard/internal/middleware"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
)

// ErrQueueFull is returned when the in-process queue cannot take more work.
var ErrQueueFull = errors.New("task queue full")

const (
	localMaxAttempts = 3
	localRetryDelay  = 500 * time.Millisecond
)

// LocalQueue runs tasks in-process when no Redis is configured. It shares
// the task types and handlers of the asynq worker, but pending work is lost
// on shutdown.
type LocalQueue struct {
	handler    asynq.Handler
	tasks      chan *asynq.Task
	workers    int
	retryDelay time.Duration
	cron       *cron.Cron
}

func NewLocalQueue(handler asynq.Handler, size, workers int) *LocalQueue {
	if size <= 0 {
		size = 256
	}
	if workers <= 0 {
		workers = 1
	}
	return &LocalQueue{
		handler:    handler,
		tasks:      make(chan *asynq.Task, size),
		workers:    workers,
		retryDelay: localRetryDelay,
		cron:       cron.New(cron.WithLocation(time.UTC)),
	}
}

// SetHandler replaces the task handler. It must be called before Run.
func (q *LocalQueue) SetHandler(handler asynq.Handler) {
	q.handler = handler
}

// Schedule runs the periodic tasks on their cron specs once Run is called.
func (q *LocalQueue) Schedule(periodic []Periodic) error {
	for _, p := range periodic {
		taskType := p.TaskType
		if _, err := q.cron.AddFunc(p.Spec, func() {
			if err := q.submit(asynq.NewTask(taskType, nil)); err != nil {
				middleware.Logger.Warn("periodic task skipped", "task_type", taskType, "error", err)
			}
		}); err != nil {
			return fmt.Errorf("schedule %s on %q: %w", taskType, p.Spec, err)
		}
	}
	return nil
}

// Run processes tasks until ctx is cancelled.
func (q *LocalQueue) Run(ctx context.Context) error {
	q.cron.Start()
	defer func() { <-q.cron.Stop().Done() }()

	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.work(ctx)
		}()
	}
	wg.Wait()

	if n := len(q.tasks); n > 0 {
		middleware.Logger.Warn("local task queue stopped with pending tasks", "pending", n)
	}
	return nil
}

func (q *LocalQueue) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-q.tasks:
			q.process(ctx, t)
		}
	}
}

func (q *LocalQueue) process(ctx context.Context, t *asynq.Task) {
	for attempt := 1; ; attempt++ {
		err := q.handler.ProcessTask(ctx, t)
		if err == nil || errors.Is(err, asynq.SkipRetry) || attempt >= localMaxAttempts {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(q.retryDelay * time.Duration(attempt)):
		}
	}
}

func (q *LocalQueue) submit(t *asynq.Task) error {
	select {
	case q.tasks <- t:
		return nil
	default:
		return fmt.Errorf("%s: %w", t.Type(), ErrQueueFull)
	}
}

func (q *LocalQueue) EnqueueListingEmbed(_ context.Context, listingID uint) error {
	task, err := NewListingEmbedTask(listingID)
	if err != nil {
		return err
	}
	return q.submit(task)
}

func (q *LocalQueue) EnqueueListingUnindex(_ context.Context, listingID uint) error {
	task, err := NewListingUnindexTask(listingID)
	if err != nil {
		return err
	}
	return q.submit(task)
}

func (q *LocalQueue) EnqueueEmail(_ context.Context, to, template string, data map[string]any) error {
	task, err := NewEmailTask(to, template, data)
	if err != nil {
		return err
	}
	return q.submit(task)
}
