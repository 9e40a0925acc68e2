package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
)

// Enqueuer is the part of *asynq.Client the Client needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Client schedules background work on a Redis-backed asynq queue.
type Client struct {
	queue Enqueuer
}

func NewClient(queue Enqueuer) *Client {
	return &Client{queue: queue}
}

// RedisOpt turns a Redis address or redis:// URL into asynq connection options.
func RedisOpt(addr string) (asynq.RedisConnOpt, error) {
	if strings.Contains(addr, "://") {
		opt, err := asynq.ParseRedisURI(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return opt, nil
	}
	return asynq.RedisClientOpt{Addr: addr}, nil
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, err error) error {
	if err != nil {
		return err
	}
	if _, err := c.queue.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	return nil
}

func (c *Client) EnqueueListingEmbed(ctx context.Context, listingID uint) error {
	task, err := NewListingEmbedTask(listingID)
	return c.enqueue(ctx, task, err)
}

func (c *Client) EnqueueListingUnindex(ctx context.Context, listingID uint) error {
	task, err := NewListingUnindexTask(listingID)
	return c.enqueue(ctx, task, err)
}

func (c *Client) EnqueueEmail(ctx context.Context, to, template string, data map[string]any) error {
	task, err := NewEmailTask(to, template, data)
	return c.enqueue(ctx, task, err)
}
