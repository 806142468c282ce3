package queue

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

// ErrDuplicate is returned when a task with the same event id is already
// queued or was processed within asynq's retention window.
var ErrDuplicate = errors.New("duplicate event")

type Options struct {
	Queue    string
	MaxRetry int
	Timeout  time.Duration
}

type Client struct {
	client *asynq.Client
	opts   Options
}

func NewClient(redisOpt asynq.RedisClientOpt, opts Options) *Client {
	if opts.Queue == "" {
		opts.Queue = "default"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Minute
	}
	return &Client{
		client: asynq.NewClient(redisOpt),
		opts:   opts,
	}
}

func (c *Client) EnqueueObjectCreated(ctx context.Context, payload ObjectCreatedPayload) (*asynq.TaskInfo, error) {
	task, err := NewObjectCreatedTask(payload)
	if err != nil {
		return nil, err
	}

	options := []asynq.Option{
		asynq.Queue(c.opts.Queue),
		asynq.MaxRetry(c.opts.MaxRetry),
		asynq.Timeout(c.opts.Timeout),
	}
	if payload.EventID != "" {
		options = append(options, asynq.TaskID(payload.EventID))
	}

	info, err := c.client.EnqueueContext(ctx, task, options...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil, ErrDuplicate
	}
	return info, err
}

func (c *Client) Close() error {
	return c.client.Close()
}
