package jobs

import (
	"context"

	"github.com/hibiken/asynq"
)

// Client enqueues tasks from the API process. It satisfies mail.Enqueuer.
type Client struct {
	client *asynq.Client
}

// NewClient opens an asynq client on the given Redis.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueSendEmail queues one rendered email for the worker.
func (c *Client) EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error) {
	task, err := NewSendEmailTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// Close releases the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}
