package queue

import (
	"context"
	"time"

	"signup-backend/internal/shared/telemetry"
)

const inlineTimeout = 2 * time.Minute

// InlineClient runs the handler in-process instead of using a broker. It is
// meant for local development where no queue is configured.
type InlineClient struct {
	Handle func(ctx context.Context, msg Message) error
}

// Send processes msg on a background goroutine and never fails.
func (c *InlineClient) Send(_ context.Context, msg Message) error {
	if c.Handle == nil {
		return nil
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), inlineTimeout)
		defer cancel()
		if err := c.Handle(ctx, msg); err != nil {
			telemetry.Error("queue.inline.failed", map[string]any{
				"application_id": msg.ApplicationID,
				"request_id":     msg.RequestID,
				"error":          err.Error(),
			})
		}
	}()
	return nil
}

var _ Client = (*InlineClient)(nil)
