package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/mfleet/streamvault/internal/scheduler"
)

// NewJobHandler dispatches queued tasks into the scheduler. Single-flight
// and gate rejections are terminal: retrying them from the queue would only
// duplicate work the next interval poll re-arms anyway.
func NewJobHandler(s *scheduler.Scheduler) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var p jobPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
		}
		err := s.Execute(ctx, p.Name)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, scheduler.ErrJobAlreadyRunning),
			errors.Is(err, scheduler.ErrJobBlocked),
			errors.Is(err, scheduler.ErrUnknownJob):
			log.Printf("[queue] %s not run: %v", p.Name, err)
			return nil
		default:
			return fmt.Errorf("%s: %v: %w", p.Name, err, asynq.SkipRetry)
		}
	}
}
