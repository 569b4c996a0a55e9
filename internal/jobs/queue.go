// Package jobs connects the scheduler's catalog to the asynq task queue and
// carries the concrete job implementations.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/hibiken/asynq"
)

// TaskJobRun is the single task type: the payload names the catalog job.
const TaskJobRun = "job:run"

type jobPayload struct {
	Name string `json:"name"`
}

type Queue struct {
	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	inspector *asynq.Inspector
}

func NewQueue(redisAddr string, concurrency int) *Queue {
	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}
	client := asynq.NewClient(redisOpt)
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues:      map[string]int{"default": 1},
		},
	)
	return &Queue{
		client:    client,
		server:    server,
		mux:       asynq.NewServeMux(),
		inspector: asynq.NewInspector(redisOpt),
	}
}

// isTaskConflict checks whether the error indicates a task ID conflict,
// using errors.Is for unwrapped sentinel values and a string fallback.
func isTaskConflict(err error) bool {
	if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "task ID conflicts") || strings.Contains(msg, "duplicate task")
}

// Enqueue submits a catalog job with its name as the deterministic task id,
// so the same job never queues twice. A lingering completed task with the
// same id is cleared and the enqueue retried; an active duplicate is skipped
// silently.
func (q *Queue) Enqueue(jobName string) error {
	data, err := json.Marshal(jobPayload{Name: jobName})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(TaskJobRun, data, asynq.TaskID(jobName))
	if _, err := q.client.Enqueue(task); err == nil {
		return nil
	} else if !isTaskConflict(err) {
		return fmt.Errorf("enqueue %s: %w", jobName, err)
	}

	if delErr := q.inspector.DeleteTask("default", jobName); delErr == nil {
		if _, err := q.client.Enqueue(task); err == nil {
			return nil
		} else if !isTaskConflict(err) {
			return fmt.Errorf("enqueue %s: %w", jobName, err)
		}
	}
	log.Printf("[queue] %s already queued, skipping", jobName)
	return nil
}

func (q *Queue) RegisterHandler(taskType string, handler asynq.Handler) {
	q.mux.Handle(taskType, handler)
}

func (q *Queue) Start(ctx context.Context) error {
	log.Println("[queue] worker starting")
	return q.server.Start(q.mux)
}

func (q *Queue) Stop() {
	q.server.Shutdown()
	q.client.Close()
	q.inspector.Close()
}
