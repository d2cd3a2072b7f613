package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType classifies workflow progress events.
type EventType string

const (
	EventTaskStarted       EventType = "task_started"
	EventTaskCompleted     EventType = "task_completed"
	EventTaskFailed        EventType = "task_failed"
	EventDeadlockBroken    EventType = "deadlock_broken"
	EventWorkflowCompleted EventType = "workflow_completed"
)

// WorkflowEvent is one entry in a run's progress stream.
type WorkflowEvent struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Type      EventType `json:"type"`
	TaskID    string    `json:"task_id,omitempty"`
	AgentRole string    `json:"agent_role,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventBus publishes workflow progress to Redis Streams, one stream per
// run, so the UI can tail live progress instead of polling state alone.
type EventBus struct {
	rdb    *redis.Client
	logger *zap.Logger
}

const streamPrefix = "careerpilot:run:"

// NewEventBus creates a Redis-backed event bus.
func NewEventBus(redisURL string, logger *zap.Logger) (*EventBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &EventBus{rdb: rdb, logger: logger}, nil
}

// Publish appends an event to its run's stream.
func (eb *EventBus) Publish(ctx context.Context, ev *WorkflowEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	stream := streamPrefix + ev.RunID
	_, err = eb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", stream, err)
	}

	eb.logger.Debug("published event",
		zap.String("run", ev.RunID),
		zap.String("type", string(ev.Type)),
		zap.String("task", ev.TaskID))
	return nil
}

// Tail emits events for a run as they arrive, starting from the beginning
// of the stream. Cancel the context to stop.
func (eb *EventBus) Tail(ctx context.Context, runID string) <-chan *WorkflowEvent {
	ch := make(chan *WorkflowEvent, 16)
	stream := streamPrefix + runID

	go func() {
		defer close(ch)
		lastID := "0"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := eb.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, lastID},
				Count:   10,
				Block:   time.Second * 2,
			}).Result()

			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					data, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					var ev WorkflowEvent
					if json.Unmarshal([]byte(data), &ev) == nil {
						ch <- &ev
					}
				}
			}
		}
	}()

	return ch
}

// Close shuts down the Redis connection.
func (eb *EventBus) Close() error {
	return eb.rdb.Close()
}
