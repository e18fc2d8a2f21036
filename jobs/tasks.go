// Package jobs carries outbound events and maintenance work over Asynq.
// Events are enqueued after the triggering mutation commits and delivered
// at least once; consumers must tolerate duplicates.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/smartinventory/smartinventory/internal/alerts"
	"github.com/smartinventory/smartinventory/internal/procurement"
	"github.com/smartinventory/smartinventory/internal/stock"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueEvents carries outbound domain events.
	QueueEvents = "events"

	// TaskStockTransactionCreated delivers StockTransactionCreatedEvent.
	TaskStockTransactionCreated = "stock:transaction_created"
	// TaskStockLevelChanged delivers StockLevelChangedEvent.
	TaskStockLevelChanged = "stock:level_changed"
	// TaskReorderPointReached delivers ProductReorderPointReachedEvent.
	TaskReorderPointReached = "alerts:reorder_point_reached"
	// TaskPurchaseOrderReceived delivers PurchaseOrderReceivedEvent.
	TaskPurchaseOrderReceived = "procurement:order_received"
	// TaskIdempotencyCleanup prunes stale idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

func newJSONTask(taskType string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}

// EventSink receives delivered events on the worker side. The default sink
// writes structured log lines; deployments integrate webhooks or a message
// bus by swapping the sink.
type EventSink interface {
	Deliver(ctx context.Context, eventType string, payload json.RawMessage) error
}

// LogSink writes every delivered event as a structured log line.
type LogSink struct {
	Logger *slog.Logger
}

// Deliver implements EventSink.
func (s LogSink) Deliver(_ context.Context, eventType string, payload json.RawMessage) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("event delivered", slog.String("type", eventType), slog.String("payload", string(payload)))
	return nil
}

// NewEventHandler builds the Asynq handler for one event task type.
func NewEventHandler(eventType string, sink EventSink) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		if !json.Valid(t.Payload()) {
			return asynq.SkipRetry
		}
		return sink.Deliver(ctx, eventType, t.Payload())
	}
}

// IdempotencyCleaner prunes stale idempotency keys.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// NewIdempotencyCleanupTask builds the cron task for key cleanup.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}

// NewIdempotencyCleanupHandler prunes keys older than the retention window.
func NewIdempotencyCleanupHandler(cleaner IdempotencyCleaner, retention time.Duration, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		if err := cleaner.Cleanup(ctx, retention); err != nil {
			return err
		}
		logger.Info("idempotency keys pruned", slog.Duration("retention", retention))
		return nil
	}
}

// Typed task constructors, one per outbound event.

// NewStockTransactionCreatedTask wraps the event in a task.
func NewStockTransactionCreatedTask(evt stock.StockTransactionCreatedEvent) (*asynq.Task, error) {
	return newJSONTask(TaskStockTransactionCreated, evt)
}

// NewStockLevelChangedTask wraps the event in a task.
func NewStockLevelChangedTask(evt stock.StockLevelChangedEvent) (*asynq.Task, error) {
	return newJSONTask(TaskStockLevelChanged, evt)
}

// NewReorderPointReachedTask wraps the event in a task.
func NewReorderPointReachedTask(evt alerts.ProductReorderPointReachedEvent) (*asynq.Task, error) {
	return newJSONTask(TaskReorderPointReached, evt)
}

// NewPurchaseOrderReceivedTask wraps the event in a task.
func NewPurchaseOrderReceivedTask(evt procurement.PurchaseOrderReceivedEvent) (*asynq.Task, error) {
	return newJSONTask(TaskPurchaseOrderReceived, evt)
}
