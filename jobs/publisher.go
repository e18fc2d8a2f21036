package jobs

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/smartinventory/smartinventory/internal/alerts"
	"github.com/smartinventory/smartinventory/internal/procurement"
	"github.com/smartinventory/smartinventory/internal/stock"
)

// Publisher enqueues outbound events for worker delivery. It implements
// the publisher ports of the stock, alerts and procurement modules.
type Publisher struct {
	client *asynq.Client
}

// NewPublisher constructs a Publisher on an Asynq client.
func NewPublisher(redisOpts asynq.RedisClientOpt) *Publisher {
	return &Publisher{client: asynq.NewClient(redisOpts)}
}

// Close releases client resources.
func (p *Publisher) Close() error {
	return p.client.Close()
}

func (p *Publisher) enqueue(ctx context.Context, task *asynq.Task, err error) error {
	if err != nil {
		return err
	}
	_, err = p.client.EnqueueContext(ctx, task, asynq.Queue(QueueEvents), asynq.MaxRetry(10))
	return err
}

// StockTransactionCreated implements stock.PublisherPort.
func (p *Publisher) StockTransactionCreated(ctx context.Context, evt stock.StockTransactionCreatedEvent) error {
	task, err := NewStockTransactionCreatedTask(evt)
	return p.enqueue(ctx, task, err)
}

// StockLevelChanged implements stock.PublisherPort.
func (p *Publisher) StockLevelChanged(ctx context.Context, evt stock.StockLevelChangedEvent) error {
	task, err := NewStockLevelChangedTask(evt)
	return p.enqueue(ctx, task, err)
}

// ProductReorderPointReached implements alerts.PublisherPort.
func (p *Publisher) ProductReorderPointReached(ctx context.Context, evt alerts.ProductReorderPointReachedEvent) error {
	task, err := NewReorderPointReachedTask(evt)
	return p.enqueue(ctx, task, err)
}

// PurchaseOrderReceived implements procurement.PublisherPort.
func (p *Publisher) PurchaseOrderReceived(ctx context.Context, evt procurement.PurchaseOrderReceivedEvent) error {
	task, err := NewPurchaseOrderReceivedTask(evt)
	return p.enqueue(ctx, task, err)
}
