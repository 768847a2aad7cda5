// Package worker provides async batch processing over the event bus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/calc"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Worker consumes batch calculation requests from the bus, runs them
// through the calculation service, and publishes the batch result.
type Worker struct {
	bus     domain.EventBus
	service *calc.Service

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates an async batch worker.
func NewWorker(b domain.EventBus, service *calc.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     b,
		service: service,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// BatchRequestMessage is the payload consumed from the batch request
// topic.
type BatchRequestMessage struct {
	BatchID       string                       `json:"batchId"`
	Transactions  []*domain.TransactionRequest `json:"transactions"`
	HaltOnFailure bool                         `json:"haltOnFailure,omitempty"`
}

// BatchCompletedMessage is published when a batch finishes.
type BatchCompletedMessage struct {
	BatchID string              `json:"batchId"`
	Result  *domain.BatchResult `json:"result"`
}

// Start subscribes to the batch request topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicBatchRequest, w.handleBatchRequest)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("batch worker started", "topic", domain.TopicBatchRequest)
	return nil
}

// handleBatchRequest runs one batch and publishes the result.
func (w *Worker) handleBatchRequest(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req BatchRequestMessage
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse batch request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	batchID := req.BatchID
	if batchID == "" {
		batchID = msg.ID
	}

	slog.Info("processing batch",
		"batch_id", batchID,
		"transactions", len(req.Transactions),
		"halt_on_failure", req.HaltOnFailure,
	)

	result := w.service.CalculateBatch(ctx, req.Transactions, req.HaltOnFailure)

	payload, _ := json.Marshal(&BatchCompletedMessage{
		BatchID: batchID,
		Result:  result,
	})
	if err := w.bus.Publish(ctx, domain.TopicBatchCompleted, payload); err != nil {
		slog.Error("failed to publish batch result",
			"batch_id", batchID,
			"error", err,
		)
	}

	slog.Info("batch processed",
		"batch_id", batchID,
		"processed", result.Processed,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("batch worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
