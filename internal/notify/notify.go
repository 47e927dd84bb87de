package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/shop-scraper/internal/models"
	"github.com/redis/go-redis/v9"
)

const EventTypeProductsUpdated = "PRODUCTS_UPDATED"

// Notifier announces finished scrape runs.
type Notifier interface {
	Notify(ctx context.Context, summary *models.RunSummary) error
}

// Message is the human readable notice for a run.
func Message(summary *models.RunSummary) string {
	return fmt.Sprintf("Number of products updated: %d", summary.ProductCount)
}

type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "notifier")}
}

func (n *LogNotifier) Notify(ctx context.Context, summary *models.RunSummary) error {
	n.logger.InfoContext(ctx, Message(summary),
		"run_id", summary.RunID,
		"status", summary.Status,
		"artifact", summary.ArtifactPath,
	)
	return nil
}

// StreamClient is the subset of the redis client used for publishing.
type StreamClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

type RunEvent struct {
	EventID   string             `json:"event_id"`
	EventType string             `json:"event_type"`
	Timestamp time.Time          `json:"timestamp"`
	Message   string             `json:"message"`
	Summary   *models.RunSummary `json:"summary"`
}

// RedisNotifier appends one event per run to a Redis stream.
type RedisNotifier struct {
	client StreamClient
	stream string
	maxLen int64
	logger *slog.Logger
}

func NewRedisNotifier(client StreamClient, stream string, logger *slog.Logger) *RedisNotifier {
	return &RedisNotifier{
		client: client,
		stream: stream,
		maxLen: 10000,
		logger: logger.With("component", "redis_notifier"),
	}
}

func (n *RedisNotifier) Notify(ctx context.Context, summary *models.RunSummary) error {
	event := RunEvent{
		EventID:   uuid.NewString(),
		EventType: EventTypeProductsUpdated,
		Timestamp: time.Now().UTC(),
		Message:   Message(summary),
		Summary:   summary,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: n.stream,
		MaxLen: n.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"event_id":   event.EventID,
			"event_type": event.EventType,
			"run_id":     summary.RunID,
			"payload":    string(payload),
		},
	}

	id, err := n.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", n.stream, err)
	}

	n.logger.Debug("event published", "stream", n.stream, "id", id, "run_id", summary.RunID)
	return nil
}

// Multi fans a notice out to several notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, summary *models.RunSummary) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, summary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
