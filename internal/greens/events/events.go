package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisChannel is the pub/sub channel deferred consumers subscribe to.
const RedisChannel = "sprout:events"

// Event types emitted by the production engines. Order fulfillment status
// advances only through these; the lifecycle code never writes order
// status itself.
const (
	TypeCropPlanted        = "crop.planted"
	TypeAllCropsReady      = "crop.all_ready"
	TypeOrderHarvested     = "order.harvested"
	TypePlanReviewRequired = "plan.review_required"
)

// Event is a domain event describing a production milestone.
type Event struct {
	Type       string                 `json:"type"`
	OrderID    string                 `json:"order_id,omitempty"`
	PlanID     string                 `json:"plan_id,omitempty"`
	UnitID     string                 `json:"unit_id,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// Handler consumes a published event. Handlers run synchronously on the
// publishing goroutine; anything slow belongs behind the redis channel.
type Handler func(ctx context.Context, evt Event)

// Bus dispatches domain events to in-process subscribers and fans them out
// over redis for deferred consumers. Publication is at-least-once: the redis
// publish is best-effort and logged on failure, in-process handlers always
// run.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	rdb      *redis.Client
	logger   *zap.Logger
}

// NewBus creates an event bus. rdb may be nil (no fanout).
func NewBus(rdb *redis.Client, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		handlers: make(map[string][]Handler),
		rdb:      rdb,
		logger:   logger,
	}
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// Publish dispatches the event to every subscriber of its type, then fans it
// out over redis.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now()
	}

	b.mu.RLock()
	handlers := b.handlers[evt.Type]
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, evt)
	}

	if b.rdb != nil {
		data, err := json.Marshal(evt)
		if err != nil {
			b.logger.Error("marshal event", zap.String("type", evt.Type), zap.Error(err))
			return
		}
		if err := b.rdb.Publish(ctx, RedisChannel, data).Err(); err != nil {
			b.logger.Warn("redis event fanout failed",
				zap.String("type", evt.Type),
				zap.Error(err))
		}
	}

	b.logger.Info("event published",
		zap.String("type", evt.Type),
		zap.String("order_id", evt.OrderID),
		zap.String("unit_id", evt.UnitID),
		zap.String("plan_id", evt.PlanID))
}
