package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	DefaultTopic   = "order-events"
	ConsumerGroup  = "cart-service-consumer"
	eventTypeKey   = "event_type"
	maxMessageSize = 10e6 // 10MB

	retryDelay    = 500 * time.Millisecond
	maxRetryDelay = 30 * time.Second
)

// errMalformedEvent marks messages that can never be handled; they are committed and skipped.
var errMalformedEvent = errors.New("malformed order event")

// ItemRemover drops ordered items from a cart.
type ItemRemover interface {
	RemoveItems(ctx context.Context, owner string, itemIDs []string) error
}

// MessageReader is the consumer-group side of kafka.Reader.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Poller struct {
	carts      ItemRemover
	reader     MessageReader
	logger     *zap.Logger
	retryDelay time.Duration
}

func NewPoller(carts ItemRemover, logger *zap.Logger, topic string, brokers ...string) *Poller {
	if topic == "" {
		topic = DefaultTopic
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  ConsumerGroup,
		MaxBytes: maxMessageSize,
	})
	return newPoller(carts, reader, logger)
}

func newPoller(carts ItemRemover, reader MessageReader, logger *zap.Logger) *Poller {
	return &Poller{carts: carts, reader: reader, logger: logger, retryDelay: retryDelay}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.consume(ctx)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.logger.Warn("error closing reader", zap.Error(err))
	}
}

// consume handles one message and commits it only once it was handled. A failing
// removal is retried with a growing delay; the offset stays uncommitted if ctx ends first.
func (p *Poller) consume(ctx context.Context) {
	m, err := p.reader.FetchMessage(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.logger.Warn("error fetching message", zap.Error(err))
		}
		return
	}

	for attempt := 1; ; attempt++ {
		err := handleMessage(ctx, p.carts, m)
		if err == nil {
			break
		}
		if errors.Is(err, errMalformedEvent) {
			p.logger.Error("skipping malformed order event",
				zap.String("key", string(m.Key)),
				zap.Int64("offset", m.Offset),
				zap.Error(err))
			break
		}

		delay := min(p.retryDelay*time.Duration(attempt), maxRetryDelay)
		p.logger.Warn("failed to handle order event, retrying",
			zap.String("key", string(m.Key)),
			zap.Int64("offset", m.Offset),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}

	if err := p.reader.CommitMessages(ctx, m); err != nil {
		p.logger.Warn("error committing message", zap.Int64("offset", m.Offset), zap.Error(err))
	}
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == eventTypeKey {
			return string(h.Value)
		}
	}
	return ""
}

// handleMessage removes the items of a freshly created order from the cart it came from.
// Other event types are ignored.
func handleMessage(ctx context.Context, carts ItemRemover, m kafka.Message) error {
	if eventType(m) != domain.EventOrderCreated {
		return nil
	}

	var event domain.OrderEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		return fmt.Errorf("%w: error parsing message: %v", errMalformedEvent, err)
	}
	if event.CartOwner == "" {
		return fmt.Errorf("%w: missing or invalid cart_owner", errMalformedEvent)
	}
	if len(event.CartItemIDs) == 0 {
		return nil
	}

	if err := carts.RemoveItems(ctx, event.CartOwner, event.CartItemIDs); err != nil {
		return fmt.Errorf("failed to remove ordered items: %w", err)
	}
	return nil
}
