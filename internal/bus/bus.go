// Package bus is the in-process broadcast channel between dashboard
// views: every view in the tab set sees every published event. It is
// one of the two delivery paths for selection updates, the other being
// the persisted store's change feed.
package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Topics carried on the bus.
const (
	TopicVehicleSelected  = "vehicleSelectedInTab"
	TopicDateRangeChanged = "dateRangeChangedInTab"
	TopicSplitModeChanged = "splitModeChanged"
)

// Event is a broadcast message. Timestamp is the producer's write
// stamp; consumers use it for echo suppression.
type Event struct {
	Topic     string
	Payload   any
	Timestamp time.Time
}

// HandlerFunc consumes a broadcast event.
type HandlerFunc func(Event)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures a subscription.
type Option func(*subCfg)

type subCfg struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered makes the subscription async with a queue of the given size.
// Delivery order within the subscription is preserved.
func Buffered(size int) Option {
	return func(c *subCfg) { c.bufferSize = size }
}

// Blocking makes a buffered subscription block the publisher when its
// queue is full instead of dropping.
func Blocking() Option {
	return func(c *subCfg) { c.blocking = true }
}

// Logged adds debug logging around deliveries to this subscription.
func Logged() Option {
	return func(c *subCfg) { c.logged = true }
}

type subscription struct {
	deliver HandlerFunc
	buffer  chan Event
}

// Bus fans events out to topic subscribers. Synchronous subscriptions
// are delivered in Publish call order; buffered ones preserve order
// within themselves only.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]*subscription
	logger Logger

	published metric.Int64Counter
	dropped   metric.Int64Counter
	queueSize metric.Int64ObservableGauge
}

// New creates a Bus. Uses the global OTel meter for metrics (no-op if
// not configured).
func New(logger Logger) (*Bus, error) {
	b := &Bus{
		subs:   make(map[string][]*subscription),
		logger: logger,
	}

	m := meter()
	var err error

	b.published, err = m.Int64Counter(
		"bus.events.published",
		metric.WithDescription("Total events published per topic"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating published counter: %w", err)
	}

	b.dropped, err = m.Int64Counter(
		"bus.events.dropped",
		metric.WithDescription("Events dropped by full subscriber queues"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	b.queueSize, err = m.Int64ObservableGauge(
		"bus.queue.size",
		metric.WithDescription("Buffered subscriber queue depths"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			b.mu.RLock()
			defer b.mu.RUnlock()
			for topic, subs := range b.subs {
				for _, s := range subs {
					if s.buffer != nil {
						o.ObserveInt64(b.queueSize, int64(len(s.buffer)),
							metric.WithAttributes(attribute.String("topic", topic)))
					}
				}
			}
			return nil
		},
		b.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	return b, nil
}

// Subscribe registers fn for a topic. The returned function cancels the
// subscription.
func (b *Bus) Subscribe(topic string, fn HandlerFunc, opts ...Option) func() {
	cfg := &subCfg{}
	for _, opt := range opts {
		opt(cfg)
	}

	deliver := fn
	if cfg.logged {
		deliver = b.withLogging(topic, deliver)
	}

	sub := &subscription{deliver: deliver}
	topicAttr := attribute.String("topic", topic)

	if cfg.bufferSize > 0 {
		buffer := make(chan Event, cfg.bufferSize)
		sub.buffer = buffer
		inner := deliver
		go func() {
			for e := range buffer {
				inner(e)
			}
		}()
		if cfg.blocking {
			sub.deliver = func(e Event) { buffer <- e }
		} else {
			sub.deliver = func(e Event) {
				select {
				case buffer <- e:
				default:
					b.dropped.Add(context.Background(), 1, metric.WithAttributes(topicAttr))
				}
			}
		}
	}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	return func() { b.unsubscribe(topic, sub) }
}

// Publish delivers the event to every subscriber of its topic.
// A zero Timestamp is stamped with the current time.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	subs := make([]*subscription, len(b.subs[e.Topic]))
	copy(subs, b.subs[e.Topic])
	b.mu.RUnlock()

	b.published.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("topic", e.Topic)))

	for _, s := range subs {
		s.deliver(e)
	}
}

// SubscriberCount returns the number of subscriptions for a topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func (b *Bus) unsubscribe(topic string, target *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[topic]
	for i, s := range subs {
		if s == target {
			b.subs[topic] = append(subs[:i], subs[i+1:]...)
			if s.buffer != nil {
				close(s.buffer)
			}
			return
		}
	}
}

func (b *Bus) withLogging(topic string, h HandlerFunc) HandlerFunc {
	return func(e Event) {
		start := time.Now()
		h(e)
		if b.logger != nil {
			b.logger.Debug("delivered event", "topic", topic, "duration", time.Since(start))
		}
	}
}
