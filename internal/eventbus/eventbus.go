// Package eventbus implements the gateway's pub/sub fabric (spec.md
// §4.2): a fixed set of logical channels plus one channel per venue,
// publish/subscribe/unsubscribe with per-handler timeouts, ordered
// per-subscriber delivery, and a circuit breaker with a bounded
// dead-letter list guarding an optional cross-process Broker.
//
// Grounded on internal/stream/bus.go's EventBus interface contract
// (Publish/Subscribe/Start/Stop/Health) and internal/stream/stub_bus.go's
// in-memory subscriber-list delivery, generalized from a Kafka-topic
// shaped bus down to the spec's fixed channel set. The breaker reuses
// github.com/sony/gobreaker, grounded on
// internal/infrastructure/providers/circuitbreakers.go's
// CircuitBreakerManager, so the bus and the Orchestrator (internal/orchestrator)
// share one breaker implementation instead of two divergent ones.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/tradefabric/gateway/internal/model"
)

// Fixed logical channels, per spec.md §4.2.
const (
	ChannelOrders      = "orders"
	ChannelPositions   = "positions"
	ChannelBalances    = "balances"
	ChannelMarketData  = "market_data"
	ChannelTrades      = "trades"
	ChannelConnections = "connections"
	ChannelSystem      = "system"
)

// VenueChannel returns the per-venue channel name for venue v.
func VenueChannel(v model.Venue) string { return "venue." + string(v) }

const (
	handlerTimeout    = 5 * time.Second
	failureThreshold  = 5
	breakerTimeout    = 60 * time.Second
	deadLetterCap     = 1000
	subscriberQueueSz = 256
	enqueueBound      = 200 * time.Millisecond
)

var (
	ErrBreakerOpen = errors.New("event bus circuit breaker is open")
)

// Handler processes one event delivered on a channel. An error or
// panic is logged and counted; it never blocks or prevents delivery
// to other handlers of the same channel.
type Handler func(ctx context.Context, event model.Event) error

// Broker optionally backs the bus for cross-process fan-out, e.g. a
// Redis pub/sub client. Left nil, the bus is purely in-memory and the
// breaker never trips (there is nothing external to fail).
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Ping(ctx context.Context) error
}

// DeadLetter records an event that failed to publish while the
// breaker was open or the broker rejected it.
type DeadLetter struct {
	Channel string
	Event   model.Event
	Err     error
	At      time.Time
}

type subscription struct {
	id      string
	channel string
	handler Handler
	queue   chan model.Event
	stop    chan struct{}
}

// Bus is the in-memory event bus implementation.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]*subscription
	broker      Broker
	breaker     *gobreaker.CircuitBreaker
	logger      zerolog.Logger

	dlMu        sync.Mutex
	deadLetters []DeadLetter
	dlDropped   int64

	nextID int64
}

// New builds a Bus. broker may be nil for single-process operation.
func New(broker Broker, logger zerolog.Logger) *Bus {
	b := &Bus{
		subscribers: make(map[string][]*subscription),
		broker:      broker,
		logger:      logger,
	}
	b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "eventbus",
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("event bus breaker state change")
		},
	})
	return b
}

// Publish delivers event to the channel implied by its EventType, or
// to an explicit override channel. Local subscriber fan-out never
// fails the publish (per spec.md §4.2: the bus never propagates a
// subscriber's handler error to the publisher); only the optional
// Broker forward is guarded by the circuit breaker.
func (b *Bus) Publish(ctx context.Context, event model.Event, channel ...string) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	ch := event.EventType.Channel()
	if len(channel) > 0 && channel[0] != "" {
		ch = channel[0]
	}

	b.fanOut(ch, event)

	if b.broker == nil {
		return nil
	}

	payload, err := event.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, err = b.breaker.Execute(func() (interface{}, error) {
		return nil, b.broker.Publish(ctx, ch, payload)
	})
	if err != nil {
		b.recordDeadLetter(ch, event, err)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return ErrBreakerOpen
		}
		return err
	}
	return nil
}

func (b *Bus) recordDeadLetter(channel string, event model.Event, err error) {
	b.dlMu.Lock()
	defer b.dlMu.Unlock()
	if len(b.deadLetters) >= deadLetterCap {
		b.dlDropped++
		return
	}
	b.deadLetters = append(b.deadLetters, DeadLetter{Channel: channel, Event: event, Err: err, At: time.Now().UTC()})
}

// DeadLetters returns a snapshot of the bounded dead-letter list and
// the count of entries dropped once the cap was reached.
func (b *Bus) DeadLetters() ([]DeadLetter, int64) {
	b.dlMu.Lock()
	defer b.dlMu.Unlock()
	out := make([]DeadLetter, len(b.deadLetters))
	copy(out, b.deadLetters)
	return out, b.dlDropped
}

// fanOut enqueues event to every subscriber of channel, preserving
// publish order per subscriber. A full subscriber queue blocks the
// send for at most enqueueBound before the event is dropped for that
// subscriber and logged.
func (b *Bus) fanOut(channel string, event model.Event) {
	b.mu.RLock()
	subs := make([]*subscription, len(b.subscribers[channel]))
	copy(subs, b.subscribers[channel])
	b.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.queue <- event:
		case <-time.After(enqueueBound):
			b.logger.Warn().Str("channel", channel).Str("subscriber", s.id).Msg("subscriber queue full, dropping event")
		}
	}
}

// Subscription is an opaque handle returned by Subscribe, passed back
// to Unsubscribe.
type Subscription struct {
	channel string
	id      string
}

// Subscribe registers handler on channel. Events are delivered to this
// handler in publish order; each invocation is guarded by a 5-second
// timeout. Multiple handlers per channel are independent.
func (b *Bus) Subscribe(channel string, handler Handler) *Subscription {
	b.mu.Lock()
	b.nextID++
	id := fmt.Sprintf("sub-%d", b.nextID)
	s := &subscription{
		id: id, channel: channel, handler: handler,
		queue: make(chan model.Event, subscriberQueueSz),
		stop:  make(chan struct{}),
	}
	b.subscribers[channel] = append(b.subscribers[channel], s)
	b.mu.Unlock()

	go b.runSubscriber(s)
	return &Subscription{channel: channel, id: id}
}

func (b *Bus) runSubscriber(s *subscription) {
	for {
		select {
		case event, ok := <-s.queue:
			if !ok {
				return
			}
			b.invoke(s, event)
		case <-s.stop:
			return
		}
	}
}

func (b *Bus) invoke(s *subscription, event model.Event) {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("handler panic: %v", r)
			}
		}()
		done <- s.handler(context.Background(), event)
	}()

	select {
	case err := <-done:
		if err != nil {
			b.logger.Error().Err(err).Str("channel", s.channel).Str("subscriber", s.id).Msg("event handler failed")
		}
	case <-time.After(handlerTimeout):
		b.logger.Error().Str("channel", s.channel).Str("subscriber", s.id).Msg("event handler timed out, dropping")
	}
}

// Unsubscribe removes a single subscription. Idempotent: unsubscribing
// twice, or unsubscribing after Publish already drained the queue, is
// a no-op.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subscribers[sub.channel]
	for i, s := range list {
		if s.id == sub.id {
			close(s.stop)
			b.subscribers[sub.channel] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// UnsubscribeChannel removes every subscriber of channel.
func (b *Bus) UnsubscribeChannel(channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subscribers[channel] {
		close(s.stop)
	}
	delete(b.subscribers, channel)
}

// SubscriberCount returns the number of live subscribers on channel,
// for tests and health reporting.
func (b *Bus) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[channel])
}

// BreakerState reports the current breaker state as a §4.3-style
// string ("closed", "open", "half_open").
func (b *Bus) BreakerState() string {
	switch b.breaker.State() {
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}
