// Package memory is an in-process EventBus, grounded on the redelivery and
// dead-letter routing shape of the retrieval pack's Kafka-consumer
// reference (decode → validate → DLQ-on-failure, offsets committed only
// after successful processing) and on firefly's dispatcher (one
// subscription per consumer, context-scoped dispatch goroutines). It
// keeps everything in memory: no partitions, no real durability, at-least
// -once delivery within process lifetime only.
package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/praetorian-inc/ragpref/pkg/bus"
	"github.com/praetorian-inc/ragpref/pkg/pipeline"
)

// DefaultMaxDeliveries is §4.C's MAX_DELIVERIES default.
const DefaultMaxDeliveries = 5

type subscription struct {
	handler bus.Handler
	queue   chan envelopeDelivery
}

type envelopeDelivery struct {
	envelope pipeline.EventEnvelope
	attempt  int
}

// Bus is an in-process EventBus. Each (topic, group) pair gets its own
// buffered channel and worker goroutine; Publish fans the envelope out to
// every registered group for that topic.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[bus.Topic]map[string]*subscription
	maxDeliveries int
	queueDepth    int
	dlq           []pipeline.EventEnvelope
	dlqMu         sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an in-process Bus. maxDeliveries <= 0 uses DefaultMaxDeliveries.
func New(maxDeliveries int) *Bus {
	if maxDeliveries <= 0 {
		maxDeliveries = DefaultMaxDeliveries
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		subscriptions: make(map[bus.Topic]map[string]*subscription),
		maxDeliveries: maxDeliveries,
		queueDepth:    1024,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Publish fans envelope out to every (topic, group) subscription
// registered for topic. Publish itself never blocks on handler
// completion; it only blocks if a subscriber's queue is full (backpressure).
func (b *Bus) Publish(ctx context.Context, topic bus.Topic, _ string, envelope pipeline.EventEnvelope) error {
	b.mu.RLock()
	groups := b.subscriptions[topic]
	subs := make([]*subscription, 0, len(groups))
	for _, s := range groups {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.queue <- envelopeDelivery{envelope: envelope, attempt: 1}:
		case <-ctx.Done():
			return ctx.Err()
		case <-b.ctx.Done():
			return b.ctx.Err()
		}
	}
	return nil
}

// Subscribe registers handler as the processor for (topic, group) and
// starts its dispatch worker.
func (b *Bus) Subscribe(_ context.Context, topic bus.Topic, group string, handler bus.Handler) error {
	s := &subscription{handler: handler, queue: make(chan envelopeDelivery, b.queueDepth)}

	b.mu.Lock()
	if b.subscriptions[topic] == nil {
		b.subscriptions[topic] = make(map[string]*subscription)
	}
	b.subscriptions[topic][group] = s
	b.mu.Unlock()

	b.wg.Add(1)
	go b.dispatch(topic, group, s)
	return nil
}

func (b *Bus) dispatch(topic bus.Topic, group string, s *subscription) {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case d, ok := <-s.queue:
			if !ok {
				return
			}
			b.deliver(topic, group, s, d)
		}
	}
}

func (b *Bus) deliver(topic bus.Topic, group string, s *subscription, d envelopeDelivery) {
	err := s.handler(b.ctx, bus.Delivery{Envelope: d.envelope, Attempt: d.attempt})
	if err == nil {
		return
	}

	if d.attempt >= b.maxDeliveries {
		slog.Warn("bus: message dead-lettered",
			"topic", topic, "group", group, "event_id", d.envelope.EventID,
			"batch_id", d.envelope.BatchID, "correlation_id", d.envelope.CorrelationID,
			"attempts", d.attempt, "error", err)
		b.dlqMu.Lock()
		b.dlq = append(b.dlq, d.envelope)
		b.dlqMu.Unlock()
		return
	}

	slog.Debug("bus: nack, redelivering",
		"topic", topic, "group", group, "event_id", d.envelope.EventID, "attempt", d.attempt, "error", err)
	select {
	case s.queue <- envelopeDelivery{envelope: d.envelope, attempt: d.attempt + 1}:
	case <-b.ctx.Done():
	}
}

// DeadLettered returns a snapshot of envelopes parked after exhausting
// MAX_DELIVERIES, for inspection (§4.C).
func (b *Bus) DeadLettered() []pipeline.EventEnvelope {
	b.dlqMu.Lock()
	defer b.dlqMu.Unlock()
	out := make([]pipeline.EventEnvelope, len(b.dlq))
	copy(out, b.dlq)
	return out
}

// Close stops all dispatch workers and releases resources.
func (b *Bus) Close() error {
	b.cancel()
	b.wg.Wait()
	return nil
}
