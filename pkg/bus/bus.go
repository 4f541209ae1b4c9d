// Package bus defines the event bus contract §4.C requires: a durable,
// topic-routed, at-least-once transport with per-message ack/nack and
// MAX_DELIVERIES dead-lettering. Concrete backends implement this interface
// and are constructed directly by the caller (internal/bus/memory is the
// only one); there is no bus backend registry.
package bus

import (
	"context"
	"errors"

	"github.com/praetorian-inc/ragpref/pkg/pipeline"
)

// Topic names one of the two logical topics §4.C defines.
type Topic string

const (
	TopicAnswerGenerated      Topic = "answer.generated"
	TopicVerificationComplete Topic = "verification.completed"
)

// ErrDeadLettered names the condition of a message parked after
// MAX_DELIVERIES failed attempts. The in-process bus does not return it: it
// logs the parked message and keeps it for inspection. The aggregator treats
// a dead-lettered message as expired.
var ErrDeadLettered = errors.New("bus: message dead-lettered after max delivery attempts")

// Delivery wraps one envelope delivery with its attempt count, so a
// handler (or the bus's own logging) can tell a first delivery from a
// redelivery.
type Delivery struct {
	Envelope   pipeline.EventEnvelope
	Attempt    int
}

// Handler processes one delivery. Returning nil acks the message;
// returning an error nacks it for redelivery (up to MAX_DELIVERIES).
type Handler func(ctx context.Context, d Delivery) error

// EventBus is the transport every producer (orchestrator, verifier) and
// consumer (verifier, aggregator) of answer.generated / verification.completed
// events is written against.
type EventBus interface {
	// Publish delivers envelope to topic, keyed by key (batch_id, per
	// §4.C's grouping requirement — ordering across keys is not
	// guaranteed, and is not required).
	Publish(ctx context.Context, topic Topic, key string, envelope pipeline.EventEnvelope) error

	// Subscribe registers handler as the sole processor for (topic,
	// group). Each registered group receives its own copy of every
	// message published to topic.
	Subscribe(ctx context.Context, topic Topic, group string, handler Handler) error

	// Close stops dispatch and releases resources.
	Close() error
}
