// Package notify emits domain events. Emission is fire-and-forget: callers
// never wait on delivery and never fail because of it.
package notify

import (
	"context"
	"github.com/ariefcatur/go-seller-settlement/internal/events"
	kafkax "github.com/ariefcatur/go-seller-settlement/internal/kafka"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"sync"
)

type Notifier interface {
	Notify(ctx context.Context, env events.Envelope)
}

// Emit builds an envelope and hands it to n, logging instead of failing.
func Emit(ctx context.Context, n Notifier, log *zap.Logger, producer, eventType, correlationID string, payload any) {
	if n == nil {
		return
	}
	env, err := events.New(eventType, producer, correlationID, payload)
	if err != nil {
		log.Warn("build event", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	n.Notify(ctx, env)
}

type Kafka struct {
	Producer *kafkax.Producer
	Log      *zap.Logger
}

func (k *Kafka) Notify(_ context.Context, env events.Envelope) {
	topic := events.TopicFor(env.EventType)
	if topic == "" {
		k.Log.Warn("no topic for event", zap.String("event_type", env.EventType))
		return
	}
	k.Producer.Publish(topic, events.PartitionKey(env.CorrelationID), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(env.EventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

// Recorder keeps every envelope in memory.
type Recorder struct {
	mu     sync.Mutex
	events []events.Envelope
}

func (r *Recorder) Notify(_ context.Context, env events.Envelope) {
	r.mu.Lock()
	r.events = append(r.events, env)
	r.mu.Unlock()
}

func (r *Recorder) Events() []events.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Envelope(nil), r.events...)
}

// OfType returns the recorded envelopes with the given event type.
func (r *Recorder) OfType(eventType string) []events.Envelope {
	var out []events.Envelope
	for _, e := range r.Events() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}
