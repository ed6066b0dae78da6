// Package memory implements crawler.Publisher in process memory. It stands
// in for the Pub/Sub publisher in tests that assert on emitted batch events.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Publisher records every batch event it is asked to publish.
type Publisher struct {
	mu     sync.RWMutex
	events []Event
}

// Event is one recorded publish: the topic and the batch-event payload.
type Event struct {
	Topic   string
	Payload any
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the event and returns a synthetic message ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, Event{Topic: topic, Payload: payload})
	return fmt.Sprintf("memory-%d", len(p.events)), nil
}

// Messages returns a copy of the recorded events in publish order.
func (p *Publisher) Messages() []Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}
