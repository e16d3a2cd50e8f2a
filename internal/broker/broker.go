// Package broker implements the process-wide topic registry. Every
// subscription owns a bounded delivery queue; a full queue drops its oldest
// undelivered response rather than blocking the publisher.
package broker

import (
	"sync"

	"github.com/pkg/errors"

	"tablekv/internal/types"
)

// DefaultQueueCapacity bounds each subscription's delivery queue.
const DefaultQueueCapacity = 1024

// ErrUnknownSubscription is returned by Unsubscribe for an id that is not
// registered under the given topic.
var ErrUnknownSubscription = errors.New("unknown subscription")

// Subscription is an ephemeral receiver for one topic. Responses are read
// from Chan until it is closed by Unsubscribe or stream teardown.
type Subscription struct {
	id    uint32
	topic string

	mu     sync.Mutex
	closed bool
	ch     chan *types.CommandResponse
}

func (s *Subscription) ID() uint32    { return s.id }
func (s *Subscription) Topic() string { return s.topic }

// Chan yields the acknowledgement response first, then published data.
func (s *Subscription) Chan() <-chan *types.CommandResponse { return s.ch }

// offer enqueues without blocking; when the queue is full the oldest item is
// dropped to make room.
func (s *Subscription) offer(resp *types.CommandResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- resp:
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Broker holds all topics and subscriptions of the process.
type Broker struct {
	capacity int

	mu     sync.Mutex
	nextID uint32
	topics map[string]map[uint32]*Subscription
	subs   map[uint32]*Subscription
}

func New() *Broker {
	return NewWithCapacity(DefaultQueueCapacity)
}

// NewWithCapacity builds a broker whose subscription queues hold up to
// capacity responses.
func NewWithCapacity(capacity int) *Broker {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Broker{
		capacity: capacity,
		topics:   make(map[string]map[uint32]*Subscription),
		subs:     make(map[uint32]*Subscription),
	}
}

// Subscribe registers a new subscription on topic. The acknowledgement
// response carrying the subscription id is enqueued before Subscribe
// returns, so it is always the first item the subscriber sees.
func (b *Broker) Subscribe(topic string) *Subscription {
	b.mu.Lock()
	b.nextID++
	sub := &Subscription{
		id:    b.nextID,
		topic: topic,
		ch:    make(chan *types.CommandResponse, b.capacity),
	}
	// enqueue the ack before the subscription becomes visible to Publish
	sub.offer(types.FromValue(types.IntegerValue(int64(sub.id))))
	members, ok := b.topics[topic]
	if !ok {
		members = make(map[uint32]*Subscription)
		b.topics[topic] = members
	}
	members[sub.id] = sub
	b.subs[sub.id] = sub
	b.mu.Unlock()
	return sub
}

// Publish fans data out to every subscriber of topic.
func (b *Broker) Publish(topic string, data []types.Value) {
	b.mu.Lock()
	members := b.topics[topic]
	targets := make([]*Subscription, 0, len(members))
	for _, sub := range members {
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		sub.offer(types.FromValues(data))
	}
}

// Unsubscribe removes (topic, id) and closes the delivery queue.
func (b *Broker) Unsubscribe(topic string, id uint32) error {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if !ok || sub.topic != topic {
		b.mu.Unlock()
		return errors.Wrapf(ErrUnknownSubscription, "topic %q id %d", topic, id)
	}
	b.remove(sub)
	b.mu.Unlock()

	sub.close()
	return nil
}

// Drop tears down a subscription on stream termination; unknown
// subscriptions are ignored.
func (b *Broker) Drop(sub *Subscription) {
	b.mu.Lock()
	if registered, ok := b.subs[sub.id]; ok && registered == sub {
		b.remove(sub)
	}
	b.mu.Unlock()

	sub.close()
}

// remove must be called with b.mu held.
func (b *Broker) remove(sub *Subscription) {
	delete(b.subs, sub.id)
	if members, ok := b.topics[sub.topic]; ok {
		delete(members, sub.id)
		if len(members) == 0 {
			delete(b.topics, sub.topic)
		}
	}
}
