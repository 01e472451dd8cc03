// Package eventbus provides the topic-keyed publish/subscribe system used
// to deliver decoded PTY output and session status changes to the
// frontend. It uses direct-call subscriber semantics (so publishers don't
// need to serialize their payloads just to hand them to an in-process
// subscriber): Publish calls each subscriber of a topic in turn. A
// watermill gochannel is created with the bus and closed by Close, but
// published events do not pass through it.
package eventbus

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Topic names used by the supervisor's components.
const (
	TopicSessionStatusChanged = "session-status-changed"
)

// PTYOutputTopic returns the per-session topic a PTY session's decoded
// output is published under.
func PTYOutputTopic(sessionID uint32) string {
	return "pty-output-" + strconv.FormatUint(uint64(sessionID), 10)
}

// Event is a single published message: a topic plus an arbitrary payload.
type Event struct {
	Topic   string
	Payload any
}

// Subscriber receives events published on a topic it subscribed to.
type Subscriber func(Event)

type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// Bus is a thread-safe topic-keyed publish/subscribe hub. The zero value
// is not ready to use; construct one with New.
type Bus struct {
	mu          sync.RWMutex
	pubsub      *gochannel.GoChannel
	subscribers map[string][]subscriberEntry
	nextID      uint64
	closed      bool
}

// New creates a Bus together with an in-memory watermill gochannel that
// Close releases.
func New() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 100, Persistent: false},
			watermill.NopLogger{},
		),
		subscribers: make(map[string][]subscriberEntry),
	}
}

// Subscribe registers fn to receive every event published on topic.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(topic string, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	id := atomic.AddUint64(&b.nextID, 1)
	b.subscribers[topic] = append(b.subscribers[topic], subscriberEntry{id: id, fn: fn})
	return func() { b.unsubscribe(topic, id) }
}

func (b *Bus) unsubscribe(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[topic]
	for i, e := range subs {
		if e.id == id {
			b.subscribers[topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers payload to every current subscriber of topic,
// synchronously and in subscription order — preserving the per-session
// ordering guarantee §5 requires (decoded PTY text, and status events for
// a given session id, are never reordered relative to each other).
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := make([]Subscriber, len(b.subscribers[topic]))
	for i, e := range b.subscribers[topic] {
		subs[i] = e.fn
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(Event{Topic: topic, Payload: payload})
	}
}

// Close shuts down the bus and releases the underlying watermill pubsub.
// Subsequent Publish/Subscribe calls are no-ops.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.subscribers = nil
	b.mu.Unlock()
	return b.pubsub.Close()
}
