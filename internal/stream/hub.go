// Package stream distributes simulation snapshots to interested consumers.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"gpwsim/internal/models"
)

// HubConfig holds configuration for the Stream Hub.
type HubConfig struct {
	// BufferSize is the size of the internal snapshot channel buffer.
	BufferSize int
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BufferSize:           256,
		SubscriberBufferSize: 64,
	}
}

// Hub fans snapshots from a single runner out to many subscribers. Sends
// are non-blocking: a subscriber whose buffer is full misses that snapshot.
type Hub struct {
	config      HubConfig
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	snapChan    chan models.Snapshot
	done        chan struct{}
	loopDone    chan struct{}
	started     bool
	consumers   []Consumer
	consumersMu sync.RWMutex

	// Metrics
	received  uint64
	delivered uint64
	dropped   uint64
	metricsMu sync.RWMutex
}

// Subscriber represents a channel subscriber with metadata.
type Subscriber struct {
	ID        string
	Channel   chan models.Snapshot
	CreatedAt time.Time
}

// NewHub creates a new stream hub with default configuration.
func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig())
}

// NewHubWithConfig creates a new stream hub with custom configuration.
func NewHubWithConfig(config HubConfig) *Hub {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultHubConfig().BufferSize
	}
	if config.SubscriberBufferSize <= 0 {
		config.SubscriberBufferSize = DefaultHubConfig().SubscriberBufferSize
	}
	return &Hub{
		config:      config,
		subscribers: make(map[string]*Subscriber),
		snapChan:    make(chan models.Snapshot, config.BufferSize),
	}
}

// Start begins the hub's distribution loop.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return nil
	}
	h.started = true
	h.done = make(chan struct{})
	h.loopDone = make(chan struct{})

	go h.broadcastLoop(ctx, h.done, h.loopDone)
	return nil
}

func (h *Hub) broadcastLoop(ctx context.Context, done, loopDone chan struct{}) {
	defer close(loopDone)
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case snap := <-h.snapChan:
			h.deliver(snap)
		}
	}
}

func (h *Hub) deliver(snap models.Snapshot) {
	h.metricsMu.Lock()
	h.received++
	h.metricsMu.Unlock()

	h.broadcast(snap)
	h.notifyConsumers(snap)
}

// Stop delivers snapshots still queued, then closes all subscriber channels.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return
	}
	h.started = false
	close(h.done)
	loopDone := h.loopDone
	h.mu.Unlock()

	<-loopDone

	h.drain()

	h.mu.Lock()
	for id, sub := range h.subscribers {
		close(sub.Channel)
		delete(h.subscribers, id)
	}
	h.mu.Unlock()
}

func (h *Hub) drain() {
	for {
		select {
		case snap := <-h.snapChan:
			h.deliver(snap)
		default:
			return
		}
	}
}

// Subscribe adds a subscriber and returns its ID and receive channel.
func (h *Hub) Subscribe() (string, <-chan models.Snapshot) {
	ch := make(chan models.Snapshot, h.config.SubscriberBufferSize)
	sub := &Subscriber{
		ID:        uuid.New().String(),
		Channel:   ch,
		CreatedAt: time.Now(),
	}

	h.mu.Lock()
	h.subscribers[sub.ID] = sub
	h.mu.Unlock()

	return sub.ID, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.subscribers[id]; ok {
		close(sub.Channel)
		delete(h.subscribers, id)
	}
}

// Publish queues a snapshot for distribution. It never blocks and reports
// false when the hub is stopped or the internal buffer is full.
// The read lock keeps Stop from draining between the check and the send.
func (h *Hub) Publish(snap models.Snapshot) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.started {
		return false
	}
	select {
	case h.snapChan <- snap:
		return true
	default:
		h.metricsMu.Lock()
		h.dropped++
		h.metricsMu.Unlock()
		return false
	}
}

// broadcast sends a snapshot to all subscribers.
// The read lock is held so Stop cannot close a channel mid-send.
func (h *Hub) broadcast(snap models.Snapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscribers {
		select {
		case sub.Channel <- snap:
			h.metricsMu.Lock()
			h.delivered++
			h.metricsMu.Unlock()
		default:
			h.metricsMu.Lock()
			h.dropped++
			h.metricsMu.Unlock()
		}
	}
}

// GetSubscriberCount returns the number of subscribers.
func (h *Hub) GetSubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// GetMetrics returns hub metrics.
func (h *Hub) GetMetrics() HubMetrics {
	subscribers := h.GetSubscriberCount()

	h.metricsMu.RLock()
	defer h.metricsMu.RUnlock()

	return HubMetrics{
		Received:    h.received,
		Delivered:   h.delivered,
		Dropped:     h.dropped,
		Subscribers: subscribers,
	}
}

// HubMetrics contains hub delivery counters.
type HubMetrics struct {
	Received    uint64
	Delivered   uint64
	Dropped     uint64
	Subscribers int
}

// IsStarted returns whether the hub is running.
func (h *Hub) IsStarted() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.started
}

// Consumer processes snapshots inline on the hub's loop, in publish order.
type Consumer interface {
	OnSnapshot(snap models.Snapshot)
}

// RegisterConsumer adds a consumer to receive snapshots.
func (h *Hub) RegisterConsumer(consumer Consumer) {
	h.consumersMu.Lock()
	h.consumers = append(h.consumers, consumer)
	h.consumersMu.Unlock()
}

func (h *Hub) notifyConsumers(snap models.Snapshot) {
	h.consumersMu.RLock()
	consumers := make([]Consumer, len(h.consumers))
	copy(consumers, h.consumers)
	h.consumersMu.RUnlock()

	for _, consumer := range consumers {
		consumer.OnSnapshot(snap)
	}
}

// ConsumerFunc adapts a function to the Consumer interface.
type ConsumerFunc struct {
	fn func(models.Snapshot)
}

// NewConsumerFunc creates a new ConsumerFunc.
func NewConsumerFunc(fn func(models.Snapshot)) *ConsumerFunc {
	return &ConsumerFunc{fn: fn}
}

// OnSnapshot implements Consumer.
func (c *ConsumerFunc) OnSnapshot(snap models.Snapshot) {
	if c.fn != nil {
		c.fn(snap)
	}
}
