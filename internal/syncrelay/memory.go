package syncrelay

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/google/uuid"

	"github.com/pitabwire/shopdesk/model"
)

const defaultBuffer = 64

// ErrClosed is returned by Publish on a closed endpoint.
var ErrClosed = errors.New("syncrelay: endpoint closed")

// MemoryHub connects endpoints of the same process. Each endpoint stands for
// one open view; delivery is asynchronous and a full inbox drops the message.
type MemoryHub struct {
	mu        sync.RWMutex
	endpoints map[string][]*MemoryEndpoint
	buffer    int
	onDrop    func(topic string)
}

// HubOption configures a MemoryHub.
type HubOption func(*MemoryHub)

// WithBuffer sets the per-endpoint inbox size.
func WithBuffer(n int) HubOption {
	return func(h *MemoryHub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithDropHook is called whenever a message is dropped because an inbox is
// full.
func WithDropHook(fn func(topic string)) HubOption {
	return func(h *MemoryHub) { h.onDrop = fn }
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub(opts ...HubOption) *MemoryHub {
	h := &MemoryHub{endpoints: make(map[string][]*MemoryEndpoint), buffer: defaultBuffer}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Join attaches a new endpoint to topic.
func (h *MemoryHub) Join(topic string) *MemoryEndpoint {
	ep := &MemoryEndpoint{
		hub:      h,
		topic:    topic,
		origin:   uuid.NewString(),
		inbox:    make(chan model.SyncMessage, h.buffer),
		stop:     make(chan struct{}),
		handlers: make(map[uint64]func(model.SyncMessage)),
	}
	h.mu.Lock()
	h.endpoints[topic] = append(h.endpoints[topic], ep)
	h.mu.Unlock()

	ep.wg.Add(1)
	go ep.dispatch()
	return ep
}

func (h *MemoryHub) leave(ep *MemoryEndpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	eps := h.endpoints[ep.topic]
	for i, e := range eps {
		if e == ep {
			h.endpoints[ep.topic] = append(eps[:i:i], eps[i+1:]...)
			break
		}
	}
}

func (h *MemoryHub) distribute(msg model.SyncMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ep := range h.endpoints[msg.Topic] {
		if ep.origin == msg.Origin {
			continue
		}
		select {
		case ep.inbox <- msg:
		default:
			if h.onDrop != nil {
				h.onDrop(msg.Topic)
			}
		}
	}
}

// MemoryEndpoint is one participant of a MemoryHub topic. It implements
// Transport.
type MemoryEndpoint struct {
	hub    *MemoryHub
	topic  string
	origin string
	inbox  chan model.SyncMessage
	stop   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	mu       sync.RWMutex
	handlers map[uint64]func(model.SyncMessage)
	nextID   uint64
	closed   bool
}

var _ Transport = (*MemoryEndpoint)(nil)

// Origin returns the endpoint's unique id.
func (e *MemoryEndpoint) Origin() string { return e.origin }

// Publish delivers msg to every other endpoint on the topic.
func (e *MemoryEndpoint) Publish(_ context.Context, msg model.SyncMessage) error {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	msg.Topic = e.topic
	msg.Origin = e.origin
	msg.Patch = maps.Clone(msg.Patch)
	e.hub.distribute(msg)
	return nil
}

// Subscribe registers handler for inbound messages.
func (e *MemoryEndpoint) Subscribe(handler func(model.SyncMessage)) (cancel func()) {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.handlers[id] = handler
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.handlers, id)
		e.mu.Unlock()
	}
}

// Close detaches the endpoint from the hub and stops delivery.
func (e *MemoryEndpoint) Close() error {
	e.once.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()
		e.hub.leave(e)
		close(e.stop)
		e.wg.Wait()
	})
	return nil
}

func (e *MemoryEndpoint) dispatch() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stop:
			return
		case msg := <-e.inbox:
			e.mu.RLock()
			handlers := make([]func(model.SyncMessage), 0, len(e.handlers))
			for _, h := range e.handlers {
				handlers = append(handlers, h)
			}
			e.mu.RUnlock()
			for _, h := range handlers {
				h(msg)
			}
		}
	}
}
