package syncrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pitabwire/shopdesk/model"
)

// RedisTransport relays messages over Redis pub/sub so that views in other
// processes receive them. The channel name is "<prefix>:<topic>".
type RedisTransport struct {
	client  redis.UniversalClient
	pubsub  *redis.PubSub
	channel string
	topic   string
	origin  string
	logger  *zap.Logger

	mu       sync.RWMutex
	handlers map[uint64]func(model.SyncMessage)
	nextID   uint64

	done chan struct{}
	once sync.Once
}

var _ Transport = (*RedisTransport)(nil)

// NewRedisTransport subscribes to the topic's Redis channel. The subscription
// is confirmed before returning.
func NewRedisTransport(ctx context.Context, client redis.UniversalClient, prefix, topic string, logger *zap.Logger) (*RedisTransport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	channel := topic
	if prefix != "" {
		channel = prefix + ":" + topic
	}
	ps := client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("syncrelay: subscribe %s: %w", channel, err)
	}
	t := &RedisTransport{
		client:   client,
		pubsub:   ps,
		channel:  channel,
		topic:    topic,
		origin:   uuid.NewString(),
		logger:   logger.With(zap.String("channel", channel)),
		handlers: make(map[uint64]func(model.SyncMessage)),
		done:     make(chan struct{}),
	}
	go t.receive()
	return t, nil
}

// Origin returns the transport's unique id.
func (t *RedisTransport) Origin() string { return t.origin }

// Publish sends msg as JSON on the topic channel.
func (t *RedisTransport) Publish(ctx context.Context, msg model.SyncMessage) error {
	msg.Topic = t.topic
	msg.Origin = t.origin
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("syncrelay: encode message: %w", err)
	}
	return t.client.Publish(ctx, t.channel, payload).Err()
}

// Subscribe registers handler for messages published by other origins.
func (t *RedisTransport) Subscribe(handler func(model.SyncMessage)) (cancel func()) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.handlers[id] = handler
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.handlers, id)
		t.mu.Unlock()
	}
}

// Close unsubscribes and waits for the receive loop to exit.
func (t *RedisTransport) Close() error {
	var err error
	t.once.Do(func() {
		err = t.pubsub.Close()
		<-t.done
	})
	return err
}

func (t *RedisTransport) receive() {
	defer close(t.done)
	for m := range t.pubsub.Channel() {
		var msg model.SyncMessage
		if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
			t.logger.Warn("discarding malformed sync payload", zap.Error(err))
			continue
		}
		if msg.Origin == t.origin {
			continue
		}
		t.mu.RLock()
		handlers := make([]func(model.SyncMessage), 0, len(t.handlers))
		for _, h := range t.handlers {
			handlers = append(handlers, h)
		}
		t.mu.RUnlock()
		for _, h := range handlers {
			h(msg)
		}
	}
}
