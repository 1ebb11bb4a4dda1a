// Package syncrelay propagates whitelisted field patches between views of
// the same list without a server round-trip. Delivery is advisory: at most
// once per listener, unordered, and never back to the sender.
package syncrelay

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/shopdesk/model"
)

// Well-known topics.
const (
	TopicOrders   = "orders-sync"
	TopicProducts = "products-sync"
)

// Syncable fields of the well-known topics.
var (
	OrderFields   = []string{"status"}
	ProductFields = []string{"price", "sale", "deleted"}
)

// ErrFieldNotSyncable is returned when a patch names a field outside the
// topic's whitelist.
var ErrFieldNotSyncable = errors.New("syncrelay: field not syncable")

// ErrEmptyPatch is returned when publishing a patch with no fields.
var ErrEmptyPatch = errors.New("syncrelay: empty patch")

// Transport carries SyncMessages for a single topic. Implementations stamp
// outgoing messages with their origin and never deliver a message back to
// the endpoint that published it.
type Transport interface {
	Publish(ctx context.Context, msg model.SyncMessage) error
	Subscribe(handler func(model.SyncMessage)) (cancel func())
	Origin() string
	Close() error
}

// Recorder receives relay metrics. A nil Recorder disables recording.
type Recorder interface {
	IncSyncSent(topic string)
	IncSyncReceived(topic string)
	IncSyncDropped(topic, reason string)
}

// Patcher applies an inbound patch to local state.
type Patcher interface {
	ApplyLocalPatch(id string, p model.Patch) (bool, error)
}

// Channel enforces a topic's field whitelist on top of a Transport.
type Channel struct {
	topic     string
	allowed   []string
	transport Transport
	logger    *zap.Logger
	rec       Recorder
	now       func() time.Time
}

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

// WithLogger sets the channel logger.
func WithLogger(l *zap.Logger) ChannelOption {
	return func(c *Channel) { c.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) ChannelOption {
	return func(c *Channel) { c.rec = r }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) ChannelOption {
	return func(c *Channel) { c.now = now }
}

// NewChannel creates a Channel for topic allowing only the given fields.
func NewChannel(topic string, fields []string, t Transport, opts ...ChannelOption) *Channel {
	c := &Channel{
		topic:     topic,
		allowed:   slices.Clone(fields),
		transport: t,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("topic", topic))
	return c
}

// Topic returns the channel's topic name.
func (c *Channel) Topic() string { return c.topic }

// Fields returns the whitelisted field names.
func (c *Channel) Fields() []string { return slices.Clone(c.allowed) }

// Publish broadcasts a patch for resourceID. It must only be called after
// the backend confirmed the change. Patches naming a field outside the
// whitelist are rejected.
func (c *Channel) Publish(ctx context.Context, resourceID string, patch model.Patch) error {
	if len(patch) == 0 {
		return ErrEmptyPatch
	}
	var bad []string
	for field := range patch {
		if !slices.Contains(c.allowed, field) {
			bad = append(bad, field)
		}
	}
	if len(bad) > 0 {
		slices.Sort(bad)
		return fmt.Errorf("%w: %s on %s", ErrFieldNotSyncable, strings.Join(bad, ", "), c.topic)
	}

	msg := model.SyncMessage{
		Topic:      c.topic,
		ResourceID: resourceID,
		Patch:      patch,
		SentAt:     c.now().UTC(),
	}
	if err := c.transport.Publish(ctx, msg); err != nil {
		return fmt.Errorf("syncrelay: publish on %s: %w", c.topic, err)
	}
	if c.rec != nil {
		c.rec.IncSyncSent(c.topic)
	}
	c.logger.Debug("sync patch published", zap.String("resource_id", resourceID), zap.Strings("fields", patch.Fields()))
	return nil
}

// Subscribe registers handler for inbound patches from other endpoints.
// Disallowed fields are stripped; messages left empty are dropped.
func (c *Channel) Subscribe(handler func(resourceID string, patch model.Patch)) (cancel func()) {
	return c.transport.Subscribe(func(msg model.SyncMessage) {
		if msg.Topic != "" && msg.Topic != c.topic {
			c.drop("topic", msg)
			return
		}
		patch := make(model.Patch, len(msg.Patch))
		for field, v := range msg.Patch {
			if slices.Contains(c.allowed, field) {
				patch[field] = v
			}
		}
		if len(patch) < len(msg.Patch) {
			c.logger.Warn("stripped non-syncable fields from inbound patch",
				zap.String("resource_id", msg.ResourceID),
				zap.String("origin", msg.Origin),
			)
		}
		if len(patch) == 0 || msg.ResourceID == "" {
			c.drop("empty", msg)
			return
		}
		if c.rec != nil {
			c.rec.IncSyncReceived(c.topic)
		}
		handler(msg.ResourceID, patch)
	})
}

// Feed subscribes p so that every inbound patch is applied locally.
func (c *Channel) Feed(p Patcher) (cancel func()) {
	return c.Subscribe(func(id string, patch model.Patch) {
		if _, err := p.ApplyLocalPatch(id, patch); err != nil {
			c.logger.Warn("inbound patch could not be applied", zap.String("resource_id", id), zap.Error(err))
		}
	})
}

// Close closes the underlying transport.
func (c *Channel) Close() error {
	return c.transport.Close()
}

func (c *Channel) drop(reason string, msg model.SyncMessage) {
	c.logger.Warn("dropping sync message", zap.String("reason", reason), zap.String("resource_id", msg.ResourceID))
	if c.rec != nil {
		c.rec.IncSyncDropped(c.topic, reason)
	}
}
