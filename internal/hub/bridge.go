package hub

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/thevtm/baker-news/internal/events"
)

var (
	// ErrBrokerClosed is returned by Forward when the broker ends the subscription
	ErrBrokerClosed = errors.New("hub: broker subscription closed")
	// ErrNoReceivers is returned by Publish when receivers are required and
	// no process was subscribed to the channel
	ErrNoReceivers = errors.New("hub: no broker subscribers")
)

// Broker is a pub/sub transport shared between processes
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error)
}

// Local exposes a hub as an event sink for the relay
type Local struct {
	Hub *Hub
}

// Publish hands ev to the hub. It cannot fail.
func (l Local) Publish(_ context.Context, ev events.Event) error {
	l.Hub.Publish(ev)
	return nil
}

// Bridge carries events between a relay process and API processes
type Bridge struct {
	broker  Broker
	channel string
	logger  *zap.Logger

	requireReceivers bool
}

// NewBridge creates a bridge over broker using channel
func NewBridge(broker Broker, channel string, logger *zap.Logger) *Bridge {
	return &Bridge{
		broker:  broker,
		channel: channel,
		logger:  logger.With(zap.String("component", "bridge"), zap.String("channel", channel)),
	}
}

// RequireReceivers makes Publish fail with ErrNoReceivers when nothing is
// subscribed to the channel, so the relay keeps the fact for a retry. Use it
// when the publishing process also forwards into its own hub.
func (b *Bridge) RequireReceivers() *Bridge {
	b.requireReceivers = true
	return b
}

// Publish encodes ev and sends it to every forwarding process
func (b *Bridge) Publish(ctx context.Context, ev events.Event) error {
	payload, err := events.Marshal(ev)
	if err != nil {
		return err
	}
	receivers, err := b.broker.Publish(ctx, b.channel, payload)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", ev.Kind(), err)
	}
	if receivers == 0 && b.requireReceivers {
		return fmt.Errorf("failed to publish %s event: %w", ev.Kind(), ErrNoReceivers)
	}
	return nil
}

// Forward republishes events received from the broker into h until ctx
// is done. Undecodable messages are logged and skipped.
func (b *Bridge) Forward(ctx context.Context, h *Hub) error {
	msgs, closeFn, err := b.broker.Subscribe(ctx, b.channel)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeFn(); err != nil {
			b.logger.Warn("Failed to close broker subscription", zap.Error(err))
		}
	}()

	b.logger.Info("Forwarding broker events into hub")

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrBrokerClosed
			}
			ev, err := events.Unmarshal(payload)
			if err != nil {
				b.logger.Warn("Skipping undecodable event", zap.Error(err), zap.Int("bytes", len(payload)))
				continue
			}
			h.Publish(ev)
		}
	}
}
