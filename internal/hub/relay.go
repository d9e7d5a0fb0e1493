package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Channel is the Redis pub/sub channel shared by all instances.
const Channel = "clanforge:events"

const (
	outboxSize     = 64
	publishTimeout = 2 * time.Second
)

type relayMessage struct {
	Origin string `json:"origin"`
	Type   string `json:"type"`
}

// Relay fans events out across server instances through Redis pub/sub.
// Events published by this instance are ignored when they come back.
type Relay struct {
	rdb    *redis.Client
	hub    *Hub
	id     string
	outbox chan string
	logger *zap.Logger
}

// NewRelay creates a Relay and registers it as the hub's publisher.
func NewRelay(rdb *redis.Client, h *Hub, logger *zap.Logger) *Relay {
	r := &Relay{
		rdb:    rdb,
		hub:    h,
		id:     uuid.NewString(),
		outbox: make(chan string, outboxSize),
		logger: logger.With(zap.String("component", "relay")),
	}
	h.SetPublisher(r)
	return r
}

// Publish queues event for the other instances and returns immediately. When
// the queue is full the event is dropped; delivery is at most once.
func (r *Relay) Publish(event string) {
	select {
	case r.outbox <- event:
	default:
		r.logger.Warn("relay queue full, dropping event", zap.String("type", event))
	}
}

// publishLoop drains the queue into Redis until ctx is cancelled.
func (r *Relay) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-r.outbox:
			r.publish(ctx, event)
		}
	}
}

func (r *Relay) publish(ctx context.Context, event string) {
	payload, err := json.Marshal(relayMessage{Origin: r.id, Type: event})
	if err != nil {
		r.logger.Error("failed to encode relay message", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := r.rdb.Publish(ctx, Channel, payload).Err(); err != nil {
		r.logger.Warn("failed to publish event", zap.String("type", event), zap.Error(err))
	}
}

// Run publishes queued local events and rebroadcasts events from other
// instances until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	go r.publishLoop(ctx)

	sub := r.rdb.Subscribe(ctx, Channel)
	defer sub.Close()

	// wait for the subscription to be confirmed
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	r.logger.Info("relay subscribed", zap.String("channel", Channel), zap.String("instance", r.id))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m relayMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				r.logger.Warn("ignoring malformed relay message", zap.Error(err))
				continue
			}
			if m.Origin == r.id || m.Type == "" {
				continue
			}
			r.hub.Broadcast(m.Type)
		}
	}
}
