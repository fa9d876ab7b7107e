package directory

import (
	"context"
	"encoding/json"
	"fmt"

	"whiteboard-sync/internal/domain"
	"whiteboard-sync/internal/websocket"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RelayEvent is one share change on the relay channel.
type RelayEvent struct {
	Origin string                `json:"origin"`
	Type   websocket.MessageType `json:"type"`
	Board  domain.BoardID        `json:"board"`
}

// Relay shares board announcements between directory replicas over a Redis
// pub/sub channel. Each replica tags its events with its own origin and
// skips them when they come back.
type Relay struct {
	client  *redis.Client
	channel string
	origin  string
	log     *logrus.Entry
}

func NewRelay(client *redis.Client, channel string) *Relay {
	origin := uuid.New().String()
	return &Relay{
		client:  client,
		channel: channel,
		origin:  origin,
		log:     logrus.WithFields(logrus.Fields{"component": "relay", "origin": origin}),
	}
}

func (r *Relay) Origin() string {
	return r.origin
}

func (r *Relay) Publish(ctx context.Context, msgType websocket.MessageType, id domain.BoardID) error {
	data, err := json.Marshal(RelayEvent{Origin: r.origin, Type: msgType, Board: id})
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", r.channel, err)
	}
	return nil
}

// Run delivers events from other replicas to s until ctx is done.
func (r *Relay) Run(ctx context.Context, s *Service) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", r.channel, err)
	}
	r.log.WithField("channel", r.channel).Info("relay subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			ev, err := r.decode(msg.Payload)
			if err != nil {
				r.log.WithError(err).Warn("dropping relay event")
				continue
			}
			if ev.Origin == r.origin {
				continue
			}
			s.ApplyRemote(ev.Origin, ev.Type, ev.Board)
		}
	}
}

func (r *Relay) decode(payload string) (RelayEvent, error) {
	var ev RelayEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ev, err
	}
	if ev.Origin == "" || ev.Board.IsZero() {
		return ev, fmt.Errorf("incomplete relay event %q", payload)
	}
	return ev, nil
}
