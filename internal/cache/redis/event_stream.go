package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

// DefaultStreamMaxLen bounds the event stream via XADD MAXLEN ~.
const DefaultStreamMaxLen int64 = 10000

// EventStream is the durable bot event log: every event is appended to a
// Redis stream and published on a pub/sub channel of the same name for live
// consumers such as the websocket hub.
type EventStream struct {
	c      *Client
	name   string
	maxLen int64
}

// NewEventStream creates an EventStream on "<prefix>events". maxLen <= 0
// means DefaultStreamMaxLen.
func NewEventStream(c *Client, maxLen int64) *EventStream {
	if maxLen <= 0 {
		maxLen = DefaultStreamMaxLen
	}
	return &EventStream{c: c, name: c.Key("events"), maxLen: maxLen}
}

// Channel is the pub/sub channel events are published on.
func (s *EventStream) Channel() string { return s.name }

// Append implements domain.EventLog.
func (s *EventStream) Append(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}
	_, err = s.c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.XAdd(ctx, &redis.XAddArgs{
			Stream: s.name,
			MaxLen: s.maxLen,
			Approx: true,
			Values: map[string]any{"type": string(ev.Type), "payload": payload},
		})
		p.Publish(ctx, s.name, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: append event %s: %w", ev.Type, err)
	}
	return nil
}

// Recent implements domain.EventLog, newest first.
func (s *EventStream) Recent(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	msgs, err := s.c.rdb.XRevRangeN(ctx, s.name, "+", "-", int64(limit)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []domain.Event{}, nil
		}
		return nil, fmt.Errorf("redis: read events: %w", err)
	}
	out := make([]domain.Event, 0, len(msgs))
	for _, m := range msgs {
		ev, err := decodeEvent(m.Values["payload"])
		if err != nil {
			return nil, fmt.Errorf("redis: event %s: %w", m.ID, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func decodeEvent(v any) (domain.Event, error) {
	var raw []byte
	switch p := v.(type) {
	case string:
		raw = []byte(p)
	case []byte:
		raw = p
	default:
		return domain.Event{}, fmt.Errorf("unexpected payload type %T", v)
	}
	var ev domain.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return domain.Event{}, err
	}
	return ev, nil
}

// Publish implements domain.EventBus.
func (s *EventStream) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := s.c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe implements domain.EventBus. The returned channel is closed when
// ctx is done.
func (s *EventStream) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var ps *redis.PubSub
	if strings.ContainsAny(channel, "*?[") {
		ps = s.c.rdb.PSubscribe(ctx, channel)
	} else {
		ps = s.c.rdb.Subscribe(ctx, channel)
	}
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer ps.Close()
		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

var (
	_ domain.EventLog = (*EventStream)(nil)
	_ domain.EventBus = (*EventStream)(nil)
)
