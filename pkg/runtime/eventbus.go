package runtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// EventBus fans out Events to subscribers. Broadcast is non-blocking for
// the dispatch path: a subscriber whose channel is full loses its oldest
// queued event to make room rather than stalling the commit (spec.md §5
// "Event-bus broadcast is non-blocking").
type EventBus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	cfg    EventConfig
	logger *slog.Logger
	remote *redisPublisher
}

// NewEventBus creates an in-process-only bus.
func NewEventBus(cfg EventConfig, logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{subs: map[int]chan Event{}, cfg: cfg, logger: logger}
}

// Subscribe registers a new receiver with the configured queue capacity.
// Cancel via Unsubscribe when done.
func (b *EventBus) Subscribe() (<-chan Event, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.cfg.MaxQueueSize)
	b.subs[id] = ch
	return ch, id
}

// Unsubscribe removes and closes a subscriber's channel.
func (b *EventBus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish broadcasts ev to every subscriber. When a subscriber's channel is
// full and SlowSubscriberDrops is set, its oldest queued event is dropped
// to make room for ev (best-effort); otherwise this blocks until the
// subscriber has room. pkg/config turns drops off only for the "never"
// slow-subscriber drop policy (spec.md §5).
func (b *EventBus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			if b.cfg.SlowSubscriberDrops {
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- ev:
				default:
				}
				b.logger.Warn("event bus: dropped oldest event for slow subscriber", "subscriber", id, "kind", ev.Kind)
				continue
			}
			ch <- ev
		}
	}
	if b.remote != nil {
		b.remote.publish(ctx, ev, b.logger)
	}
}

// AttachRedis installs a Redis Stream projection alongside the in-process
// fanout, so out-of-process persistence/search workers can consume
// Event::TrApply without holding a subscriber channel open in this process
// (spec.md §1 "external collaborators", §5 "detached tasks").
func (b *EventBus) AttachRedis(client *redis.Client, stream string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remote = &redisPublisher{client: client, stream: stream}
}

type redisPublisher struct {
	client *redis.Client
	stream string
}

type trApplyProjection struct {
	Kind         string `json:"kind"`
	StateVersion int64  `json:"state_version"`
	TxCount      int    `json:"tx_count"`
}

func (p *redisPublisher) publish(ctx context.Context, ev Event, logger *slog.Logger) {
	if ev.Kind != EventTrApply || ev.State == nil {
		return
	}
	payload, err := json.Marshal(trApplyProjection{
		Kind:         "tr_apply",
		StateVersion: ev.State.Version,
		TxCount:      len(ev.Transactions),
	})
	if err != nil {
		logger.Warn("event bus: failed to marshal redis projection", "error", err)
		return
	}
	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{"payload": payload},
	}).Err(); err != nil {
		logger.Warn("event bus: redis publish failed", "error", err)
	}
}
