// Package events provides the progress event bus for job updates.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ProgressEvent is the wire form of a job progress update.
type ProgressEvent struct {
	JobID    string    `json:"job_id"`
	OwnerID  string    `json:"owner_id"`
	Status   string    `json:"status"`
	Progress int       `json:"progress"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// Bus defines the progress event publisher interface.
type Bus interface {
	PublishProgress(ctx context.Context, evt ProgressEvent) error
	Close() error
}

// RedisBus publishes progress events over Redis pub/sub.
type RedisBus struct {
	client  *redis.Client
	channel string
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Channel  string
}

// NewRedisBus creates a Redis-backed event bus and verifies the connection.
func NewRedisBus(cfg RedisConfig) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	channel := cfg.Channel
	if channel == "" {
		channel = "jobs.progress"
	}

	return &RedisBus{client: client, channel: "inkwell:" + channel}, nil
}

// PublishProgress publishes an event to the progress channel.
func (b *RedisBus) PublishProgress(ctx context.Context, evt ProgressEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode progress event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe returns a channel of decoded progress events. The channel closes
// when ctx is done.
func (b *RedisBus) Subscribe(ctx context.Context) (<-chan ProgressEvent, error) {
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan ProgressEvent)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				var evt ProgressEvent
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the Redis connection.
func (b *RedisBus) Close() error {
	return b.client.Close()
}

// MemoryBus is an in-process event bus for development and tests.
type MemoryBus struct {
	mu   sync.RWMutex
	subs []chan ProgressEvent
}

// NewMemoryBus creates an in-memory event bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// PublishProgress delivers the event to every subscriber without blocking;
// slow subscribers drop events.
func (b *MemoryBus) PublishProgress(_ context.Context, evt ProgressEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	return nil
}

// Subscribe registers a new subscriber channel.
func (b *MemoryBus) Subscribe() <-chan ProgressEvent {
	ch := make(chan ProgressEvent, 64)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Close closes all subscriber channels.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
	return nil
}
