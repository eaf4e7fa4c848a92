package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes events on a Redis channel and keeps the latest
// event of each live call under a key with a TTL, so other processes can
// both follow and look up calls. The key is removed when the call ends.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
	prefix  string
	ttl     time.Duration
	timeout time.Duration
	logger  *slog.Logger
}

// RedisOption configures a RedisPublisher.
type RedisOption func(*RedisPublisher)

// WithChannel sets the pub/sub channel.
func WithChannel(channel string) RedisOption {
	return func(p *RedisPublisher) { p.channel = channel }
}

// WithKeyPrefix sets the prefix for per-call keys.
func WithKeyPrefix(prefix string) RedisOption {
	return func(p *RedisPublisher) { p.prefix = prefix }
}

// WithTTL sets how long a per-call key lives after its last event.
func WithTTL(ttl time.Duration) RedisOption {
	return func(p *RedisPublisher) { p.ttl = ttl }
}

// WithLogger sets the logger used for publish failures.
func WithLogger(l *slog.Logger) RedisOption {
	return func(p *RedisPublisher) { p.logger = l }
}

// NewRedisPublisher wraps an existing client.
func NewRedisPublisher(client redis.UniversalClient, opts ...RedisOption) *RedisPublisher {
	p := &RedisPublisher{
		client:  client,
		channel: "dealerline:calls",
		prefix:  "dealerline:call:",
		ttl:     2 * time.Hour,
		timeout: 2 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return client, nil
}

func (p *RedisPublisher) key(callID string) string {
	return p.prefix + callID
}

// Publish writes the event. It returns the first Redis error.
func (p *RedisPublisher) Publish(ctx context.Context, event *Event) error {
	data, err := event.JSON()
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	pipe := p.client.TxPipeline()
	pipe.Publish(ctx, p.channel, data)
	if event.CallID != "" {
		if event.Type == CallEnded {
			pipe.Del(ctx, p.key(event.CallID))
		} else {
			pipe.Set(ctx, p.key(event.CallID), data, p.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publishing %s: %w", event.Type, err)
	}
	return nil
}

// Emit implements Emitter. Failures are logged, never returned, so a Redis
// outage cannot break a live call.
func (p *RedisPublisher) Emit(event *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.Publish(ctx, event); err != nil {
		p.logger.Warn("event publish failed", "call_id", event.CallID, "type", event.Type, "error", err)
	}
}

// Latest returns the last event stored for callID, or nil if none.
func (p *RedisPublisher) Latest(ctx context.Context, callID string) ([]byte, error) {
	data, err := p.client.Get(ctx, p.key(callID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p.key(callID), err)
	}
	return data, nil
}

// Close closes the underlying client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
