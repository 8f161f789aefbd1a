package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/jwalitptl/rch-registry/pkg/messaging"
)

// ErrBrokerClosed is returned by Publish and Subscribe after Close.
var ErrBrokerClosed = errors.New("redis broker closed")

type RedisBroker struct {
	client    *redis.Client
	cb        *gobreaker.CircuitBreaker
	logger    zerolog.Logger
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

var _ messaging.Broker = (*RedisBroker)(nil)

type Config struct {
	URL          string
	MaxRetries   int
	RetryBackoff time.Duration
	PoolSize     int
	MinIdleConns int

	// Consecutive publish failures before the breaker opens
	FailureThreshold uint32
	// How long the breaker stays open before letting a probe through
	OpenTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 5 * time.Second
	}
	return c
}

func NewRedisBroker(ctx context.Context, config Config, logger zerolog.Logger) (*RedisBroker, error) {
	config = config.withDefaults()

	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pooling
	if config.MaxRetries != 0 {
		opts.MaxRetries = config.MaxRetries
	}
	if config.RetryBackoff > 0 {
		opts.MinRetryBackoff = config.RetryBackoff
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	opts.MinIdleConns = config.MinIdleConns

	log := logger.With().Str("component", "redis-broker").Logger()
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-broker",
		MaxRequests: 1,
		Timeout:     config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisBroker{
		client: client,
		cb:     cb,
		logger: log,
		closed: make(chan struct{}),
	}, nil
}

// Publish sends message on channel. While the breaker is open it fails fast
// with gobreaker.ErrOpenState instead of touching the connection.
func (b *RedisBroker) Publish(ctx context.Context, channel string, message []byte) error {
	select {
	case <-b.closed:
		return ErrBrokerClosed
	default:
	}

	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.client.Publish(ctx, channel, message).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a channel of raw payloads. The channel is closed when ctx
// is cancelled or the broker is closed.
func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	select {
	case <-b.closed:
		return nil, ErrBrokerClosed
	default:
	}

	pubsub := b.client.Subscribe(ctx, channel)
	// Wait for the confirmation so nothing published after Subscribe returns
	// is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	msgChan := make(chan []byte, 100)
	src := pubsub.Channel()

	go func() {
		defer func() {
			pubsub.Close()
			close(msgChan)
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case <-b.closed:
				return
			case msg, ok := <-src:
				if !ok {
					return
				}
				select {
				case msgChan <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				case <-b.closed:
					return
				}
			}
		}
	}()

	return msgChan, nil
}

// State reports the publish circuit breaker state
func (b *RedisBroker) State() gobreaker.State {
	return b.cb.State()
}

// Close is safe to call more than once and from several goroutines. Only the
// first call closes the client; later calls return its result.
func (b *RedisBroker) Close() error {
	b.closeOnce.Do(func() {
		close(b.closed)
		b.closeErr = b.client.Close()
	})
	return b.closeErr
}
