package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"papertrade/internal/metrics"
	"papertrade/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const defaultLatestTTL = 30 * time.Minute

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer publishes reference-price ticks to Redis: a latest-price key per
// symbol plus a pubsub fan-out channel. All writes go through a circuit
// breaker so a dead Redis degrades the feed instead of stalling it.
type Writer struct {
	client  *goredis.Client
	breaker *CircuitBreaker
	metrics *metrics.Metrics // optional
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig, m *metrics.Metrics) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	breaker := NewCircuitBreaker(5, 10*time.Second)
	breaker.OnStateChange = func(from, to State) {
		log.Printf("[redis] circuit breaker %s -> %s", from, to)
		if m != nil {
			m.RedisCircuitBreakerState.Set(float64(to))
			if to == StateOpen {
				m.RedisCircuitBreakerTrips.Inc()
			}
		}
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client, breaker: breaker, metrics: m}, nil
}

// Run reads ticks from tickCh and publishes them.
// Blocks until ctx is cancelled or tickCh is closed.
func (w *Writer) Run(ctx context.Context, tickCh <-chan model.Tick) {
	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-tickCh:
			if !ok {
				return
			}
			w.PublishTick(ctx, tick)
		}
	}
}

// TickChannel returns the pubsub channel name for a symbol.
func TickChannel(symbol string) string {
	return "pub:tick:" + symbol
}

// LatestPriceKey returns the latest-price key for a symbol.
func LatestPriceKey(symbol string) string {
	return "price:latest:" + symbol
}

// PublishTick writes one tick: SET latest price + PUBLISH, pipelined into
// a single roundtrip. Failures count against the circuit breaker; while
// the breaker is open ticks are dropped silently.
func (w *Writer) PublishTick(ctx context.Context, tick model.Tick) {
	payload, err := json.Marshal(tick)
	if err != nil {
		log.Printf("[redis] marshal tick %s: %v", tick.Symbol, err)
		return
	}

	start := time.Now()
	err = w.breaker.Execute(func() error {
		pipe := w.client.Pipeline()
		pipe.Set(ctx, LatestPriceKey(tick.Symbol), string(payload), defaultLatestTTL)
		pipe.Publish(ctx, TickChannel(tick.Symbol), string(payload))
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		if err != ErrCircuitOpen {
			log.Printf("[redis] publish tick %s: %v", tick.Symbol, err)
		}
		return
	}
	if w.metrics != nil {
		w.metrics.RedisPublishDur.Observe(time.Since(start).Seconds())
	}
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
