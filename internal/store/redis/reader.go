package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"papertrade/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr     string
	Password string
	DB       int
}

// Reader consumes the tick feed: pubsub subscription for live updates and
// latest-price keys for a warm start before the first tick lands.
type Reader struct {
	client *goredis.Client
}

// NewReader creates a new Redis Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
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

	log.Printf("[redis-reader] connected to %s", cfg.Addr)
	return &Reader{client: client}, nil
}

// Client returns the underlying Redis client for health checks.
func (r *Reader) Client() *goredis.Client { return r.client }

// LatestPrices fetches the last published price for each symbol in one
// MGET. Symbols with no stored price are omitted from the result.
func (r *Reader) LatestPrices(ctx context.Context, symbols []string) (map[string]int64, error) {
	if len(symbols) == 0 {
		return map[string]int64{}, nil
	}

	keys := make([]string, len(symbols))
	for i, sym := range symbols {
		keys[i] = LatestPriceKey(sym)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget latest prices: %w", err)
	}

	prices := make(map[string]int64, len(symbols))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // key missing or expired
		}
		var tick model.Tick
		if err := json.Unmarshal([]byte(raw), &tick); err != nil {
			log.Printf("[redis-reader] bad tick payload for %s: %v", symbols[i], err)
			continue
		}
		if tick.Price > 0 {
			prices[symbols[i]] = tick.Price
		}
	}
	return prices, nil
}

// SubscribeTicks subscribes to every tick channel and forwards parsed
// ticks to out until ctx is cancelled. Malformed payloads are logged and
// skipped; a full out channel drops the tick rather than blocking the
// subscription.
func (r *Reader) SubscribeTicks(ctx context.Context, out chan<- model.Tick) error {
	sub := r.client.PSubscribe(ctx, TickChannel("*"))
	defer sub.Close()

	// Wait for the subscription to be confirmed.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis subscription closed")
			}
			var tick model.Tick
			if err := json.Unmarshal([]byte(msg.Payload), &tick); err != nil {
				log.Printf("[redis-reader] bad tick on %s: %v", msg.Channel, err)
				continue
			}
			select {
			case out <- tick:
			default:
				log.Printf("[redis-reader] tick channel full, dropping %s", tick.Symbol)
			}
		}
	}
}

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}
