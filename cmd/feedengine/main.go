// Command feedengine generates the synthetic reference-price feed: a
// bounded random walk over the instrument catalog, published to Redis as
// latest-price keys plus a pubsub channel per symbol.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"papertrade/config"
	"papertrade/internal/logger"
	"papertrade/internal/metrics"
	"papertrade/internal/model"
	"papertrade/internal/pricefeed"
	redisstore "papertrade/internal/store/redis"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	godotenv.Load()

	cfg := config.Load()
	appLog := logger.Init("feedengine", logger.ParseLevel(cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	instruments, _, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("[feedengine] load catalog: %v", err)
	}
	catalog := pricefeed.NewCatalog(instruments)
	log.Printf("[feedengine] catalog loaded: %d instruments", len(instruments))

	m := metrics.NewMetrics()
	health := metrics.NewHealthStatus()

	writer, err := redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}, m)
	if err != nil {
		log.Fatalf("[feedengine] redis connect: %v", err)
	}
	defer writer.Close()

	// Resume the walk from the last published prices when possible.
	if reader, err := redisstore.NewReader(redisstore.ReaderConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}); err == nil {
		if prices, err := reader.LatestPrices(ctx, catalog.Symbols()); err == nil && len(prices) > 0 {
			for sym, price := range prices {
				catalog.SetPrice(sym, price)
			}
			log.Printf("[feedengine] resumed %d prices from redis", len(prices))
		}
		reader.Close()
	}

	health.CheckRedis(ctx, writer.Client())
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				health.CheckRedis(ctx, writer.Client())
			}
		}
	}()

	tickCh := make(chan model.Tick, 256)
	walker := pricefeed.NewWalker(catalog, cfg.FeedInterval, cfg.FeedVolatility, m, appLog)
	go walker.Run(ctx, tickCh)
	go writer.Run(ctx, tickCh)

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	log.Printf("[feedengine] publishing ticks every %v at ±%d bps", cfg.FeedInterval, cfg.FeedVolatility)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("[feedengine] shutting down")
	cancel()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	metricsSrv.Stop(shutCtx)
	log.Printf("[feedengine] stopped")
}
