// Command tradeserver runs the paper-trading API: REST order entry,
// WebSocket price and trade streaming, the in-memory ledgers with a
// SQLite write-behind journal, and the Redis tick subscription. When
// Redis is unreachable it falls back to an in-process price walker so
// the simulator stays usable.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"papertrade/config"
	"papertrade/internal/auth"
	"papertrade/internal/gateway"
	"papertrade/internal/ledger"
	"papertrade/internal/logger"
	"papertrade/internal/metrics"
	"papertrade/internal/model"
	"papertrade/internal/notification"
	"papertrade/internal/pricefeed"
	redisstore "papertrade/internal/store/redis"
	sqlitestore "papertrade/internal/store/sqlite"
)

// userStore combines the SQLite writer and reader into the auth store.
type userStore struct {
	*sqlitestore.Writer
	*sqlitestore.Reader
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	godotenv.Load()

	cfg := config.Load()
	appLog := logger.Init("tradeserver", logger.ParseLevel(cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	instruments, news, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("[tradeserver] load catalog: %v", err)
	}
	catalog := pricefeed.NewCatalog(instruments)
	log.Printf("[tradeserver] catalog loaded: %d instruments", len(instruments))

	m := metrics.NewMetrics()
	health := metrics.NewHealthStatus()

	// SQLite: single writer connection, shared reader.
	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		log.Fatalf("[tradeserver] create data dir: %v", err)
	}
	writer, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[tradeserver] sqlite open: %v", err)
	}
	defer writer.Close()
	reader := sqlitestore.FromWriter(writer)
	health.SetSQLiteOK(true)

	if err := writer.SeedNews(news); err != nil {
		log.Printf("[tradeserver] seed news: %v", err)
	}

	// Rebuild in-memory ledgers from the last persisted snapshots.
	accounts := ledger.NewAccountLedger()
	positions := ledger.NewPositionLedger()
	restoreState(reader, accounts, positions)

	journal := sqlitestore.NewJournal(m)
	writerDone := make(chan struct{})
	go func() {
		writer.Run(ctx, journal.C(), m)
		close(writerDone)
	}()

	var notifier notification.Notifier
	if cfg.WebhookURL != "" {
		notifier = notification.NewWebhookNotifier(cfg.WebhookURL)
		log.Printf("[tradeserver] webhook alerts enabled")
	} else {
		notifier = notification.NewLogNotifier()
	}

	executor := ledger.NewExecutor(positions, accounts, journal, notifier, m, appLog)
	valuator := ledger.NewValuator(positions, accounts)
	authSvc := auth.NewService(userStore{writer, reader}, cfg.SessionTTL, appLog)

	hub := gateway.NewHub(m)

	// Tick source: live Redis feed, or a local walker when Redis is down.
	tickCh := make(chan model.Tick, 256)
	startFeed(ctx, cfg, catalog, m, health, tickCh)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case tick := <-tickCh:
				if !catalog.SetPrice(tick.Symbol, tick.Price) {
					continue
				}
				health.SetLastTickTime(tick.TS)
				hub.BroadcastTick(tick)
			}
		}
	}()

	srv := &gateway.Server{
		Auth:      authSvc,
		Executor:  executor,
		Valuator:  valuator,
		Accounts:  accounts,
		Positions: positions,
		Catalog:   catalog,
		History:   reader,
		Store:     writer,
		Hub:       hub,
		Health:    health,

		StartingCash:      cfg.StartingCash,
		DefaultSpreadBps:  cfg.SpreadBps,
		DefaultCommission: cfg.CommissionCents,

		Log: appLog,
	}

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		log.Printf("[tradeserver] listening on %s", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[tradeserver] http server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("[tradeserver] shutting down")
	cancel()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	httpSrv.Shutdown(shutCtx)
	metricsSrv.Stop(shutCtx)

	// Close the journal and wait for the writer to flush its last batch.
	journal.Close()
	<-writerDone
	log.Printf("[tradeserver] stopped")
}

// restoreState loads persisted account and position snapshots into the
// in-memory ledgers.
func restoreState(reader *sqlitestore.Reader, accounts *ledger.AccountLedger, positions *ledger.PositionLedger) {
	accts, err := reader.LoadAccounts()
	if err != nil {
		log.Fatalf("[tradeserver] load accounts: %v", err)
	}
	for _, a := range accts {
		accounts.Restore(a)
	}

	poss, err := reader.LoadPositions()
	if err != nil {
		log.Fatalf("[tradeserver] load positions: %v", err)
	}
	for _, p := range poss {
		positions.Restore(p)
	}
	log.Printf("[tradeserver] restored %d accounts, %d positions", len(accts), len(poss))
}

// startFeed connects the tick source. With Redis available it warms the
// catalog from the latest-price keys, subscribes to the tick channels and
// keeps the health probe updated. Without Redis it runs a local random
// walker so prices still move.
func startFeed(ctx context.Context, cfg *config.Config, catalog *pricefeed.Catalog, m *metrics.Metrics, health *metrics.HealthStatus, tickCh chan model.Tick) {
	rr, err := redisstore.NewReader(redisstore.ReaderConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Printf("[tradeserver] redis unavailable (%v), using local price walker", err)
		walker := pricefeed.NewWalker(catalog, cfg.FeedInterval, cfg.FeedVolatility, m, nil)
		go walker.Run(ctx, tickCh)
		return
	}

	if prices, err := rr.LatestPrices(ctx, catalog.Symbols()); err == nil {
		for sym, price := range prices {
			catalog.SetPrice(sym, price)
		}
		log.Printf("[tradeserver] warm start: %d prices from redis", len(prices))
	}

	health.CheckRedis(ctx, rr.Client())
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				health.CheckRedis(ctx, rr.Client())
			}
		}
	}()

	// Resubscribe when the subscription drops.
	go func() {
		defer rr.Close()
		for {
			err := rr.SubscribeTicks(ctx, tickCh)
			if ctx.Err() != nil {
				return
			}
			log.Printf("[tradeserver] tick subscription lost: %v, retrying", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
		}
	}()
}
