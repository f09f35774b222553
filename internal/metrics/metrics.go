// Package metrics exposes Prometheus metrics and a small health server for
// the paper-trading services.
package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trading services.
type Metrics struct {
	TradesTotal    *prometheus.CounterVec // labels: side
	TradeRejects   *prometheus.CounterVec // labels: reason
	ExecuteDur     prometheus.Histogram
	TradeNotional  prometheus.Counter // total traded value in cents

	FeedTicksTotal  prometheus.Counter
	RedisPublishDur prometheus.Histogram
	SQLiteCommitDur prometheus.Histogram
	JournalDrops    prometheus.Counter

	WSClients prometheus.Gauge

	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrade_trades_total",
			Help: "Committed trades by side",
		}, []string{"side"}),
		TradeRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrade_trade_rejects_total",
			Help: "Rejected orders by error kind",
		}, []string{"reason"}),
		ExecuteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "papertrade_execute_duration_seconds",
			Help:    "Trade executor latency per order",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
		}),
		TradeNotional: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrade_trade_notional_cents_total",
			Help: "Total filled value across all trades, in cents",
		}),
		FeedTicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrade_feed_ticks_total",
			Help: "Reference price updates generated by the feed engine",
		}),
		RedisPublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "papertrade_redis_publish_duration_seconds",
			Help:    "Redis tick publish latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "papertrade_sqlite_commit_duration_seconds",
			Help:    "SQLite journal batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		JournalDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrade_journal_drops_total",
			Help: "Trade commits dropped because the journal channel was full",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrade_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrade_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrade_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
	}

	prometheus.MustRegister(
		m.TradesTotal,
		m.TradeRejects,
		m.ExecuteDur,
		m.TradeNotional,
		m.FeedTicksTotal,
		m.RedisPublishDur,
		m.SQLiteCommitDur,
		m.JournalDrops,
		m.WSClients,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
	)

	return m
}

// HealthStatus represents service health for the /healthz probe.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	LastTickTime   time.Time `json:"last_tick_time"`

	RedisLatencyMs float64   `json:"redis_latency_ms"`
	LastCheckAt    time.Time `json:"last_check_at"`
	StartedAt      time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// ServeHTTP writes the current health status as JSON.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	status := struct {
		RedisConnected bool      `json:"redis_connected"`
		SQLiteOK       bool      `json:"sqlite_ok"`
		LastTickTime   time.Time `json:"last_tick_time"`
		RedisLatencyMs float64   `json:"redis_latency_ms"`
		LastCheckAt    time.Time `json:"last_check_at"`
		StartedAt      time.Time `json:"started_at"`
		UptimeSec      int64     `json:"uptime_sec"`
	}{
		RedisConnected: h.RedisConnected,
		SQLiteOK:       h.SQLiteOK,
		LastTickTime:   h.LastTickTime,
		RedisLatencyMs: h.RedisLatencyMs,
		LastCheckAt:    h.LastCheckAt,
		StartedAt:      h.StartedAt,
		UptimeSec:      int64(time.Since(h.StartedAt).Seconds()),
	}
	h.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
