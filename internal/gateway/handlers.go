package gateway

import (
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"papertrade/internal/auth"
	"papertrade/internal/ledger"
	"papertrade/internal/logger"
	"papertrade/internal/metrics"
	"papertrade/internal/model"
	"papertrade/internal/pricefeed"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// HistoryStore serves trade history and news from durable storage. The
// sqlite reader satisfies it.
type HistoryStore interface {
	ListTrades(accountID string, limit int) ([]model.Trade, error)
	ListNews(limit int) ([]model.NewsItem, error)
}

// AccountStore persists newly opened accounts. The sqlite writer
// satisfies it.
type AccountStore interface {
	SaveAccount(model.Account) error
}

// Server wires the REST and WebSocket surface over the trading core.
type Server struct {
	Auth      *auth.Service
	Executor  *ledger.Executor
	Valuator  *ledger.Valuator
	Accounts  *ledger.AccountLedger
	Positions *ledger.PositionLedger
	Catalog   *pricefeed.Catalog
	History   HistoryStore
	Store     AccountStore
	Hub       *Hub
	Health    *metrics.HealthStatus

	StartingCash      int64 // cents, for new accounts
	DefaultSpreadBps  int64
	DefaultCommission int64 // cents

	Log *slog.Logger
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	if s.Log == nil {
		s.Log = slog.Default()
	}

	mux.HandleFunc("/api/v1/auth/signup", s.public("POST", s.handleSignup))
	mux.HandleFunc("/api/v1/auth/login", s.public("POST", s.handleLogin))
	mux.HandleFunc("/api/v1/auth/logout", s.authed("POST", s.handleLogout))
	mux.HandleFunc("/api/v1/auth/totp", s.authed("POST", s.handleEnrollTOTP))

	mux.HandleFunc("/api/v1/stocks", s.public("GET", s.handleStocks))
	mux.HandleFunc("/api/v1/news", s.public("GET", s.handleNews))

	mux.HandleFunc("/api/v1/trade", s.authed("POST", s.handleTrade))
	mux.HandleFunc("/api/v1/positions", s.authed("GET", s.handlePositions))
	mux.HandleFunc("/api/v1/valuation", s.authed("GET", s.handleValuation))
	mux.HandleFunc("/api/v1/trades", s.authed("GET", s.handleTrades))

	mux.HandleFunc("/api/v1/health", s.public("GET", s.handleHealth))
	mux.HandleFunc("/api/v1/stats", s.public("GET", s.handleStats))
	mux.HandleFunc("/ws", s.handleWS)
}

// public wraps a handler with CORS and a method check.
func (s *Server) public(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != method {
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
			return
		}
		h(w, r)
	}
}

// authed additionally resolves the bearer token and threads the account
// ID plus a trace ID through the request context.
func (s *Server) authed(method string, h func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return s.public(method, func(w http.ResponseWriter, r *http.Request) {
		accountID, err := s.Auth.Resolve(bearerToken(r))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		ctx := logger.WithTraceID(r.Context(), logger.GenerateTraceID(accountID, time.Now()))
		h(w, r.WithContext(ctx), accountID)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	// WS clients cannot set headers from the browser; allow query param.
	return r.URL.Query().Get("token")
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if req.Email == "" {
		req.Email = req.Username + "@papertrade.local"
	}

	user, err := s.Auth.Signup(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}

	// The trading account is keyed by user ID and funded once.
	acct := s.Accounts.Open(user.ID, s.StartingCash)
	if s.Store != nil {
		if err := s.Store.SaveAccount(acct); err != nil {
			s.Log.Error("persist new account", slog.String("account", acct.ID), slog.String("err", err.Error()))
		}
	}

	token, _, err := s.Auth.Login(r.Context(), user.Username, req.Password, "")
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{
		Token: token,
		User:  userOut{ID: user.ID, Username: user.Username, Email: user.Email},
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}

	token, user, err := s.Auth.Login(r.Context(), req.Username, req.Password, req.TOTPCode)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}

	// Accounts restored from disk already exist; first login after a
	// wipe re-opens with starting cash.
	s.Accounts.Open(user.ID, s.StartingCash)

	writeJSON(w, http.StatusOK, authResponse{
		Token: token,
		User:  userOut{ID: user.ID, Username: user.Username, Email: user.Email},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, accountID string) {
	s.Auth.Logout(bearerToken(r))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEnrollTOTP(w http.ResponseWriter, r *http.Request, accountID string) {
	url, err := s.Auth.EnrollTOTP(r.Context(), accountID)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"otpauth_url": url})
}

func (s *Server) handleStocks(w http.ResponseWriter, r *http.Request) {
	instruments := s.Catalog.List()
	out := make([]stockOut, 0, len(instruments))
	for _, in := range instruments {
		out = append(out, newStockOut(in))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	items, err := s.History.ListNews(queryLimit(r, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if items == nil {
		items = []model.NewsItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request, accountID string) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}

	side, err := model.ParseSide(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %s", ledger.ErrInvalidInput, err))
		return
	}

	refPrice, ok := s.Catalog.Price(req.Symbol)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: unknown symbol %q", ledger.ErrInvalidInput, req.Symbol))
		return
	}

	spreadBps := s.DefaultSpreadBps
	if req.SpreadPercent > 0 {
		spreadBps = model.Bps(req.SpreadPercent)
	}
	commission := s.DefaultCommission
	if req.Commission > 0 {
		commission = model.Cents(req.Commission)
	}

	order := model.Order{
		Symbol:     req.Symbol,
		Side:       side,
		Qty:        req.Quantity,
		Commission: commission,
		SpreadBps:  spreadBps,
	}
	trade, err := s.Executor.Execute(r.Context(), accountID, order, refPrice)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}

	if s.Hub != nil {
		s.Hub.BroadcastTrade(trade)
	}
	writeJSON(w, http.StatusOK, newTradeOut(trade))
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request, accountID string) {
	positions := s.Positions.Positions(accountID)
	out := make([]positionOut, 0, len(positions))
	for _, p := range positions {
		out = append(out, positionOut{
			Symbol:       p.Symbol,
			Quantity:     p.Qty,
			AveragePrice: model.Dollars(p.AvgCost),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleValuation(w http.ResponseWriter, r *http.Request, accountID string) {
	val, err := s.Valuator.Valuate(accountID, s.Catalog.Prices())
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, newValuationOut(val))
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request, accountID string) {
	trades, err := s.History.ListTrades(accountID, queryLimit(r, 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]tradeOut, 0, len(trades))
	for _, t := range trades {
		out = append(out, newTradeOut(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.Health != nil {
		s.Health.ServeHTTP(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"ws_clients": s.Hub.ClientCount(),
		"ts":         time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// handleStats exposes broadcast throughput and fan-out latency for the
// WebSocket hub.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	p50, p95, p99 := s.Hub.Latency.Percentiles()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ws_clients":      s.Hub.ClientCount(),
		"broadcast_seq":   s.Hub.Seq(),
		"latency_samples": s.Hub.Latency.Count(),
		"latency_p50_ms":  p50,
		"latency_p95_ms":  p95,
		"latency_p99_ms":  p99,
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	// Token optional: anonymous clients get ticks only.
	var accountID string
	if token := bearerToken(r); token != "" {
		id, err := s.Auth.Resolve(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		accountID = id
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade error: %v", err)
		return
	}
	s.Hub.AddClient(NewClient(s.Hub, conn, accountID))
}

func queryLimit(r *http.Request, fallback int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	kind := ledger.ErrorKind(err)
	if kind == "internal" && status < http.StatusInternalServerError {
		kind = ""
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error(), Kind: kind})
}
