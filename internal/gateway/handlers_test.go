package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"papertrade/internal/auth"
	"papertrade/internal/ledger"
	"papertrade/internal/model"
	"papertrade/internal/pricefeed"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]model.User // by ID
}

func (m *memUsers) SaveUser(u model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *memUsers) SetTOTPSecret(userID, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("no user %s", userID)
	}
	u.TOTPSecret = secret
	m.users[userID] = u
	return nil
}

func (m *memUsers) UserByID(id string) (model.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *memUsers) UserByUsername(username string) (model.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, true, nil
		}
	}
	return model.User{}, false, nil
}

func (m *memUsers) UserByEmail(email string) (model.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, true, nil
		}
	}
	return model.User{}, false, nil
}

// memHistory records journal commits and serves them back as history.
type memHistory struct {
	mu     sync.Mutex
	trades []model.Trade
	news   []model.NewsItem
}

func (m *memHistory) Record(c ledger.Commit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, c.Trade)
}

func (m *memHistory) ListTrades(accountID string, limit int) ([]model.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Trade
	for _, t := range m.trades {
		if t.AccountID == accountID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecutedAt.After(out[j].ExecutedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memHistory) ListNews(limit int) ([]model.NewsItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.news, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *memHistory) {
	t.Helper()

	positions := ledger.NewPositionLedger()
	accounts := ledger.NewAccountLedger()
	history := &memHistory{news: []model.NewsItem{{ID: "n1", Title: "hello", Sentiment: model.SentimentNeutral}}}
	executor := ledger.NewExecutor(positions, accounts, history, nil, nil, nil)

	catalog := pricefeed.NewCatalog([]model.Instrument{
		{Symbol: "AAPL", Name: "Apple Inc.", CurrentPrice: 15000, PreviousClose: 14850},
		{Symbol: "TSLA", Name: "Tesla Inc.", CurrentPrice: 24840, PreviousClose: 25120},
	})

	srv := &Server{
		Auth:             auth.NewService(&memUsers{users: make(map[string]model.User)}, time.Hour, nil),
		Executor:         executor,
		Valuator:         ledger.NewValuator(positions, accounts),
		Accounts:         accounts,
		Positions:        positions,
		Catalog:          catalog,
		History:          history,
		Hub:              NewHub(nil),
		StartingCash:     10_000_000,
		DefaultSpreadBps: 0,
	}

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, history
}

func doJSON(t *testing.T, method, url, token string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	out.ReadFrom(resp.Body)
	return resp, out.Bytes()
}

func signupUser(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp, body := doJSON(t, "POST", ts.URL+"/api/v1/auth/signup", "", signupRequest{
		Username: "trader", Email: "trader@example.com", Password: "correct-horse",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup: %d %s", resp.StatusCode, body)
	}
	var auth authResponse
	if err := json.Unmarshal(body, &auth); err != nil {
		t.Fatal(err)
	}
	return auth.Token
}

func TestSignupLoginFlow(t *testing.T) {
	ts, _ := newTestServer(t)

	token := signupUser(t, ts)
	if token == "" {
		t.Fatal("signup issued no token")
	}

	resp, body := doJSON(t, "POST", ts.URL+"/api/v1/auth/login", "", loginRequest{
		Username: "trader", Password: "correct-horse",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: %d %s", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, "POST", ts.URL+"/api/v1/auth/login", "", loginRequest{
		Username: "trader", Password: "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad login: %d, want 401", resp.StatusCode)
	}

	resp, _ = doJSON(t, "POST", ts.URL+"/api/v1/auth/signup", "", signupRequest{
		Username: "trader", Email: "other@example.com", Password: "correct-horse",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate signup: %d, want 409", resp.StatusCode)
	}
}

func TestStocksEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := doJSON(t, "GET", ts.URL+"/api/v1/stocks", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stocks: %d", resp.StatusCode)
	}
	var stocks []stockOut
	if err := json.Unmarshal(body, &stocks); err != nil {
		t.Fatal(err)
	}
	if len(stocks) != 2 || stocks[0].Symbol != "AAPL" {
		t.Fatalf("stocks: %+v", stocks)
	}
	if stocks[0].CurrentPrice != 150.00 || stocks[0].Change != 1.50 {
		t.Errorf("AAPL dollars: price=%v change=%v", stocks[0].CurrentPrice, stocks[0].Change)
	}
}

func TestTradeFlow(t *testing.T) {
	ts, history := newTestServer(t)
	token := signupUser(t, ts)

	resp, body := doJSON(t, "POST", ts.URL+"/api/v1/trade", token, tradeRequest{
		Symbol: "AAPL", Type: "buy", Quantity: 100,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("buy: %d %s", resp.StatusCode, body)
	}
	var trade tradeOut
	if err := json.Unmarshal(body, &trade); err != nil {
		t.Fatal(err)
	}
	if trade.Type != "buy" || trade.Quantity != 100 || trade.Price != 150.00 {
		t.Errorf("trade: %+v", trade)
	}

	resp, body = doJSON(t, "GET", ts.URL+"/api/v1/positions", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("positions: %d", resp.StatusCode)
	}
	var positions []positionOut
	json.Unmarshal(body, &positions)
	if len(positions) != 1 || positions[0].Quantity != 100 || positions[0].AveragePrice != 150.00 {
		t.Fatalf("positions: %+v", positions)
	}

	resp, body = doJSON(t, "GET", ts.URL+"/api/v1/valuation", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("valuation: %d", resp.StatusCode)
	}
	var val valuationOut
	json.Unmarshal(body, &val)
	if val.CashBalance != 85_000.00 {
		t.Errorf("cash=%v, want 85000", val.CashBalance)
	}
	if val.AccountValue != 100_000.00 {
		t.Errorf("account value=%v, want 100000 at flat price", val.AccountValue)
	}

	resp, body = doJSON(t, "GET", ts.URL+"/api/v1/trades", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("trades: %d", resp.StatusCode)
	}
	var trades []tradeOut
	json.Unmarshal(body, &trades)
	if len(trades) != 1 || trades[0].ID != trade.ID {
		t.Errorf("history: %+v", trades)
	}
	if len(history.trades) != 1 {
		t.Errorf("journal saw %d commits", len(history.trades))
	}
}

func TestTradeRejections(t *testing.T) {
	ts, _ := newTestServer(t)
	token := signupUser(t, ts)

	cases := []struct {
		name string
		req  tradeRequest
		want int
	}{
		{"unknown symbol", tradeRequest{Symbol: "GHOST", Type: "buy", Quantity: 1}, http.StatusBadRequest},
		{"bad side", tradeRequest{Symbol: "AAPL", Type: "hold", Quantity: 1}, http.StatusBadRequest},
		{"zero qty", tradeRequest{Symbol: "AAPL", Type: "buy", Quantity: 0}, http.StatusBadRequest},
		{"cannot afford", tradeRequest{Symbol: "AAPL", Type: "buy", Quantity: 1_000_000}, http.StatusUnprocessableEntity},
		{"nothing to sell", tradeRequest{Symbol: "AAPL", Type: "sell", Quantity: 1}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := doJSON(t, "POST", ts.URL+"/api/v1/trade", token, tc.req)
			if resp.StatusCode != tc.want {
				t.Errorf("got %d, want %d: %s", resp.StatusCode, tc.want, body)
			}
		})
	}

	// Rejections must not have moved cash.
	_, body := doJSON(t, "GET", ts.URL+"/api/v1/valuation", token, nil)
	var val valuationOut
	json.Unmarshal(body, &val)
	if val.CashBalance != 100_000.00 {
		t.Errorf("cash=%v after rejections, want 100000", val.CashBalance)
	}
}

func TestAuthRequired(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, path := range []string{"/api/v1/positions", "/api/v1/valuation", "/api/v1/trades"} {
		resp, _ := doJSON(t, "GET", ts.URL+path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s without token: %d, want 401", path, resp.StatusCode)
		}
		resp, _ = doJSON(t, "GET", ts.URL+path, "bogus-token", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s with bogus token: %d, want 401", path, resp.StatusCode)
		}
	}

	resp, _ := doJSON(t, "POST", ts.URL+"/api/v1/trade", "", tradeRequest{Symbol: "AAPL", Type: "buy", Quantity: 1})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("trade without token: %d, want 401", resp.StatusCode)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	ts, _ := newTestServer(t)
	token := signupUser(t, ts)

	resp, _ := doJSON(t, "POST", ts.URL+"/api/v1/auth/logout", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, "GET", ts.URL+"/api/v1/positions", token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("revoked token still works: %d", resp.StatusCode)
	}
}

func TestNewsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := doJSON(t, "GET", ts.URL+"/api/v1/news", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("news: %d", resp.StatusCode)
	}
	var items []model.NewsItem
	if err := json.Unmarshal(body, &items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].ID != "n1" {
		t.Errorf("news: %+v", items)
	}
}

func TestMethodAndCORS(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, _ := doJSON(t, "GET", ts.URL+"/api/v1/trade", "", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET trade: %d, want 405", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/trade", nil)
	preflight, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	preflight.Body.Close()
	if preflight.StatusCode != http.StatusOK {
		t.Errorf("preflight: %d", preflight.StatusCode)
	}
	if preflight.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header on preflight")
	}
}
