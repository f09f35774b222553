package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"papertrade/internal/model"
)

func TestWebhookDeliversTradeAlert(t *testing.T) {
	var got struct {
		Event   string      `json:"event"`
		Message string      `json:"message"`
		Trade   model.Trade `json:"trade"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	trade := model.Trade{ID: "t1", AccountID: "acc1", Symbol: "AAPL", Side: model.SideBuy, Qty: 10, Price: 15000}
	n := NewWebhookNotifier(srv.URL)
	if err := n.Send(context.Background(), TradeAlert(trade)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got.Event != "trade.committed" {
		t.Errorf("event = %q", got.Event)
	}
	if got.Trade.ID != "t1" || got.Trade.Symbol != "AAPL" {
		t.Errorf("trade payload = %+v", got.Trade)
	}
	if got.Message == "" {
		t.Error("empty message")
	}
}

func TestWebhookRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	if err := n.Send(context.Background(), TradeAlert(model.Trade{ID: "t2"})); err == nil {
		t.Fatal("expected error on 502 response")
	}
}
