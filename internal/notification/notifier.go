// Package notification delivers trade alerts to external channels
// (webhooks, logs) when the executor commits a trade.
package notification

import (
	"context"
	"fmt"
	"log"

	"papertrade/internal/model"
)

// Alert is one outbound notification. Trade alerts carry the committed
// trade; non-trade alerts leave it zero.
type Alert struct {
	Event   string      `json:"event"`
	Message string      `json:"message"`
	Trade   model.Trade `json:"trade,omitempty"`
}

// Notifier delivers alerts. Implementations must be safe for concurrent
// use; the executor calls Send after every commit.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// TradeAlert builds the standard alert for a committed trade.
func TradeAlert(t model.Trade) Alert {
	return Alert{
		Event: "trade.committed",
		Message: fmt.Sprintf("%s %d %s @ $%.2f (commission $%.2f) account=%s",
			t.Side, t.Qty, t.Symbol, model.Dollars(t.Price), model.Dollars(t.Commission), t.AccountID),
		Trade: t,
	}
}

// LogNotifier writes alerts to the process log. Used when no webhook is
// configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] %s: %s", alert.Event, alert.Message)
	return nil
}
