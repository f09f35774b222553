package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"papertrade/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to SQLite for boot-time restore and
// history queries.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	return &Reader{db: db}, nil
}

// FromWriter shares the writer's connection instead of opening a second
// one; with a single-connection pool this keeps reads and writes ordered.
func FromWriter(w *Writer) *Reader {
	return &Reader{db: w.DB()}
}

// LoadAccounts returns every persisted account for boot-time restore.
func (r *Reader) LoadAccounts() ([]model.Account, error) {
	rows, err := r.db.Query(`SELECT id, cash_balance, realized_pnl FROM accounts`)
	if err != nil {
		return nil, fmt.Errorf("sqlite load accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		var a model.Account
		if err := rows.Scan(&a.ID, &a.CashBalance, &a.RealizedPnL); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// LoadPositions returns every open position for boot-time restore.
func (r *Reader) LoadPositions() ([]model.Position, error) {
	rows, err := r.db.Query(`SELECT account_id, symbol, qty, avg_cost FROM positions WHERE qty > 0`)
	if err != nil {
		return nil, fmt.Errorf("sqlite load positions: %w", err)
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var p model.Position
		if err := rows.Scan(&p.AccountID, &p.Symbol, &p.Qty, &p.AvgCost); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// ListTrades returns the account's trade history, newest first.
func (r *Reader) ListTrades(accountID string, limit int) ([]model.Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(`
		SELECT id, account_id, symbol, side, qty, price, commission, realized_pnl, executed_at
		FROM trades WHERE account_id = ?
		ORDER BY executed_at DESC, id DESC
		LIMIT ?
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite list trades: %w", err)
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var (
			t    model.Trade
			side string
			ts   int64
		)
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Symbol, &side, &t.Qty, &t.Price, &t.Commission, &t.RealizedPnL, &ts); err != nil {
			return nil, err
		}
		t.Side = model.Side(side)
		t.ExecutedAt = time.Unix(ts, 0).UTC()
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ListNews returns news items, newest first.
func (r *Reader) ListNews(limit int) ([]model.NewsItem, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(`
		SELECT id, title, summary, sentiment, source, published_at, related_symbols
		FROM news ORDER BY published_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite list news: %w", err)
	}
	defer rows.Close()

	var items []model.NewsItem
	for rows.Next() {
		var (
			n       model.NewsItem
			ts      int64
			symbols string
		)
		if err := rows.Scan(&n.ID, &n.Title, &n.Summary, &n.Sentiment, &n.Source, &ts, &symbols); err != nil {
			return nil, err
		}
		n.PublishedAt = time.Unix(ts, 0).UTC()
		if err := json.Unmarshal([]byte(symbols), &n.RelatedSymbols); err != nil {
			return nil, fmt.Errorf("sqlite news %s: bad related_symbols: %w", n.ID, err)
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

// UserByUsername looks up a user for login. Returns (zero, false, nil)
// when no such user exists.
func (r *Reader) UserByUsername(username string) (model.User, bool, error) {
	return r.userWhere(`username = ?`, username)
}

// UserByEmail reports whether the email is already registered.
func (r *Reader) UserByEmail(email string) (model.User, bool, error) {
	return r.userWhere(`email = ?`, email)
}

// UserByID loads a user by primary key.
func (r *Reader) UserByID(id string) (model.User, bool, error) {
	return r.userWhere(`id = ?`, id)
}

func (r *Reader) userWhere(cond string, arg any) (model.User, bool, error) {
	var (
		u  model.User
		ts int64
	)
	err := r.db.QueryRow(
		`SELECT id, username, email, password_hash, totp_secret, created_at FROM users WHERE `+cond,
		arg,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.TOTPSecret, &ts)
	if err == sql.ErrNoRows {
		return model.User{}, false, nil
	}
	if err != nil {
		return model.User{}, false, fmt.Errorf("sqlite load user: %w", err)
	}
	u.CreatedAt = time.Unix(ts, 0).UTC()
	return u, true, nil
}

// Close closes the database.
func (r *Reader) Close() error {
	return r.db.Close()
}
