package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"papertrade/internal/ledger"
	"papertrade/internal/metrics"
	"papertrade/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
	journalBuffer     = 1024
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/papertrade.db"
}

// Writer is a single-goroutine SQLite writer with transaction batching.
// Trade commits arrive through the Journal; user and news writes are
// direct and infrequent.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			totp_secret   TEXT NOT NULL DEFAULT '',
			created_at    INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS accounts (
			id           TEXT PRIMARY KEY,
			cash_balance INTEGER NOT NULL,
			realized_pnl INTEGER NOT NULL,
			updated_at   INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS positions (
			account_id TEXT    NOT NULL,
			symbol     TEXT    NOT NULL,
			qty        INTEGER NOT NULL,
			avg_cost   INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (account_id, symbol)
		);

		CREATE TABLE IF NOT EXISTS trades (
			id           TEXT PRIMARY KEY,
			account_id   TEXT    NOT NULL,
			symbol       TEXT    NOT NULL,
			side         TEXT    NOT NULL,
			qty          INTEGER NOT NULL,
			price        INTEGER NOT NULL,
			commission   INTEGER NOT NULL,
			realized_pnl INTEGER NOT NULL,
			executed_at  INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trades_account
			ON trades (account_id, executed_at DESC);

		CREATE TABLE IF NOT EXISTS news (
			id              TEXT PRIMARY KEY,
			title           TEXT NOT NULL,
			summary         TEXT NOT NULL,
			sentiment       TEXT NOT NULL,
			source          TEXT NOT NULL,
			published_at    INTEGER NOT NULL,
			related_symbols TEXT NOT NULL
		);
	`)
	return err
}

// Run reads trade commits from commitCh and persists them in batched
// transactions. Flushes every batchSize commits OR every flushDelay,
// whichever first. Blocks until ctx is cancelled or commitCh is closed.
func (w *Writer) Run(ctx context.Context, commitCh <-chan ledger.Commit, m *metrics.Metrics) {
	batch := make([]ledger.Commit, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertBatch(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else {
			if m != nil {
				m.SQLiteCommitDur.Observe(time.Since(start).Seconds())
			}
			log.Printf("[sqlite] committed %d trades in %v", len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case commit, ok := <-commitCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, commit)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertBatch persists a batch of commits in a single transaction: each
// trade row plus the account and position snapshots taken at commit time.
// Later commits for the same account overwrite earlier snapshots within
// the batch, which is exactly the final state.
func (w *Writer) insertBatch(commits []ledger.Commit) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	tradeStmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO trades (id, account_id, symbol, side, qty, price, commission, realized_pnl, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer tradeStmt.Close()

	acctStmt, err := tx.Prepare(`
		INSERT INTO accounts (id, cash_balance, realized_pnl, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			cash_balance = excluded.cash_balance,
			realized_pnl = excluded.realized_pnl,
			updated_at   = excluded.updated_at
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer acctStmt.Close()

	posStmt, err := tx.Prepare(`
		INSERT INTO positions (account_id, symbol, qty, avg_cost, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_id, symbol) DO UPDATE SET
			qty        = excluded.qty,
			avg_cost   = excluded.avg_cost,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer posStmt.Close()

	for _, c := range commits {
		ts := c.Trade.ExecutedAt.Unix()
		if _, err := tradeStmt.Exec(c.Trade.ID, c.Trade.AccountID, c.Trade.Symbol, string(c.Trade.Side),
			c.Trade.Qty, c.Trade.Price, c.Trade.Commission, c.Trade.RealizedPnL, ts); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := acctStmt.Exec(c.Account.ID, c.Account.CashBalance, c.Account.RealizedPnL, ts); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := posStmt.Exec(c.Position.AccountID, c.Position.Symbol, c.Position.Qty, c.Position.AvgCost, ts); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// SaveAccount persists an account row outside the journal path, used when
// an account is first opened.
func (w *Writer) SaveAccount(acct model.Account) error {
	_, err := w.db.Exec(`
		INSERT INTO accounts (id, cash_balance, realized_pnl, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			cash_balance = excluded.cash_balance,
			realized_pnl = excluded.realized_pnl,
			updated_at   = excluded.updated_at
	`, acct.ID, acct.CashBalance, acct.RealizedPnL, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite save account: %w", err)
	}
	return nil
}

// SaveUser inserts a new user row.
func (w *Writer) SaveUser(u model.User) error {
	_, err := w.db.Exec(`
		INSERT INTO users (id, username, email, password_hash, totp_secret, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.ID, u.Username, u.Email, u.PasswordHash, u.TOTPSecret, u.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("sqlite save user: %w", err)
	}
	return nil
}

// SetTOTPSecret stores the user's TOTP secret after enrollment.
func (w *Writer) SetTOTPSecret(userID, secret string) error {
	res, err := w.db.Exec(`UPDATE users SET totp_secret = ? WHERE id = ?`, secret, userID)
	if err != nil {
		return fmt.Errorf("sqlite set totp secret: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite set totp secret: no user %s", userID)
	}
	return nil
}

// SeedNews inserts news items, skipping IDs already present.
func (w *Writer) SeedNews(items []model.NewsItem) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO news (id, title, summary, sentiment, source, published_at, related_symbols)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, n := range items {
		symbols, err := json.Marshal(n.RelatedSymbols)
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err := stmt.Exec(n.ID, n.Title, n.Summary, n.Sentiment, n.Source, n.PublishedAt.Unix(), string(symbols)); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}

// Journal adapts the writer's commit channel to the executor. Record
// never blocks; when the buffer is full the commit is dropped and
// counted, keeping the trade path independent of disk latency.
type Journal struct {
	ch      chan ledger.Commit
	metrics *metrics.Metrics
}

// NewJournal creates the buffered commit channel feeding Writer.Run.
func NewJournal(m *metrics.Metrics) *Journal {
	return &Journal{
		ch:      make(chan ledger.Commit, journalBuffer),
		metrics: m,
	}
}

// Record implements ledger.Journal.
func (j *Journal) Record(c ledger.Commit) {
	select {
	case j.ch <- c:
	default:
		if j.metrics != nil {
			j.metrics.JournalDrops.Inc()
		}
		log.Printf("[sqlite] journal buffer full, dropping trade %s", c.Trade.ID)
	}
}

// C exposes the drain side of the journal for Writer.Run.
func (j *Journal) C() <-chan ledger.Commit { return j.ch }

// Close closes the channel so Run flushes and exits.
func (j *Journal) Close() { close(j.ch) }
