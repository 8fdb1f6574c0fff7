// Package history persists trade records and realized daily P&L to SQLite,
// one database per trading mode so live and paper books never mix.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// TradeRecord is one completed (or attempted) order as stored in the trade
// history. Records are keyed by broker order id: writing the same id twice
// replaces the prior record.
type TradeRecord struct {
	OrderID         string
	Timestamp       string // "2006-01-02 15:04:05"
	TradingSymbol   string
	TransactionType string
	Quantity        int
	AveragePrice    float64
	Status          string
	Product         string
	PnL             float64
}

// Journal is the sqlite-backed trade history.
type Journal struct {
	db *sql.DB
}

// OpenJournal opens (or creates) the trade history database at dbPath.
func OpenJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	const schema = `
		CREATE TABLE IF NOT EXISTS orders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id TEXT UNIQUE,
			timestamp TEXT NOT NULL,
			tradingsymbol TEXT NOT NULL,
			transaction_type TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			average_price REAL NOT NULL,
			status TEXT NOT NULL,
			product TEXT,
			pnl REAL DEFAULT 0.0
		)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating orders table: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// LogTrade upserts a trade record by order id. A record without an order id
// is rejected.
func (j *Journal) LogTrade(rec TradeRecord) error {
	if rec.OrderID == "" {
		return fmt.Errorf("trade record without order id")
	}
	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().Format("2006-01-02 15:04:05")
	}
	const query = `
		INSERT OR REPLACE INTO orders
		(order_id, timestamp, tradingsymbol, transaction_type, quantity, average_price, status, product, pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := j.db.Exec(query,
		rec.OrderID, rec.Timestamp, rec.TradingSymbol, rec.TransactionType,
		rec.Quantity, rec.AveragePrice, rec.Status, rec.Product, rec.PnL)
	if err != nil {
		return fmt.Errorf("logging trade %s: %w", rec.OrderID, err)
	}
	return nil
}

// TradesForDate returns all trades recorded on the given date, most recent
// first.
func (j *Journal) TradesForDate(date time.Time) ([]TradeRecord, error) {
	const query = `
		SELECT order_id, timestamp, tradingsymbol, transaction_type, quantity, average_price, status, product, pnl
		FROM orders WHERE date(timestamp) = ? ORDER BY timestamp DESC`
	return j.queryTrades(query, date.Format("2006-01-02"))
}

// AllTrades returns every recorded trade, most recent first.
func (j *Journal) AllTrades() ([]TradeRecord, error) {
	const query = `
		SELECT order_id, timestamp, tradingsymbol, transaction_type, quantity, average_price, status, product, pnl
		FROM orders ORDER BY timestamp DESC`
	return j.queryTrades(query)
}

func (j *Journal) queryTrades(query string, args ...any) ([]TradeRecord, error) {
	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var r TradeRecord
		if err := rows.Scan(&r.OrderID, &r.Timestamp, &r.TradingSymbol, &r.TransactionType,
			&r.Quantity, &r.AveragePrice, &r.Status, &r.Product, &r.PnL); err != nil {
			return nil, err
		}
		trades = append(trades, r)
	}
	return trades, rows.Err()
}
