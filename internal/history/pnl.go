package history

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// PnlLog is the sqlite-backed realized P&L history, one cumulative value per
// calendar date. Repeated writes for the same date add to the stored value
// rather than replacing it.
type PnlLog struct {
	db *sql.DB
}

// OpenPnlLog opens (or creates) the P&L history database at dbPath.
func OpenPnlLog(dbPath string) (*PnlLog, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	const schema = `
		CREATE TABLE IF NOT EXISTS realized_pnl (
			date TEXT PRIMARY KEY,
			pnl REAL NOT NULL
		)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating realized_pnl table: %w", err)
	}
	return &PnlLog{db: db}, nil
}

// Close closes the underlying database connection.
func (l *PnlLog) Close() error {
	return l.db.Close()
}

// Add accumulates realized P&L onto the given date's stored value.
func (l *PnlLog) Add(date time.Time, pnl float64) error {
	const query = `
		INSERT INTO realized_pnl (date, pnl) VALUES (?, ?)
		ON CONFLICT(date) DO UPDATE SET pnl = pnl + excluded.pnl`
	_, err := l.db.Exec(query, date.Format("2006-01-02"), pnl)
	if err != nil {
		return fmt.Errorf("logging pnl for %s: %w", date.Format("2006-01-02"), err)
	}
	return nil
}

// ForDate returns the cumulative realized P&L stored for the given date, or
// 0 when the date has no entry.
func (l *PnlLog) ForDate(date time.Time) (float64, error) {
	var pnl float64
	err := l.db.QueryRow(`SELECT pnl FROM realized_pnl WHERE date = ?`,
		date.Format("2006-01-02")).Scan(&pnl)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return pnl, nil
}

// All returns the full P&L history keyed by date string.
func (l *PnlLog) All() (map[string]float64, error) {
	rows, err := l.db.Query(`SELECT date, pnl FROM realized_pnl`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var date string
		var pnl float64
		if err := rows.Scan(&date, &pnl); err != nil {
			return nil, err
		}
		out[date] = pnl
	}
	return out, rows.Err()
}
