// Package record persists streamed ticks to Parquet files so a session can
// be replayed and analysed after the fact.
package record

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"scalper/internal/domain"
)

// TickRecord is the Parquet schema for streamed tick data.
type TickRecord struct {
	InstrumentToken int64   `parquet:"instrument_token"`
	Timestamp       int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	LastPrice       float64 `parquet:"last_price"`
	Volume          int64   `parquet:"volume"`
}

// defaultFlushThreshold bounds how many ticks buffer in memory before a
// write goes to disk.
const defaultFlushThreshold = 500

// TickRecorder buffers incoming ticks and flushes them to per-instrument,
// per-day Parquet files. Writes merge with any existing file so restarting
// mid-session does not lose or duplicate data.
type TickRecorder struct {
	dataDir        string
	log            *slog.Logger
	flushThreshold int

	mu  sync.Mutex
	buf []TickRecord
}

// NewTickRecorder creates a recorder rooted at dataDir.
func NewTickRecorder(dataDir string, log *slog.Logger) *TickRecorder {
	return &TickRecorder{
		dataDir:        dataDir,
		log:            log,
		flushThreshold: defaultFlushThreshold,
	}
}

// OnTicks buffers a tick batch, flushing when the buffer crosses the
// threshold. Flush errors are logged; recording is best-effort and must
// never disturb the trading path.
func (r *TickRecorder) OnTicks(ticks []domain.Tick) {
	r.mu.Lock()
	for _, t := range ticks {
		ts := t.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		r.buf = append(r.buf, TickRecord{
			InstrumentToken: t.InstrumentToken,
			Timestamp:       ts.UnixMilli(),
			LastPrice:       t.LastPrice,
			Volume:          t.Volume,
		})
	}
	full := len(r.buf) >= r.flushThreshold
	r.mu.Unlock()

	if full {
		if err := r.Flush(); err != nil {
			r.log.Error("tick flush failed", "error", err)
		}
	}
}

// Flush writes all buffered ticks to disk, grouped by instrument and date.
func (r *TickRecorder) Flush() error {
	r.mu.Lock()
	pending := r.buf
	r.buf = nil
	r.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	type key struct {
		token int64
		date  string // YYYY-MM-DD
	}
	groups := make(map[key][]TickRecord)
	for _, rec := range pending {
		k := key{
			token: rec.InstrumentToken,
			date:  time.UnixMilli(rec.Timestamp).Format("2006-01-02"),
		}
		groups[k] = append(groups[k], rec)
	}

	for k, records := range groups {
		path := r.tickPath(k.token, k.date)

		existing, _ := readParquetFile[TickRecord](path)
		merged := mergeTickRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing ticks for %d/%s: %w", k.token, k.date, err)
		}
	}
	return nil
}

// ReadTicks reads one instrument's recorded ticks for a given day, in
// timestamp order.
func (r *TickRecorder) ReadTicks(token int64, date time.Time) ([]domain.Tick, error) {
	records, err := readParquetFile[TickRecord](r.tickPath(token, date.Format("2006-01-02")))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	ticks := make([]domain.Tick, 0, len(records))
	for _, rec := range records {
		ticks = append(ticks, domain.Tick{
			InstrumentToken: rec.InstrumentToken,
			Timestamp:       time.UnixMilli(rec.Timestamp),
			LastPrice:       rec.LastPrice,
			Volume:          rec.Volume,
		})
	}
	return ticks, nil
}

// Close flushes whatever remains in the buffer.
func (r *TickRecorder) Close() error {
	return r.Flush()
}

// tickPath returns the file layout: <dataDir>/ticks/<token>/<YYYY-MM-DD>.parquet
func (r *TickRecorder) tickPath(token int64, date string) string {
	return filepath.Join(r.dataDir, "ticks", fmt.Sprintf("%d", token), date+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	return parquet.ReadFile[T](path)
}

// mergeTickRecords deduplicates by (token, timestamp), preferring incoming
// records. Results are sorted by timestamp.
func mergeTickRecords(existing, incoming []TickRecord) []TickRecord {
	type key struct {
		token int64
		ts    int64
	}
	seen := make(map[key]TickRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.InstrumentToken, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.InstrumentToken, r.Timestamp}] = r
	}

	merged := make([]TickRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
