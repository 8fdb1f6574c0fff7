package record

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"scalper/internal/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecordAndReadBack(t *testing.T) {
	r := NewTickRecorder(t.TempDir(), discard())
	day := time.Date(2025, 7, 10, 10, 30, 0, 0, time.UTC)

	r.OnTicks([]domain.Tick{
		{InstrumentToken: 77, LastPrice: 101.5, Volume: 1200, Timestamp: day},
		{InstrumentToken: 77, LastPrice: 101.7, Volume: 1250, Timestamp: day.Add(time.Second)},
		{InstrumentToken: 88, LastPrice: 2400.0, Timestamp: day},
	})
	if err := r.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	ticks, err := r.ReadTicks(77, day)
	if err != nil {
		t.Fatalf("ReadTicks: %v", err)
	}
	if len(ticks) != 2 {
		t.Fatalf("read %d ticks, want 2", len(ticks))
	}
	if ticks[0].LastPrice != 101.5 || ticks[1].LastPrice != 101.7 {
		t.Errorf("ticks = %+v", ticks)
	}

	other, err := r.ReadTicks(88, day)
	if err != nil || len(other) != 1 {
		t.Errorf("token 88: %v ticks, err %v; want 1, nil", len(other), err)
	}
}

func TestFlushMergesWithExistingFile(t *testing.T) {
	r := NewTickRecorder(t.TempDir(), discard())
	day := time.Date(2025, 7, 10, 10, 30, 0, 0, time.UTC)

	r.OnTicks([]domain.Tick{{InstrumentToken: 77, LastPrice: 100, Timestamp: day}})
	if err := r.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	// Same timestamp replaces, a new timestamp appends.
	r.OnTicks([]domain.Tick{
		{InstrumentToken: 77, LastPrice: 100.5, Timestamp: day},
		{InstrumentToken: 77, LastPrice: 101, Timestamp: day.Add(time.Second)},
	})
	if err := r.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	ticks, err := r.ReadTicks(77, day)
	if err != nil {
		t.Fatalf("ReadTicks: %v", err)
	}
	if len(ticks) != 2 {
		t.Fatalf("read %d ticks, want 2 after merge", len(ticks))
	}
	if ticks[0].LastPrice != 100.5 {
		t.Errorf("duplicate timestamp not replaced: %+v", ticks[0])
	}
}

func TestReadTicksMissingFile(t *testing.T) {
	r := NewTickRecorder(t.TempDir(), discard())
	ticks, err := r.ReadTicks(42, time.Now())
	if err != nil || ticks != nil {
		t.Errorf("missing file: ticks=%v err=%v, want nil, nil", ticks, err)
	}
}

func TestThresholdTriggersFlush(t *testing.T) {
	r := NewTickRecorder(t.TempDir(), discard())
	r.flushThreshold = 3
	day := time.Date(2025, 7, 10, 11, 0, 0, 0, time.UTC)

	r.OnTicks([]domain.Tick{
		{InstrumentToken: 77, LastPrice: 100, Timestamp: day},
		{InstrumentToken: 77, LastPrice: 101, Timestamp: day.Add(time.Second)},
		{InstrumentToken: 77, LastPrice: 102, Timestamp: day.Add(2 * time.Second)},
	})

	// No explicit Flush; the threshold should have written the file.
	ticks, err := r.ReadTicks(77, day)
	if err != nil {
		t.Fatalf("ReadTicks: %v", err)
	}
	if len(ticks) != 3 {
		t.Errorf("read %d ticks, want 3", len(ticks))
	}
}
