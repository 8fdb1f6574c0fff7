package history

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLogTradeIdempotentUpsert(t *testing.T) {
	j, err := OpenJournal(filepath.Join(t.TempDir(), "trade_history_paper.db"))
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	defer j.Close()

	rec := TradeRecord{
		OrderID:         "230915000042",
		Timestamp:       "2025-07-10 10:30:00",
		TradingSymbol:   "NIFTY25JUL24000CE",
		TransactionType: "SELL",
		Quantity:        50,
		AveragePrice:    120.0,
		Status:          "COMPLETE",
		Product:         "MIS",
		PnL:             500.0,
	}
	if err := j.LogTrade(rec); err != nil {
		t.Fatalf("LogTrade: %v", err)
	}

	// Same order id again with updated values: exactly one record remains,
	// with the latest values.
	rec.PnL = 750.0
	rec.AveragePrice = 125.0
	if err := j.LogTrade(rec); err != nil {
		t.Fatalf("LogTrade (upsert): %v", err)
	}

	trades, err := j.AllTrades()
	if err != nil {
		t.Fatalf("AllTrades: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("len(trades) = %d, want 1", len(trades))
	}
	if trades[0].PnL != 750.0 || trades[0].AveragePrice != 125.0 {
		t.Errorf("record not replaced: %+v", trades[0])
	}
}

func TestLogTradeRequiresOrderID(t *testing.T) {
	j, err := OpenJournal(filepath.Join(t.TempDir(), "trade.db"))
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	defer j.Close()

	if err := j.LogTrade(TradeRecord{TradingSymbol: "X"}); err == nil {
		t.Fatal("LogTrade should reject a record without an order id")
	}
}

func TestTradesForDate(t *testing.T) {
	j, err := OpenJournal(filepath.Join(t.TempDir(), "trade.db"))
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	defer j.Close()

	j.LogTrade(TradeRecord{OrderID: "1", Timestamp: "2025-07-10 10:00:00", TradingSymbol: "A", TransactionType: "BUY", Quantity: 50, Status: "COMPLETE"})
	j.LogTrade(TradeRecord{OrderID: "2", Timestamp: "2025-07-11 10:00:00", TradingSymbol: "B", TransactionType: "SELL", Quantity: 50, Status: "COMPLETE"})

	trades, err := j.TradesForDate(time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("TradesForDate: %v", err)
	}
	if len(trades) != 1 || trades[0].OrderID != "1" {
		t.Errorf("trades = %+v", trades)
	}
}

func TestPnlLogAccumulates(t *testing.T) {
	l, err := OpenPnlLog(filepath.Join(t.TempDir(), "pnl_history_live.db"))
	if err != nil {
		t.Fatalf("OpenPnlLog: %v", err)
	}
	defer l.Close()

	day := time.Date(2025, 7, 10, 14, 0, 0, 0, time.UTC)
	if err := l.Add(day, 500); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := l.Add(day, -200); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, err := l.ForDate(day)
	if err != nil {
		t.Fatalf("ForDate: %v", err)
	}
	if got != 300 {
		t.Errorf("cumulative pnl = %v, want 300", got)
	}

	// A date with no entry reads as zero.
	got, err = l.ForDate(day.AddDate(0, 0, 1))
	if err != nil || got != 0 {
		t.Errorf("empty date = %v, %v; want 0, nil", got, err)
	}

	all, err := l.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if all["2025-07-10"] != 300 {
		t.Errorf("All() = %v", all)
	}
}

func TestComputeMetrics(t *testing.T) {
	trades := []TradeRecord{
		{OrderID: "1", PnL: 500},
		{OrderID: "2", PnL: -200},
		{OrderID: "3", PnL: 300},
		{OrderID: "4", PnL: 0}, // entry leg, not a round trip
	}
	m := ComputeMetrics(trades)

	if m.TotalTrades != 3 || m.WinningTrades != 2 || m.LosingTrades != 1 {
		t.Errorf("counts = %+v", m)
	}
	if m.TotalPnl != 600 {
		t.Errorf("TotalPnl = %v, want 600", m.TotalPnl)
	}
	if m.WinRate < 66.6 || m.WinRate > 66.7 {
		t.Errorf("WinRate = %v, want ~66.67", m.WinRate)
	}
	if m.AvgProfit != 400 || m.AvgLoss != 200 {
		t.Errorf("averages = %+v", m)
	}
}
