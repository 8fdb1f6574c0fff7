package history

// Metrics summarises session performance derived from the trade journal.
// Only trades with a non-zero P&L count as completed round trips.
type Metrics struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	TotalPnl      float64
	WinRate       float64 // percent
	AvgProfit     float64
	AvgLoss       float64 // absolute value
}

// ComputeMetrics aggregates performance metrics over a set of trade records.
func ComputeMetrics(trades []TradeRecord) Metrics {
	var m Metrics
	var winSum, lossSum float64

	for _, t := range trades {
		if t.PnL == 0 {
			continue
		}
		m.TotalTrades++
		m.TotalPnl += t.PnL
		if t.PnL > 0 {
			m.WinningTrades++
			winSum += t.PnL
		} else {
			m.LosingTrades++
			lossSum += t.PnL
		}
	}

	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
	}
	if m.WinningTrades > 0 {
		m.AvgProfit = winSum / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = -lossSum / float64(m.LosingTrades)
	}
	return m
}
