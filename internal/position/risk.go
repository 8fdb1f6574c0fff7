package position

import (
	"context"
	"log/slog"
	"math"

	"scalper/internal/domain"
)

// priceEpsilon is the minimum price move that counts as a change. Streams
// routinely repeat the last quote; applying those would flood consumers
// with redundant change notifications.
const priceEpsilon = 1e-9

// Exit reasons reported in logs and notifications.
const (
	ExitReasonStopLoss = "stop-loss"
	ExitReasonTarget   = "target"
	ExitReasonManual   = "manual"
)

// RiskEngine evaluates stop-loss, target, and trailing-stop conditions
// against the store on every tick batch. It is a sequential consumer: one
// batch runs to completion before the next is considered.
type RiskEngine struct {
	store *Store
	log   *slog.Logger
}

// NewRiskEngine binds a risk engine to a store.
func NewRiskEngine(store *Store, log *slog.Logger) *RiskEngine {
	return &RiskEngine{store: store, log: log}
}

type exitTrigger struct {
	symbol string
	reason string
}

// OnTicks applies a tick batch: prices update first, then exit conditions
// are evaluated in a fixed order. Stop-loss wins over target; the trailing
// adjustment only runs when neither fired. Exit submissions happen after
// all price updates so a batch observes a consistent book.
func (e *RiskEngine) OnTicks(ctx context.Context, ticks []domain.Tick) {
	if len(ticks) == 0 {
		return
	}
	byToken := make(map[int64]float64, len(ticks))
	for _, t := range ticks {
		byToken[t.InstrumentToken] = t.LastPrice
	}

	triggers, changed := e.store.applyTicks(byToken)

	for _, t := range triggers {
		if err := e.store.ExitPosition(ctx, t.symbol, t.reason); err != nil {
			e.log.Error("exit submission failed", "symbol", t.symbol, "reason", t.reason, "error", err)
		}
	}
	if changed {
		e.store.firePositionsChanged()
	}
}

// applyTicks mutates prices and evaluates exit conditions under the store
// lock. It returns the positions whose exit should be submitted and whether
// any P&L changed.
func (s *Store) applyTicks(byToken map[int64]float64) ([]exitTrigger, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var triggers []exitTrigger
	changed := false

	for sym, p := range s.positions {
		if p.ExitInProgress || p.InstrumentToken == 0 {
			continue
		}
		ltp, ok := byToken[p.InstrumentToken]
		if !ok {
			continue
		}
		if math.Abs(ltp-p.LastPrice) > priceEpsilon {
			p.UpdatePnL(ltp)
			changed = true
		}
		if p.Quantity <= 0 {
			continue
		}

		if p.StopLossPrice > 0 && ltp <= p.StopLossPrice {
			triggers = append(triggers, exitTrigger{symbol: sym, reason: ExitReasonStopLoss})
			continue
		}
		if p.TargetPrice > 0 && ltp >= p.TargetPrice {
			triggers = append(triggers, exitTrigger{symbol: sym, reason: ExitReasonTarget})
			continue
		}

		// Trailing ratchet: for each whole trailing increment of profit not
		// yet reflected, move the stop up by one increment. The stop never
		// moves down.
		if p.TrailingStopLoss > 0 && p.StopLossPrice > 0 {
			profit := ltp - p.AveragePrice
			if profit > 0 {
				steps := int(profit / p.TrailingStopLoss)
				if steps > p.TrailingSteps {
					p.StopLossPrice += float64(steps-p.TrailingSteps) * p.TrailingStopLoss
					p.TrailingSteps = steps
					s.log.Info("trailing stop ratcheted", "symbol", sym, "stop_loss", p.StopLossPrice)
				}
			}
		}
	}
	return triggers, changed
}
