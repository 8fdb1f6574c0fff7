package position

import (
	"context"
	"log/slog"

	"scalper/internal/broker"
	"scalper/internal/domain"
)

// OCOManager keeps each position's protective order pair consistent: at
// most one stop-loss leg and one target leg live at a time, and execution
// of either cancels the other. All cancellation is best-effort; the
// invariant is re-checked on every reconciliation pass rather than assumed
// permanently enforced by a single call.
type OCOManager struct {
	store *Store
	exec  broker.Execution
	log   *slog.Logger
}

// NewOCOManager binds an OCO manager to a store and execution interface.
func NewOCOManager(store *Store, exec broker.Execution, log *slog.Logger) *OCOManager {
	return &OCOManager{store: store, exec: exec, log: log}
}

// PlaceBracketOrder submits protective legs for a position: a stop order
// when a stop-loss price is configured, a limit order when a target price
// is. Each leg's failure is logged and does not block the other leg.
func (m *OCOManager) PlaceBracketOrder(ctx context.Context, symbol string) {
	p, ok := m.store.Position(symbol)
	if !ok {
		m.log.Warn("bracket requested for unknown position", "symbol", symbol)
		return
	}
	side := domain.TransactionSell
	if p.Quantity < 0 {
		side = domain.TransactionBuy
	}
	qty := p.Quantity
	if qty < 0 {
		qty = -qty
	}

	var slID, tgtID string
	if p.StopLossPrice > 0 {
		id, err := m.exec.PlaceOrder(ctx, broker.OrderParams{
			Variety:         domain.VarietyRegular,
			Exchange:        p.Exchange,
			TradingSymbol:   p.TradingSymbol,
			TransactionType: side,
			Quantity:        qty,
			Product:         p.Product,
			OrderType:       domain.OrderTypeSL,
			Price:           p.StopLossPrice,
			TriggerPrice:    p.StopLossPrice,
		})
		if err != nil {
			m.log.Error("stop-loss leg failed", "symbol", symbol, "error", err)
		} else {
			slID = id
			m.log.Info("stop-loss leg placed", "symbol", symbol, "order_id", id, "trigger", p.StopLossPrice)
		}
	}
	if p.TargetPrice > 0 {
		id, err := m.exec.PlaceOrder(ctx, broker.OrderParams{
			Variety:         domain.VarietyRegular,
			Exchange:        p.Exchange,
			TradingSymbol:   p.TradingSymbol,
			TransactionType: side,
			Quantity:        qty,
			Product:         p.Product,
			OrderType:       domain.OrderTypeLimit,
			Price:           p.TargetPrice,
		})
		if err != nil {
			m.log.Error("target leg failed", "symbol", symbol, "error", err)
		} else {
			tgtID = id
			m.log.Info("target leg placed", "symbol", symbol, "order_id", id, "price", p.TargetPrice)
		}
	}

	m.store.mu.Lock()
	if live, ok := m.store.positions[symbol]; ok {
		if slID != "" {
			live.StopLossOrderID = slID
		}
		if tgtID != "" {
			live.TargetOrderID = tgtID
		}
	}
	m.store.mu.Unlock()
}

// ReconcileLegs runs once per reconciliation pass. For every position
// holding leg order ids, an executed leg cancels the other: a completed
// stop-loss cancels the target and vice versa. After this returns, no
// position has two simultaneously live protective orders.
func (m *OCOManager) ReconcileLegs(ctx context.Context, orders []domain.RawOrder) {
	status := make(map[string]string, len(orders))
	for _, o := range orders {
		status[o.OrderID] = o.Status
	}

	type staleLeg struct {
		symbol   string
		executed string // leg that completed
		cancel   string // order id of the other leg
	}
	var stale []staleLeg

	m.store.mu.Lock()
	for sym, p := range m.store.positions {
		if p.StopLossOrderID != "" && status[p.StopLossOrderID] == domain.StatusComplete {
			stale = append(stale, staleLeg{symbol: sym, executed: p.StopLossOrderID, cancel: p.TargetOrderID})
			p.StopLossOrderID = ""
			p.TargetOrderID = ""
			continue
		}
		if p.TargetOrderID != "" && status[p.TargetOrderID] == domain.StatusComplete {
			stale = append(stale, staleLeg{symbol: sym, executed: p.TargetOrderID, cancel: p.StopLossOrderID})
			p.StopLossOrderID = ""
			p.TargetOrderID = ""
		}
	}
	m.store.mu.Unlock()

	for _, s := range stale {
		m.log.Info("protective leg executed", "symbol", s.symbol, "order_id", s.executed)
		if s.cancel == "" {
			continue
		}
		m.cancelLeg(ctx, s.symbol, s.cancel)
	}
}

// UpdateProtection cancels any existing legs, overwrites the position's
// protective parameters, and re-issues the bracket. Non-positive values
// clear the corresponding field. A missing position is logged, not an
// error: it may have closed between the user action and this call.
func (m *OCOManager) UpdateProtection(ctx context.Context, symbol string, stopLoss, target, trailing float64) {
	m.store.mu.Lock()
	p, ok := m.store.positions[symbol]
	if !ok {
		m.store.mu.Unlock()
		m.log.Warn("protection update for closed position", "symbol", symbol)
		return
	}
	slLeg, tgtLeg := p.StopLossOrderID, p.TargetOrderID
	p.StopLossOrderID = ""
	p.TargetOrderID = ""
	if stopLoss > 0 {
		p.StopLossPrice = stopLoss
	} else {
		p.StopLossPrice = 0
	}
	if target > 0 {
		p.TargetPrice = target
	} else {
		p.TargetPrice = 0
	}
	if trailing > 0 {
		p.TrailingStopLoss = trailing
	} else {
		p.TrailingStopLoss = 0
	}
	p.TrailingSteps = 0
	m.store.mu.Unlock()

	if slLeg != "" {
		m.cancelLeg(ctx, symbol, slLeg)
	}
	if tgtLeg != "" {
		m.cancelLeg(ctx, symbol, tgtLeg)
	}

	m.PlaceBracketOrder(ctx, symbol)
	m.store.firePositionsChanged()
}

// cancelLeg cancels one protective order, treating already-terminal and
// unknown orders as expected outcomes of the leg race.
func (m *OCOManager) cancelLeg(ctx context.Context, symbol, orderID string) {
	res, err := m.exec.CancelOrder(ctx, domain.VarietyRegular, orderID)
	if err != nil {
		m.log.Warn("leg cancel failed", "symbol", symbol, "order_id", orderID, "error", err)
		return
	}
	switch res {
	case domain.CancelDone:
		m.log.Info("stale leg cancelled", "symbol", symbol, "order_id", orderID)
	case domain.CancelAlreadyTerminal, domain.CancelNotFound:
		m.log.Debug("leg already settled", "symbol", symbol, "order_id", orderID, "result", res.String())
	}
}
