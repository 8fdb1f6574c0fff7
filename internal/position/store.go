// Package position holds the authoritative in-memory ledger of open
// positions and pending orders, reconciled periodically against the broker.
// The risk trigger engine and the OCO leg manager live alongside it because
// both mutate the same ledger under the same lock.
package position

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"scalper/internal/broker"
	"scalper/internal/domain"
	"scalper/internal/history"
)

// TradeJournal records completed trades. Implemented by history.Journal.
type TradeJournal interface {
	LogTrade(rec history.TradeRecord) error
}

// PnlRecorder accumulates realized P&L per calendar date. Implemented by
// history.PnlLog.
type PnlRecorder interface {
	Add(date time.Time, pnl float64) error
}

// Notifications carries the callbacks the store fires on state changes.
// Nil callbacks are skipped. Callbacks run outside the store lock, so they
// may call back into the store's read methods.
type Notifications struct {
	PositionsChanged     func()
	PendingOrdersChanged func()
	PositionAdded        func(symbol string)
	PositionRemoved      func(symbol string)
	RefreshCompleted     func()
	APIError             func(endpoint string, err error)
}

// Store is the position and order ledger. The broker's view is authoritative;
// local mutations (optimistic inserts and removals after confirmed fills) are
// forecasts that the next reconciliation pass confirms or corrects.
type Store struct {
	exec    broker.Execution
	arena   *domain.ContractArena
	journal TradeJournal
	pnlLog  PnlRecorder
	log     *slog.Logger
	notify  Notifications

	mu             sync.Mutex
	positions      map[string]*domain.Position
	pending        []domain.PendingOrder
	brokerOrders   []domain.RawOrder
	realizedDayPnl float64

	// refreshing guards against overlapping reconciliation passes; a refresh
	// already in flight makes a new request a no-op.
	refreshing atomic.Bool

	now func() time.Time
}

// NewStore builds an empty store. journal and pnlLog may be nil, in which
// case closed trades are not persisted.
func NewStore(exec broker.Execution, arena *domain.ContractArena, journal TradeJournal, pnlLog PnlRecorder, log *slog.Logger) *Store {
	return &Store{
		exec:      exec,
		arena:     arena,
		journal:   journal,
		pnlLog:    pnlLog,
		log:       log,
		positions: make(map[string]*domain.Position),
		now:       time.Now,
	}
}

// SetNotifications installs the notification callbacks. Call before the
// first refresh; the store does not synchronize callback replacement.
func (s *Store) SetNotifications(n Notifications) {
	s.notify = n
}

// --- reconciliation ---

// RefreshFromBroker fetches the broker's current net positions and orders
// and reconciles local state against them. Broker-call failures leave the
// existing state untouched: stale-but-safe rather than empty-but-wrong.
func (s *Store) RefreshFromBroker(ctx context.Context) error {
	if !s.refreshing.CompareAndSwap(false, true) {
		s.log.Debug("refresh already in flight, skipping")
		return nil
	}
	defer s.refreshing.Store(false)

	rawPositions, err := s.exec.Positions(ctx)
	if err != nil {
		s.log.Error("position fetch failed", "error", err)
		s.fireAPIError("positions", err)
		return err
	}
	rawOrders, err := s.exec.Orders(ctx)
	if err != nil {
		s.log.Error("order fetch failed", "error", err)
		s.fireAPIError("orders", err)
		return err
	}

	fresh := make(map[string]*domain.Position, len(rawPositions))
	for _, raw := range rawPositions {
		if raw.Quantity == 0 {
			continue
		}
		p := s.ConvertBrokerPosition(raw)
		if p == nil {
			continue
		}
		fresh[p.TradingSymbol] = p
	}

	pending := make([]domain.PendingOrder, 0, len(rawOrders))
	for _, o := range rawOrders {
		if domain.IsPendingStatus(o.Status) {
			pending = append(pending, domain.PendingOrderFromRaw(o))
		}
	}

	removed, expired := s.synchronize(fresh, pending, rawOrders)

	for _, sym := range removed {
		s.firePositionRemoved(sym)
	}
	s.firePositionsChanged()
	if expired > 0 {
		// Expiry cleanup batches into one extra notification regardless of
		// how many positions it dropped.
		s.firePositionsChanged()
	}
	s.firePendingOrdersChanged()
	s.fireRefreshCompleted()
	return nil
}

// ConvertBrokerPosition maps one raw broker position into the internal
// model. It never fails: a record with no instrument metadata match still
// becomes a position, just with token 0, which excludes it from per-tick
// updates until metadata loads. Returns nil only when the record has no
// trading symbol.
func (s *Store) ConvertBrokerPosition(raw domain.RawPosition) *domain.Position {
	if raw.TradingSymbol == "" {
		return nil
	}
	p := &domain.Position{
		TradingSymbol: raw.TradingSymbol,
		Quantity:      raw.Quantity,
		AveragePrice:  raw.AveragePrice,
		Exchange:      raw.Exchange,
		Product:       raw.Product,
	}
	if c, ok := s.arena.ByTradingSymbol(raw.TradingSymbol); ok {
		p.Symbol = c.Symbol
		p.InstrumentToken = c.InstrumentToken
	} else {
		s.log.Warn("no instrument metadata for position", "symbol", raw.TradingSymbol)
	}
	p.UpdatePnL(raw.LastPrice)
	return p
}

// synchronize diffs the previous position set against fresh, folds vanished
// symbols into realized P&L, replaces the retained set, and runs expiry
// cleanup. Returns the removed symbols and the expired count; the caller
// fires notifications after the lock is released.
func (s *Store) synchronize(fresh map[string]*domain.Position, pending []domain.PendingOrder, rawOrders []domain.RawOrder) (removed []string, expired int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sym, old := range s.positions {
		if _, ok := fresh[sym]; ok {
			continue
		}
		// Closed at the broker since the last pass. The last-known floating
		// P&L is the best available realized figure.
		s.realizedDayPnl += old.PnL
		s.recordRealized(old.PnL)
		s.log.Info("position closed at broker", "symbol", sym, "pnl", old.PnL)
		removed = append(removed, sym)
	}

	// Carry locally-held risk parameters and in-flight intent across the
	// reconciliation; the broker only knows quantity and price.
	for sym, p := range fresh {
		old, ok := s.positions[sym]
		if !ok {
			continue
		}
		p.OrderID = old.OrderID
		p.StopLossPrice = old.StopLossPrice
		p.TargetPrice = old.TargetPrice
		p.TrailingStopLoss = old.TrailingStopLoss
		p.TrailingSteps = old.TrailingSteps
		p.StopLossOrderID = old.StopLossOrderID
		p.TargetOrderID = old.TargetOrderID
		p.ExitInProgress = old.ExitInProgress
	}

	s.positions = fresh
	s.pending = pending
	s.brokerOrders = rawOrders
	expired = s.removeExpiredLocked()
	sort.Strings(removed)
	return removed, expired
}

// --- optimistic local mutations ---

// AddPosition inserts a position immediately after a confirmed entry fill,
// ahead of the next reconciliation pass.
func (s *Store) AddPosition(p *domain.Position) {
	s.mu.Lock()
	s.positions[p.TradingSymbol] = p
	s.mu.Unlock()

	s.firePositionAdded(p.TradingSymbol)
	s.firePositionsChanged()
}

// RemovePosition drops a position after a confirmed exit fill. Removing an
// absent symbol is a no-op.
func (s *Store) RemovePosition(symbol string) {
	s.mu.Lock()
	_, ok := s.positions[symbol]
	if ok {
		delete(s.positions, symbol)
	}
	s.mu.Unlock()

	if ok {
		s.firePositionRemoved(symbol)
		s.firePositionsChanged()
	}
}

// closeLocal folds a position's realized P&L, journals the closing trade,
// and removes the position. Called after a confirmed exit submission.
func (s *Store) closeLocal(symbol, exitOrderID string, exitPrice float64) {
	s.mu.Lock()
	p, ok := s.positions[symbol]
	if !ok {
		s.mu.Unlock()
		return
	}
	realized := (exitPrice - p.AveragePrice) * float64(p.Quantity)
	s.realizedDayPnl += realized
	s.recordRealized(realized)

	if s.journal != nil {
		side := domain.TransactionSell
		if p.Quantity < 0 {
			side = domain.TransactionBuy
		}
		qty := p.Quantity
		if qty < 0 {
			qty = -qty
		}
		rec := history.TradeRecord{
			OrderID:         exitOrderID,
			Timestamp:       s.now().Format("2006-01-02 15:04:05"),
			TradingSymbol:   symbol,
			TransactionType: side,
			Quantity:        qty,
			AveragePrice:    exitPrice,
			Status:          domain.StatusComplete,
			Product:         p.Product,
			PnL:             realized,
		}
		if err := s.journal.LogTrade(rec); err != nil {
			s.log.Error("trade journal write failed", "order_id", exitOrderID, "error", err)
		}
	}
	delete(s.positions, symbol)
	s.mu.Unlock()

	s.log.Info("position closed", "symbol", symbol, "exit_price", exitPrice, "pnl", realized)
	s.firePositionRemoved(symbol)
	s.firePositionsChanged()
}

// recordRealized persists realized P&L for today. Caller holds the lock.
func (s *Store) recordRealized(pnl float64) {
	if s.pnlLog == nil {
		return
	}
	if err := s.pnlLog.Add(s.now(), pnl); err != nil {
		s.log.Error("realized pnl write failed", "error", err)
	}
}

// --- exits ---

// ExitPosition submits a market order closing the full quantity and, on
// submission success, performs the local optimistic removal immediately. On
// submission failure the exit flag clears so a later tick can retry.
func (s *Store) ExitPosition(ctx context.Context, symbol, reason string) error {
	s.mu.Lock()
	p, ok := s.positions[symbol]
	if !ok {
		s.mu.Unlock()
		return domain.ErrPositionNotFound
	}
	if p.ExitInProgress {
		s.mu.Unlock()
		return nil
	}
	p.ExitInProgress = true
	side := domain.TransactionSell
	if p.Quantity < 0 {
		side = domain.TransactionBuy
	}
	qty := p.Quantity
	if qty < 0 {
		qty = -qty
	}
	params := broker.OrderParams{
		Variety:         domain.VarietyRegular,
		Exchange:        p.Exchange,
		TradingSymbol:   p.TradingSymbol,
		TransactionType: side,
		Quantity:        qty,
		Product:         p.Product,
		OrderType:       domain.OrderTypeMarket,
	}
	exitPrice := p.LastPrice
	s.mu.Unlock()

	s.log.Info("exit triggered", "symbol", symbol, "reason", reason, "quantity", qty)

	orderID, err := s.exec.PlaceOrder(ctx, params)
	if err != nil {
		s.log.Error("exit order failed", "symbol", symbol, "error", err)
		s.mu.Lock()
		if p, ok := s.positions[symbol]; ok {
			p.ExitInProgress = false
		}
		s.mu.Unlock()
		return err
	}
	s.closeLocal(symbol, orderID, exitPrice)
	return nil
}

// ExitAll submits market exits for every open position not already being
// exited. Failures are logged per position and do not stop the sweep; the
// first error is returned.
func (s *Store) ExitAll(ctx context.Context, reason string) error {
	s.mu.Lock()
	symbols := make([]string, 0, len(s.positions))
	for sym, p := range s.positions {
		if !p.ExitInProgress {
			symbols = append(symbols, sym)
		}
	}
	s.mu.Unlock()
	sort.Strings(symbols)

	var firstErr error
	for _, sym := range symbols {
		if err := s.ExitPosition(ctx, sym, reason); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// --- reads ---

// AllPositions returns a snapshot of every open position, sorted by
// trading symbol.
func (s *Store) AllPositions() []domain.Position {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TradingSymbol < out[j].TradingSymbol })
	return out
}

// Position returns a copy of one position by trading symbol.
func (s *Store) Position(symbol string) (domain.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

// PendingOrders returns the pending-order set from the last reconciliation.
func (s *Store) PendingOrders() []domain.PendingOrder {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.PendingOrder, len(s.pending))
	copy(out, s.pending)
	return out
}

// BrokerOrders returns the full raw order list from the last successful
// reconciliation, terminal orders included. Consumers that need the order
// book right after a refresh read it here instead of fetching again.
func (s *Store) BrokerOrders() []domain.RawOrder {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.RawOrder, len(s.brokerOrders))
	copy(out, s.brokerOrders)
	return out
}

// TotalFloatingPnl sums floating P&L across open positions.
func (s *Store) TotalFloatingPnl() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total float64
	for _, p := range s.positions {
		total += p.PnL
	}
	return total
}

// RealizedPnlToday returns the realized P&L accumulated this session.
func (s *Store) RealizedPnlToday() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.realizedDayPnl
}

// HasOpenPositions reports whether any position is open.
func (s *Store) HasOpenPositions() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.positions) > 0
}

// --- notifications ---

func (s *Store) firePositionsChanged() {
	if s.notify.PositionsChanged != nil {
		s.notify.PositionsChanged()
	}
}

func (s *Store) firePendingOrdersChanged() {
	if s.notify.PendingOrdersChanged != nil {
		s.notify.PendingOrdersChanged()
	}
}

func (s *Store) firePositionAdded(symbol string) {
	if s.notify.PositionAdded != nil {
		s.notify.PositionAdded(symbol)
	}
}

func (s *Store) firePositionRemoved(symbol string) {
	if s.notify.PositionRemoved != nil {
		s.notify.PositionRemoved(symbol)
	}
}

func (s *Store) fireRefreshCompleted() {
	if s.notify.RefreshCompleted != nil {
		s.notify.RefreshCompleted()
	}
}

func (s *Store) fireAPIError(endpoint string, err error) {
	if s.notify.APIError != nil {
		s.notify.APIError(endpoint, err)
	}
}
