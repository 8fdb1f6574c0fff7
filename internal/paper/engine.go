// Package paper implements the paper-trading matching engine: an Execution
// implementation that simulates order fills from streamed prices and keeps a
// simulated account ledger on disk, so a restart resumes the same book.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"scalper/internal/broker"
	"scalper/internal/domain"
)

// Compile-time interface check.
var _ broker.Execution = (*Engine)(nil)

// Engine simulates order execution against live market data. All fills are
// immediate and full; partial fills are not modelled.
type Engine struct {
	mu sync.Mutex

	balance   float64
	positions map[string]*ledgerPosition
	orders    []*domain.RawOrder

	marketData map[int64]domain.Tick // latest tick per instrument token
	arena      *domain.ContractArena

	ledger *Ledger
	log    *slog.Logger
	now    func() time.Time
}

// ledgerPosition mirrors the real position shape for the simulated book.
type ledgerPosition struct {
	TradingSymbol string  `json:"tradingsymbol"`
	Quantity      int     `json:"quantity"`
	AveragePrice  float64 `json:"average_price"`
	Exchange      string  `json:"exchange"`
	Product       string  `json:"product"`
	LastPrice     float64 `json:"last_price"`
	PnL           float64 `json:"pnl"`
}

// NewEngine creates a paper engine. If the ledger file exists, the previous
// balance and simulated positions are restored; otherwise the account starts
// with startingBalance.
func NewEngine(ledgerPath string, startingBalance float64, log *slog.Logger) (*Engine, error) {
	ledger := NewLedger(ledgerPath)
	e := &Engine{
		balance:    startingBalance,
		positions:  make(map[string]*ledgerPosition),
		marketData: make(map[int64]domain.Tick),
		arena:      domain.NewContractArena(nil),
		ledger:     ledger,
		log:        log,
		now:        time.Now,
	}

	state, err := ledger.Load()
	if err != nil {
		return nil, fmt.Errorf("loading paper ledger: %w", err)
	}
	if state != nil {
		e.balance = state.Balance
		for sym, p := range state.Positions {
			lp := p
			lp.TradingSymbol = sym
			e.positions[sym] = &lp
		}
		log.Info("paper trading state restored",
			"balance", e.balance, "positions", len(e.positions))
	}
	if err := e.persist(); err != nil {
		return nil, err
	}
	return e, nil
}

// SetInstrumentData registers the session's contracts so trading symbols can
// be resolved to instrument tokens for price lookup.
func (e *Engine) SetInstrumentData(data domain.InstrumentData) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.arena = domain.NewContractArena(data)
	e.log.Info("paper engine populated with instrument mappings", "count", e.arena.Len())
}

// OnTicks records the latest price per instrument and sweeps working orders
// for fills. It is safe to call from the stream consumer goroutine.
func (e *Engine) OnTicks(ticks []domain.Tick) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, t := range ticks {
		e.marketData[t.InstrumentToken] = t
	}
	e.sweepWorkingOrders()
}

// ltpFor returns the last known price for a trading symbol, or 0.
func (e *Engine) ltpFor(symbol string) float64 {
	c, ok := e.arena.ByTradingSymbol(symbol)
	if !ok {
		return 0
	}
	tick, ok := e.marketData[c.InstrumentToken]
	if !ok {
		return 0
	}
	return tick.LastPrice
}

// PlaceOrder simulates order placement. Market orders fill at the last
// traded price, or park as pending-execution when no quote has arrived yet.
// Limit orders fill immediately when marketable, otherwise wait for a
// crossing tick.
func (e *Engine) PlaceOrder(_ context.Context, p broker.OrderParams) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	order := &domain.RawOrder{
		OrderID:         "paper-" + uuid.NewString(),
		TradingSymbol:   p.TradingSymbol,
		Exchange:        p.Exchange,
		Product:         p.Product,
		TransactionType: p.TransactionType,
		OrderType:       p.OrderType,
		Quantity:        p.Quantity,
		Price:           p.Price,
		TriggerPrice:    p.TriggerPrice,
		Status:          domain.StatusOpen,
		OrderTimestamp:  e.now().Format("2006-01-02 15:04:05"),
	}

	ltp := e.ltpFor(p.TradingSymbol)
	switch p.OrderType {
	case domain.OrderTypeMarket:
		if ltp > 0 {
			e.executeTrade(order, ltp)
		} else {
			order.Status = domain.StatusPendingExecution
		}
	case domain.OrderTypeLimit:
		isBuy := p.TransactionType == domain.TransactionBuy
		if ltp > 0 && ((isBuy && p.Price >= ltp) || (!isBuy && p.Price <= ltp)) {
			e.executeTrade(order, ltp)
		}
	case domain.OrderTypeSL:
		// Stop orders park until the trigger price is touched.
	}

	e.orders = append(e.orders, order)
	return order.OrderID, nil
}

// CancelOrder cancels a working simulated order.
func (e *Engine) CancelOrder(_ context.Context, _, orderID string) (domain.CancelResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, o := range e.orders {
		if o.OrderID != orderID {
			continue
		}
		switch o.Status {
		case domain.StatusOpen, domain.StatusPendingExecution, domain.StatusTriggerPending:
			o.Status = domain.StatusCancelled
			e.log.Info("paper order cancelled", "order_id", orderID)
			return domain.CancelDone, nil
		default:
			return domain.CancelAlreadyTerminal, nil
		}
	}
	return domain.CancelNotFound, nil
}

// Positions returns the simulated net positions with prices refreshed from
// the latest market data.
func (e *Engine) Positions(_ context.Context) ([]domain.RawPosition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.RawPosition, 0, len(e.positions))
	for _, p := range e.positions {
		if ltp := e.ltpFor(p.TradingSymbol); ltp > 0 {
			p.LastPrice = ltp
			p.PnL = (ltp - p.AveragePrice) * float64(p.Quantity)
		}
		raw := domain.RawPosition{
			TradingSymbol: p.TradingSymbol,
			Exchange:      p.Exchange,
			Product:       p.Product,
			Quantity:      p.Quantity,
			AveragePrice:  p.AveragePrice,
			LastPrice:     p.LastPrice,
			PnL:           p.PnL,
		}
		if c, ok := e.arena.ByTradingSymbol(p.TradingSymbol); ok {
			raw.InstrumentToken = c.InstrumentToken
		}
		out = append(out, raw)
	}
	return out, nil
}

// Orders returns a copy of the simulated order list.
func (e *Engine) Orders(_ context.Context) ([]domain.RawOrder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.RawOrder, 0, len(e.orders))
	for _, o := range e.orders {
		out = append(out, *o)
	}
	return out, nil
}

// Margins synthesises a margin snapshot from the simulated book.
func (e *Engine) Margins(_ context.Context) (domain.MarginSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var used float64
	for _, p := range e.positions {
		if v := float64(p.Quantity) * p.AveragePrice; v > 0 {
			used += v
		} else {
			used += -v
		}
	}
	return domain.MarginSnapshot{
		Net:       e.balance,
		Utilised:  used,
		Available: e.balance - used,
	}, nil
}

// Profile identifies the simulated account.
func (e *Engine) Profile(context.Context) (domain.Profile, error) {
	return domain.Profile{UserID: "PAPER"}, nil
}

// Balance returns the current simulated cash balance.
func (e *Engine) Balance() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance
}

// sweepWorkingOrders re-evaluates non-terminal orders against the latest
// prices. Limit orders fill at their limit price once crossed; parked market
// orders fill at the first available price; stop orders convert on trigger.
func (e *Engine) sweepWorkingOrders() {
	for _, o := range e.orders {
		switch o.Status {
		case domain.StatusOpen, domain.StatusPendingExecution, domain.StatusTriggerPending:
		default:
			continue
		}
		ltp := e.ltpFor(o.TradingSymbol)
		if ltp <= 0 {
			continue
		}
		isBuy := o.TransactionType == domain.TransactionBuy
		switch {
		case o.OrderType == domain.OrderTypeLimit:
			if (isBuy && ltp <= o.Price) || (!isBuy && ltp >= o.Price) {
				e.executeTrade(o, o.Price)
			}
		case o.OrderType == domain.OrderTypeSL:
			if (isBuy && ltp >= o.TriggerPrice) || (!isBuy && ltp <= o.TriggerPrice) {
				e.executeTrade(o, ltp)
			}
		case o.Status == domain.StatusPendingExecution:
			e.executeTrade(o, ltp)
		}
	}
}

// executeTrade fills the order in full at price and adjusts the book.
// Callers hold e.mu.
func (e *Engine) executeTrade(order *domain.RawOrder, price float64) {
	if price <= 0 {
		if ltp := e.ltpFor(order.TradingSymbol); ltp > 0 {
			price = ltp
		} else {
			return
		}
	}

	symbol := order.TradingSymbol
	qty := order.Quantity
	tradeValue := float64(qty) * price
	pos := e.positions[symbol]

	if order.TransactionType == domain.TransactionBuy {
		e.balance -= tradeValue
		if pos == nil {
			pos = &ledgerPosition{
				TradingSymbol: symbol,
				Exchange:      order.Exchange,
				Product:       order.Product,
				LastPrice:     price,
			}
			e.positions[symbol] = pos
		}
		newTotalCost := pos.AveragePrice*float64(pos.Quantity) + tradeValue
		pos.Quantity += qty
		if pos.Quantity != 0 {
			pos.AveragePrice = newTotalCost / float64(pos.Quantity)
		}
	} else {
		e.balance += tradeValue
		if pos != nil {
			// Realized P&L rides on the order record so the trade journal
			// picks it up downstream.
			order.PnL = (price - pos.AveragePrice) * float64(qty)
			pos.Quantity -= qty
			if pos.Quantity == 0 {
				delete(e.positions, symbol)
			}
		}
	}

	order.Status = domain.StatusComplete
	order.AveragePrice = price
	order.FilledQuantity = qty

	e.log.Info("paper trade executed",
		"side", order.TransactionType, "qty", qty, "symbol", symbol, "price", price)

	if err := e.persist(); err != nil {
		e.log.Error("could not save paper trading state", "err", err)
	}
}

func (e *Engine) persist() error {
	state := LedgerState{
		Balance:   e.balance,
		Positions: make(map[string]ledgerPosition, len(e.positions)),
	}
	for sym, p := range e.positions {
		state.Positions[sym] = *p
	}
	return e.ledger.Save(state)
}
