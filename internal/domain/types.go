// Package domain defines the typed core model shared across the terminal:
// contracts, positions, pending orders, ticks, and the raw records exchanged
// with the broker boundary.
package domain

import (
	"errors"
	"time"
)

// ErrPositionNotFound is returned when an operation references a trading
// symbol that has no open position.
var ErrPositionNotFound = errors.New("position not found")

// Exchange codes.
const (
	ExchangeNFO = "NFO"
	ExchangeNSE = "NSE"
)

// Product types.
const (
	ProductMIS  = "MIS"
	ProductNRML = "NRML"
)

// Order types.
const (
	OrderTypeMarket = "MARKET"
	OrderTypeLimit  = "LIMIT"
	OrderTypeSL     = "SL"
)

// Transaction types.
const (
	TransactionBuy  = "BUY"
	TransactionSell = "SELL"
)

// VarietyRegular is the only order variety the terminal places.
const VarietyRegular = "regular"

// Broker order status vocabulary. These are the exact strings the broker
// reports; they are matched verbatim, never parsed.
const (
	StatusOpen             = "OPEN"
	StatusTriggerPending   = "TRIGGER PENDING"
	StatusAMOReceived      = "AMO REQ RECEIVED"
	StatusComplete         = "COMPLETE"
	StatusRejected         = "REJECTED"
	StatusCancelled        = "CANCELLED"
	StatusPendingExecution = "PENDING EXECUTION"
)

// IsPendingStatus reports whether a broker order status counts as
// non-terminal, i.e. the order is still working at the exchange.
func IsPendingStatus(status string) bool {
	switch status {
	case StatusOpen, StatusTriggerPending, StatusAMOReceived:
		return true
	}
	return false
}

// OptionKind identifies the option leg type of a contract.
type OptionKind string

const (
	OptionCall OptionKind = "CE"
	OptionPut  OptionKind = "PE"
	OptionNone OptionKind = ""
)

// Contract is the immutable description of a tradable instrument. Contracts
// are created once when instrument metadata loads and never mutated; live
// code refers to them by instrument token through a ContractArena.
type Contract struct {
	Symbol          string     `yaml:"symbol"` // underlying, e.g. "NIFTY"
	Strike          float64    `yaml:"strike"`
	Kind            OptionKind `yaml:"kind"`
	Expiry          time.Time  `yaml:"expiry"`
	TradingSymbol   string     `yaml:"trading_symbol"`
	InstrumentToken int64      `yaml:"instrument_token"`
	LotSize         int        `yaml:"lot_size"`
}

// Position is the mutable record of an open position, keyed by trading
// symbol. It holds the contract's instrument token rather than a contract
// reference so that ownership stays acyclic.
type Position struct {
	TradingSymbol   string
	Symbol          string // underlying
	InstrumentToken int64  // 0 when no instrument metadata matched
	Quantity        int    // signed; positive = long
	AveragePrice    float64
	LastPrice       float64
	PnL             float64
	Exchange        string
	Product         string

	// OrderID is the entry order that opened the position, when known.
	OrderID string

	// Protective parameters. Zero means not configured.
	StopLossPrice    float64
	TargetPrice      float64
	TrailingStopLoss float64 // trailing distance in points

	// TrailingSteps counts how many full trailing increments the position
	// has ratcheted through. The stop only ever moves in the profitable
	// direction.
	TrailingSteps int

	// Protective order legs currently working at the broker.
	StopLossOrderID string
	TargetOrderID   string

	// ExitInProgress is set while a market exit has been submitted but the
	// position has not yet been removed. While set, the position receives no
	// price updates and no further exit submissions.
	ExitInProgress bool
}

// UpdatePnL applies a new last traded price and recomputes floating P&L.
func (p *Position) UpdatePnL(ltp float64) {
	p.LastPrice = ltp
	p.PnL = (ltp - p.AveragePrice) * float64(p.Quantity)
}

// PendingOrder is a broker-reported order in a non-terminal state. The set
// is replaced wholesale on each reconciliation pass.
type PendingOrder struct {
	OrderID         string
	TradingSymbol   string
	TransactionType string
	Quantity        int
	Price           float64
	TriggerPrice    float64
	OrderType       string
	Product         string
	Exchange        string
	Status          string
}

// Tick is one streamed market-data update for an instrument.
type Tick struct {
	InstrumentToken int64     `json:"instrument_token"`
	LastPrice       float64   `json:"last_price"`
	Volume          int64     `json:"volume"`
	Timestamp       time.Time `json:"timestamp"`
}

// MarginSnapshot summarises the account's equity margins.
type MarginSnapshot struct {
	Net       float64
	Utilised  float64
	Available float64
}

// Profile identifies the broker account.
type Profile struct {
	UserID string
}

// CancelResult describes the outcome of a best-effort order cancellation.
// The OCO manager branches on these values rather than on error types.
type CancelResult int

const (
	// CancelDone: the order was open and has been cancelled.
	CancelDone CancelResult = iota
	// CancelAlreadyTerminal: the order had already completed, rejected, or
	// been cancelled; nothing to do.
	CancelAlreadyTerminal
	// CancelNotFound: the broker does not know the order id.
	CancelNotFound
)

func (r CancelResult) String() string {
	switch r {
	case CancelDone:
		return "cancelled"
	case CancelAlreadyTerminal:
		return "already terminal"
	case CancelNotFound:
		return "not found"
	}
	return "unknown"
}
