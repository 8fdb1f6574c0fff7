// Package broker defines the Execution interface the trading core places
// orders through, and provides the real broker client implementation. The
// paper matching engine implements the same interface.
package broker

import (
	"context"
	"fmt"

	"scalper/internal/domain"
)

// OrderParams carries everything needed to place one order.
type OrderParams struct {
	Variety         string
	Exchange        string
	TradingSymbol   string
	TransactionType string
	Quantity        int
	Product         string
	OrderType       string
	Price           float64 // limit price; 0 for market orders
	TriggerPrice    float64 // for SL orders; 0 otherwise
}

// Execution abstracts order execution and account queries. It is implemented
// by the real broker client and by the paper matching engine; the trading
// core never knows which one it is talking to.
type Execution interface {
	// PlaceOrder submits an order and returns the broker order id.
	PlaceOrder(ctx context.Context, p OrderParams) (string, error)

	// CancelOrder requests cancellation of an order. The outcome is reported
	// as a value so that best-effort callers can branch without matching
	// error types.
	CancelOrder(ctx context.Context, variety, orderID string) (domain.CancelResult, error)

	// Positions returns the broker's current net position list.
	Positions(ctx context.Context) ([]domain.RawPosition, error)

	// Orders returns the broker's order list for the day.
	Orders(ctx context.Context) ([]domain.RawOrder, error)

	// Margins returns the account's equity margin snapshot.
	Margins(ctx context.Context) (domain.MarginSnapshot, error)

	// Profile returns the account identity.
	Profile(ctx context.Context) (domain.Profile, error)
}

// APIError wraps a failed broker call with the endpoint it hit. Reconciliation
// treats these as transient: state is kept stale rather than cleared.
type APIError struct {
	Endpoint string
	Status   int // HTTP status; 0 when the request never completed
	Message  string
	Err      error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("broker %s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("broker %s: status %d: %s", e.Endpoint, e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// OrderRejectedError reports that the broker explicitly rejected an order.
// It is surfaced to the caller and never retried automatically.
type OrderRejectedError struct {
	OrderID string
	Reason  string
}

func (e *OrderRejectedError) Error() string {
	return fmt.Sprintf("order %s rejected: %s", e.OrderID, e.Reason)
}
