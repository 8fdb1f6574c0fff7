package broker

import (
	"context"
	"fmt"
	"time"

	"scalper/internal/domain"
	"scalper/internal/util"
)

// ConfirmOrder polls the order list until the given order reaches an
// acceptable working or terminal status. It returns the raw order record on
// success. A REJECTED status returns an OrderRejectedError immediately; an
// order that never shows up within the retry budget returns an error.
func ConfirmOrder(ctx context.Context, exec Execution, orderID string, retries int, delay time.Duration) (domain.RawOrder, error) {
	var found domain.RawOrder
	var rejected *OrderRejectedError

	err := util.Retry(ctx, retries, delay, func() error {
		orders, err := exec.Orders(ctx)
		if err != nil {
			return err
		}
		for _, o := range orders {
			if o.OrderID != orderID {
				continue
			}
			switch o.Status {
			case domain.StatusComplete, domain.StatusOpen, domain.StatusTriggerPending, domain.StatusAMOReceived:
				found = o
				return nil
			case domain.StatusRejected:
				rejected = &OrderRejectedError{OrderID: orderID, Reason: o.StatusMessage}
				return nil
			}
		}
		return fmt.Errorf("order %s not confirmed yet", orderID)
	})

	if rejected != nil {
		return domain.RawOrder{}, rejected
	}
	if err != nil {
		return domain.RawOrder{}, fmt.Errorf("confirming order %s: %w", orderID, err)
	}
	return found, nil
}
