package position

import (
	"context"
	"errors"
	"testing"

	"scalper/internal/domain"
)

func newOCOFixture(fe *fakeExec, p *domain.Position) (*OCOManager, *Store) {
	s, _, _ := newTestStore(fe)
	s.AddPosition(p)
	return NewOCOManager(s, fe, discard()), s
}

func TestPlaceBracketOrder(t *testing.T) {
	fe := &fakeExec{}
	m, s := newOCOFixture(fe, &domain.Position{
		TradingSymbol: "NIFTY25JUL24000CE",
		Quantity:      75,
		AveragePrice:  100,
		StopLossPrice: 90,
		TargetPrice:   120,
		Exchange:      domain.ExchangeNFO,
		Product:       domain.ProductMIS,
	})

	m.PlaceBracketOrder(context.Background(), "NIFTY25JUL24000CE")

	if len(fe.placed) != 2 {
		t.Fatalf("placed %d legs, want 2", len(fe.placed))
	}
	sl, tgt := fe.placed[0], fe.placed[1]
	if sl.OrderType != domain.OrderTypeSL || sl.TriggerPrice != 90 || sl.TransactionType != domain.TransactionSell {
		t.Errorf("stop leg = %+v", sl)
	}
	if tgt.OrderType != domain.OrderTypeLimit || tgt.Price != 120 {
		t.Errorf("target leg = %+v", tgt)
	}
	p, _ := s.Position("NIFTY25JUL24000CE")
	if p.StopLossOrderID == "" || p.TargetOrderID == "" {
		t.Errorf("leg ids not recorded: %+v", p)
	}
}

func TestBracketLegFailureDoesNotBlockOther(t *testing.T) {
	fe := &fakeExec{placeErrSeq: []error{errors.New("rms limit"), nil}}
	m, s := newOCOFixture(fe, &domain.Position{
		TradingSymbol: "NIFTY25JUL24000CE",
		Quantity:      75,
		StopLossPrice: 90,
		TargetPrice:   120,
	})

	m.PlaceBracketOrder(context.Background(), "NIFTY25JUL24000CE")

	if len(fe.placed) != 1 {
		t.Fatalf("placed %d legs, want 1 (target only)", len(fe.placed))
	}
	p, _ := s.Position("NIFTY25JUL24000CE")
	if p.StopLossOrderID != "" {
		t.Errorf("failed stop leg recorded an id: %q", p.StopLossOrderID)
	}
	if p.TargetOrderID == "" {
		t.Error("surviving target leg not recorded")
	}
}

func TestReconcileLegsCancelsStaleTarget(t *testing.T) {
	fe := &fakeExec{}
	m, s := newOCOFixture(fe, &domain.Position{
		TradingSymbol:   "NIFTY25JUL24000CE",
		Quantity:        75,
		StopLossOrderID: "sl-1",
		TargetOrderID:   "tgt-1",
	})

	m.ReconcileLegs(context.Background(), []domain.RawOrder{
		{OrderID: "sl-1", Status: domain.StatusComplete},
		{OrderID: "tgt-1", Status: domain.StatusOpen},
	})

	if len(fe.cancelled) != 1 || fe.cancelled[0] != "tgt-1" {
		t.Errorf("cancelled = %v, want [tgt-1]", fe.cancelled)
	}
	p, _ := s.Position("NIFTY25JUL24000CE")
	if p.StopLossOrderID != "" || p.TargetOrderID != "" {
		t.Errorf("leg ids not cleared: %+v", p)
	}
}

func TestReconcileLegsCancelsStaleStop(t *testing.T) {
	fe := &fakeExec{}
	m, s := newOCOFixture(fe, &domain.Position{
		TradingSymbol:   "NIFTY25JUL24000CE",
		Quantity:        75,
		StopLossOrderID: "sl-1",
		TargetOrderID:   "tgt-1",
	})

	m.ReconcileLegs(context.Background(), []domain.RawOrder{
		{OrderID: "tgt-1", Status: domain.StatusComplete},
	})

	if len(fe.cancelled) != 1 || fe.cancelled[0] != "sl-1" {
		t.Errorf("cancelled = %v, want [sl-1]", fe.cancelled)
	}
	p, _ := s.Position("NIFTY25JUL24000CE")
	if p.StopLossOrderID != "" || p.TargetOrderID != "" {
		t.Errorf("leg ids not cleared: %+v", p)
	}
}

func TestReconcileLegsBothWorkingIsNoop(t *testing.T) {
	fe := &fakeExec{}
	m, s := newOCOFixture(fe, &domain.Position{
		TradingSymbol:   "NIFTY25JUL24000CE",
		Quantity:        75,
		StopLossOrderID: "sl-1",
		TargetOrderID:   "tgt-1",
	})

	m.ReconcileLegs(context.Background(), []domain.RawOrder{
		{OrderID: "sl-1", Status: domain.StatusTriggerPending},
		{OrderID: "tgt-1", Status: domain.StatusOpen},
	})

	if len(fe.cancelled) != 0 {
		t.Errorf("cancelled working legs: %v", fe.cancelled)
	}
	p, _ := s.Position("NIFTY25JUL24000CE")
	if p.StopLossOrderID != "sl-1" || p.TargetOrderID != "tgt-1" {
		t.Errorf("working leg ids dropped: %+v", p)
	}
}

func TestReconcileLegsCancelFailureIsBestEffort(t *testing.T) {
	fe := &fakeExec{cancelErr: errors.New("order already executed")}
	m, s := newOCOFixture(fe, &domain.Position{
		TradingSymbol:   "NIFTY25JUL24000CE",
		Quantity:        75,
		StopLossOrderID: "sl-1",
		TargetOrderID:   "tgt-1",
	})

	m.ReconcileLegs(context.Background(), []domain.RawOrder{
		{OrderID: "sl-1", Status: domain.StatusComplete},
	})

	// The cancel failed, but the invariant holds locally: no position keeps
	// two live leg ids after the pass.
	p, _ := s.Position("NIFTY25JUL24000CE")
	if p.StopLossOrderID != "" || p.TargetOrderID != "" {
		t.Errorf("leg ids retained after failed cancel: %+v", p)
	}
}

func TestUpdateProtection(t *testing.T) {
	fe := &fakeExec{}
	m, s := newOCOFixture(fe, &domain.Position{
		TradingSymbol:    "NIFTY25JUL24000CE",
		Quantity:         75,
		StopLossPrice:    90,
		TargetPrice:      120,
		TrailingStopLoss: 5,
		TrailingSteps:    2,
		StopLossOrderID:  "sl-old",
		TargetOrderID:    "tgt-old",
	})

	m.UpdateProtection(context.Background(), "NIFTY25JUL24000CE", 95, 0, 10)

	if len(fe.cancelled) != 2 {
		t.Errorf("cancelled = %v, want both old legs", fe.cancelled)
	}
	p, _ := s.Position("NIFTY25JUL24000CE")
	if p.StopLossPrice != 95 || p.TargetPrice != 0 || p.TrailingStopLoss != 10 {
		t.Errorf("protective fields = %+v", p)
	}
	if p.TrailingSteps != 0 {
		t.Errorf("trailing steps not reset: %d", p.TrailingSteps)
	}
	// Only the stop leg re-issues; the target was cleared.
	if len(fe.placed) != 1 || fe.placed[0].OrderType != domain.OrderTypeSL {
		t.Errorf("reissued legs = %+v", fe.placed)
	}
	if p.StopLossOrderID == "" || p.TargetOrderID != "" {
		t.Errorf("leg ids after update = %+v", p)
	}
}

func TestUpdateProtectionMissingPosition(t *testing.T) {
	fe := &fakeExec{}
	s, _, _ := newTestStore(fe)
	m := NewOCOManager(s, fe, discard())

	m.UpdateProtection(context.Background(), "GONE", 95, 120, 0)

	if len(fe.placed) != 0 || len(fe.cancelled) != 0 {
		t.Errorf("orders touched for a closed position: placed %v cancelled %v", fe.placed, fe.cancelled)
	}
}
