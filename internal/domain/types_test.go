package domain

import "testing"

func TestUpdatePnL(t *testing.T) {
	p := Position{TradingSymbol: "NIFTY25JUL24000CE", Quantity: 50, AveragePrice: 120.0}

	p.UpdatePnL(125.5)
	if p.LastPrice != 125.5 {
		t.Errorf("LastPrice = %v, want 125.5", p.LastPrice)
	}
	if got, want := p.PnL, (125.5-120.0)*50; got != want {
		t.Errorf("PnL = %v, want %v", got, want)
	}

	// Short positions accrue inverse P&L.
	s := Position{Quantity: -25, AveragePrice: 100.0}
	s.UpdatePnL(90.0)
	if got, want := s.PnL, (90.0-100.0)*-25; got != want {
		t.Errorf("short PnL = %v, want %v", got, want)
	}
}

func TestIsPendingStatus(t *testing.T) {
	pending := []string{StatusOpen, StatusTriggerPending, StatusAMOReceived}
	for _, s := range pending {
		if !IsPendingStatus(s) {
			t.Errorf("IsPendingStatus(%q) = false, want true", s)
		}
	}
	terminal := []string{StatusComplete, StatusRejected, StatusCancelled, "BOGUS", ""}
	for _, s := range terminal {
		if IsPendingStatus(s) {
			t.Errorf("IsPendingStatus(%q) = true, want false", s)
		}
	}
}

func TestPendingOrderFromRaw(t *testing.T) {
	raw := RawOrder{
		OrderID:         "230915000001",
		TradingSymbol:   "NIFTY2571024000CE",
		TransactionType: TransactionSell,
		Quantity:        50,
		Price:           115.25,
		TriggerPrice:    110.0,
		OrderType:       OrderTypeSL,
		Product:         ProductMIS,
		Exchange:        ExchangeNFO,
		Status:          StatusTriggerPending,
	}
	po := PendingOrderFromRaw(raw)
	if po.OrderID != raw.OrderID || po.TradingSymbol != raw.TradingSymbol {
		t.Errorf("identity fields lost in conversion: %+v", po)
	}
	if po.TriggerPrice != 110.0 || po.Status != StatusTriggerPending {
		t.Errorf("conversion dropped trigger/status: %+v", po)
	}
}

func TestContractArena(t *testing.T) {
	data := InstrumentData{
		"NIFTY": {
			LotSize:  50,
			TickSize: 0.05,
			Instruments: []Contract{
				{Symbol: "NIFTY", TradingSymbol: "NIFTY25JUL24000CE", InstrumentToken: 101, Strike: 24000, Kind: OptionCall, LotSize: 50},
				{Symbol: "NIFTY", TradingSymbol: "NIFTY25JUL24000PE", InstrumentToken: 102, Strike: 24000, Kind: OptionPut, LotSize: 50},
			},
		},
	}
	arena := NewContractArena(data)

	if arena.Len() != 2 {
		t.Fatalf("Len = %d, want 2", arena.Len())
	}
	c, ok := arena.ByToken(101)
	if !ok || c.TradingSymbol != "NIFTY25JUL24000CE" {
		t.Errorf("ByToken(101) = %+v, %v", c, ok)
	}
	c, ok = arena.ByTradingSymbol("NIFTY25JUL24000PE")
	if !ok || c.InstrumentToken != 102 {
		t.Errorf("ByTradingSymbol = %+v, %v", c, ok)
	}
	if _, ok := arena.ByToken(999); ok {
		t.Error("ByToken(999) should miss")
	}
}

func TestCancelResultString(t *testing.T) {
	cases := map[CancelResult]string{
		CancelDone:            "cancelled",
		CancelAlreadyTerminal: "already terminal",
		CancelNotFound:        "not found",
	}
	for r, want := range cases {
		if r.String() != want {
			t.Errorf("CancelResult(%d).String() = %q, want %q", r, r.String(), want)
		}
	}
}
