package domain

// Raw broker payloads. The broker reports positions and orders as loosely
// structured records; these structs pin the fields the core consumes at the
// boundary so that no untyped payload travels deeper than the conversion
// layer.

// RawPosition is one entry of the broker's net position list.
type RawPosition struct {
	TradingSymbol   string  `json:"tradingsymbol"`
	Exchange        string  `json:"exchange"`
	Product         string  `json:"product"`
	InstrumentToken int64   `json:"instrument_token"`
	Quantity        int     `json:"quantity"`
	AveragePrice    float64 `json:"average_price"`
	LastPrice       float64 `json:"last_price"`
	PnL             float64 `json:"pnl"`
}

// RawOrder is one entry of the broker's order list.
type RawOrder struct {
	OrderID         string  `json:"order_id"`
	TradingSymbol   string  `json:"tradingsymbol"`
	Exchange        string  `json:"exchange"`
	Product         string  `json:"product"`
	TransactionType string  `json:"transaction_type"`
	OrderType       string  `json:"order_type"`
	Quantity        int     `json:"quantity"`
	FilledQuantity  int     `json:"filled_quantity"`
	Price           float64 `json:"price"`
	TriggerPrice    float64 `json:"trigger_price"`
	AveragePrice    float64 `json:"average_price"`
	Status          string  `json:"status"`
	StatusMessage   string  `json:"status_message"`
	OrderTimestamp  string  `json:"order_timestamp"`

	// PnL is populated only by the paper engine on closing fills; the live
	// broker does not report per-order P&L.
	PnL float64 `json:"pnl,omitempty"`
}

// PendingOrderFromRaw converts a raw broker order into the internal pending
// order model. Callers filter on status first; this is a plain field map.
func PendingOrderFromRaw(o RawOrder) PendingOrder {
	return PendingOrder{
		OrderID:         o.OrderID,
		TradingSymbol:   o.TradingSymbol,
		TransactionType: o.TransactionType,
		Quantity:        o.Quantity,
		Price:           o.Price,
		TriggerPrice:    o.TriggerPrice,
		OrderType:       o.OrderType,
		Product:         o.Product,
		Exchange:        o.Exchange,
		Status:          o.Status,
	}
}
