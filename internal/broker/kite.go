package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"scalper/internal/domain"
	"scalper/internal/util"
)

// Compile-time interface check.
var _ Execution = (*KiteClient)(nil)

// KiteClient implements Execution against the Kite Connect REST API.
type KiteClient struct {
	apiKey      string
	accessToken string
	baseURL     string
	httpClient  *http.Client
	orderLimit  *util.RateLimiter
}

// NewKiteClient creates a client with the given credentials. ordersPerMinute
// caps order submissions to stay under the exchange rate limit.
func NewKiteClient(apiKey, accessToken, baseURL string, ordersPerMinute int) *KiteClient {
	return &KiteClient{
		apiKey:      apiKey,
		accessToken: accessToken,
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		orderLimit:  util.NewRateLimiter(ordersPerMinute),
	}
}

// envelope is the standard Kite response wrapper.
type envelope struct {
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

func (c *KiteClient) do(ctx context.Context, method, endpoint string, form url.Values) (json.RawMessage, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, &APIError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("X-Kite-Version", "3")
	req.Header.Set("Authorization", "token "+c.apiKey+":"+c.accessToken)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Endpoint: endpoint, Status: resp.StatusCode, Err: err}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &APIError{Endpoint: endpoint, Status: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK || env.Status == "error" {
		return nil, &APIError{Endpoint: endpoint, Status: resp.StatusCode, Message: env.Message}
	}
	return env.Data, nil
}

// PlaceOrder submits an order through POST /orders/{variety}.
func (c *KiteClient) PlaceOrder(ctx context.Context, p OrderParams) (string, error) {
	if err := c.orderLimit.Wait(ctx); err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("exchange", p.Exchange)
	form.Set("tradingsymbol", p.TradingSymbol)
	form.Set("transaction_type", p.TransactionType)
	form.Set("quantity", strconv.Itoa(p.Quantity))
	form.Set("product", p.Product)
	form.Set("order_type", p.OrderType)
	if p.Price > 0 {
		form.Set("price", strconv.FormatFloat(p.Price, 'f', 2, 64))
	}
	if p.TriggerPrice > 0 {
		form.Set("trigger_price", strconv.FormatFloat(p.TriggerPrice, 'f', 2, 64))
	}

	data, err := c.do(ctx, http.MethodPost, "/orders/"+p.Variety, form)
	if err != nil {
		return "", err
	}
	var out struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", &APIError{Endpoint: "/orders", Err: fmt.Errorf("decoding order id: %w", err)}
	}
	return out.OrderID, nil
}

// CancelOrder cancels through DELETE /orders/{variety}/{order_id}. A 404 maps
// to CancelNotFound; when the broker refuses because the order already
// reached a terminal state, the order list is consulted to report
// CancelAlreadyTerminal.
func (c *KiteClient) CancelOrder(ctx context.Context, variety, orderID string) (domain.CancelResult, error) {
	_, err := c.do(ctx, http.MethodDelete, "/orders/"+variety+"/"+orderID, nil)
	if err == nil {
		return domain.CancelDone, nil
	}

	apiErr, ok := err.(*APIError)
	if !ok {
		return domain.CancelNotFound, err
	}
	if apiErr.Status == http.StatusNotFound {
		return domain.CancelNotFound, nil
	}

	// The order may have executed or been cancelled between our decision and
	// this call. Check its reported status before treating this as a failure.
	orders, oerr := c.Orders(ctx)
	if oerr == nil {
		for _, o := range orders {
			if o.OrderID == orderID && !domain.IsPendingStatus(o.Status) {
				return domain.CancelAlreadyTerminal, nil
			}
		}
	}
	return domain.CancelNotFound, err
}

// Positions fetches GET /portfolio/positions and returns the net list.
func (c *KiteClient) Positions(ctx context.Context) ([]domain.RawPosition, error) {
	data, err := c.do(ctx, http.MethodGet, "/portfolio/positions", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Net []domain.RawPosition `json:"net"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &APIError{Endpoint: "/portfolio/positions", Err: fmt.Errorf("decoding positions: %w", err)}
	}
	return out.Net, nil
}

// Orders fetches GET /orders.
func (c *KiteClient) Orders(ctx context.Context) ([]domain.RawOrder, error) {
	data, err := c.do(ctx, http.MethodGet, "/orders", nil)
	if err != nil {
		return nil, err
	}
	var out []domain.RawOrder
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &APIError{Endpoint: "/orders", Err: fmt.Errorf("decoding orders: %w", err)}
	}
	return out, nil
}

// Margins fetches GET /user/margins and flattens the equity segment.
func (c *KiteClient) Margins(ctx context.Context) (domain.MarginSnapshot, error) {
	data, err := c.do(ctx, http.MethodGet, "/user/margins", nil)
	if err != nil {
		return domain.MarginSnapshot{}, err
	}
	var out struct {
		Equity struct {
			Net      float64 `json:"net"`
			Utilised struct {
				Total float64 `json:"total"`
			} `json:"utilised"`
			Available struct {
				LiveBalance float64 `json:"live_balance"`
			} `json:"available"`
		} `json:"equity"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return domain.MarginSnapshot{}, &APIError{Endpoint: "/user/margins", Err: fmt.Errorf("decoding margins: %w", err)}
	}
	return domain.MarginSnapshot{
		Net:       out.Equity.Net,
		Utilised:  out.Equity.Utilised.Total,
		Available: out.Equity.Available.LiveBalance,
	}, nil
}

// Profile fetches GET /user/profile.
func (c *KiteClient) Profile(ctx context.Context) (domain.Profile, error) {
	data, err := c.do(ctx, http.MethodGet, "/user/profile", nil)
	if err != nil {
		return domain.Profile{}, err
	}
	var out struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return domain.Profile{}, &APIError{Endpoint: "/user/profile", Err: fmt.Errorf("decoding profile: %w", err)}
	}
	return domain.Profile{UserID: out.UserID}, nil
}
