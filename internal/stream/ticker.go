package stream

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"scalper/internal/domain"
)

const (
	readLimit   = 5 * 1024 * 1024
	writeWindow = 10 * time.Second
)

// KiteTicker is the Transport over the broker's binary quote stream. Ticks
// arrive as binary frames packing one or more quote packets; control
// messages (subscribe, mode) go out as JSON text frames.
type KiteTicker struct {
	url    string
	dialer *websocket.Dialer
	log    *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

var _ Transport = (*KiteTicker)(nil)

// NewKiteTicker builds a ticker transport. tickerURL is the base websocket
// endpoint; credentials travel as query parameters.
func NewKiteTicker(tickerURL, apiKey, accessToken string, log *slog.Logger) *KiteTicker {
	u, err := url.Parse(tickerURL)
	if err == nil {
		q := u.Query()
		q.Set("api_key", apiKey)
		q.Set("access_token", accessToken)
		u.RawQuery = q.Encode()
		tickerURL = u.String()
	}
	return &KiteTicker{
		url:    tickerURL,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:    log,
	}
}

func (t *KiteTicker) Connect(ctx context.Context) error {
	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return fmt.Errorf("ticker dial: %w", err)
	}
	conn.SetReadLimit(readLimit)

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	return nil
}

func (t *KiteTicker) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Subscribe registers tokens and pins them to LTP mode; the risk engine
// only needs last prices.
func (t *KiteTicker) Subscribe(tokens []int64) error {
	if err := t.send(map[string]any{"a": "subscribe", "v": tokens}); err != nil {
		return err
	}
	return t.send(map[string]any{"a": "mode", "v": []any{"ltp", tokens}})
}

func (t *KiteTicker) Unsubscribe(tokens []int64) error {
	return t.send(map[string]any{"a": "unsubscribe", "v": tokens})
}

func (t *KiteTicker) send(msg any) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("ticker not connected")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWindow))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// Receive blocks until a binary tick frame arrives. Text frames carry order
// postbacks and error notices; they are logged and skipped. Empty binary
// frames are the server's heartbeat and yield an empty batch.
func (t *KiteTicker) Receive(ctx context.Context) ([]domain.Tick, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("ticker not connected")
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		switch msgType {
		case websocket.BinaryMessage:
			if len(data) < 2 {
				return nil, nil // heartbeat
			}
			return parseBinaryFrame(data), nil
		case websocket.TextMessage:
			t.log.Debug("ticker text message", "payload", string(data))
		}
	}
}

// parseBinaryFrame decodes a quote frame: a two-byte packet count, then for
// each packet a two-byte length and the packet body. The first eight bytes
// of every packet are the instrument token and the last traded price in
// paise, which is all LTP mode carries.
func parseBinaryFrame(data []byte) []domain.Tick {
	count := int(binary.BigEndian.Uint16(data[0:2]))
	ticks := make([]domain.Tick, 0, count)
	offset := 2
	now := time.Now()

	for i := 0; i < count; i++ {
		if offset+2 > len(data) {
			break
		}
		length := int(binary.BigEndian.Uint16(data[offset : offset+2]))
		offset += 2
		if offset+length > len(data) || length < 8 {
			break
		}
		packet := data[offset : offset+length]
		offset += length

		token := int64(binary.BigEndian.Uint32(packet[0:4]))
		ltp := float64(binary.BigEndian.Uint32(packet[4:8])) / 100.0
		ticks = append(ticks, domain.Tick{
			InstrumentToken: token,
			LastPrice:       ltp,
			Timestamp:       now,
		})
	}
	return ticks
}
