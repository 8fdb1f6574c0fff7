// Package stream manages the push market-data connection: subscription
// diffing, heartbeat staleness detection, and automatic reconnection. The
// supervisor is an explicit state machine driving a bounded tick channel
// consumed by a single sequential processor.
package stream

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"scalper/internal/domain"
)

// ConnState is the supervisor's connection state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// Transport is the underlying push connection. Receive blocks until a tick
// batch arrives or the connection fails; a forced Close makes a blocked
// Receive return an error, which is how silent half-open sockets are
// converted into observable disconnects.
type Transport interface {
	Connect(ctx context.Context) error
	Close() error
	Subscribe(tokens []int64) error
	Unsubscribe(tokens []int64) error
	Receive(ctx context.Context) ([]domain.Tick, error)
}

// Config holds the supervisor's timing parameters.
type Config struct {
	ReconnectDelay    time.Duration
	HeartbeatInterval time.Duration
	StaleAfter        time.Duration
}

// Supervisor owns one transport and keeps it connected and subscribed.
type Supervisor struct {
	transport Transport
	log       *slog.Logger
	cfg       Config

	mu         sync.Mutex
	desired    map[int64]struct{} // the set consumers want
	subscribed map[int64]struct{} // the set applied on the wire

	state      atomic.Int32
	lastTick   atomic.Int64 // unix nanos of the last received batch
	reconnects atomic.Int64

	ticks  chan []domain.Tick
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSupervisor builds a supervisor around a transport. Zero config fields
// get sensible defaults.
func NewSupervisor(transport Transport, log *slog.Logger, cfg Config) *Supervisor {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 30 * time.Second
	}
	return &Supervisor{
		transport:  transport,
		log:        log,
		cfg:        cfg,
		desired:    make(map[int64]struct{}),
		subscribed: make(map[int64]struct{}),
		ticks:      make(chan []domain.Tick, 256),
	}
}

// Ticks is the bounded channel tick batches arrive on. When the consumer
// falls behind, the oldest batch is dropped rather than blocking the
// read loop.
func (s *Supervisor) Ticks() <-chan []domain.Tick {
	return s.ticks
}

// State returns the current connection state.
func (s *Supervisor) State() ConnState {
	return ConnState(s.state.Load())
}

// Reconnects returns how many reconnect cycles have run.
func (s *Supervisor) Reconnects() int64 {
	return s.reconnects.Load()
}

// Start launches the connection loop and the heartbeat watchdog.
func (s *Supervisor) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(2)
	go s.run(ctx)
	go s.watchdog(ctx)
}

// Stop shuts the supervisor down: watchdog and reconnect loop first, then
// the transport.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.transport.Close()
	s.wg.Wait()
	s.state.Store(int32(StateDisconnected))
}

// SetSubscriptions declares the instrument set consumers want. Against an
// established connection only the diff goes on the wire: new tokens are
// subscribed, vanished tokens unsubscribed. In append mode nothing is ever
// removed. While disconnected the set is stored and applied in full once
// the connection opens.
func (s *Supervisor) SetSubscriptions(tokens []int64, appendMode bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[int64]struct{}, len(tokens))
	if appendMode {
		for t := range s.desired {
			want[t] = struct{}{}
		}
	}
	for _, t := range tokens {
		want[t] = struct{}{}
	}
	s.desired = want

	if s.State() != StateConnected {
		return
	}

	var add, remove []int64
	for t := range want {
		if _, ok := s.subscribed[t]; !ok {
			add = append(add, t)
		}
	}
	if !appendMode {
		for t := range s.subscribed {
			if _, ok := want[t]; !ok {
				remove = append(remove, t)
			}
		}
	}
	sort.Slice(add, func(i, j int) bool { return add[i] < add[j] })
	sort.Slice(remove, func(i, j int) bool { return remove[i] < remove[j] })

	if len(add) > 0 {
		if err := s.transport.Subscribe(add); err != nil {
			s.log.Error("subscribe failed", "tokens", add, "error", err)
		} else {
			for _, t := range add {
				s.subscribed[t] = struct{}{}
			}
		}
	}
	if len(remove) > 0 {
		if err := s.transport.Unsubscribe(remove); err != nil {
			s.log.Error("unsubscribe failed", "tokens", remove, "error", err)
		} else {
			for _, t := range remove {
				delete(s.subscribed, t)
			}
		}
	}
}

// --- internal loops ---

func (s *Supervisor) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		if ctx.Err() != nil {
			s.state.Store(int32(StateDisconnected))
			return
		}
		s.state.Store(int32(StateConnecting))
		if err := s.transport.Connect(ctx); err != nil {
			s.log.Error("connect failed", "error", err)
			if !s.backoff(ctx) {
				return
			}
			continue
		}
		s.log.Info("market data connected")
		s.lastTick.Store(time.Now().UnixNano())
		s.state.Store(int32(StateConnected))
		s.applyDesired()

		s.readLoop(ctx)

		if ctx.Err() != nil {
			s.state.Store(int32(StateDisconnected))
			return
		}
		s.reconnects.Add(1)
		s.log.Warn("market data disconnected, reconnecting", "attempt", s.reconnects.Load())
		if !s.backoff(ctx) {
			return
		}
	}
}

func (s *Supervisor) readLoop(ctx context.Context) {
	for {
		batch, err := s.transport.Receive(ctx)
		if err != nil {
			return
		}
		if len(batch) == 0 {
			continue
		}
		s.lastTick.Store(time.Now().UnixNano())
		select {
		case s.ticks <- batch:
		default:
			// Consumer is behind; drop the oldest batch to make room.
			select {
			case <-s.ticks:
			default:
			}
			select {
			case s.ticks <- batch:
			default:
			}
			s.log.Warn("tick channel full, dropped a batch")
		}
	}
}

// watchdog forces a close when no tick has arrived within the staleness
// window while nominally connected. The forced close fails the blocked
// Receive, and the run loop reconnects.
func (s *Supervisor) watchdog(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.State() != StateConnected {
				continue
			}
			last := time.Unix(0, s.lastTick.Load())
			if time.Since(last) > s.cfg.StaleAfter {
				s.log.Warn("no ticks within staleness window, forcing reconnect",
					"last_tick", last.Format(time.RFC3339))
				s.transport.Close()
			}
		}
	}
}

// applyDesired pushes the full desired set onto a freshly opened connection.
func (s *Supervisor) applyDesired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribed = make(map[int64]struct{}, len(s.desired))
	if len(s.desired) == 0 {
		return
	}
	tokens := make([]int64, 0, len(s.desired))
	for t := range s.desired {
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })
	if err := s.transport.Subscribe(tokens); err != nil {
		s.log.Error("initial subscribe failed", "error", err)
		return
	}
	for _, t := range tokens {
		s.subscribed[t] = struct{}{}
	}
}

// backoff sleeps the reconnect delay; false means the context ended.
func (s *Supervisor) backoff(ctx context.Context) bool {
	s.state.Store(int32(StateReconnecting))
	select {
	case <-ctx.Done():
		s.state.Store(int32(StateDisconnected))
		return false
	case <-time.After(s.cfg.ReconnectDelay):
		return true
	}
}
