package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"scalper/internal/broker"
	"scalper/internal/config"
	"scalper/internal/domain"
	"scalper/internal/history"
	"scalper/internal/paper"
	"scalper/internal/position"
	"scalper/internal/record"
	"scalper/internal/stream"
	"scalper/internal/util"
)

var version = "dev"

func main() {
	var cfgPath string

	root := &cobra.Command{
		Use:           "scalper",
		Short:         "Options scalping terminal core",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", defaultConfigPath(), "path to YAML config")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the trading terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}

	var historyDate string
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show the trade journal and session performance",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return showHistory(cfg, historyDate)
		},
	}
	historyCmd.Flags().StringVar(&historyDate, "date", "", "restrict to one date (YYYY-MM-DD)")

	var req orderRequest
	orderCmd := &cobra.Command{
		Use:   "order",
		Short: "Place one order and wait for broker confirmation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return placeOrder(cmd.Context(), cfg, req)
		},
	}
	orderCmd.Flags().StringVar(&req.Symbol, "symbol", "", "trading symbol")
	orderCmd.Flags().StringVar(&req.Side, "side", "BUY", "BUY or SELL")
	orderCmd.Flags().IntVar(&req.Quantity, "qty", 0, "quantity")
	orderCmd.Flags().Float64Var(&req.Price, "price", 0, "limit price; 0 places a market order")
	orderCmd.Flags().Float64Var(&req.StopLoss, "sl", 0, "stop-loss price; places a protective SL leg after the fill")
	orderCmd.Flags().Float64Var(&req.Target, "target", 0, "target price; places a protective limit leg after the fill")
	orderCmd.Flags().Float64Var(&req.Trailing, "trailing", 0, "trailing stop distance in points")
	orderCmd.MarkFlagRequired("symbol")
	orderCmd.MarkFlagRequired("qty")

	var exitSymbol string
	exitCmd := &cobra.Command{
		Use:   "exit",
		Short: "Close open positions at market",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return exitPositions(cmd.Context(), cfg, exitSymbol)
		},
	}
	exitCmd.Flags().StringVar(&exitSymbol, "symbol", "", "close only this symbol; default closes everything")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(*cobra.Command, []string) {
			fmt.Printf("scalper %s\n", version)
		},
	}

	root.AddCommand(runCmd, orderCmd, exitCmd, historyCmd, versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "scalper: %v\n", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("SCALPER_CONFIG"); p != "" {
		return p
	}
	return "config/scalper.yaml"
}

// run wires the terminal together and blocks until the context ends.
func run(ctx context.Context, cfg *config.Config) error {
	log := util.NewLogger(cfg.Logging.Level)
	log.Info("scalper starting", "version", version, "paper_mode", cfg.Trading.PaperMode)

	journal, err := history.OpenJournal(cfg.Storage.TradeDBPath)
	if err != nil {
		return fmt.Errorf("opening trade journal: %w", err)
	}
	defer journal.Close()

	pnlLog, err := history.OpenPnlLog(cfg.Storage.PnlDBPath)
	if err != nil {
		return fmt.Errorf("opening pnl log: %w", err)
	}
	defer pnlLog.Close()

	instruments, arena := loadInstruments(cfg, log)

	var exec broker.Execution
	var paperEngine *paper.Engine
	if cfg.Trading.PaperMode {
		paperEngine, err = paper.NewEngine(cfg.Storage.PaperLedgerPath, cfg.Trading.PaperBalance, log)
		if err != nil {
			return fmt.Errorf("starting paper engine: %w", err)
		}
		paperEngine.SetInstrumentData(instruments)
		exec = paperEngine
		log.Info("paper trading enabled", "balance", paperEngine.Balance())
	} else {
		exec = broker.NewKiteClient(cfg.Kite.APIKey, cfg.Kite.AccessToken, cfg.Kite.BaseURL, cfg.Trading.MaxOrdersPerMin)
	}

	store := position.NewStore(exec, arena, journal, pnlLog, log)
	store.SetNotifications(position.Notifications{
		PositionRemoved: func(symbol string) {
			log.Info("position closed", "symbol", symbol, "realized_today", store.RealizedPnlToday())
		},
		APIError: func(endpoint string, err error) {
			log.Warn("reconciliation degraded", "endpoint", endpoint, "error", err)
		},
	})
	riskEngine := position.NewRiskEngine(store, log)
	oco := position.NewOCOManager(store, exec, log)

	account := broker.NewAccountMonitor(exec,
		cfg.API.FailureThreshold,
		time.Duration(cfg.API.CooldownSeconds)*time.Second,
		log)

	transport := stream.NewKiteTicker(cfg.Kite.TickerURL, cfg.Kite.APIKey, cfg.Kite.AccessToken, log)
	supervisor := stream.NewSupervisor(transport, log, stream.Config{
		ReconnectDelay:    time.Duration(cfg.Stream.ReconnectSeconds) * time.Second,
		HeartbeatInterval: time.Duration(cfg.Stream.HeartbeatSeconds) * time.Second,
		StaleAfter:        time.Duration(cfg.Stream.StaleSeconds) * time.Second,
	})
	supervisor.Start(ctx)
	defer supervisor.Stop()

	var recorder *record.TickRecorder
	if cfg.Trading.RecordTicks {
		recorder = record.NewTickRecorder(cfg.Storage.DataDir, log)
		defer recorder.Close()
	}

	refresh := time.NewTicker(time.Duration(cfg.Trading.RefreshSeconds) * time.Second)
	defer refresh.Stop()
	accountTick := time.NewTicker(time.Minute)
	defer accountTick.Stop()

	reconcile := func() {
		if err := store.RefreshFromBroker(ctx); err != nil {
			return
		}
		// The refresh already pulled the order list; reconcile legs from
		// that snapshot rather than fetching it again.
		oco.ReconcileLegs(ctx, store.BrokerOrders())
		subscribeOpenPositions(store, supervisor)
	}
	reconcile()
	account.Refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down", "realized_today", store.RealizedPnlToday())
			return nil

		case batch := <-supervisor.Ticks():
			if paperEngine != nil {
				paperEngine.OnTicks(batch)
			}
			riskEngine.OnTicks(ctx, batch)
			if recorder != nil {
				recorder.OnTicks(batch)
			}

		case <-refresh.C:
			reconcile()

		case <-accountTick.C:
			snap := account.Refresh(ctx)
			if snap.Degraded {
				log.Warn("account endpoints degraded, showing cached values")
			}
		}
	}
}

// subscribeOpenPositions keeps the stream subscribed to every instrument
// with an open position. Append mode: closing a position does not tear down
// a subscription another consumer may share.
func subscribeOpenPositions(store *position.Store, supervisor *stream.Supervisor) {
	var tokens []int64
	for _, p := range store.AllPositions() {
		if p.InstrumentToken != 0 {
			tokens = append(tokens, p.InstrumentToken)
		}
	}
	if len(tokens) > 0 {
		supervisor.SetSubscriptions(tokens, true)
	}
}

// timeNow is swapped out in tests to pin the session clock.
var timeNow = time.Now

// checkSession rejects manual order entry outside exchange hours. After
// market orders need the amo variety, which this terminal does not place.
func checkSession(now time.Time) error {
	if !util.IsMarketOpen(now) {
		return fmt.Errorf("market is closed (NSE trades 09:15-15:30 Mon-Fri)")
	}
	return nil
}

// loadInstruments reads the configured instrument metadata file and builds
// the contract arena. A missing or unreadable file degrades rather than
// fails: positions reconcile with token 0 and skip per-tick updates until
// metadata is available.
func loadInstruments(cfg *config.Config, log *slog.Logger) (domain.InstrumentData, *domain.ContractArena) {
	if cfg.Storage.InstrumentsPath == "" {
		log.Warn("no instruments_path configured, positions will not receive tick updates")
		return nil, domain.NewContractArena(nil)
	}
	data, err := domain.LoadInstrumentData(cfg.Storage.InstrumentsPath)
	if err != nil {
		log.Warn("instrument metadata unavailable", "path", cfg.Storage.InstrumentsPath, "error", err)
		return nil, domain.NewContractArena(nil)
	}
	arena := domain.NewContractArena(data)
	log.Info("instrument metadata loaded", "path", cfg.Storage.InstrumentsPath, "contracts", arena.Len())
	return data, arena
}

// orderRequest carries the order command's flags.
type orderRequest struct {
	Symbol   string
	Side     string
	Quantity int
	Price    float64 // 0 means market

	// Protective parameters; any non-zero value places bracket legs after
	// the entry fills.
	StopLoss float64
	Target   float64
	Trailing float64
}

func (r orderRequest) wantsBracket() bool {
	return r.StopLoss > 0 || r.Target > 0 || r.Trailing > 0
}

// placeOrder submits one order through the live broker client, polls the
// order list until the broker confirms or rejects it, and places protective
// bracket legs when the request asks for them.
func placeOrder(ctx context.Context, cfg *config.Config, req orderRequest) error {
	if req.Side != domain.TransactionBuy && req.Side != domain.TransactionSell {
		return fmt.Errorf("side must be BUY or SELL, got %q", req.Side)
	}
	if req.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	if err := checkSession(timeNow()); err != nil {
		return err
	}
	log := util.NewLogger(cfg.Logging.Level)

	client := broker.NewKiteClient(cfg.Kite.APIKey, cfg.Kite.AccessToken, cfg.Kite.BaseURL, cfg.Trading.MaxOrdersPerMin)

	orderType := domain.OrderTypeMarket
	if req.Price > 0 {
		orderType = domain.OrderTypeLimit
	}
	orderID, err := client.PlaceOrder(ctx, broker.OrderParams{
		Variety:         domain.VarietyRegular,
		Exchange:        domain.ExchangeNFO,
		TradingSymbol:   req.Symbol,
		TransactionType: req.Side,
		Quantity:        req.Quantity,
		Product:         cfg.Trading.DefaultProduct,
		OrderType:       orderType,
		Price:           req.Price,
	})
	if err != nil {
		return fmt.Errorf("placing order: %w", err)
	}
	log.Info("order submitted", "order_id", orderID, "symbol", req.Symbol, "side", req.Side, "quantity", req.Quantity)

	confirmed, err := broker.ConfirmOrder(ctx, client, orderID, 5, time.Second)
	if err != nil {
		return fmt.Errorf("confirming order %s: %w", orderID, err)
	}
	fmt.Printf("order %s: %s (filled %d/%d @ %.2f)\n",
		confirmed.OrderID, confirmed.Status, confirmed.FilledQuantity, confirmed.Quantity, confirmed.AveragePrice)

	if req.wantsBracket() {
		return placeBracketLegs(ctx, cfg, client, log, req, confirmed)
	}
	return nil
}

// placeBracketLegs registers the freshly filled entry as a local position and
// submits its protective legs. An unfilled entry gets no legs; the flags are
// reported so the caller can retry once it fills.
func placeBracketLegs(ctx context.Context, cfg *config.Config, client broker.Execution, log *slog.Logger, req orderRequest, confirmed domain.RawOrder) error {
	if confirmed.Status != domain.StatusComplete {
		log.Warn("entry not filled, skipping protective legs",
			"order_id", confirmed.OrderID, "status", confirmed.Status)
		return nil
	}

	qty := confirmed.FilledQuantity
	if qty == 0 {
		qty = req.Quantity
	}
	if req.Side == domain.TransactionSell {
		qty = -qty
	}

	store := position.NewStore(client, domain.NewContractArena(nil), nil, nil, log)
	store.AddPosition(&domain.Position{
		TradingSymbol:    req.Symbol,
		Quantity:         qty,
		AveragePrice:     confirmed.AveragePrice,
		LastPrice:        confirmed.AveragePrice,
		Exchange:         domain.ExchangeNFO,
		Product:          cfg.Trading.DefaultProduct,
		OrderID:          confirmed.OrderID,
		StopLossPrice:    req.StopLoss,
		TargetPrice:      req.Target,
		TrailingStopLoss: req.Trailing,
	})

	oco := position.NewOCOManager(store, client, log)
	oco.PlaceBracketOrder(ctx, req.Symbol)

	p, _ := store.Position(req.Symbol)
	if p.StopLossPrice > 0 && p.StopLossOrderID == "" {
		return fmt.Errorf("stop-loss leg for %s was not accepted", req.Symbol)
	}
	if p.TargetPrice > 0 && p.TargetOrderID == "" {
		return fmt.Errorf("target leg for %s was not accepted", req.Symbol)
	}
	fmt.Printf("bracket placed for %s: sl=%s target=%s\n", req.Symbol, orNone(p.StopLossOrderID), orNone(p.TargetOrderID))
	return nil
}

func orNone(id string) string {
	if id == "" {
		return "none"
	}
	return id
}

// exitPositions reconciles against the broker and closes the named position,
// or every open position when symbol is empty.
func exitPositions(ctx context.Context, cfg *config.Config, symbol string) error {
	log := util.NewLogger(cfg.Logging.Level)
	client := broker.NewKiteClient(cfg.Kite.APIKey, cfg.Kite.AccessToken, cfg.Kite.BaseURL, cfg.Trading.MaxOrdersPerMin)

	journal, err := history.OpenJournal(cfg.Storage.TradeDBPath)
	if err != nil {
		return fmt.Errorf("opening trade journal: %w", err)
	}
	defer journal.Close()

	pnlLog, err := history.OpenPnlLog(cfg.Storage.PnlDBPath)
	if err != nil {
		return fmt.Errorf("opening pnl log: %w", err)
	}
	defer pnlLog.Close()

	_, arena := loadInstruments(cfg, log)
	store := position.NewStore(client, arena, journal, pnlLog, log)
	if err := store.RefreshFromBroker(ctx); err != nil {
		return fmt.Errorf("reconciling before exit: %w", err)
	}

	if symbol != "" {
		if _, ok := store.Position(symbol); !ok {
			return fmt.Errorf("no open position in %s", symbol)
		}
		if err := store.ExitPosition(ctx, symbol, position.ExitReasonManual); err != nil {
			return err
		}
		fmt.Printf("closed %s, realized today: %+.2f\n", symbol, store.RealizedPnlToday())
		return nil
	}

	if !store.HasOpenPositions() {
		fmt.Println("no open positions")
		return nil
	}
	if err := store.ExitAll(ctx, position.ExitReasonManual); err != nil {
		return err
	}
	fmt.Printf("closed all positions, realized today: %+.2f\n", store.RealizedPnlToday())
	return nil
}

// showHistory prints the trade journal, realized P&L, and session metrics.
func showHistory(cfg *config.Config, date string) error {
	journal, err := history.OpenJournal(cfg.Storage.TradeDBPath)
	if err != nil {
		return fmt.Errorf("opening trade journal: %w", err)
	}
	defer journal.Close()

	var trades []history.TradeRecord
	if date != "" {
		day, err := time.Parse("2006-01-02", date)
		if err != nil {
			return fmt.Errorf("bad --date: %w", err)
		}
		trades, err = journal.TradesForDate(day)
		if err != nil {
			return err
		}
	} else {
		trades, err = journal.AllTrades()
		if err != nil {
			return err
		}
	}

	for _, t := range trades {
		fmt.Printf("%-14s %-22s %-4s %5d @ %9.2f  %-10s %+10.2f\n",
			t.OrderID, t.TradingSymbol, t.TransactionType, t.Quantity, t.AveragePrice, t.Status, t.PnL)
	}

	m := history.ComputeMetrics(trades)
	fmt.Printf("\ntrades: %d  wins: %d  losses: %d  win rate: %.1f%%\n",
		m.TotalTrades, m.WinningTrades, m.LosingTrades, m.WinRate)
	fmt.Printf("total pnl: %+.2f  avg profit: %.2f  avg loss: %.2f\n",
		m.TotalPnl, m.AvgProfit, m.AvgLoss)

	pnlLog, err := history.OpenPnlLog(cfg.Storage.PnlDBPath)
	if err != nil {
		return nil
	}
	defer pnlLog.Close()
	if date != "" {
		if day, err := time.Parse("2006-01-02", date); err == nil {
			if pnl, err := pnlLog.ForDate(day); err == nil {
				fmt.Printf("realized pnl on %s: %+.2f\n", date, pnl)
			}
		}
	}
	return nil
}
