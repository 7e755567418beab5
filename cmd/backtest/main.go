package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	pyroscope "github.com/grafana/pyroscope-go"

	"main/internal/feed"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/replay"
	"main/internal/store"
	"main/internal/strategy"
)

func main() {
	if err := run(); err != nil {
		log.Printf("backtest: %v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to JSON config")
	csvPath := flag.String("csv", "", "Path to historical bars CSV (overrides config)")
	symbol := flag.String("symbol", "", "Symbol for the CSV bars (overrides config)")
	speed := flag.Float64("speed", 0, "Playback speed (0=as fast as possible, 1=real-time)")
	pyroscopeAddr := flag.String("pyroscope", "", "Pyroscope server address (empty=disabled)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *pyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "trading.backtest",
			ServerAddress:   *pyroscopeAddr,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return fmt.Errorf("pyroscope start failed: %w", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	cfg := ops.Default()
	if *configPath != "" {
		loaded, err := ops.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	path := cfg.Feed.CSVPath
	if *csvPath != "" {
		path = *csvPath
	}
	if path == "" {
		return fmt.Errorf("no bar source; use -csv or set feed.csvPath in the config")
	}
	sym := *symbol
	if sym == "" {
		if len(cfg.Symbols) == 0 {
			return fmt.Errorf("no symbol; use -symbol or set symbols in the config")
		}
		sym = cfg.Symbols[0].Name
	}

	bars, err := feed.LoadCSV(path, sym, cfg.AssetOf(sym))
	if err != nil {
		return err
	}

	mr := strategy.NewMeanReversion(cfg.Strategy.Name, *cfg.Strategy.MeanReversion)
	o := replay.NewOrchestrator(replay.Config{
		InitialCapital: cfg.Portfolio.InitialCapital,
		RiskFreeRate:   cfg.Portfolio.RiskFreeRate,
		Risk:           cfg.Risk,
		Costs:          cfg.Costs,
		Speed:          *speed,
	}, mr)

	var db *store.Store
	if cfg.Database != nil {
		db, err = store.Open(*cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		db.Bind(o.Bus())
	}
	if cfg.Metrics.Enabled {
		m := obs.NewMetrics()
		m.Bind(o.Bus())
		go func() {
			if err := obs.Serve(ctx, cfg.Metrics.Addr, m); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
	}

	result, err := o.Run(ctx, bars)
	if err != nil {
		return err
	}
	printReport(sym, cfg.Portfolio.InitialCapital, result)

	if db != nil {
		if err := db.SaveBacktestResult(&store.BacktestResult{
			RunID:          uuid.NewString(),
			InitialCapital: cfg.Portfolio.InitialCapital,
			FinalEquity:    o.Ledger().Equity(),
			TotalReturnPct: result.Report.Returns.TotalReturnPct,
			SharpeRatio:    result.Report.RiskAdjusted.SharpeRatio,
			MaxDrawdownPct: result.Report.Drawdown.MaxDrawdownPct,
			WinRate:        result.Report.Trades.WinRate,
			TotalTrades:    result.Report.Trades.TotalTrades,
			StartAt:        result.Start,
			EndAt:          result.End,
		}); err != nil {
			return err
		}
	}
	return nil
}

func printReport(symbol string, initialCapital float64, result *replay.Result) {
	r := result.Report
	fmt.Printf("Backtest %s: %s to %s (%d bars)\n",
		symbol,
		result.Start.Format("2006-01-02"),
		result.End.Format("2006-01-02"),
		result.Bars)
	fmt.Printf("  Initial capital:  %12.2f\n", initialCapital)
	fmt.Printf("  Total return:     %12.2f (%.2f%%)\n", r.Returns.TotalReturn, r.Returns.TotalReturnPct*100)
	fmt.Printf("  CAGR:             %11.2f%%\n", r.Returns.CAGR*100)
	fmt.Printf("  Volatility:       %11.2f%%\n", r.RiskAdjusted.Volatility*100)
	fmt.Printf("  Sharpe ratio:     %12.2f\n", r.RiskAdjusted.SharpeRatio)
	fmt.Printf("  Sortino ratio:    %12.2f\n", r.RiskAdjusted.SortinoRatio)
	fmt.Printf("  Max drawdown:     %11.2f%% (%d days)\n", r.Drawdown.MaxDrawdownPct*100, r.Drawdown.MaxDurationDays)
	fmt.Printf("  Trades:           %12d (win rate %.1f%%)\n", r.Trades.TotalTrades, r.Trades.WinRate*100)
	fmt.Printf("  Profit factor:    %12.2f\n", r.Trades.ProfitFactor)
	fmt.Printf("  Expectancy:       %12.2f\n", r.Trades.Expectancy)

	for _, tr := range result.Trades {
		fmt.Printf("  %s %-5s %-10s qty %.4f entry %.2f exit %.2f pnl %+.2f\n",
			tr.ExitTime.Format("2006-01-02 15:04"),
			tr.Side, tr.Symbol, tr.Quantity, tr.EntryPrice, tr.ExitPrice, tr.PnL)
	}
}
