package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/engine"
	"main/internal/feed"
	"main/internal/journal"
	"main/internal/ledger"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/schema"
	"main/internal/store"
	"main/internal/strategy"
)

func main() {
	if err := run(); err != nil {
		log.Printf("trader: %v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to JSON config")
	snapshotPath := flag.String("snapshot-path", "ledger.json", "Ledger snapshot written on shutdown")
	restorePath := flag.String("restore", "", "Ledger snapshot to restore at startup (empty=fresh)")
	journalPath := flag.String("journal", "", "Append-only event journal (empty=disabled)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := ops.Default()
	if *configPath != "" {
		loaded, err := ops.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if len(cfg.Symbols) == 0 {
		return fmt.Errorf("no symbols configured; set symbols in the config")
	}

	opts := []engine.Option{engine.WithSnapshot(*snapshotPath)}
	if cfg.Database != nil {
		db, err := store.Open(*cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		opts = append(opts, engine.WithStore(db))
	}
	if *journalPath != "" {
		jw, err := journal.NewWriter(*journalPath)
		if err != nil {
			return err
		}
		opts = append(opts, engine.WithJournal(jw))
	}
	var metrics *obs.Metrics
	if cfg.Metrics.Enabled {
		metrics = obs.NewMetrics()
		opts = append(opts, engine.WithMetrics(metrics))
	}

	mr := strategy.NewMeanReversion(cfg.Strategy.Name, *cfg.Strategy.MeanReversion)
	eng := engine.New(cfg, []strategy.Strategy{mr}, opts...)

	if *restorePath != "" {
		snap, err := ledger.ReadSnapshot(*restorePath)
		if err != nil {
			return err
		}
		eng.Ledger().Restore(snap)
		logs.Infof("ledger restored from %s: cash %.2f, %d open positions",
			*restorePath, snap.Cash, len(snap.Positions))
	}

	if metrics != nil {
		go func() {
			if err := obs.Serve(ctx, cfg.Metrics.Addr, metrics); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
	}

	pub := feed.NewBinancePub(ctx)
	if err := pub.StartWebsocket(ctx); err != nil {
		return err
	}
	defer pub.Close()

	for _, sym := range cfg.Symbols {
		if err := pub.SubscribeKline(ctx, klineSymbol(sym.Name), cfg.Feed.KlineInterval); err != nil {
			return err
		}
		unsubscribe := pub.ObserveKline(ctx, sym.Name, func(ts time.Time, md *schema.MarketData) {
			if err := eng.Push(ts, md); err != nil {
				if err == bus.ErrQueueFull {
					logs.Warnf("dropping bar for %s: ingestion queue full", md.Symbol)
					return
				}
				logs.Errorf("push bar: %+v", err)
			}
		})
		defer unsubscribe()
		logs.Infof("subscribed %s kline %s", sym.Name, cfg.Feed.KlineInterval)
	}

	eng.Run(ctx)
	return nil
}

// klineSymbol maps an internal symbol like "BTC-USD" onto the Binance
// stream naming, e.g. "btcusdt".
func klineSymbol(symbol string) string {
	out := make([]byte, 0, len(symbol)+1)
	for i := 0; i < len(symbol); i++ {
		c := symbol[i]
		if c == '-' || c == '/' || c == '_' {
			continue
		}
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	s := string(out)
	if len(s) >= 3 && s[len(s)-3:] == "usd" {
		s += "t"
	}
	return s
}
