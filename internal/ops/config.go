package ops

import (
	"encoding/json"
	"fmt"
	"os"

	"main/internal/exec"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/store"
	"main/internal/strategy"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Portfolio PortfolioConfig `json:"portfolio"`
	Risk      risk.Config     `json:"risk"`
	Costs     *exec.Costs     `json:"costs"`
	Symbols   []SymbolConfig  `json:"symbols"`
	Strategy  StrategyConfig  `json:"strategy"`
	Feed      FeedConfig      `json:"feed"`
	Database  *store.Option   `json:"database"`
	Metrics   MetricsConfig   `json:"metrics"`
}

// PortfolioConfig sets the starting portfolio parameters.
type PortfolioConfig struct {
	InitialCapital float64 `json:"initialCapital"`
	RiskFreeRate   float64 `json:"riskFreeRate"`
}

// SymbolConfig describes a tradable symbol.
type SymbolConfig struct {
	Name  string            `json:"name"`
	Asset schema.AssetClass `json:"asset"`
}

// StrategyConfig selects and tunes the strategy.
type StrategyConfig struct {
	Name          string                        `json:"name"`
	MeanReversion *strategy.MeanReversionConfig `json:"meanReversion"`
}

// FeedConfig selects the market data source.
type FeedConfig struct {
	// CSVPath points at historical bars for replay runs.
	CSVPath string `json:"csvPath"`
	// KlineInterval is the live candle interval (e.g. "1m").
	KlineInterval string `json:"klineInterval"`
	// QueueSize bounds the live ingestion queue.
	QueueSize int `json:"queueSize"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Portfolio PortfolioConfig
	Risk      risk.Config
	Costs     exec.Costs
	Symbols   []SymbolConfig
	Strategy  StrategyConfig
	Feed      FeedConfig
	Database  *store.Option
	Metrics   MetricsConfig
}

// Default returns the resolved configuration with every default applied.
func Default() Loaded {
	loaded, _ := resolve(FileConfig{})
	return loaded
}

// Load reads a JSON config file, applies defaults, and validates.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return resolve(cfg)
}

func resolve(cfg FileConfig) (Loaded, error) {
	if cfg.Portfolio.InitialCapital == 0 {
		cfg.Portfolio.InitialCapital = 100_000
	}
	if cfg.Portfolio.RiskFreeRate == 0 {
		cfg.Portfolio.RiskFreeRate = 0.03
	}
	if cfg.Risk == (risk.Config{}) {
		cfg.Risk = risk.DefaultConfig()
	}
	costs := exec.DefaultCosts()
	if cfg.Costs != nil {
		costs = *cfg.Costs
	}
	if cfg.Strategy.Name == "" {
		cfg.Strategy.Name = "mean-reversion"
	}
	if cfg.Strategy.MeanReversion == nil {
		mr := strategy.DefaultMeanReversionConfig()
		cfg.Strategy.MeanReversion = &mr
	}
	if cfg.Feed.KlineInterval == "" {
		cfg.Feed.KlineInterval = "1m"
	}
	if cfg.Feed.QueueSize == 0 {
		cfg.Feed.QueueSize = 4096
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9100"
	}

	loaded := Loaded{
		Portfolio: cfg.Portfolio,
		Risk:      cfg.Risk,
		Costs:     costs,
		Symbols:   cfg.Symbols,
		Strategy:  cfg.Strategy,
		Feed:      cfg.Feed,
		Database:  cfg.Database,
		Metrics:   cfg.Metrics,
	}
	return loaded, loaded.validate()
}

func (l Loaded) validate() error {
	if l.Portfolio.InitialCapital <= 0 {
		return fmt.Errorf("invalid config: initialCapital must be > 0")
	}
	if err := l.Risk.Validate(); err != nil {
		return err
	}
	for _, s := range l.Symbols {
		if s.Name == "" {
			return fmt.Errorf("invalid config: symbol name is empty")
		}
		if !s.Asset.IsAvailable() {
			return fmt.Errorf("invalid config: symbol %s has unknown asset class", s.Name)
		}
	}
	if l.Feed.QueueSize < 0 {
		return fmt.Errorf("invalid config: feed queueSize must be >= 0")
	}
	return nil
}

// SymbolNames lists the configured symbol names.
func (l Loaded) SymbolNames() []string {
	out := make([]string, 0, len(l.Symbols))
	for _, s := range l.Symbols {
		out = append(out, s.Name)
	}
	return out
}

// AssetOf resolves a symbol's asset class, defaulting to crypto.
func (l Loaded) AssetOf(symbol string) schema.AssetClass {
	for _, s := range l.Symbols {
		if s.Name == symbol {
			return s.Asset
		}
	}
	return schema.AssetCrypto
}
