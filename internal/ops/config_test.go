package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.InDelta(t, 100_000, cfg.Portfolio.InitialCapital, 1e-9)
	require.InDelta(t, 0.03, cfg.Portfolio.RiskFreeRate, 1e-9)
	require.InDelta(t, 0.10, cfg.Risk.MaxPositionPct, 1e-9)
	require.InDelta(t, 0.006, cfg.Costs.CryptoTakerFee, 1e-9)
	require.Equal(t, "mean-reversion", cfg.Strategy.Name)
	require.Equal(t, "1m", cfg.Feed.KlineInterval)
	require.Equal(t, 4096, cfg.Feed.QueueSize)
	require.Equal(t, ":9100", cfg.Metrics.Addr)
	require.Nil(t, cfg.Database)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `{
		"portfolio": {"initialCapital": 50000, "riskFreeRate": 0.02},
		"risk": {
			"maxPositionPct": 0.2,
			"maxSymbolPct": 0.3,
			"maxPortfolioPct": 0.9,
			"dailyLossLimit": 0.1,
			"maxDrawdown": 0.25,
			"stopLossMinPct": 0.01,
			"stopLossMaxPct": 0.2
		},
		"symbols": [{"name": "BTC-USD", "asset": 1}],
		"metrics": {"enabled": true, "addr": ":9999"}
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.InDelta(t, 50_000, cfg.Portfolio.InitialCapital, 1e-9)
	require.InDelta(t, 0.2, cfg.Risk.MaxPositionPct, 1e-9)
	require.Len(t, cfg.Symbols, 1)
	require.Equal(t, []string{"BTC-USD"}, cfg.SymbolNames())
	require.True(t, cfg.Metrics.Enabled)
	require.Equal(t, ":9999", cfg.Metrics.Addr)
}

func TestLoadRejectsBadRisk(t *testing.T) {
	path := writeConfig(t, `{
		"risk": {
			"maxPositionPct": 1.5,
			"maxSymbolPct": 0.3,
			"maxPortfolioPct": 0.9,
			"dailyLossLimit": 0.1,
			"maxDrawdown": 0.25,
			"stopLossMinPct": 0.01,
			"stopLossMaxPct": 0.2
		}
	}`)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "MaxPositionPct")
}

func TestLoadRejectsEmptySymbolName(t *testing.T) {
	path := writeConfig(t, `{"symbols": [{"name": "", "asset": 1}]}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("no-such-config.json")
	require.Error(t, err)
}
