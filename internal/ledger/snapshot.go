package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/schema"
)

// Snapshot captures the ledger's financial state at a point in time.
type Snapshot struct {
	Timestamp   int64           `json:"timestamp"`
	Cash        float64         `json:"cash"`
	InitialCash float64         `json:"initialCash"`
	Realized    float64         `json:"realized"`
	Positions   []PositionEntry `json:"positions"`
}

// PositionEntry is a single open position entry.
type PositionEntry struct {
	Symbol     string              `json:"symbol"`
	StrategyID string              `json:"strategyId"`
	Side       schema.PositionSide `json:"side"`
	Quantity   float64             `json:"qty"`
	EntryPrice float64             `json:"entryPrice"`
	StopLoss   float64             `json:"stopLoss,omitempty"`
	TakeProfit float64             `json:"takeProfit,omitempty"`
}

// Snapshot builds a snapshot from the current cash and open positions.
func (l *Ledger) Snapshot() Snapshot {
	entries := make([]PositionEntry, 0, len(l.positions))
	for _, p := range l.positions {
		entries = append(entries, PositionEntry{
			Symbol:     p.Symbol,
			StrategyID: p.StrategyID,
			Side:       p.Side,
			Quantity:   p.Quantity,
			EntryPrice: p.EntryPrice,
			StopLoss:   p.StopLoss,
			TakeProfit: p.TakeProfit,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Symbol != entries[j].Symbol {
			return entries[i].Symbol < entries[j].Symbol
		}
		return entries[i].StrategyID < entries[j].StrategyID
	})
	return Snapshot{
		Timestamp:   time.Now().UTC().UnixNano(),
		Cash:        l.cash,
		InitialCash: l.initialCash,
		Realized:    l.realized,
		Positions:   entries,
	}
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create snapshot dir")
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "read snapshot")
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, errors.Wrap(err, "unmarshal snapshot")
	}
	return snap, nil
}

// Restore rebuilds cash and open positions from a snapshot. Mark prices and
// unrealized P&L repopulate on the next market data event.
func (l *Ledger) Restore(snap Snapshot) {
	l.cash = snap.Cash
	l.initialCash = snap.InitialCash
	l.realized = snap.Realized
	l.positions = make(map[positionKey]*Position, len(snap.Positions))
	for _, entry := range snap.Positions {
		l.positions[positionKey{symbol: entry.Symbol, strategy: entry.StrategyID}] = &Position{
			Symbol:     entry.Symbol,
			StrategyID: entry.StrategyID,
			Side:       entry.Side,
			Quantity:   entry.Quantity,
			EntryPrice: entry.EntryPrice,
			StopLoss:   entry.StopLoss,
			TakeProfit: entry.TakeProfit,
			Status:     schema.PositionOpen,
		}
	}
}
