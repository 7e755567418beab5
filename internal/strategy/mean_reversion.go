package strategy

import (
	"math"

	"github.com/yanun0323/logs"

	"main/internal/schema"
)

// MeanReversionConfig tunes the Bollinger/z-score/RSI entry and exit rules.
type MeanReversionConfig struct {
	BBWindow        int     `json:"bbWindow"`
	BBWidth         float64 `json:"bbWidth"`
	ZScoreWindow    int     `json:"zscoreWindow"`
	ZScoreThreshold float64 `json:"zscoreThreshold"`
	RSIWindow       int     `json:"rsiWindow"`
	RSIOversold     float64 `json:"rsiOversold"`
	RSIOverbought   float64 `json:"rsiOverbought"`

	StopLossPct      float64 `json:"stopLossPct"`
	TakeProfitRatio  float64 `json:"takeProfitRatio"`
	ExitOnMiddleBand bool    `json:"exitOnMiddleBand"`
	QuantityPct      float64 `json:"quantityPct"`

	VolumeConfirmRatio float64 `json:"volumeConfirmRatio"`
}

// DefaultMeanReversionConfig returns the standard parameter set.
func DefaultMeanReversionConfig() MeanReversionConfig {
	return MeanReversionConfig{
		BBWindow:           20,
		BBWidth:            2.0,
		ZScoreWindow:       20,
		ZScoreThreshold:    2.0,
		RSIWindow:          14,
		RSIOversold:        40,
		RSIOverbought:      60,
		StopLossPct:        0.02,
		TakeProfitRatio:    1.5,
		ExitOnMiddleBand:   true,
		QuantityPct:        0.05,
		VolumeConfirmRatio: 1.2,
	}
}

type symbolState struct {
	closes  *series
	volumes *series

	inPosition bool
	side       schema.PositionSide
	entryPrice float64
	stopLoss   float64
	takeProfit float64
}

// MeanReversion fades moves outside the Bollinger Bands when z-score and
// RSI agree and volume confirms. Positions close at the middle band, the
// stop-loss, or the take-profit.
type MeanReversion struct {
	name    string
	cfg     MeanReversionConfig
	symbols map[string]*symbolState
	minBars int
}

// NewMeanReversion creates the strategy.
func NewMeanReversion(name string, cfg MeanReversionConfig) *MeanReversion {
	minBars := cfg.BBWindow
	if cfg.ZScoreWindow > minBars {
		minBars = cfg.ZScoreWindow
	}
	if cfg.RSIWindow > minBars {
		minBars = cfg.RSIWindow
	}
	return &MeanReversion{
		name:    name,
		cfg:     cfg,
		symbols: make(map[string]*symbolState),
		minBars: minBars + 1,
	}
}

// Name implements Strategy.
func (m *MeanReversion) Name() string {
	return m.name
}

// OnMarketData implements Strategy.
func (m *MeanReversion) OnMarketData(md *schema.MarketData) *schema.Signal {
	if md == nil || md.Bar.Close <= 0 {
		return nil
	}
	st, ok := m.symbols[md.Symbol]
	if !ok {
		st = &symbolState{
			closes:  newSeries(m.minBars + 50),
			volumes: newSeries(m.minBars + 50),
		}
		m.symbols[md.Symbol] = st
	}
	st.closes.push(md.Bar.Close)
	st.volumes.push(md.Bar.Volume)

	if st.closes.len() < m.minBars {
		return nil
	}
	if st.inPosition {
		return m.checkExit(md, st)
	}
	return m.checkEntry(md, st)
}

// OnPositionUpdate implements Strategy. The ledger is authoritative for
// position state, covering fills the strategy did not initiate.
func (m *MeanReversion) OnPositionUpdate(update *schema.PositionUpdate) {
	st, ok := m.symbols[update.Symbol]
	if !ok {
		st = &symbolState{
			closes:  newSeries(m.minBars + 50),
			volumes: newSeries(m.minBars + 50),
		}
		m.symbols[update.Symbol] = st
	}
	if update.Status == schema.PositionClosed || update.Quantity <= 0 {
		st.inPosition = false
		return
	}
	st.inPosition = true
	st.side = update.Side
	st.entryPrice = update.EntryPrice
}

func (m *MeanReversion) checkEntry(md *schema.MarketData, st *symbolState) *schema.Signal {
	price := md.Bar.Close
	lower, middle, upper := bollinger(st.closes.tail(m.cfg.BBWindow), m.cfg.BBWidth)
	z := zscore(st.closes.tail(m.cfg.ZScoreWindow))
	strength := rsi(st.closes.tail(m.cfg.RSIWindow + 1))

	volume := md.Bar.Volume
	avgVolume := sma(st.volumes.tail(20))
	volumeOK := avgVolume == 0 || volume > avgVolume*m.cfg.VolumeConfirmRatio

	confidence := math.Abs(z) / 3.0
	if confidence > 1 {
		confidence = 1
	}

	if price < lower && z < -m.cfg.ZScoreThreshold && strength < m.cfg.RSIOversold && volumeOK {
		logs.Infof("%s: BUY signal price=%.2f bb=%.2f/%.2f/%.2f z=%.2f rsi=%.1f",
			md.Symbol, price, lower, middle, upper, z, strength)
		return &schema.Signal{
			Symbol:     md.Symbol,
			Asset:      md.Asset,
			StrategyID: m.name,
			Kind:       schema.SignalBuy,
			Confidence: confidence,
			Price:      price,
			Meta: schema.SignalMeta{
				QuantityPct: m.cfg.QuantityPct,
				StopLoss:    price * (1 - m.cfg.StopLossPct),
				TakeProfit:  price + (middle-price)*m.cfg.TakeProfitRatio,
			},
		}
	}

	if price > upper && z > m.cfg.ZScoreThreshold && strength > m.cfg.RSIOverbought && volumeOK {
		logs.Infof("%s: SELL signal price=%.2f bb=%.2f/%.2f/%.2f z=%.2f rsi=%.1f",
			md.Symbol, price, lower, middle, upper, z, strength)
		return &schema.Signal{
			Symbol:     md.Symbol,
			Asset:      md.Asset,
			StrategyID: m.name,
			Kind:       schema.SignalSell,
			Confidence: confidence,
			Price:      price,
			Meta: schema.SignalMeta{
				QuantityPct: m.cfg.QuantityPct,
				StopLoss:    price * (1 + m.cfg.StopLossPct),
				TakeProfit:  price - (price-middle)*m.cfg.TakeProfitRatio,
			},
		}
	}
	return nil
}

func (m *MeanReversion) checkExit(md *schema.MarketData, st *symbolState) *schema.Signal {
	if !m.cfg.ExitOnMiddleBand {
		return nil
	}
	price := md.Bar.Close
	_, middle, _ := bollinger(st.closes.tail(m.cfg.BBWindow), m.cfg.BBWidth)

	atMiddle := (st.side == schema.PositionLong && price >= middle) ||
		(st.side == schema.PositionShort && price <= middle)
	if !atMiddle {
		return nil
	}

	logs.Infof("%s: CLOSE signal at middle band price=%.2f entry=%.2f",
		md.Symbol, price, st.entryPrice)
	return &schema.Signal{
		Symbol:     md.Symbol,
		Asset:      md.Asset,
		StrategyID: m.name,
		Kind:       schema.SignalClose,
		Confidence: 1,
		Price:      price,
	}
}
