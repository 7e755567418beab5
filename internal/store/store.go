package store

import (
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"gorm.io/gorm"

	"main/internal/bus"
	"main/internal/schema"
)

// OrderRecord is a persisted order.
type OrderRecord struct {
	ID         uint      `gorm:"primaryKey"`
	OrderID    string    `gorm:"uniqueIndex;size:64"`
	Symbol     string    `gorm:"index;size:32"`
	StrategyID string    `gorm:"index;size:64"`
	Side       string    `gorm:"size:8"`
	Type       string    `gorm:"size:16"`
	Quantity   float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Reduce     bool
	CreatedAt  time.Time `gorm:"index"`
}

// FillRecord is a persisted fill.
type FillRecord struct {
	ID         uint      `gorm:"primaryKey"`
	TradeID    string    `gorm:"uniqueIndex;size:64"`
	OrderID    string    `gorm:"index;size:64"`
	Symbol     string    `gorm:"index;size:32"`
	StrategyID string    `gorm:"size:64"`
	Side       string    `gorm:"size:8"`
	Quantity   float64
	Price      float64
	Commission float64
	FilledAt   time.Time `gorm:"index"`
}

// PositionRecord is a persisted position update.
type PositionRecord struct {
	ID            uint   `gorm:"primaryKey"`
	Symbol        string `gorm:"index;size:32"`
	StrategyID    string `gorm:"index;size:64"`
	Side          string `gorm:"size:8"`
	Status        string `gorm:"index;size:16"`
	Quantity      float64
	EntryPrice    float64
	CurrentPrice  float64
	RealizedPnL   float64
	UnrealizedPnL float64
	UpdatedAt     time.Time `gorm:"index"`
}

// RiskEventRecord is a persisted risk alert.
type RiskEventRecord struct {
	ID         uint   `gorm:"primaryKey"`
	Kind       string `gorm:"index;size:32"`
	Severity   string `gorm:"size:16"`
	Reason     string `gorm:"size:256"`
	Symbol     string `gorm:"index;size:32"`
	StrategyID string `gorm:"size:64"`
	Equity     float64
	RaisedAt   time.Time `gorm:"index"`
}

// BacktestResult is a persisted summary of one replay run.
type BacktestResult struct {
	ID             uint   `gorm:"primaryKey"`
	RunID          string `gorm:"uniqueIndex;size:64"`
	InitialCapital float64
	FinalEquity    float64
	TotalReturnPct float64
	SharpeRatio    float64
	MaxDrawdownPct float64
	WinRate        float64
	TotalTrades    int
	StartAt        time.Time
	EndAt          time.Time
	CreatedAt      time.Time
}

// Store persists trading activity. A nil *Store is a valid no-op, so the
// core pipeline never depends on a database being configured.
type Store struct {
	db *gorm.DB
}

// NewStore migrates the schema and wraps the connection.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(
		&OrderRecord{},
		&FillRecord{},
		&PositionRecord{},
		&RiskEventRecord{},
		&BacktestResult{},
	); err != nil {
		return nil, errors.Wrap(err, "migrate")
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveOrder persists an order.
func (s *Store) SaveOrder(order *schema.Order, ts time.Time) error {
	if s == nil {
		return nil
	}
	return s.db.Create(&OrderRecord{
		OrderID:    order.ID,
		Symbol:     order.Symbol,
		StrategyID: order.StrategyID,
		Side:       order.Side.String(),
		Type:       order.Type.String(),
		Quantity:   order.Quantity,
		Price:      order.Price,
		StopLoss:   order.StopLoss,
		TakeProfit: order.TakeProfit,
		Reduce:     order.Reduce,
		CreatedAt:  ts,
	}).Error
}

// SaveFill persists a fill.
func (s *Store) SaveFill(fill *schema.Fill, ts time.Time) error {
	if s == nil {
		return nil
	}
	return s.db.Create(&FillRecord{
		TradeID:    fill.TradeID,
		OrderID:    fill.OrderID,
		Symbol:     fill.Symbol,
		StrategyID: fill.StrategyID,
		Side:       fill.Side.String(),
		Quantity:   fill.Quantity,
		Price:      fill.Price,
		Commission: fill.Commission,
		FilledAt:   ts,
	}).Error
}

// SavePositionUpdate persists a position update.
func (s *Store) SavePositionUpdate(update *schema.PositionUpdate, ts time.Time) error {
	if s == nil {
		return nil
	}
	return s.db.Create(&PositionRecord{
		Symbol:        update.Symbol,
		StrategyID:    update.StrategyID,
		Side:          update.Side.String(),
		Status:        update.Status.String(),
		Quantity:      update.Quantity,
		EntryPrice:    update.EntryPrice,
		CurrentPrice:  update.CurrentPrice,
		RealizedPnL:   update.RealizedPnL,
		UnrealizedPnL: update.UnrealizedPnL,
		UpdatedAt:     ts,
	}).Error
}

// SaveRiskEvent persists a risk alert.
func (s *Store) SaveRiskEvent(alert *schema.RiskAlert, ts time.Time) error {
	if s == nil {
		return nil
	}
	return s.db.Create(&RiskEventRecord{
		Kind:       alert.Kind,
		Severity:   alert.Severity.String(),
		Reason:     alert.Reason,
		Symbol:     alert.Symbol,
		StrategyID: alert.StrategyID,
		Equity:     alert.Equity,
		RaisedAt:   ts,
	}).Error
}

// SaveBacktestResult persists a replay summary.
func (s *Store) SaveBacktestResult(result *BacktestResult) error {
	if s == nil {
		return nil
	}
	return s.db.Create(result).Error
}

// FillsBySymbol returns fills for a symbol within [from, to).
func (s *Store) FillsBySymbol(symbol string, from, to time.Time) ([]FillRecord, error) {
	if s == nil {
		return nil, nil
	}
	var out []FillRecord
	err := s.db.
		Where("symbol = ? AND filled_at >= ? AND filled_at < ?", symbol, from, to).
		Order("filled_at asc").
		Find(&out).Error
	return out, err
}

// OrdersByStrategy returns orders for a strategy, newest first.
func (s *Store) OrdersByStrategy(strategyID string, limit int) ([]OrderRecord, error) {
	if s == nil {
		return nil, nil
	}
	var out []OrderRecord
	err := s.db.
		Where("strategy_id = ?", strategyID).
		Order("created_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// RiskEventsByKind returns risk events of one kind within [from, to).
func (s *Store) RiskEventsByKind(kind string, from, to time.Time) ([]RiskEventRecord, error) {
	if s == nil {
		return nil, nil
	}
	var out []RiskEventRecord
	err := s.db.
		Where("kind = ? AND raised_at >= ? AND raised_at < ?", kind, from, to).
		Order("raised_at asc").
		Find(&out).Error
	return out, err
}

// Bind subscribes the store to the bus as a read-only observer. Persistence
// failures are logged, never propagated into the pipeline.
func (s *Store) Bind(b *bus.Bus) {
	if s == nil {
		return
	}
	b.Subscribe(schema.EventOrder, func(ev *schema.Event) {
		if err := s.SaveOrder(ev.Order, ev.Timestamp); err != nil {
			logs.Errorf("persist order: %+v", err)
		}
	})
	b.Subscribe(schema.EventFill, func(ev *schema.Event) {
		if err := s.SaveFill(ev.Fill, ev.Timestamp); err != nil {
			logs.Errorf("persist fill: %+v", err)
		}
	})
	b.Subscribe(schema.EventPositionUpdate, func(ev *schema.Event) {
		if err := s.SavePositionUpdate(ev.PositionUpdate, ev.Timestamp); err != nil {
			logs.Errorf("persist position update: %+v", err)
		}
	})
	b.Subscribe(schema.EventRiskAlert, func(ev *schema.Event) {
		if err := s.SaveRiskEvent(ev.RiskAlert, ev.Timestamp); err != nil {
			logs.Errorf("persist risk event: %+v", err)
		}
	})
}
