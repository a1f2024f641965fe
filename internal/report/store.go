package report

import (
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/schema"
	"main/pkg/conn"
)

// TradeRow is the persisted form of a completed trade.
type TradeRow struct {
	ID         uint64          `gorm:"primaryKey;autoIncrement"`
	RunID      string          `gorm:"index"`
	Symbol     string          `gorm:"index"`
	Side       string
	Qty        decimal.Decimal `gorm:"type:numeric"`
	EntryPrice decimal.Decimal `gorm:"type:numeric"`
	ExitPrice  decimal.Decimal `gorm:"type:numeric"`
	PnL        decimal.Decimal `gorm:"type:numeric"`
	EntryTs    int64
	ExitTs     int64
}

// TableName keeps the table name stable.
func (TradeRow) TableName() string { return "trades" }

// SnapshotRow is the persisted form of a performance snapshot.
type SnapshotRow struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement"`
	RunID         string          `gorm:"index"`
	Ts            int64
	Equity        decimal.Decimal `gorm:"type:numeric"`
	PeakEquity    decimal.Decimal `gorm:"type:numeric"`
	Drawdown      decimal.Decimal `gorm:"type:numeric"`
	RealizedPnL   decimal.Decimal `gorm:"type:numeric"`
	UnrealizedPnL decimal.Decimal `gorm:"type:numeric"`
	Sharpe        float64
	SharpeDefined bool
	TradeCount    int
}

// TableName keeps the table name stable.
func (SnapshotRow) TableName() string { return "performance_snapshots" }

// Store persists run results to PostgreSQL.
type Store struct {
	client *conn.Client
	runID  string
}

// NewStore connects and migrates the result tables.
func NewStore(dsn, runID string) (*Store, error) {
	client, err := conn.NewPostgres(dsn, &TradeRow{}, &SnapshotRow{})
	if err != nil {
		return nil, errors.Wrap(err, "connect result store")
	}
	return &Store{client: client, runID: runID}, nil
}

// SaveTrades inserts the trade log.
func (s *Store) SaveTrades(trades []schema.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}
	rows := make([]TradeRow, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, TradeRow{
			RunID:      s.runID,
			Symbol:     t.Symbol,
			Side:       t.Side.String(),
			Qty:        t.Qty,
			EntryPrice: t.EntryPrice,
			ExitPrice:  t.ExitPrice,
			PnL:        t.PnL,
			EntryTs:    t.EntryTs,
			ExitTs:     t.ExitTs,
		})
	}
	if err := s.client.DB().Create(&rows).Error; err != nil {
		return errors.Wrap(err, "insert trades")
	}
	return nil
}

// SaveSnapshots inserts the snapshot series.
func (s *Store) SaveSnapshots(snaps []schema.PerformanceSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	rows := make([]SnapshotRow, 0, len(snaps))
	for _, snap := range snaps {
		rows = append(rows, SnapshotRow{
			RunID:         s.runID,
			Ts:            snap.Ts,
			Equity:        snap.Equity,
			PeakEquity:    snap.PeakEquity,
			Drawdown:      snap.Drawdown,
			RealizedPnL:   snap.RealizedPnL,
			UnrealizedPnL: snap.UnrealizedPnL,
			Sharpe:        snap.Sharpe,
			SharpeDefined: snap.SharpeDefined,
			TradeCount:    snap.TradeCount,
		})
	}
	if err := s.client.DB().Create(&rows).Error; err != nil {
		return errors.Wrap(err, "insert snapshots")
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}
