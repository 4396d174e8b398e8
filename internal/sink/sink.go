// Package sink persists authoritative minute bars to Postgres. The sink is
// best-effort: write failures are logged by the caller and never reach
// trading logic.
package sink

import (
	"context"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"daytrader/internal/bars"
)

// MinuteBar is one durable minute bar row.
type MinuteBar struct {
	ID uint `gorm:"primaryKey"`

	Symbol    string    `gorm:"type:text;not null;index:idx_symbol_minute,unique"`
	Timestamp time.Time `gorm:"not null;index:idx_symbol_minute,unique"`

	Open   float64 `gorm:"type:numeric;not null"`
	High   float64 `gorm:"type:numeric;not null"`
	Low    float64 `gorm:"type:numeric;not null"`
	Close  float64 `gorm:"type:numeric;not null"`
	Volume int64   `gorm:"not null"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the default table name for GORM.
func (MinuteBar) TableName() string {
	return "minute_bars"
}

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open connects to Postgres and migrates the minute_bars table.
func Open(dsn string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := db.AutoMigrate(&MinuteBar{}); err != nil {
		return nil, fmt.Errorf("migrate minute_bars: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// WriteBar upserts one authoritative minute bar. A bar re-delivered for the
// same symbol and minute replaces the stored row.
func (s *Store) WriteBar(ctx context.Context, symbol string, b bars.Bar) error {
	record := MinuteBar{
		Symbol:    symbol,
		Timestamp: b.Minute(),
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    int64(b.Volume),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "timestamp"}},
		UpdateAll: true,
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("write minute bar: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("retrieve raw DB: %w", err)
	}
	return db.Close()
}
