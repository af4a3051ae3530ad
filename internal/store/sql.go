package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry is one persisted blob in the kv_entries table.
type Entry struct {
	StoreKey  string    `gorm:"primaryKey;size:191"`
	Value     []byte    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Entry) TableName() string {
	return "kv_entries"
}

// SQLBackend persists blobs in a relational table through gorm, so the same
// database that holds accounts can hold the task collections.
type SQLBackend struct {
	db *gorm.DB
}

func NewSQLBackend(db *gorm.DB) *SQLBackend {
	return &SQLBackend{db: db}
}

func (s *SQLBackend) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Entry{}); err != nil {
		return fmt.Errorf("migrate kv_entries: %w", err)
	}
	return nil
}

func (s *SQLBackend) Load(ctx context.Context, key string) ([]byte, error) {
	var entry Entry
	err := s.db.WithContext(ctx).Where("store_key = ?", key).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select %s: %w", key, err)
	}
	return entry.Value, nil
}

func (s *SQLBackend) Save(ctx context.Context, key string, data []byte) error {
	entry := Entry{StoreKey: key, Value: data, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "store_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

func (s *SQLBackend) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close is a no-op; the connection pool belongs to the database package.
func (s *SQLBackend) Close() error {
	return nil
}
