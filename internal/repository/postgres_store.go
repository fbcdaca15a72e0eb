package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// KVEntry is one row of the kv_entry table. Value is a json column so
// postgres keeps the document text and key order as written.
type KVEntry struct {
	Key       string         `gorm:"primaryKey;type:varchar(200)"`
	Value     datatypes.JSON `gorm:"type:json"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime"`
}

// PostgresStore is a KeyValueStore backed by PostgreSQL through gorm.
// Update locks the row with SELECT ... FOR UPDATE inside a transaction.
type PostgresStore struct {
	db *gorm.DB
}

// OpenPostgresStore connects to dsn and migrates the kv_entry table
func OpenPostgresStore(dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := db.AutoMigrate(&KVEntry{}); err != nil {
		return nil, fmt.Errorf("migrate kv_entry: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var entry KVEntry
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return []byte(entry.Value), nil
}

func (s *PostgresStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// make sure a row exists so the first writers also contend on a lock
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&KVEntry{Key: key}).Error; err != nil {
			return fmt.Errorf("ensure %s: %w", key, err)
		}

		var entry KVEntry
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("key = ?", key).First(&entry).Error; err != nil {
			return fmt.Errorf("lock %s: %w", key, err)
		}

		next, err := fn([]byte(entry.Value))
		if err != nil {
			return err
		}

		return tx.Model(&KVEntry{}).Where("key = ?", key).
			Update("value", datatypes.JSON(next)).Error
	})
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
