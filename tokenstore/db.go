// tokenstore/db.go
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// TokenRecord is one named token row.
type TokenRecord struct {
	Name      string `gorm:"primaryKey"`
	Token     string
	UpdatedAt time.Time
}

// DBMirror persists the token as a row of a gorm database, keyed by name.
type DBMirror struct {
	db   *gorm.DB
	name string
}

// OpenDB opens (creating if needed) a sqlite database at path and migrates the token table.
// ":memory:" opens a private in-memory database.
func OpenDB(path string) (*gorm.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open token database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; a single connection also keeps ":memory:" databases shared.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&TokenRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate token table: %w", err)
	}
	return db, nil
}

// CloseDB closes the underlying connection pool.
func CloseDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NewDBMirror returns a mirror storing the token under name.
func NewDBMirror(db *gorm.DB, name string) *DBMirror {
	return &DBMirror{db: db, name: name}
}

// Load returns the stored token, or "" when the row does not exist.
func (m *DBMirror) Load(ctx context.Context) (string, error) {
	var record TokenRecord
	err := m.db.WithContext(ctx).First(&record, "name = ?", m.name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load token %q: %w", m.name, err)
	}
	return record.Token, nil
}

// Save inserts or updates the row.
func (m *DBMirror) Save(ctx context.Context, token string) error {
	record := TokenRecord{Name: m.name, Token: token}
	err := m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to save token %q: %w", m.name, err)
	}
	return nil
}
