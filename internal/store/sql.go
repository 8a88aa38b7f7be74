package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// documentRow is the single table backing SQLStore.
type documentRow struct {
	Collection string `gorm:"primaryKey;size:64"`
	ID         string `gorm:"primaryKey;size:128"`
	Version    int64  `gorm:"not null;default:0"`
	Body       string `gorm:"type:text;not null"`
	UpdatedAt  time.Time
}

func (documentRow) TableName() string { return "documents" }

var sqlOps = map[Op]string{
	OpEq: "=",
	OpNe: "<>",
	OpLt: "<",
	OpLe: "<=",
	OpGt: ">",
	OpGe: ">=",
}

// SQLStore implements DocumentStore on SQLite through gorm. Bodies are
// JSON; queries use json_extract on the requested field.
type SQLStore struct {
	db *gorm.DB
}

var _ DocumentStore = (*SQLStore)(nil)

// zerologWriter routes gorm's logger through zerolog at debug level.
type zerologWriter struct{}

func (zerologWriter) Printf(format string, args ...interface{}) {
	log.Debug().Msgf(format, args...)
}

// OpenSQLite opens (or creates) the SQLite database at path and migrates
// the documents table.
func OpenSQLite(path string) (*SQLStore, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)

	gormLogger := logger.New(zerologWriter{}, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	// A single connection avoids "database is locked" under concurrent writers.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.AutoMigrate(&documentRow{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLStore) Get(ctx context.Context, collection, id string, out any) (bool, error) {
	var rows []documentRow
	err := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return false, fmt.Errorf("select %s/%s: %w", collection, id, err)
	}
	if len(rows) == 0 {
		return false, nil
	}
	if err := json.Unmarshal([]byte(rows[0].Body), out); err != nil {
		return false, fmt.Errorf("unmarshal %s/%s: %w", collection, id, err)
	}
	return true, nil
}

func (s *SQLStore) Put(ctx context.Context, collection, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}
	version, err := versionOf(body)
	if err != nil {
		return fmt.Errorf("read version %s/%s: %w", collection, id, err)
	}
	row := documentRow{
		Collection: collection,
		ID:         id,
		Version:    version,
		Body:       string(body),
		UpdatedAt:  time.Now().UTC(),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"version", "body", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *SQLStore) PutVersioned(ctx context.Context, collection, id string, doc any, version int64) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}
	now := time.Now().UTC()

	var affected int64
	if version <= 1 {
		row := documentRow{Collection: collection, ID: id, Version: version, Body: string(body), UpdatedAt: now}
		res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return fmt.Errorf("insert %s/%s: %w", collection, id, res.Error)
		}
		affected = res.RowsAffected
	} else {
		res := s.db.WithContext(ctx).
			Model(&documentRow{}).
			Where("collection = ? AND id = ? AND version = ?", collection, id, version-1).
			Updates(map[string]interface{}{
				"version":    version,
				"body":       string(body),
				"updated_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("update %s/%s version=%d: %w", collection, id, version, res.Error)
		}
		affected = res.RowsAffected
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, collection, id string) error {
	err := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Delete(&documentRow{}).Error
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *SQLStore) Query(ctx context.Context, collection string, f Filter) ([]Document, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	value := f.Value
	if b, ok := value.(bool); ok {
		// json_extract yields 1/0 for JSON booleans.
		value = 0
		if b {
			value = 1
		}
	}

	var rows []documentRow
	err := s.db.WithContext(ctx).
		Where(fmt.Sprintf("collection = ? AND json_extract(body, ?) %s ?", sqlOps[f.Op]), collection, "$."+f.Field, value).
		Order("id").
		Find(&rows).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query %s where %s: %w", collection, f.Field, err)
	}

	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		body := []byte(row.Body)
		docs = append(docs, Document{
			ID:     row.ID,
			decode: func(out any) error { return json.Unmarshal(body, out) },
		})
	}
	return docs, nil
}
