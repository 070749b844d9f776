// Package store persists Run Records in a sqlite database through gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/SeldomQA/seldom-atx/model"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrNotFound is returned when no record matches a lookup.
var ErrNotFound = errors.New("run record not found")

// perfRow is the persisted form of a Run Record.
type perfRow struct {
	ID            string              `gorm:"primaryKey;type:varchar(36)"`
	Device        string              `gorm:"type:varchar(20);not null"`
	DeviceName    string              `gorm:"type:varchar(200)"`
	TestcasePath  string              `gorm:"type:varchar(500)"`
	TestcaseName  string              `gorm:"type:varchar(200);index"`
	TestcaseDesc  string              `gorm:"type:text"`
	DurationTimes int                 `gorm:"not null"`
	DurationList  []float64           `gorm:"type:text;serializer:json"`
	DurationAvg   float64             `gorm:"not null"`
	MemoryMax     float64             `gorm:"not null"`
	RunList       model.CapabilitySet `gorm:"type:text;serializer:json"`
	Result        int                 `gorm:"not null"`
	Time          time.Time           `gorm:"index"`
}

func (perfRow) TableName() string { return "perf" }

func toRow(rec *model.RunRecord) *perfRow {
	return &perfRow{
		ID:            rec.ID,
		Device:        rec.Platform.String(),
		DeviceName:    rec.DeviceName,
		TestcasePath:  rec.Case.Path(),
		TestcaseName:  rec.Case.Name,
		TestcaseDesc:  rec.Case.Desc,
		DurationTimes: rec.DurationTimes,
		DurationList:  rec.DurationList,
		DurationAvg:   rec.DurationAvg,
		MemoryMax:     rec.MemoryMax,
		RunList:       rec.RunList,
		Result:        rec.Result,
		Time:          rec.Time,
	}
}

func (r *perfRow) record() *model.RunRecord {
	file, class, _ := strings.Cut(r.TestcasePath, " --> ")
	return &model.RunRecord{
		ID:         r.ID,
		Time:       r.Time,
		Platform:   model.Platform(r.Device),
		DeviceName: r.DeviceName,
		Case: model.Case{
			File:  file,
			Class: class,
			Name:  r.TestcaseName,
			Desc:  r.TestcaseDesc,
		},
		DurationTimes: r.DurationTimes,
		DurationList:  r.DurationList,
		DurationAvg:   r.DurationAvg,
		MemoryMax:     r.MemoryMax,
		RunList:       r.RunList,
		Result:        r.Result,
	}
}

// Store is a Run Record table.
type Store struct {
	logger zerolog.Logger
	db     *gorm.DB
}

// Open opens (creating if needed) the database at path and migrates the
// schema.
func Open(logger zerolog.Logger, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(&perfRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Debug().Str("path", path).Msg("Database opened")
	return &Store{logger: logger, db: db}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Insert persists rec.
func (s *Store) Insert(ctx context.Context, rec *model.RunRecord) error {
	if err := s.db.WithContext(ctx).Create(toRow(rec)).Error; err != nil {
		return fmt.Errorf("failed to insert run record: %w", err)
	}
	s.logger.Debug().Str("id", rec.ID).Msg("Run record inserted")
	return nil
}

// List returns up to limit records, newest first. A limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]*model.RunRecord, error) {
	q := s.db.WithContext(ctx).Order("time desc")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []perfRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list run records: %w", err)
	}

	records := make([]*model.RunRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].record())
	}
	return records, nil
}

// Get returns the record with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*model.RunRecord, error) {
	var row perfRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run record: %w", err)
	}
	return row.record(), nil
}
