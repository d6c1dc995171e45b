// Package datastore persists run results to SQLite or MySQL through GORM.
package datastore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/8gabri8/TST-bioimage/internal/conf"
	"github.com/8gabri8/TST-bioimage/internal/errors"
	"github.com/8gabri8/TST-bioimage/internal/logger"
)

// slowQueryThreshold is the duration above which queries are logged as slow
const slowQueryThreshold = 500 * time.Millisecond

// Store wraps a GORM connection holding the run tables
type Store struct {
	DB     *gorm.DB
	dbType string
}

// Open connects to the database enabled in settings. It returns nil and no
// error when no database is enabled.
func Open(settings *conf.Settings) (*Store, error) {
	switch {
	case settings.Datastore.MySQL.Enabled:
		return OpenMySQL(settings)
	case settings.Datastore.SQLite.Enabled:
		return OpenSQLite(settings.Datastore.SQLite.Path)
	default:
		return nil, nil
	}
}

func gormConfig() *gorm.Config {
	return &gorm.Config{Logger: logger.NewGormLoggerAdapter(GetLogger(), slowQueryThreshold)}
}

// performAutoMigration creates or updates the run tables
func performAutoMigration(db *gorm.DB, dbType, connectionInfo string) error {
	start := time.Now()
	if err := db.AutoMigrate(&Run{}, &EntryResult{}); err != nil {
		return errors.New(err).
			Category(errors.CategoryDatabase).
			Context("operation", "auto_migrate").
			Context("db_type", dbType).
			Build()
	}
	GetLogger().Debug("database initialized",
		logger.String("db_type", dbType),
		logger.String("connection", connectionInfo),
		logger.Duration("duration", time.Since(start)))
	return nil
}

// SaveRun stores a run and its entry results in one transaction
func (s *Store) SaveRun(ctx context.Context, run *Run, results []EntryResult) error {
	if s.DB == nil {
		return errors.Newf("database connection is not initialized").Category(errors.CategoryDatabase).Build()
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return err
		}
		if len(results) == 0 {
			return nil
		}
		for i := range results {
			results[i].RunID = run.ID
		}
		return tx.CreateInBatches(results, 100).Error
	})
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryDatabase).
			Context("operation", "save_run").
			Context("db_type", s.dbType).
			Context("run_id", run.ID).
			Context("results", len(results)).
			Build()
	}

	GetLogger().Info("run saved",
		logger.String("run_id", run.ID),
		logger.String("db_type", s.dbType),
		logger.Int("results", len(results)))
	return nil
}

// GetRun loads a run with its entry results in insertion order
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	err := s.DB.WithContext(ctx).
		Preload("Results", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&run, "id = ?", id).Error
	if err != nil {
		category := errors.CategoryDatabase
		if errors.Is(err, gorm.ErrRecordNotFound) {
			category = errors.CategoryNotFound
		}
		return nil, errors.New(err).
			Category(category).
			Context("operation", "get_run").
			Context("run_id", id).
			Build()
	}
	return &run, nil
}

// Close closes the underlying database connection
func (s *Store) Close() error {
	if s.DB == nil {
		return errors.Newf("database connection is not initialized").Category(errors.CategoryDatabase).Build()
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return errors.New(err).Category(errors.CategoryDatabase).Context("operation", "get_sql_db").Build()
	}
	if err := sqlDB.Close(); err != nil {
		return errors.New(err).Category(errors.CategoryDatabase).Context("operation", "close").Build()
	}
	GetLogger().Debug("database connection closed", logger.String("db_type", s.dbType))
	return nil
}

// GetLogger returns the datastore module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("datastore")
}
