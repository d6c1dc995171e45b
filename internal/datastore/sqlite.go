package datastore

import (
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/8gabri8/TST-bioimage/internal/errors"
)

// OpenSQLite opens or creates the SQLite database at path. ":memory:" opens
// a private in-memory database.
func OpenSQLite(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.New(err).
				Category(errors.CategoryDatabase).
				Context("operation", "create_database_dir").
				Context("path", path).
				Build()
		}
	}

	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryDatabase).
			Context("operation", "open_sqlite").
			Context("path", path).
			Build()
	}

	store := &Store{DB: db, dbType: "SQLite"}
	if err := performAutoMigration(db, store.dbType, path); err != nil {
		return nil, err
	}
	return store, nil
}
