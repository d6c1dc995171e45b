package datastore

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/8gabri8/TST-bioimage/internal/conf"
	"github.com/8gabri8/TST-bioimage/internal/errors"
)

// mysqlDSN builds the connection string of the configured MySQL database
func mysqlDSN(settings *conf.Settings) string {
	m := settings.Datastore.MySQL
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		m.Username, m.Password, m.Host, m.Port, m.Database)
}

// OpenMySQL connects to the configured MySQL database
func OpenMySQL(settings *conf.Settings) (*Store, error) {
	m := settings.Datastore.MySQL
	db, err := gorm.Open(mysql.Open(mysqlDSN(settings)), gormConfig())
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryDatabase).
			Context("operation", "open_mysql").
			Context("host", m.Host).
			Context("port", m.Port).
			Context("database", m.Database).
			Build()
	}

	store := &Store{DB: db, dbType: "MySQL"}
	// The DSN carries the password and is not logged
	info := fmt.Sprintf("%s:%s/%s", m.Host, m.Port, m.Database)
	if err := performAutoMigration(db, store.dbType, info); err != nil {
		return nil, err
	}
	return store, nil
}
