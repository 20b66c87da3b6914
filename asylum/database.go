package asylum

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	dbTypeSQLite   = "sqlite"
	dbTypePostgres = "postgres"
)

var (
	sqliteMaxOpenConns    = 1
	sqliteMaxIdleConns    = 1
	sqliteMaxConnLifetime = 5 * time.Minute
	sqliteExecPragma      = []string{
		"pragma journal_mode=WAL;",
		"pragma synchronous = normal;",
		"pragma temp_store = memory;",
		"pragma foreign_keys = ON;",
	}
)

// ModelUintID is an embeddable model with an auto-incrementing ID.
type ModelUintID struct {
	ID uint `gorm:"primaryKey" json:"id"`
}

// openDatabase opens the interaction-log database per the config,
// running migrations. SQLite (the default) is constrained to a single
// connection with WAL pragmas; postgres uses the DSN as-is.
func openDatabase(config *Config, logHandler slog.Handler) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: newGORMLogger(logHandler, config.DatabaseSlowThreshold),
	}

	var dialector gorm.Dialector
	switch config.DatabaseType {
	case dbTypeSQLite, "":
		path := config.Database
		if !strings.Contains(path, string(filepath.Separator)) {
			path = filepath.Join(config.DataDir, path)
		}
		dialector = sqlite.Open(path)
	case dbTypePostgres:
		dialector = postgres.Open(config.Database)
	default:
		return nil, fmt.Errorf("unknown database type: %q", config.DatabaseType)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if config.DatabaseType != dbTypePostgres {
		sqlDB, e := db.DB()
		if e != nil {
			return nil, fmt.Errorf("error getting database handle: %w", e)
		}
		sqlDB.SetMaxOpenConns(sqliteMaxOpenConns)
		sqlDB.SetMaxIdleConns(sqliteMaxIdleConns)
		sqlDB.SetConnMaxLifetime(sqliteMaxConnLifetime)
		for _, pragma := range sqliteExecPragma {
			if e = db.Exec(pragma).Error; e != nil {
				return nil, fmt.Errorf("error setting pragma %q: %w", pragma, e)
			}
		}
	}

	if err = db.AutoMigrate(&InteractionLog{}); err != nil {
		return nil, fmt.Errorf("error migrating database: %w", err)
	}

	return db, nil
}
