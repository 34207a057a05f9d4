package db

import (
	"fmt"
	"time"

	"smileslot/config"
	"smileslot/logger"
	"smileslot/model"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// GormDB is the process-wide connection used by the CLI commands.
var GormDB *gorm.DB

// zapWriter forwards gorm's log lines to the application logger.
type zapWriter struct{}

func (zapWriter) Printf(format string, args ...interface{}) {
	logger.Debug(fmt.Sprintf(format, args...), logger.String("component", "gorm"))
}

func gormConfig(logSQL bool) *gorm.Config {
	level := gormlogger.Warn
	if logSQL {
		level = gormlogger.Info
	}
	return &gorm.Config{
		Logger: gormlogger.New(zapWriter{}, gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
		TranslateError:                           true,
		DisableForeignKeyConstraintWhenMigrating: true,
	}
}

// MySQLDSN builds the go-sql-driver DSN from the config.
func MySQLDSN(cfg *config.Config) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
}

// Open connects to the store selected by cfg.DBDriver.
func Open(cfg *config.Config) (*gorm.DB, error) {
	switch cfg.DBDriver {
	case DriverMySQL:
		return OpenMySQL(MySQLDSN(cfg), cfg.DBLogSQL)
	case DriverSQLite:
		return OpenSQLite(cfg.SQLitePath, cfg.DBLogSQL)
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q (want %q or %q)", cfg.DBDriver, DriverMySQL, DriverSQLite)
	}
}

// OpenMySQL opens a pooled MySQL connection.
func OpenMySQL(dsn string, logSQL bool) (*gorm.DB, error) {
	gdb, err := gorm.Open(mysql.Open(dsn), gormConfig(logSQL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect database with GORM: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	logger.Info("connected to MySQL slot store")
	return gdb, nil
}

// OpenSQLite opens an embedded SQLite file. A single writer connection keeps
// SQLite's file lock from surfacing as "database is locked".
func OpenSQLite(path string, logSQL bool) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(path), gormConfig(logSQL))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	logger.Info("opened SQLite slot store", logger.String("path", path))
	return gdb, nil
}

// Connect opens the configured store into GormDB.
func Connect(cfg *config.Config) error {
	gdb, err := Open(cfg)
	if err != nil {
		return err
	}
	GormDB = gdb
	return nil
}

// Close closes the underlying pool.
func Close(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate creates or updates the slot and file-tracking tables.
func Migrate(gdb *gorm.DB) error {
	if gdb == nil {
		return fmt.Errorf("GORM database not initialized")
	}
	if err := gdb.AutoMigrate(&model.TimelineRecord{}, &model.AudioFile{}); err != nil {
		return fmt.Errorf("failed to auto migrate models: %w", err)
	}
	logger.Info("models migrated")
	return nil
}
