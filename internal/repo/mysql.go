package repo

import (
	"Cabinet/config"
	"Cabinet/internal/logger"
	"Cabinet/model"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	gormMysql "gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var Db *gorm.DB

// autoMigrateAll migrates all database models.
func autoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Folder{},
		&model.UserFile{},
		&model.FileShare{},
		&model.DerivativeTask{},
	)
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		// ErrDuplicatedKey is relied on by share id generation.
		TranslateError: true,
		Logger:         gormLogger.Default.LogMode(gormLogger.Warn),
	}
}

// InitDB opens the configured metadata store and assigns Db.
func InitDB() {
	var (
		db  *gorm.DB
		err error
	)
	switch config.AppConfig.DBDriver {
	case "mysql":
		db, err = OpenMysql()
	default:
		db, err = OpenSqlite(config.AppConfig.DBPath)
	}
	if err != nil {
		logger.Log.Fatal().Err(err).Str("driver", config.AppConfig.DBDriver).Msg("init db fail")
	}
	logger.Log.Info().Str("driver", config.AppConfig.DBDriver).Msg("init db success")
	Db = db
}

// OpenSqlite opens (creating if needed) a SQLite database file and migrates it.
func OpenSqlite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite has a single writer; one connection serializes every transaction.
	sqlDB.SetMaxOpenConns(1)

	if err := autoMigrateAll(db); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenMysql opens the MySQL database, creating the schema when it does not exist yet.
func OpenMysql() (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		config.AppConfig.DBUser,
		config.AppConfig.DBPass,
		config.AppConfig.DBHost,
		config.AppConfig.DBPort,
		config.AppConfig.DBName,
	)
	db, err := gorm.Open(gormMysql.Open(dsn), gormConfig())
	if err != nil && isUnknownDatabaseError(err) {
		if createErr := ensureMySQLDatabase(config.AppConfig.DBName); createErr != nil {
			return nil, createErr
		}
		db, err = gorm.Open(gormMysql.Open(dsn), gormConfig())
	}
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrateAll(db); err != nil {
		return nil, err
	}
	return db, nil
}

func isUnknownDatabaseError(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1049
	}
	return strings.Contains(strings.ToLower(err.Error()), "unknown database")
}

func ensureMySQLDatabase(dbName string) error {
	dbName = strings.TrimSpace(dbName)
	if dbName == "" {
		return errors.New("empty database name")
	}

	serverDSN := fmt.Sprintf("%s:%s@tcp(%s:%s)/?charset=utf8mb4&parseTime=True&loc=Local",
		config.AppConfig.DBUser,
		config.AppConfig.DBPass,
		config.AppConfig.DBHost,
		config.AppConfig.DBPort,
	)

	serverDB, err := sql.Open("mysql", serverDSN)
	if err != nil {
		return err
	}
	defer serverDB.Close()

	if err = serverDB.Ping(); err != nil {
		return err
	}

	_, err = serverDB.Exec(
		"CREATE DATABASE IF NOT EXISTS " + quoteMySQLIdentifier(dbName) + " CHARACTER SET utf8mb4 COLLATE utf8mb4_general_ci",
	)
	return err
}

func quoteMySQLIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
