package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"chatstream/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Driver normalizes the configured database name to a registered sql driver.
func Driver(dbType string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case "", "sqlite", "sqlite3":
		return "sqlite3", nil
	case "mysql":
		return "mysql", nil
	default:
		return "", fmt.Errorf("unsupported driver: %s", dbType)
	}
}

// Open connects to the configured database.
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	driver, err := Driver(dbType)
	if err != nil {
		return nil, err
	}
	dbCfg, ok := cfg.Databases[driver]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", driver)
	}

	switch driver {
	case "sqlite3":
		return OpenSQLite(dbCfg.DSN)
	default:
		return openMySQL(dbCfg)
	}
}

// OpenSQLite opens a sqlite database with foreign keys enabled.
// One connection is kept so ":memory:" databases are shared and writers never contend.
func OpenSQLite(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite dsn must be provided")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func openMySQL(dbCfg config.DatabaseConfig) (*sql.DB, error) {
	dsn := dbCfg.DSN
	if dsn == "" {
		params := dbCfg.Params
		if params == "" {
			params = "parseTime=true&charset=utf8mb4&loc=UTC"
		}
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
			dbCfg.Username,
			dbCfg.Password,
			dbCfg.Host,
			dbCfg.Port,
			dbCfg.DBName,
			params,
		)
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB, dbType string) error {
	driver, err := Driver(dbType)
	if err != nil {
		return fmt.Errorf("unsupported driver for migration: %s", dbType)
	}
	var stmts []string
	switch driver {
	case "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS messages (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				role TEXT NOT NULL CHECK (role IN ('user', 'bot')),
				content TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'complete',
				created_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS model_configurations (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				provider TEXT NOT NULL,
				model TEXT NOT NULL,
				streaming_enabled INTEGER NOT NULL DEFAULT 1,
				endpoint_override TEXT NOT NULL DEFAULT '',
				api_key TEXT NOT NULL DEFAULT '',
				web_search INTEGER NOT NULL DEFAULT 0,
				is_active INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_model_configurations_single_active
				ON model_configurations(is_active) WHERE is_active = 1`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS messages (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				role VARCHAR(16) NOT NULL,
				content MEDIUMTEXT NOT NULL,
				status VARCHAR(16) NOT NULL DEFAULT 'complete',
				created_at DATETIME(6) NOT NULL,
				PRIMARY KEY (id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS model_configurations (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				provider VARCHAR(100) NOT NULL,
				model VARCHAR(255) NOT NULL,
				streaming_enabled TINYINT(1) NOT NULL DEFAULT 1,
				endpoint_override VARCHAR(1024) NOT NULL DEFAULT '',
				api_key TEXT NOT NULL,
				web_search TINYINT(1) NOT NULL DEFAULT 0,
				is_active TINYINT(1) NOT NULL DEFAULT 0,
				active_marker TINYINT GENERATED ALWAYS AS (IF(is_active, 1, NULL)) STORED,
				created_at DATETIME(6) NOT NULL,
				updated_at DATETIME(6) NOT NULL,
				PRIMARY KEY (id),
				UNIQUE KEY uniq_model_configurations_single_active (active_marker)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
