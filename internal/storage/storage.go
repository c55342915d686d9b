// Package storage provides the trade record store on SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/klingon-exchange/htlcswap/internal/config"
)

// DBFileName is the database file inside the data directory.
const DBFileName = "data.db"

// Storage persists currencies and trades.
type Storage struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Config holds storage configuration.
type Config struct {
	DataDir string
}

// New opens (and creates if needed) the database in cfg.DataDir.
func New(cfg *Config) (*Storage, error) {
	dataDir := config.ExpandPath(cfg.DataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBFileName)

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=off")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{
		db:     db,
		dbPath: dbPath,
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Storage) Path() string {
	return s.dbPath
}

func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS currencies (
		address_prefix TEXT PRIMARY KEY,
		name TEXT,
		photo_url TEXT,
		units_per_coin INTEGER,
		min_fee INTEGER,
		default_max_block_height INTEGER,
		default_min_confirmation_height INTEGER,
		host TEXT,
		port INTEGER,
		ssl_directory TEXT
	);

	-- One party's deposit terms. total_amount includes the fee.
	CREATE TABLE IF NOT EXISTS trade_currencies (
		id TEXT PRIMARY KEY,
		address_prefix TEXT REFERENCES currencies(address_prefix),
		fee INTEGER,
		max_block_height INTEGER,
		min_confirmation_height INTEGER,
		from_address TEXT,
		to_address TEXT,
		total_amount INTEGER
	);

	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		trade_currency_one TEXT REFERENCES trade_currencies(id),
		trade_currency_two TEXT REFERENCES trade_currencies(id),
		secret_hash TEXT,
		is_buyer INTEGER,
		secret TEXT,
		step INTEGER
	);

	CREATE TABLE IF NOT EXISTS eth_trades (
		id TEXT PRIMARY KEY,
		trade_currency TEXT REFERENCES trade_currencies(id),
		eth_from_address TEXT,
		eth_to_address TEXT,
		total_gwei TEXT,
		secret_hash TEXT,
		is_buyer INTEGER,
		secret TEXT,
		step INTEGER,
		network TEXT,
		token TEXT
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.runMigrations()
}

// runMigrations adds columns that databases written by older releases lack.
// Errors are ignored since columns may already exist.
func (s *Storage) runMigrations() error {
	migrations := []string{
		"ALTER TABLE trades ADD COLUMN updated_at INTEGER",
		"ALTER TABLE eth_trades ADD COLUMN updated_at INTEGER",
		"CREATE INDEX IF NOT EXISTS idx_trades_step ON trades(step)",
		"CREATE INDEX IF NOT EXISTS idx_eth_trades_step ON eth_trades(step)",
	}
	for _, migration := range migrations {
		_, _ = s.db.Exec(migration)
	}
	return nil
}
