package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"returns-service/internal/util"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

func init() {
	sqlx.BindDriver(driverName, sqlx.QUESTION)
}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS returns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id INTEGER NOT NULL,
		product TEXT NOT NULL,
		category TEXT,
		return_reason TEXT,
		cost REAL,
		approved_flag TEXT,
		store_name TEXT NOT NULL,
		date TEXT NOT NULL
	)`

const orderIndexSQL = `CREATE UNIQUE INDEX IF NOT EXISTS idx_returns_order_id ON returns (order_id)`

type Store struct {
	db     *sqlx.DB
	path   string
	now    func() time.Time
	logger *zap.Logger
}

// Option customizes a Store
type Option func(*Store)

// WithClock overrides the clock used to stamp record dates
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore opens the SQLite file at path
func NewStore(path string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &PersistenceError{Op: "open", Err: fmt.Errorf("failed to create directory: %w", err)}
		}
	}

	// Write transactions start with BEGIN IMMEDIATE so order id assignment
	// and insert hold the write lock together.
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, &PersistenceError{Op: "open", Err: err}
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &PersistenceError{Op: "open", Err: fmt.Errorf("failed to ping database: %w", err)}
	}

	s := &Store{
		db:     db,
		path:   path,
		now:    time.Now,
		logger: util.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// Ping checks the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &PersistenceError{Op: "ping", Err: err}
	}
	return nil
}

// Initialize creates the returns table and its order id index if missing.
// Safe to call on every start; existing rows are never touched.
func (s *Store) Initialize(ctx context.Context) error {
	for _, stmt := range []string{schemaSQL, orderIndexSQL} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return &PersistenceError{Op: "initialize", Err: err}
		}
	}

	s.logger.Debug("Schema ready", zap.String("path", s.path))
	return nil
}
