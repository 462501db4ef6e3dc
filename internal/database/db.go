package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const databaseFile = "tender_guard.db"

// DB represents the database connection with pooling
type DB struct {
	*sql.DB
	pool     *ConnectionPool
	prepared map[string]*sql.Stmt
	mutex    sync.RWMutex
}

// ConnectionPool manages database connection pooling
type ConnectionPool struct {
	db           *sql.DB
	maxOpenConns int
	maxIdleConns int
	maxLifetime  time.Duration
}

// NewConnectionPool applies pool limits to db
func NewConnectionPool(db *sql.DB, maxOpen, maxIdle int, maxLifetime time.Duration) *ConnectionPool {
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	return &ConnectionPool{
		db:           db,
		maxOpenConns: maxOpen,
		maxIdleConns: maxIdle,
		maxLifetime:  maxLifetime,
	}
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	stats := cp.db.Stats()

	return map[string]interface{}{
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"max_open_connections": cp.maxOpenConns,
		"max_idle_connections": cp.maxIdleConns,
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}
}

// NewDB opens (and migrates) the SQLite database under dataDir
func NewDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, databaseFile)
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000", dbPath)

	sqlDB, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite allows a single writer at a time
	pool := NewConnectionPool(sqlDB, 4, 2, 30*time.Minute)

	db := wrap(sqlDB, pool)

	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := db.initPreparedStatements(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize prepared statements: %w", err)
	}

	slog.Info("Database initialized",
		"path", dbPath,
		"max_open_conns", pool.maxOpenConns,
		"max_idle_conns", pool.maxIdleConns)

	return db, nil
}

func wrap(sqlDB *sql.DB, pool *ConnectionPool) *DB {
	return &DB{
		DB:       sqlDB,
		pool:     pool,
		prepared: make(map[string]*sql.Stmt),
	}
}

func (db *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tenders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			description TEXT DEFAULT '',
			department TEXT NOT NULL,
			region TEXT NOT NULL,
			budget REAL NOT NULL,
			deadline TEXT NOT NULL,
			requirements TEXT DEFAULT '',
			status TEXT DEFAULT 'active',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		// anomaly_score stays NULL until the bid has been analyzed
		`CREATE TABLE IF NOT EXISTS bids (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tender_id INTEGER NOT NULL,
			company_name TEXT NOT NULL,
			bid_amount REAL NOT NULL,
			proposal_text TEXT NOT NULL,
			company_info TEXT DEFAULT '{}',
			contact_email TEXT DEFAULT '',
			anomaly_score REAL,
			is_suspicious INTEGER DEFAULT 0,
			nlp_score REAL DEFAULT 0.5,
			status TEXT DEFAULT 'submitted',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (tender_id) REFERENCES tenders (id)
		)`,

		`CREATE TABLE IF NOT EXISTS audit_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			action TEXT NOT NULL,
			user_id TEXT NOT NULL,
			details TEXT,
			ip_address TEXT DEFAULT '',
			user_agent TEXT DEFAULT '',
			timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			severity TEXT DEFAULT 'medium',
			related_id INTEGER,
			related_type TEXT DEFAULT '',
			is_read INTEGER DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_bids_tender_id ON bids(tender_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bids_suspicious ON bids(is_suspicious, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_bids_created_at ON bids(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_tenders_created_at ON tenders(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at DESC)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// statements are prepared once at startup; execNamed falls back to the raw
// query text when a statement was never prepared.
var statements = map[string]string{
	"insert_audit_log": `INSERT INTO audit_logs (action, user_id, details, ip_address, user_agent, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,

	"insert_alert": `INSERT INTO alerts (type, title, message, severity, related_id, related_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,

	"insert_bid": `INSERT INTO bids (tender_id, company_name, bid_amount, proposal_text, company_info,
			contact_email, nlp_score, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,

	"update_bid_anomaly": `UPDATE bids SET anomaly_score = ?, is_suspicious = ? WHERE id = ?`,
}

func (db *DB) initPreparedStatements() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, query := range statements {
		stmt, err := db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		db.prepared[name] = stmt

		slog.Debug("Prepared statement initialized", "name", name)
	}

	return nil
}

// GetPreparedStatement retrieves a prepared statement
func (db *DB) GetPreparedStatement(name string) (*sql.Stmt, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	stmt, exists := db.prepared[name]
	if !exists {
		return nil, fmt.Errorf("prepared statement %s not found", name)
	}

	return stmt, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// execNamed runs a named statement, inside tx when tx is non-nil
func (db *DB) execNamed(ctx context.Context, tx *sql.Tx, name string, args ...any) (sql.Result, error) {
	query, ok := statements[name]
	if !ok {
		return nil, fmt.Errorf("unknown statement %s", name)
	}

	stmt, err := db.GetPreparedStatement(name)
	if err != nil {
		var ex execer = db.DB
		if tx != nil {
			ex = tx
		}
		return ex.ExecContext(ctx, query, args...)
	}

	if tx != nil {
		stmt = tx.StmtContext(ctx, stmt)
	}
	return stmt.ExecContext(ctx, args...)
}

// GetPoolStats returns database connection pool statistics
func (db *DB) GetPoolStats() map[string]interface{} {
	if db.pool == nil {
		return map[string]interface{}{}
	}
	return db.pool.GetStats()
}

// Close closes the prepared statements and the database connection
func (db *DB) Close() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, stmt := range db.prepared {
		if err := stmt.Close(); err != nil {
			slog.Warn("Failed to close prepared statement", "name", name, "error", err)
		}
	}

	db.prepared = make(map[string]*sql.Stmt)

	return db.DB.Close()
}
