package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"reelpost/internal/logging"
	"reelpost/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// Database manages all store operations for the reelpost service.
type Database struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// New creates a new Database instance.
// dbPath is the full path to the database FILE (e.g., "/data/reelpost.db");
// the parent directory must already exist and be writable. Use
// startup.LoadConfig to validate the data directory before calling this.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	// WAL mode keeps reads cheap while the poller and scheduler both write.
	// busy_timeout prevents "database is locked" errors on the shared volume.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	start := time.Now()
	schema := `
	-- Downloaded reels and their pipeline status
	CREATE TABLE IF NOT EXISTS reels (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		media_pk TEXT NOT NULL,
		code TEXT,
		source_account TEXT NOT NULL,
		file_path TEXT NOT NULL UNIQUE,
		size INTEGER NOT NULL DEFAULT 0,
		duration REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'downloaded',
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_reels_status ON reels(status);
	CREATE INDEX IF NOT EXISTS idx_reels_source ON reels(source_account);

	-- History of published reposts
	CREATE TABLE IF NOT EXISTS posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		reel_id INTEGER NOT NULL,
		media_pk TEXT NOT NULL,
		source_account TEXT NOT NULL,
		caption TEXT,
		posted_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		FOREIGN KEY (reel_id) REFERENCES reels(id)
	);

	CREATE INDEX IF NOT EXISTS idx_posts_posted_at ON posts(posted_at);

	-- Audit of admin approval decisions
	CREATE TABLE IF NOT EXISTS approvals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		reel_id INTEGER,
		decision TEXT NOT NULL,
		decided_by INTEGER,
		latency_seconds REAL NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_approvals_kind ON approvals(kind);

	-- Admin API user (single user, password only)
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		password_hash TEXT NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	-- Admin API sessions
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		token TEXT NOT NULL UNIQUE,
		expires_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_token ON sessions(token);
	CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);

	-- Restart-surviving values: telegram update offset, session mirror
	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);
	`

	_, err := d.db.ExecContext(ctx, schema)
	recordQuery("initialize_schema", start, err)
	if err != nil {
		return err
	}

	return d.runMigrations(ctx)
}

// runMigrations applies database schema migrations
func (d *Database) runMigrations(ctx context.Context) error {
	// Migration 1: Add duration column to reels if it doesn't exist
	// (early builds recorded only the file size)
	var columnExists bool
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM pragma_table_info('reels')
		WHERE name='duration'
	`).Scan(&columnExists)

	if err != nil {
		return fmt.Errorf("failed to check for duration column: %w", err)
	}

	if !columnExists {
		logging.Info("Migrating database: adding duration column to reels table")

		_, err = d.db.ExecContext(ctx, `
			ALTER TABLE reels ADD COLUMN duration REAL NOT NULL DEFAULT 0
		`)
		if err != nil {
			return fmt.Errorf("failed to add duration column: %w", err)
		}

		logging.Info("Migration complete: duration column added")
	}

	// Migration 2: Add updated_at column to metadata if it doesn't exist
	// (early builds stored bare key/value pairs)
	err = d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM pragma_table_info('metadata')
		WHERE name='updated_at'
	`).Scan(&columnExists)

	if err != nil {
		return fmt.Errorf("failed to check for updated_at column: %w", err)
	}

	if !columnExists {
		logging.Info("Migrating database: adding updated_at column to metadata table")

		_, err = d.db.ExecContext(ctx, `
			ALTER TABLE metadata ADD COLUMN updated_at INTEGER NOT NULL DEFAULT 0
		`)
		if err != nil {
			return fmt.Errorf("failed to add updated_at column: %w", err)
		}

		logging.Info("Migration complete: updated_at column added")
	}

	return nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// GetStats returns current store statistics for the metrics collector.
func (d *Database) GetStats() metrics.Stats {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	stats := metrics.Stats{ReelsByStatus: make(map[string]int)}

	start := time.Now()
	var err error
	defer func() { recordQuery("calculate_stats", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM reels GROUP BY status")
	if err != nil {
		logging.Error("Failed to calculate reel stats: %v", err)
		return stats
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if scanErr := rows.Scan(&status, &count); scanErr != nil {
			continue
		}
		stats.ReelsByStatus[status] = count
	}
	if err = rows.Err(); err != nil {
		logging.Error("Failed to read reel stats: %v", err)
	}

	if qErr := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts").Scan(&stats.TotalPosts); qErr != nil {
		logging.Debug("Failed to count posts: %v", qErr)
	}

	if qErr := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sessions WHERE expires_at > strftime('%s', 'now')",
	).Scan(&stats.ActiveSessions); qErr != nil {
		logging.Debug("Failed to count sessions: %v", qErr)
	}

	return stats
}

// UpdateDBMetrics updates database connection metrics
func (d *Database) UpdateDBMetrics() {
	stats := d.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}
