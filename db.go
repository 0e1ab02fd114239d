package main

import (
	"database/sql"
	"fmt"
	"log"
	"strings"

	_ "modernc.org/sqlite"

	"troquel/internal/store"
)

var db *sql.DB

func initDB(path string) error {
	// Close previous connection if any (prevents goroutine leaks in tests)
	if db != nil {
		db.Close()
	}
	var err error
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	// modernc applies _pragma values to every new pooled connection.
	db, err = sql.Open("sqlite", path+sep+"_pragma=busy_timeout(30000)&_pragma=foreign_keys(1)")
	if err != nil {
		return err
	}

	// SQLite can handle 1 writer + multiple readers with WAL mode
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			return fmt.Errorf("enable WAL mode: %w", err)
		}
	} else {
		// Every connection to :memory: is a fresh database.
		db.SetMaxOpenConns(1)
	}

	return runMigrations()
}

func runMigrations() error {
	if err := store.Migrate(db); err != nil {
		return err
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			module TEXT NOT NULL,
			action TEXT NOT NULL,
			record_id TEXT NOT NULL,
			username TEXT DEFAULT '',
			summary TEXT DEFAULT '',
			ip_address TEXT DEFAULT '',
			user_agent TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS data_exports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_type TEXT NOT NULL,
			format TEXT NOT NULL,
			record_count INTEGER DEFAULT 0,
			username TEXT DEFAULT '',
			exported_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, t := range tables {
		if _, err := db.Exec(t); err != nil {
			return fmt.Errorf("migration error: %w\nSQL: %s", err, t)
		}
	}

	// Columns added after the first plant rollout
	alterStmts := []string{
		"ALTER TABLE production_orders ADD COLUMN delivery_date TEXT DEFAULT ''",
		"ALTER TABLE production_orders ADD COLUMN updated_at DATETIME",
	}
	for _, s := range alterStmts {
		if _, err := db.Exec(s); err != nil && !strings.Contains(err.Error(), "duplicate column") {
			log.Printf("Migration warning: %v\nSQL: %s", err, s)
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_trace_records_stage ON trace_records(stage_name)",
		"CREATE INDEX IF NOT EXISTS idx_production_orders_status ON production_orders(status)",
		"CREATE INDEX IF NOT EXISTS idx_audit_log_module ON audit_log(module)",
		"CREATE INDEX IF NOT EXISTS idx_audit_log_created_at ON audit_log(created_at)",
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
