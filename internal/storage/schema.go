package storage

import (
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS metrics_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		var_1d REAL NOT NULL,
		var_7d REAL NOT NULL,
		volatility REAL NOT NULL,
		current_drawdown REAL NOT NULL,
		concentration_hhi REAL NOT NULL,
		payload BLOB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_metrics_history_timestamp
		ON metrics_history (timestamp)`,
	`CREATE TABLE IF NOT EXISTS portfolio_values (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		total_value REAL NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS alert_history (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		risk_type TEXT NOT NULL,
		level TEXT NOT NULL,
		alert_type TEXT NOT NULL,
		title TEXT NOT NULL,
		priority_score REAL NOT NULL,
		payload BLOB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alert_history_timestamp
		ON alert_history (timestamp)`,
	`CREATE TABLE IF NOT EXISTS threshold_audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		sample_size INTEGER NOT NULL,
		payload BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stress_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		base_value REAL NOT NULL,
		max_impact REAL NOT NULL,
		payload BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS price_history (
		symbol TEXT NOT NULL,
		day TEXT NOT NULL,
		close REAL NOT NULL,
		PRIMARY KEY (symbol, day)
	)`,
}

// Migrate creates all engine tables if they do not exist.
func Migrate(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
