package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/bastion/internal/domain"
)

// MetricsRepository persists the per-tick metrics history. The full
// sample travels as a msgpack payload; a few columns are broken out for
// querying and pruning.
type MetricsRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewMetricsRepository creates a metrics repository.
func NewMetricsRepository(db *sql.DB, log zerolog.Logger) *MetricsRepository {
	return &MetricsRepository{
		db:  db,
		log: log.With().Str("repo", "metrics").Logger(),
	}
}

// Insert appends one metrics sample.
func (r *MetricsRepository) Insert(m domain.RiskMetrics) error {
	payload, err := msgpack.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}
	_, err = r.db.Exec(`
		INSERT INTO metrics_history
			(timestamp, var_1d, var_7d, volatility, current_drawdown, concentration_hhi, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.Timestamp.Format(time.RFC3339Nano),
		m.VaR1d, m.VaR7d, m.Volatility, m.CurrentDrawdown, m.ConcentrationHHI,
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert metrics: %w", err)
	}
	return nil
}

// Recent returns the latest n samples, oldest first.
func (r *MetricsRepository) Recent(n int) ([]domain.RiskMetrics, error) {
	rows, err := r.db.Query(`
		SELECT payload FROM metrics_history
		ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics history: %w", err)
	}
	defer rows.Close()

	var out []domain.RiskMetrics
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan metrics row: %w", err)
		}
		var m domain.RiskMetrics
		if err := msgpack.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("failed to decode metrics payload: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating metrics history: %w", err)
	}

	// Reverse into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Prune drops everything but the latest keep rows.
func (r *MetricsRepository) Prune(keep int) error {
	_, err := r.db.Exec(`
		DELETE FROM metrics_history
		WHERE id NOT IN (
			SELECT id FROM metrics_history ORDER BY id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return fmt.Errorf("failed to prune metrics history: %w", err)
	}
	return nil
}

// InsertValue records one portfolio value observation.
func (r *MetricsRepository) InsertValue(ts time.Time, totalValue float64) error {
	_, err := r.db.Exec(`
		INSERT INTO portfolio_values (timestamp, total_value) VALUES (?, ?)`,
		ts.Format(time.RFC3339Nano), totalValue)
	if err != nil {
		return fmt.Errorf("failed to insert portfolio value: %w", err)
	}
	return nil
}

// RecentValues returns the latest n portfolio values, oldest first.
func (r *MetricsRepository) RecentValues(n int) ([]float64, error) {
	rows, err := r.db.Query(`
		SELECT total_value FROM portfolio_values
		ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio values: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio value: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolio values: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// PruneValues drops everything but the latest keep value rows.
func (r *MetricsRepository) PruneValues(keep int) error {
	_, err := r.db.Exec(`
		DELETE FROM portfolio_values
		WHERE id NOT IN (
			SELECT id FROM portfolio_values ORDER BY id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return fmt.Errorf("failed to prune portfolio values: %w", err)
	}
	return nil
}
