package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/bastion/internal/domain"
)

// AlertRepository persists the append-only alert history.
type AlertRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewAlertRepository creates an alert repository.
func NewAlertRepository(db *sql.DB, log zerolog.Logger) *AlertRepository {
	return &AlertRepository{
		db:  db,
		log: log.With().Str("repo", "alerts").Logger(),
	}
}

// Insert appends one alert. Inserting the same id twice is rejected by
// the primary key, matching the append-only contract.
func (r *AlertRepository) Insert(a domain.RiskAlert) error {
	payload, err := msgpack.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}
	_, err = r.db.Exec(`
		INSERT INTO alert_history
			(id, timestamp, risk_type, level, alert_type, title, priority_score, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.Timestamp.Format(time.RFC3339Nano),
		a.RiskType.String(), a.Level.String(), a.AlertType.String(),
		a.Title, a.PriorityScore,
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// Recent returns the latest n alerts, newest first.
func (r *AlertRepository) Recent(n int) ([]domain.RiskAlert, error) {
	rows, err := r.db.Query(`
		SELECT payload FROM alert_history
		ORDER BY timestamp DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert history: %w", err)
	}
	defer rows.Close()

	var out []domain.RiskAlert
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		var a domain.RiskAlert
		if err := msgpack.Unmarshal(payload, &a); err != nil {
			return nil, fmt.Errorf("failed to decode alert payload: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert history: %w", err)
	}
	return out, nil
}

// Prune drops everything but the latest keep alerts.
func (r *AlertRepository) Prune(keep int) error {
	_, err := r.db.Exec(`
		DELETE FROM alert_history
		WHERE id NOT IN (
			SELECT id FROM alert_history ORDER BY timestamp DESC LIMIT ?
		)`, keep)
	if err != nil {
		return fmt.Errorf("failed to prune alert history: %w", err)
	}
	return nil
}
