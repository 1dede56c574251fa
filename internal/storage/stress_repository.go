package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/bastion/internal/domain"
)

// StressRepository persists completed stress-test runs.
type StressRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStressRepository creates a stress-test repository.
func NewStressRepository(db *sql.DB, log zerolog.Logger) *StressRepository {
	return &StressRepository{
		db:  db,
		log: log.With().Str("repo", "stress").Logger(),
	}
}

// Insert appends one stress-test result.
func (r *StressRepository) Insert(res domain.StressTestResult) error {
	payload, err := msgpack.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode stress result: %w", err)
	}
	_, err = r.db.Exec(`
		INSERT INTO stress_history (timestamp, base_value, max_impact, payload)
		VALUES (?, ?, ?, ?)`,
		res.Timestamp.Format(time.RFC3339Nano),
		res.BaseValue, res.Summary.MaximumImpact, payload)
	if err != nil {
		return fmt.Errorf("failed to insert stress result: %w", err)
	}
	return nil
}

// Latest returns the most recent stress-test result, or nil if none
// has been recorded.
func (r *StressRepository) Latest() (*domain.StressTestResult, error) {
	var payload []byte
	err := r.db.QueryRow(`
		SELECT payload FROM stress_history
		ORDER BY id DESC LIMIT 1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest stress result: %w", err)
	}
	var res domain.StressTestResult
	if err := msgpack.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("failed to decode stress payload: %w", err)
	}
	return &res, nil
}

// Prune drops everything but the latest keep runs.
func (r *StressRepository) Prune(keep int) error {
	_, err := r.db.Exec(`
		DELETE FROM stress_history
		WHERE id NOT IN (
			SELECT id FROM stress_history ORDER BY id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return fmt.Errorf("failed to prune stress history: %w", err)
	}
	return nil
}
