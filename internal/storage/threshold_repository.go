package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/bastion/internal/domain"
)

// ThresholdRepository persists the adaptive-optimizer audit log.
type ThresholdRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewThresholdRepository creates a threshold audit repository.
func NewThresholdRepository(db *sql.DB, log zerolog.Logger) *ThresholdRepository {
	return &ThresholdRepository{
		db:  db,
		log: log.With().Str("repo", "thresholds").Logger(),
	}
}

// InsertAdjustment appends one audit entry.
func (r *ThresholdRepository) InsertAdjustment(adj domain.ThresholdAdjustment) error {
	payload, err := msgpack.Marshal(adj)
	if err != nil {
		return fmt.Errorf("failed to encode adjustment: %w", err)
	}
	_, err = r.db.Exec(`
		INSERT INTO threshold_audit (timestamp, sample_size, payload)
		VALUES (?, ?, ?)`,
		adj.Timestamp.Format(time.RFC3339Nano), adj.SampleSize, payload)
	if err != nil {
		return fmt.Errorf("failed to insert adjustment: %w", err)
	}
	return nil
}

// Adjustments returns the latest n audit entries, newest first.
func (r *ThresholdRepository) Adjustments(n int) ([]domain.ThresholdAdjustment, error) {
	rows, err := r.db.Query(`
		SELECT payload FROM threshold_audit
		ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query threshold audit: %w", err)
	}
	defer rows.Close()

	var out []domain.ThresholdAdjustment
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}
		var adj domain.ThresholdAdjustment
		if err := msgpack.Unmarshal(payload, &adj); err != nil {
			return nil, fmt.Errorf("failed to decode adjustment payload: %w", err)
		}
		out = append(out, adj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating threshold audit: %w", err)
	}
	return out, nil
}
