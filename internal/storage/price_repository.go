package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// PriceRepository stores daily closing prices per symbol. It backs the
// history-based symbol statistics.
type PriceRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPriceRepository creates a price repository.
func NewPriceRepository(db *sql.DB, log zerolog.Logger) *PriceRepository {
	return &PriceRepository{
		db:  db,
		log: log.With().Str("repo", "prices").Logger(),
	}
}

// UpsertClose records the closing price of a symbol on a day. Repeated
// writes for the same day overwrite, so intraday updates converge on
// the final close.
func (r *PriceRepository) UpsertClose(symbol string, day time.Time, close float64) error {
	_, err := r.db.Exec(`
		INSERT INTO price_history (symbol, day, close) VALUES (?, ?, ?)
		ON CONFLICT(symbol, day) DO UPDATE SET close = excluded.close`,
		symbol, day.Format("2006-01-02"), close)
	if err != nil {
		return fmt.Errorf("failed to upsert close for %s: %w", symbol, err)
	}
	return nil
}

// DailyCloses returns up to limit daily closes for a symbol, oldest
// first.
func (r *PriceRepository) DailyCloses(symbol string, limit int) ([]float64, error) {
	rows, err := r.db.Query(`
		SELECT close FROM price_history
		WHERE symbol = ?
		ORDER BY day DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query closes for %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var c float64
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan close: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating closes: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
