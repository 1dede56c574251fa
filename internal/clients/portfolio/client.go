// Package portfolio talks to the portfolio service supplying position
// snapshots.
package portfolio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/bastion/internal/domain"
)

// Client fetches portfolio snapshots over HTTP. It implements
// domain.PortfolioProvider.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a portfolio service client.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log.With().Str("component", "portfolio_client").Logger(),
	}
}

type snapshotResponse struct {
	Timestamp  time.Time         `json:"timestamp"`
	TotalValue float64           `json:"total_value"`
	Positions  []domain.Position `json:"positions"`
}

// GetPortfolioSnapshot fetches the current snapshot.
func (c *Client) GetPortfolioSnapshot(ctx context.Context) (*domain.PortfolioSnapshot, error) {
	url := fmt.Sprintf("%s/api/portfolio/snapshot", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot request returned status %d", resp.StatusCode)
	}

	var body snapshotResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	snap := &domain.PortfolioSnapshot{
		Timestamp:  body.Timestamp,
		TotalValue: body.TotalValue,
		Positions:  body.Positions,
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}

	c.log.Debug().
		Float64("total_value", snap.TotalValue).
		Int("positions", len(snap.Positions)).
		Msg("snapshot fetched")
	return snap, nil
}
