// Package trading talks to the trading service that executes
// mitigation actions.
package trading

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/bastion/internal/domain"
)

// Client issues mitigation commands to the trading service. It
// implements domain.TradingController.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a trading service client.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log.With().Str("component", "trading_client").Logger(),
	}
}

type commandResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// StopTrading halts all trading activity.
func (c *Client) StopTrading(ctx context.Context) (bool, error) {
	return c.post(ctx, "/api/trading/stop", nil)
}

// RequestRebalance asks for a portfolio rebalance.
func (c *Client) RequestRebalance(ctx context.Context) (bool, error) {
	return c.post(ctx, "/api/trading/rebalance", nil)
}

// ReducePositions shrinks every position by the given factor.
func (c *Client) ReducePositions(ctx context.Context, factor float64) (bool, error) {
	return c.post(ctx, "/api/trading/reduce", map[string]float64{"factor": factor})
}

// LiquidatePositions closes the positions selected by shouldLiquidate.
// Selection happens locally; only the chosen symbols travel to the
// trading service.
func (c *Client) LiquidatePositions(ctx context.Context, shouldLiquidate func(domain.Position) bool) (bool, error) {
	snap, err := c.currentPositions(ctx)
	if err != nil {
		return false, err
	}

	var symbols []string
	for _, pos := range snap {
		if shouldLiquidate(pos) {
			symbols = append(symbols, pos.Symbol)
		}
	}
	if len(symbols) == 0 {
		return true, nil
	}
	return c.post(ctx, "/api/trading/liquidate", map[string][]string{"symbols": symbols})
}

// ReduceLeverage asks the trading service to deleverage.
func (c *Client) ReduceLeverage(ctx context.Context) (bool, error) {
	return c.post(ctx, "/api/trading/deleverage", nil)
}

func (c *Client) currentPositions(ctx context.Context) ([]domain.Position, error) {
	url := fmt.Sprintf("%s/api/trading/positions", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create positions request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch positions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("positions request returned status %d", resp.StatusCode)
	}

	var positions []domain.Position
	if err := json.NewDecoder(resp.Body).Decode(&positions); err != nil {
		return nil, fmt.Errorf("failed to decode positions: %w", err)
	}
	return positions, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (bool, error) {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return false, fmt.Errorf("failed to marshal command: %w", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return false, fmt.Errorf("failed to create command request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to send command: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("command %s returned status %d", path, resp.StatusCode)
	}

	var out commandResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("failed to decode command response: %w", err)
	}

	c.log.Info().Str("path", path).Bool("success", out.Success).Msg("trading command sent")
	return out.Success, nil
}
