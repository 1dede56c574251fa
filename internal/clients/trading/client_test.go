package trading

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/bastion/internal/domain"
)

// tradingStub is a scripted trading service.
type tradingStub struct {
	t        *testing.T
	paths    []string
	payloads map[string]json.RawMessage
	success  bool
}

func newTradingStub(t *testing.T) (*tradingStub, *httptest.Server) {
	stub := &tradingStub{t: t, payloads: map[string]json.RawMessage{}, success: true}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/trading/positions" {
			w.Write([]byte(`[
				{"symbol": "BTC", "size": 0.2, "market_value": 10000},
				{"symbol": "UNI", "size": 500, "market_value": 2000}
			]`))
			return
		}
		stub.paths = append(stub.paths, r.URL.Path)
		var raw json.RawMessage
		json.NewDecoder(r.Body).Decode(&raw)
		stub.payloads[r.URL.Path] = raw

		json.NewEncoder(w).Encode(map[string]any{"success": stub.success, "message": "ok"})
	}))
	t.Cleanup(server.Close)
	return stub, server
}

func TestStopTrading(t *testing.T) {
	stub, server := newTradingStub(t)
	client := NewClient(server.URL, zerolog.Nop())

	ok, err := client.StopTrading(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"/api/trading/stop"}, stub.paths)
}

func TestRequestRebalance(t *testing.T) {
	stub, server := newTradingStub(t)
	client := NewClient(server.URL, zerolog.Nop())

	ok, err := client.RequestRebalance(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"/api/trading/rebalance"}, stub.paths)
}

func TestReducePositionsSendsFactor(t *testing.T) {
	stub, server := newTradingStub(t)
	client := NewClient(server.URL, zerolog.Nop())

	ok, err := client.ReducePositions(context.Background(), 0.5)
	require.NoError(t, err)
	assert.True(t, ok)

	var payload struct {
		Factor float64 `json:"factor"`
	}
	require.NoError(t, json.Unmarshal(stub.payloads["/api/trading/reduce"], &payload))
	assert.Equal(t, 0.5, payload.Factor)
}

func TestLiquidatePositionsSelectsLocally(t *testing.T) {
	stub, server := newTradingStub(t)
	client := NewClient(server.URL, zerolog.Nop())

	ok, err := client.LiquidatePositions(context.Background(), func(pos domain.Position) bool {
		return pos.Symbol == "UNI"
	})
	require.NoError(t, err)
	assert.True(t, ok)

	var payload struct {
		Symbols []string `json:"symbols"`
	}
	require.NoError(t, json.Unmarshal(stub.payloads["/api/trading/liquidate"], &payload))
	assert.Equal(t, []string{"UNI"}, payload.Symbols)
}

func TestLiquidatePositionsNothingSelected(t *testing.T) {
	stub, server := newTradingStub(t)
	client := NewClient(server.URL, zerolog.Nop())

	ok, err := client.LiquidatePositions(context.Background(), func(domain.Position) bool {
		return false
	})
	require.NoError(t, err)
	assert.True(t, ok)

	// No liquidate command was issued.
	assert.Empty(t, stub.paths)
}

func TestReduceLeverage(t *testing.T) {
	stub, server := newTradingStub(t)
	client := NewClient(server.URL, zerolog.Nop())

	ok, err := client.ReduceLeverage(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"/api/trading/deleverage"}, stub.paths)
}

func TestCommandRefusalPropagates(t *testing.T) {
	stub, server := newTradingStub(t)
	stub.success = false
	client := NewClient(server.URL, zerolog.Nop())

	ok, err := client.StopTrading(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCommandErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, zerolog.Nop())
	ok, err := client.StopTrading(context.Background())
	assert.False(t, ok)
	assert.ErrorContains(t, err, "status 502")
}
