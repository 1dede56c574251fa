package portfolio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPortfolioSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/portfolio/snapshot", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"timestamp": "2025-06-01T12:00:00Z",
			"total_value": 12500.5,
			"positions": [
				{"symbol": "BTC", "size": 0.2, "market_value": 10000},
				{"symbol": "ETH", "size": 1.0, "market_value": 2500.5}
			]
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, zerolog.Nop())
	snap, err := client.GetPortfolioSnapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 12500.5, snap.TotalValue)
	require.Len(t, snap.Positions, 2)
	assert.Equal(t, "BTC", snap.Positions[0].Symbol)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), snap.Timestamp)
}

func TestGetPortfolioSnapshotFillsMissingTimestamp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total_value": 100, "positions": []}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, zerolog.Nop())
	snap, err := client.GetPortfolioSnapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.Timestamp.IsZero())
}

func TestGetPortfolioSnapshotErrors(t *testing.T) {
	t.Run("server error status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := NewClient(server.URL, zerolog.Nop())
		_, err := client.GetPortfolioSnapshot(context.Background())
		assert.ErrorContains(t, err, "status 500")
	})

	t.Run("malformed body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}))
		defer server.Close()

		client := NewClient(server.URL, zerolog.Nop())
		_, err := client.GetPortfolioSnapshot(context.Background())
		assert.ErrorContains(t, err, "decode")
	})

	t.Run("unreachable service", func(t *testing.T) {
		client := NewClient("http://127.0.0.1:1", zerolog.Nop())
		_, err := client.GetPortfolioSnapshot(context.Background())
		assert.Error(t, err)
	})
}

func TestGetPortfolioSnapshotHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewClient(server.URL, zerolog.Nop())
	_, err := client.GetPortfolioSnapshot(ctx)
	assert.Error(t, err)
}
