package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// writeJSON writes the standard {data, metadata} envelope.
func writeJSON(w http.ResponseWriter, log zerolog.Logger, status int, data any) {
	response := map[string]any{
		"data": data,
		"metadata": map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError writes the envelope with an error field in the metadata.
func writeError(w http.ResponseWriter, log zerolog.Logger, status int, msg string) {
	response := map[string]any{
		"data": nil,
		"metadata": map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"error":     msg,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("failed to encode error response")
	}
}
