package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/bastion/internal/domain"
)

// EngineState is the part of the monitoring engine that survives a
// restart: the current (possibly adapted) thresholds, the alerts that
// were active, and the sticky emergency flag.
type EngineState struct {
	SavedAt       time.Time                   `msgpack:"saved_at"`
	Thresholds    domain.ThresholdSet         `msgpack:"thresholds"`
	ActiveAlerts  map[string]domain.RiskAlert `msgpack:"active_alerts"`
	EmergencyStop bool                        `msgpack:"emergency_stop"`
	TickCount     uint64                      `msgpack:"tick_count"`
}

// StateStore persists EngineState as a msgpack file next to the
// databases. Writes go through a temp file plus rename so a crash mid
// write never leaves a torn snapshot.
type StateStore struct {
	path string
	log  zerolog.Logger
}

// NewStateStore creates a store writing to the given file path.
func NewStateStore(path string, log zerolog.Logger) *StateStore {
	return &StateStore{
		path: path,
		log:  log.With().Str("component", "state_store").Logger(),
	}
}

// Save writes the state snapshot.
func (s *StateStore) Save(state EngineState) error {
	state.SavedAt = time.Now().UTC()
	payload, err := msgpack.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode engine state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	s.log.Debug().Str("path", s.path).Msg("engine state saved")
	return nil
}

// Load reads the last snapshot. A missing file returns (nil, nil): a
// fresh deployment starts from defaults.
func (s *StateStore) Load() (*EngineState, error) {
	payload, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state EngineState
	if err := msgpack.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("failed to decode engine state: %w", err)
	}
	return &state, nil
}
