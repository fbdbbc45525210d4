package state_managers

import (
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/meerabeer/nfo-agent/internal/constants"
	"github.com/meerabeer/nfo-agent/internal/models"
	"github.com/meerabeer/nfo-agent/pkg/file"
)

// WatchdogStateManager persists the watchdog verdict and notification time.
type WatchdogStateManager struct {
	filePath string
	fileOps  file.FileOperations
	logger   zerolog.Logger
	mu       sync.Mutex
}

// NewWatchdogStateManager initializes a new WatchdogStateManager.
func NewWatchdogStateManager(filePath string, fileOps file.FileOperations, logger zerolog.Logger) *WatchdogStateManager {
	return &WatchdogStateManager{
		filePath: filePath,
		fileOps:  fileOps,
		logger:   logger,
	}
}

// LoadState reads the watchdog state. A missing file yields a dormant state.
func (sm *WatchdogStateManager) LoadState() (models.WatchdogState, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	state := models.WatchdogState{State: constants.WatchdogDormant}
	if err := sm.fileOps.ReadJsonFile(sm.filePath, &state); err != nil {
		if os.IsNotExist(err) {
			return models.WatchdogState{State: constants.WatchdogDormant}, nil
		}
		sm.logger.Error().Err(err).Str("path", sm.filePath).Msg("Failed to read watchdog state file")
		return models.WatchdogState{}, err
	}
	if state.State == "" {
		state.State = constants.WatchdogDormant
	}
	return state, nil
}

// SaveState writes the watchdog state.
func (sm *WatchdogStateManager) SaveState(state models.WatchdogState) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if err := sm.fileOps.WriteJsonFile(sm.filePath, state); err != nil {
		sm.logger.Error().Err(err).Str("path", sm.filePath).Msg("Failed to write watchdog state file")
		return err
	}
	return nil
}
