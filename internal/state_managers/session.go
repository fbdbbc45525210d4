package state_managers

import (
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/meerabeer/nfo-agent/internal/models"
	"github.com/meerabeer/nfo-agent/internal/session"
	"github.com/meerabeer/nfo-agent/pkg/file"
)

type sessionState struct {
	Session session.Context   `json:"session"`
	Boot    models.BootMarker `json:"boot"`
}

// SessionStateManager persists the last applied session and the last boot
// the recovery path handled, so both survive process death and reboots.
type SessionStateManager struct {
	filePath string
	fileOps  file.FileOperations
	logger   zerolog.Logger
	mu       sync.Mutex
}

// NewSessionStateManager initializes a new SessionStateManager.
func NewSessionStateManager(filePath string, fileOps file.FileOperations, logger zerolog.Logger) *SessionStateManager {
	return &SessionStateManager{
		filePath: filePath,
		fileOps:  fileOps,
		logger:   logger,
	}
}

// LoadSession returns the last persisted session, or a logged-out one.
func (sm *SessionStateManager) LoadSession() (session.Context, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	st, err := sm.load()
	return st.Session, err
}

// SaveSession implements session.Persister.
func (sm *SessionStateManager) SaveSession(ctx session.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	st, err := sm.load()
	if err != nil {
		return err
	}
	st.Session = ctx
	return sm.save(st)
}

// LoadBootMarker returns the last handled boot.
func (sm *SessionStateManager) LoadBootMarker() (models.BootMarker, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	st, err := sm.load()
	return st.Boot, err
}

// SaveBootMarker records marker as handled.
func (sm *SessionStateManager) SaveBootMarker(marker models.BootMarker) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	st, err := sm.load()
	if err != nil {
		return err
	}
	st.Boot = marker
	return sm.save(st)
}

func (sm *SessionStateManager) load() (sessionState, error) {
	var st sessionState
	if err := sm.fileOps.ReadJsonFile(sm.filePath, &st); err != nil {
		if os.IsNotExist(err) {
			return sessionState{}, nil
		}
		sm.logger.Error().Err(err).Str("path", sm.filePath).Msg("Failed to read session state file")
		return sessionState{}, err
	}
	return st, nil
}

func (sm *SessionStateManager) save(st sessionState) error {
	if err := sm.fileOps.WriteJsonFile(sm.filePath, st); err != nil {
		sm.logger.Error().Err(err).Str("path", sm.filePath).Msg("Failed to write session state file")
		return err
	}
	return nil
}
