package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/meerabeer/nfo-agent/internal/utils"
	"github.com/meerabeer/nfo-agent/pkg/file"
	"github.com/meerabeer/nfo-agent/pkg/identity"
)

// sessionFile is the document the host UI writes on every login, logout,
// shift toggle or assignment change.
type sessionFile struct {
	Context
	RelaunchRequestedAt time.Time `json:"relaunch_requested_at,omitempty"`
}

// FileSource feeds the Store from the session file, watching it with fsnotify.
type FileSource struct {
	path     string
	store    *Store
	fileOps  file.FileOperations
	identity identity.IdentityProvider
	logger   zerolog.Logger

	watcher      *fsnotify.Watcher
	lastRelaunch time.Time
	done         chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex
	running      bool
}

// NewFileSource creates a FileSource. Identity fields missing from the
// session file fall back to the provisioned identity.
func NewFileSource(path string, store *Store, fileOps file.FileOperations,
	identityProvider identity.IdentityProvider, logger zerolog.Logger) *FileSource {
	return &FileSource{
		path:     path,
		store:    store,
		fileOps:  fileOps,
		identity: identityProvider,
		logger:   logger,
	}
}

// Start loads the current session file and begins watching it.
func (fs *FileSource) Start() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.running {
		return errors.New("session file source is already running")
	}

	dir := filepath.Dir(fs.path)
	if err := fs.fileOps.EnsureDir(dir); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create session file watcher: %w", err)
	}
	// Watch the directory so atomic replace-by-rename is observed.
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch session directory %s: %w", dir, err)
	}

	if doc, ok := fs.read(); ok {
		fs.lastRelaunch = doc.RelaunchRequestedAt
		fs.store.Apply(doc.Context)
	}

	fs.watcher = watcher
	fs.done = make(chan struct{})
	fs.running = true
	fs.wg.Add(1)
	go fs.processEvents()

	fs.logger.Info().Str("path", fs.path).Msg("Session file source started")
	return nil
}

// Stop stops watching the session file.
func (fs *FileSource) Stop() error {
	fs.mu.Lock()
	if !fs.running {
		fs.mu.Unlock()
		return errors.New("session file source is not running")
	}
	fs.running = false
	fs.mu.Unlock()

	close(fs.done)
	err := fs.watcher.Close()
	fs.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close session watcher: %w", err)
	}

	fs.logger.Info().Msg("Session file source stopped")
	return nil
}

// Reload re-reads the session file and applies it to the store.
func (fs *FileSource) Reload() {
	doc, ok := fs.read()
	if !ok {
		return
	}
	fs.store.Apply(doc.Context)

	if doc.RelaunchRequestedAt.After(fs.lastRelaunch) {
		fs.lastRelaunch = doc.RelaunchRequestedAt
		fs.store.RequestRelaunch()
	}
}

func (fs *FileSource) processEvents() {
	defer fs.wg.Done()

	target := filepath.Clean(fs.path)
	for {
		select {
		case <-fs.done:
			return

		case event, ok := <-fs.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) {
				fs.Reload()
			}

		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return
			}
			fs.logger.Warn().Err(err).Msg("Session watcher error")
		}
	}
}

// read returns the session document; ok is false when the file is missing or unreadable.
func (fs *FileSource) read() (sessionFile, bool) {
	var doc sessionFile
	if err := fs.fileOps.ReadJsonFile(fs.path, &doc); err != nil {
		if os.IsNotExist(err) {
			fs.logger.Debug().Str("path", fs.path).Msg("Session file not present yet")
		} else {
			fs.logger.Warn().Err(err).Str("path", fs.path).Msg("Failed to read session file")
		}
		return doc, false
	}

	if fs.identity != nil {
		id := fs.identity.Identity()
		doc.ActorID = utils.Coalesce(doc.ActorID, id.ActorID)
		doc.DisplayName = utils.Coalesce(doc.DisplayName, id.DisplayName)
		doc.HomeLocation = utils.Coalesce(doc.HomeLocation, id.HomeLocation)
	}
	return doc, true
}
