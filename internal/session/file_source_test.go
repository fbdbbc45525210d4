package session

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meerabeer/nfo-agent/pkg/file"
	"github.com/meerabeer/nfo-agent/pkg/identity"
)

type staticIdentity struct {
	id identity.Identity
}

func (s staticIdentity) Load() error                 { return nil }
func (s staticIdentity) Identity() identity.Identity { return s.id }
func (s staticIdentity) ActorID() string             { return s.id.ActorID }

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	return kinds(l.events)
}

func TestFileSource_AppliesFileChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")
	fileOps := file.NewFileService()

	ident := staticIdentity{id: identity.Identity{ActorID: "nfo-7", DisplayName: "Noura", HomeLocation: "Riyadh"}}
	store := NewStore(Context{}, nil, zerolog.Nop())
	log := &eventLog{}
	store.Subscribe(log.add)

	source := NewFileSource(path, store, fileOps, ident, zerolog.Nop())
	require.NoError(t, source.Start())
	defer source.Stop()

	assert.Error(t, source.Start(), "second start must fail")

	require.NoError(t, fileOps.WriteJsonFile(path, map[string]any{
		"logged_in": true,
		"on_shift":  true,
		"site_id":   "RUH-0042",
	}))

	require.Eventually(t, func() bool {
		return len(log.kinds()) >= 2
	}, 5*time.Second, 20*time.Millisecond)

	cur := store.Current()
	assert.Equal(t, "nfo-7", cur.ActorID)
	assert.Equal(t, "Noura", cur.DisplayName)
	assert.Equal(t, "Riyadh", cur.HomeLocation)
	assert.Equal(t, "RUH-0042", cur.SiteID)
	assert.Equal(t, []EventKind{EventLogin, EventShiftStart}, log.kinds()[:2])
}

func TestFileSource_InitialLoadAndRelaunch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")
	fileOps := file.NewFileService()

	first := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, fileOps.WriteJsonFile(path, sessionFile{
		Context:             onShift("nfo-1"),
		RelaunchRequestedAt: first,
	}))

	store := NewStore(Context{}, nil, zerolog.Nop())
	log := &eventLog{}
	store.Subscribe(log.add)

	source := NewFileSource(path, store, fileOps, nil, zerolog.Nop())
	require.NoError(t, source.Start())
	require.NoError(t, source.Stop())
	assert.Error(t, source.Stop())

	// The relaunch stamp present at startup is not replayed.
	assert.Equal(t, []EventKind{EventLogin, EventShiftStart}, log.kinds())

	require.NoError(t, fileOps.WriteJsonFile(path, sessionFile{
		Context:             onShift("nfo-1"),
		RelaunchRequestedAt: first.Add(time.Hour),
	}))
	source.Reload()
	assert.Equal(t, []EventKind{EventLogin, EventShiftStart, EventRelaunchRequested}, log.kinds())

	source.Reload()
	assert.Len(t, log.kinds(), 3)
}

func TestFileSource_MissingFileKeepsSession(t *testing.T) {
	store := NewStore(onShift("nfo-1"), nil, zerolog.Nop())
	source := NewFileSource(filepath.Join(t.TempDir(), "absent.json"), store, file.NewFileService(), nil, zerolog.Nop())

	source.Reload()
	assert.Equal(t, onShift("nfo-1"), store.Current())
}
