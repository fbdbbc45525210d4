package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/meerabeer/nfo-agent/pkg/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActorIdentity_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"actor_id":"nfo-17","display_name":"Sara","home_location":"24.7,46.6"}`), 0o600))

	id := NewActorIdentity(path, file.NewFileService())
	require.NoError(t, id.Load())

	assert.Equal(t, "nfo-17", id.ActorID())
	assert.Equal(t, "Sara", id.Identity().DisplayName)
	assert.Equal(t, "24.7,46.6", id.Identity().HomeLocation)
}

func TestActorIdentity_LoadMissingFile(t *testing.T) {
	id := NewActorIdentity(filepath.Join(t.TempDir(), "none.json"), file.NewFileService())

	require.NoError(t, id.Load())
	assert.Empty(t, id.ActorID())
}

func TestActorIdentity_LoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))

	id := NewActorIdentity(path, file.NewFileService())
	assert.Error(t, id.Load())
}
