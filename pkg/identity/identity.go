package identity

import (
	"os"

	"github.com/meerabeer/nfo-agent/pkg/file"
)

// Identity is the provisioned identity of the field worker using this device.
type Identity struct {
	ActorID      string `json:"actor_id,omitempty"`
	DisplayName  string `json:"display_name,omitempty"`
	HomeLocation string `json:"home_location,omitempty"`
	DeviceModel  string `json:"device_model,omitempty"`
}

// IdentityProvider exposes the provisioned actor identity.
type IdentityProvider interface {
	Load() error
	Identity() Identity
	ActorID() string
}

// ActorIdentity loads the identity from a JSON provisioning file.
type ActorIdentity struct {
	identityFile string
	identity     Identity
	fileOps      file.FileOperations
}

// NewActorIdentity initializes an ActorIdentity backed by filePath.
func NewActorIdentity(filePath string, fileOps file.FileOperations) *ActorIdentity {
	return &ActorIdentity{
		identityFile: filePath,
		fileOps:      fileOps,
	}
}

// Load reads the provisioning file. A missing file leaves the identity empty.
func (a *ActorIdentity) Load() error {
	if a.identityFile == "" {
		return nil
	}
	var id Identity
	if err := a.fileOps.ReadJsonFile(a.identityFile, &id); err != nil {
		if os.IsNotExist(err) {
			a.identity = Identity{}
			return nil
		}
		return err
	}
	a.identity = id
	return nil
}

// Identity returns the loaded identity.
func (a *ActorIdentity) Identity() Identity {
	return a.identity
}

// ActorID returns the provisioned actor id, or "" when unknown.
func (a *ActorIdentity) ActorID() string {
	return a.identity.ActorID
}
