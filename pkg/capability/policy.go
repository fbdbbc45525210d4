package capability

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Policy decides whether background sampling may be resumed without the user.
type Policy struct {
	platform       *semver.Version
	restrictedFrom *semver.Version
}

// NewPolicy parses the platform version and the first restricted version.
func NewPolicy(platformVersion, restrictedFrom string) (*Policy, error) {
	platform, err := semver.NewVersion(platformVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid platform version %q: %w", platformVersion, err)
	}
	restricted, err := semver.NewVersion(restrictedFrom)
	if err != nil {
		return nil, fmt.Errorf("invalid restricted version %q: %w", restrictedFrom, err)
	}
	return &Policy{platform: platform, restrictedFrom: restricted}, nil
}

// SilentResumeAllowed reports whether the platform predates the restriction.
func (p *Policy) SilentResumeAllowed() bool {
	return p.platform.LessThan(p.restrictedFrom)
}

// Platform returns the parsed platform version.
func (p *Policy) Platform() string {
	return p.platform.String()
}
