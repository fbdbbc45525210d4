// Package location obtains position samples for the heartbeat sampler.
package location

import (
	"context"
	"time"
)

// Sample is one position fix.
type Sample struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64 // metres, or HDOP for serial receivers
	Timestamp time.Time
}

// Provider returns the device's current position.
type Provider interface {
	GetLocation(ctx context.Context) (Sample, error)
}
