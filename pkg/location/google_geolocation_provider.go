package location

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"
)

type geolocator interface {
	Geolocate(ctx context.Context, r *maps.GeolocationRequest) (*maps.GeolocationResult, error)
}

// GoogleGeolocationProvider resolves the position from nearby WiFi access
// points and the serving cell using the Google Geolocation API.
type GoogleGeolocationProvider struct {
	client     geolocator
	modemIndex int
	timeout    time.Duration

	scanWiFi  func(ctx context.Context) ([]maps.WiFiAccessPoint, error)
	scanCells func(ctx context.Context, modemIndex int) ([]maps.CellTower, error)
	now       func() time.Time
}

// NewGoogleGeolocationProvider creates a provider using apiKey.
func NewGoogleGeolocationProvider(apiKey string, modemIndex int) (*GoogleGeolocationProvider, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return newGoogleGeolocationProvider(c, modemIndex), nil
}

func newGoogleGeolocationProvider(client geolocator, modemIndex int) *GoogleGeolocationProvider {
	return &GoogleGeolocationProvider{
		client:     client,
		modemIndex: modemIndex,
		timeout:    10 * time.Second,
		scanWiFi:   getWiFiAccessPoints,
		scanCells:  getCellTowers,
		now:        time.Now,
	}
}

// GetLocation implements Provider. Radio scans that fail are left out of the
// request; the API then falls back to the public IP.
func (g *GoogleGeolocationProvider) GetLocation(ctx context.Context) (Sample, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := &maps.GeolocationRequest{ConsiderIP: true}
	if aps, err := g.scanWiFi(ctx); err == nil {
		req.WiFiAccessPoints = aps
	}
	if cells, err := g.scanCells(ctx, g.modemIndex); err == nil {
		req.CellTowers = cells
	}

	resp, err := g.client.Geolocate(ctx, req)
	if err != nil {
		return Sample{}, fmt.Errorf("geolocation request failed: %w", err)
	}

	return Sample{
		Latitude:  resp.Location.Lat,
		Longitude: resp.Location.Lng,
		Accuracy:  resp.Accuracy,
		Timestamp: g.now(),
	}, nil
}
