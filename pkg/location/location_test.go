package location

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"googlemaps.github.io/maps"
)

func TestReadFix_SkipsInvalidFixes(t *testing.T) {
	input := strings.Join([]string{
		"$GPRMC,garbage",
		"$GNGGA,123520,4807.038,N,01131.000,E,0,00,99.9,545.4,M,46.9,M,,*6A",
		"$GNGGA,123521,2442.600,N,04640.200,E,1,10,1.2,612.0,M,0.0,M,,*6F",
	}, "\r\n")

	sample, err := readFix(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	assert.InDelta(t, 24.71, sample.Latitude, 1e-6)
	assert.InDelta(t, 46.67, sample.Longitude, 1e-6)
	assert.InDelta(t, 1.2, sample.Accuracy, 1e-9)
}

func TestReadFix_GPTalker(t *testing.T) {
	input := "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47\n"

	sample, err := readFix(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	assert.InDelta(t, 48.1173, sample.Latitude, 1e-6)
	assert.InDelta(t, 11.516667, sample.Longitude, 1e-6)
}

func TestReadFix_NoFix(t *testing.T) {
	input := "$GNGGA,123520,4807.038,N,01131.000,E,0,00,99.9,545.4,M,46.9,M,,*6A\n"
	_, err := readFix(context.Background(), strings.NewReader(input))
	assert.ErrorIs(t, err, ErrNoFix)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = readFix(ctx, strings.NewReader(input))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseNmcliWiFi(t *testing.T) {
	output := "AA\\:BB\\:CC\\:DD\\:EE\\:FF:80\n" +
		"00\\:14\\:22\\:01\\:23\\:45:30\n" +
		"not-a-mac:50\n" +
		"11\\:22\\:33\\:44\\:55\\:66:n/a\n"

	aps, err := parseNmcliWiFi(output)
	require.NoError(t, err)
	require.Len(t, aps, 2)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", aps[0].MACAddress)
	assert.Equal(t, float64(-60), aps[0].SignalStrength)
	assert.Equal(t, "00:14:22:01:23:45", aps[1].MACAddress)
	assert.Equal(t, float64(-85), aps[1].SignalStrength)
}

func TestParseMmcliLocation(t *testing.T) {
	output := `modem.location.3gpp.mcc                 : 420
modem.location.3gpp.mnc                 : 01
modem.location.3gpp.lac                 : 0000
modem.location.3gpp.tac                 : 00A1
modem.location.3gpp.cid                 : 01B2C3D4
modem.location.gps.utc                  : --
`
	tower, err := parseMmcliLocation(output)
	require.NoError(t, err)
	assert.Equal(t, 420, tower.MobileCountryCode)
	assert.Equal(t, 1, tower.MobileNetworkCode)
	assert.Equal(t, 0xA1, tower.LocationAreaCode)
	assert.Equal(t, 0x01B2C3D4, tower.CellID)

	_, err = parseMmcliLocation("modem.location.3gpp.mcc : 420\n")
	assert.Error(t, err)
}

func TestIsValidMAC(t *testing.T) {
	assert.True(t, isValidMAC("ff:ff:ff:ff:ff:ff"))
	assert.False(t, isValidMAC("ff:ff:ff:ff:ff"))
	assert.False(t, isValidMAC("gg:ff:ff:ff:ff:ff"))
}

type fakeGeolocator struct {
	req    *maps.GeolocationRequest
	result *maps.GeolocationResult
	err    error
}

func (f *fakeGeolocator) Geolocate(_ context.Context, r *maps.GeolocationRequest) (*maps.GeolocationResult, error) {
	f.req = r
	return f.result, f.err
}

func TestGoogleGeolocationProvider(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	geo := &fakeGeolocator{result: &maps.GeolocationResult{
		Location: maps.LatLng{Lat: 24.7136, Lng: 46.6753},
		Accuracy: 35,
	}}

	p := newGoogleGeolocationProvider(geo, 0)
	p.now = func() time.Time { return fixed }
	p.scanWiFi = func(context.Context) ([]maps.WiFiAccessPoint, error) {
		return []maps.WiFiAccessPoint{{MACAddress: "aa:bb:cc:dd:ee:ff", SignalStrength: -60}}, nil
	}
	p.scanCells = func(context.Context, int) ([]maps.CellTower, error) {
		return nil, errors.New("no modem")
	}

	sample, err := p.GetLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Sample{Latitude: 24.7136, Longitude: 46.6753, Accuracy: 35, Timestamp: fixed}, sample)
	assert.True(t, geo.req.ConsiderIP)
	assert.Len(t, geo.req.WiFiAccessPoints, 1)
	assert.Empty(t, geo.req.CellTowers)

	geo.err = errors.New("quota exceeded")
	_, err = p.GetLocation(context.Background())
	assert.ErrorContains(t, err, "quota exceeded")
}
