package location

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/tarm/serial"
)

// ErrNoFix is returned when the receiver produced no usable GGA sentence.
var ErrNoFix = errors.New("no valid GPS fix found")

// DeviceSensorProvider reads NMEA sentences from a GPS receiver on a serial port.
type DeviceSensorProvider struct {
	port        string
	baudRate    int
	readTimeout time.Duration
	now         func() time.Time
}

// NewDeviceSensorProvider creates a provider for the receiver on port.
func NewDeviceSensorProvider(port string, baudRate int) *DeviceSensorProvider {
	return &DeviceSensorProvider{
		port:        port,
		baudRate:    baudRate,
		readTimeout: 5 * time.Second,
		now:         time.Now,
	}
}

// GetLocation opens the port and returns the first GGA sentence with a fix.
func (d *DeviceSensorProvider) GetLocation(ctx context.Context) (Sample, error) {
	c := &serial.Config{Name: d.port, Baud: d.baudRate, ReadTimeout: d.readTimeout}
	s, err := serial.OpenPort(c)
	if err != nil {
		return Sample{}, fmt.Errorf("failed to open GPS port %s: %w", d.port, err)
	}
	defer s.Close()

	sample, err := readFix(ctx, s)
	if err != nil {
		return Sample{}, err
	}
	sample.Timestamp = d.now()
	return sample, nil
}

// readFix scans NMEA lines until a GGA sentence reports a valid fix.
func readFix(ctx context.Context, r io.Reader) (Sample, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return Sample{}, err
		}

		line := strings.TrimSpace(scanner.Text())
		// GP, GN and GL talkers all emit GGA.
		if !strings.HasPrefix(line, "$") || !strings.Contains(line, "GGA,") {
			continue
		}

		sentence, err := nmea.Parse(line)
		if err != nil {
			continue
		}
		gga, ok := sentence.(nmea.GGA)
		if !ok || gga.FixQuality == nmea.Invalid || gga.FixQuality == "" {
			continue
		}

		return Sample{
			Latitude:  gga.Latitude,
			Longitude: gga.Longitude,
			Accuracy:  gga.HDOP,
		}, nil
	}

	if err := scanner.Err(); err != nil {
		return Sample{}, fmt.Errorf("failed to read GPS data: %w", err)
	}
	return Sample{}, ErrNoFix
}
