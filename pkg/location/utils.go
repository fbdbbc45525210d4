package location

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"googlemaps.github.io/maps"
)

// getWiFiAccessPoints lists nearby access points using nmcli.
func getWiFiAccessPoints(ctx context.Context) ([]maps.WiFiAccessPoint, error) {
	if _, err := exec.LookPath("nmcli"); err != nil {
		return nil, fmt.Errorf("nmcli not found: %w", err)
	}

	output, err := exec.CommandContext(ctx, "nmcli", "-t", "-f", "BSSID,SIGNAL", "dev", "wifi", "list").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to run nmcli: %w", err)
	}
	return parseNmcliWiFi(string(output))
}

// parseNmcliWiFi parses terse nmcli output, where colons inside the BSSID are
// escaped as "\:". SIGNAL is a 0-100 quality that is mapped to dBm.
func parseNmcliWiFi(output string) ([]maps.WiFiAccessPoint, error) {
	var aps []maps.WiFiAccessPoint
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.ReplaceAll(scanner.Text(), `\:`, "-")
		bssid, signal, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		mac := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(bssid), "-", ":"))
		if !isValidMAC(mac) {
			continue
		}
		quality, err := strconv.Atoi(strings.TrimSpace(signal))
		if err != nil || quality < 0 || quality > 100 {
			continue
		}
		aps = append(aps, maps.WiFiAccessPoint{
			MACAddress:     mac,
			SignalStrength: float64(quality/2 - 100),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan nmcli output: %w", err)
	}
	return aps, nil
}

// getCellTowers reads the serving cell from ModemManager.
func getCellTowers(ctx context.Context, modemIndex int) ([]maps.CellTower, error) {
	if _, err := exec.LookPath("mmcli"); err != nil {
		return nil, fmt.Errorf("mmcli not found: %w", err)
	}

	output, err := exec.CommandContext(ctx, "mmcli", "-m", strconv.Itoa(modemIndex),
		"--location-get", "--output-keyvalue").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to run mmcli for modem %d: %w", modemIndex, err)
	}

	tower, err := parseMmcliLocation(string(output))
	if err != nil {
		return nil, err
	}
	return []maps.CellTower{tower}, nil
}

// parseMmcliLocation extracts the 3GPP cell identity. LAC, TAC and CID are hex.
func parseMmcliLocation(output string) (maps.CellTower, error) {
	var tower maps.CellTower
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if value == "" || value == "--" {
			continue
		}

		switch key {
		case "modem.location.3gpp.mcc":
			if v, err := strconv.Atoi(value); err == nil {
				tower.MobileCountryCode = v
			}
		case "modem.location.3gpp.mnc":
			if v, err := strconv.Atoi(value); err == nil {
				tower.MobileNetworkCode = v
			}
		case "modem.location.3gpp.lac":
			if v, err := strconv.ParseInt(value, 16, 64); err == nil && v != 0 {
				tower.LocationAreaCode = int(v)
			}
		case "modem.location.3gpp.tac":
			// LTE reports a TAC instead of a LAC.
			if v, err := strconv.ParseInt(value, 16, 64); err == nil && tower.LocationAreaCode == 0 {
				tower.LocationAreaCode = int(v)
			}
		case "modem.location.3gpp.cid":
			if v, err := strconv.ParseInt(value, 16, 64); err == nil {
				tower.CellID = int(v)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return maps.CellTower{}, fmt.Errorf("failed to scan mmcli output: %w", err)
	}

	if tower.MobileCountryCode == 0 || tower.CellID == 0 {
		return maps.CellTower{}, errors.New("incomplete cell tower data")
	}
	return tower, nil
}

// isValidMAC checks for the colon separated form, e.g. "00:14:22:01:23:45".
func isValidMAC(mac string) bool {
	parts := strings.Split(mac, ":")
	if len(parts) != 6 {
		return false
	}
	for _, part := range parts {
		if len(part) != 2 {
			return false
		}
		if _, err := strconv.ParseUint(part, 16, 8); err != nil {
			return false
		}
	}
	return true
}
