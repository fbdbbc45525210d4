// Package connectivity answers whether the device currently has a usable
// network, the precondition for every sync attempt.
package connectivity

import (
	"context"
	"net/netip"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/net"
)

// Monitor reports network availability.
type Monitor interface {
	Available(ctx context.Context) bool
}

// InterfaceMonitor considers the network available when at least one
// non-loopback interface is up and carries a routable address.
type InterfaceMonitor struct {
	list   func(ctx context.Context) ([]net.InterfaceStat, error)
	logger zerolog.Logger
}

// NewInterfaceMonitor creates a monitor backed by the host interface table.
func NewInterfaceMonitor(logger zerolog.Logger) *InterfaceMonitor {
	return &InterfaceMonitor{
		list:   net.InterfacesWithContext,
		logger: logger,
	}
}

// Available implements Monitor.
func (m *InterfaceMonitor) Available(ctx context.Context) bool {
	ifaces, err := m.list(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Failed to list network interfaces")
		return false
	}

	for _, iface := range ifaces {
		if !slices.Contains(iface.Flags, "up") || slices.Contains(iface.Flags, "loopback") {
			continue
		}
		for _, addr := range iface.Addrs {
			if routable(addr.Addr) {
				return true
			}
		}
	}
	return false
}

// routable accepts "a.b.c.d/nn" or a bare address.
func routable(addr string) bool {
	if i := strings.IndexByte(addr, '/'); i >= 0 {
		addr = addr[:i]
	}
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return false
	}
	return !ip.IsLoopback() && !ip.IsLinkLocalUnicast() && !ip.IsUnspecified()
}

// Always is a Monitor that always reports the network as available.
type Always struct{}

// Available implements Monitor.
func (Always) Available(context.Context) bool { return true }
