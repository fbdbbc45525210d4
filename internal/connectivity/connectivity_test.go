package connectivity

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/net"
	"github.com/stretchr/testify/assert"
)

func monitorWith(list []net.InterfaceStat, err error) *InterfaceMonitor {
	m := NewInterfaceMonitor(zerolog.Nop())
	m.list = func(context.Context) ([]net.InterfaceStat, error) { return list, err }
	return m
}

func TestInterfaceMonitor(t *testing.T) {
	loopback := net.InterfaceStat{
		Name:  "lo",
		Flags: []string{"up", "loopback"},
		Addrs: []net.InterfaceAddr{{Addr: "127.0.0.1/8"}},
	}
	linkLocal := net.InterfaceStat{
		Name:  "wlan0",
		Flags: []string{"up", "broadcast"},
		Addrs: []net.InterfaceAddr{{Addr: "fe80::1/64"}, {Addr: "169.254.10.2/16"}},
	}
	down := net.InterfaceStat{
		Name:  "wwan0",
		Flags: []string{"broadcast"},
		Addrs: []net.InterfaceAddr{{Addr: "10.64.1.7/30"}},
	}
	cellular := net.InterfaceStat{
		Name:  "wwan0",
		Flags: []string{"up", "pointtopoint"},
		Addrs: []net.InterfaceAddr{{Addr: "10.64.1.7/30"}},
	}

	tests := []struct {
		name   string
		ifaces []net.InterfaceStat
		err    error
		want   bool
	}{
		{"no interfaces", nil, nil, false},
		{"loopback only", []net.InterfaceStat{loopback}, nil, false},
		{"link local only", []net.InterfaceStat{loopback, linkLocal}, nil, false},
		{"routable but down", []net.InterfaceStat{down}, nil, false},
		{"cellular up", []net.InterfaceStat{loopback, cellular}, nil, true},
		{"listing fails", nil, errors.New("permission denied"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, monitorWith(tc.ifaces, tc.err).Available(context.Background()))
		})
	}
}

func TestAlways(t *testing.T) {
	assert.True(t, Always{}.Available(context.Background()))
}
