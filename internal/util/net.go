// Package util provides shared utility functions.
package util

import (
	"errors"
	"net"
)

// FindInterface returns the first usable network interface: up, not
// loopback, and carrying a hardware address. Mirrors what the user would
// pick by hand on a single-NIC machine.
func FindInterface() (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for i := range ifaces {
		iface := &ifaces[i]
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		return iface, nil
	}

	return nil, errors.New("no usable network interface found (all loopback or down)")
}
