// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package machine

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"
)

var ErrNoHardwareAddress = errors.New("no valid hardware address found")

// Identity reports the stable identifier of the local machine and a display name
type Identity interface {
	MachineID() (string, error)
	ComputerName() (string, error)
}

// Host resolves identity from the network interfaces and hostname of the running
// machine. Results are cached after the first successful lookup.
type Host struct {
	mu   sync.RWMutex
	id   string
	name string

	interfaces func() ([]net.Interface, error)
	hostname   func() (string, error)
}

func NewHost() *Host {
	return &Host{
		interfaces: net.Interfaces,
		hostname:   os.Hostname,
	}
}

// MachineID returns the hardware address of the primary interface: the first
// non-loopback interface that is up, falling back to any interface with an address.
func (h *Host) MachineID() (string, error) {
	h.mu.RLock()
	id := h.id
	h.mu.RUnlock()
	if id != "" {
		return id, nil
	}

	ifaces, err := h.interfaces()
	if err != nil {
		return "", fmt.Errorf("failed to list network interfaces: %w", err)
	}

	mac, name := primaryHardwareAddr(ifaces, true)
	if mac == "" {
		mac, name = primaryHardwareAddr(ifaces, false)
		if mac != "" {
			log.Warn().Str("interface", name).Msg("Using fallback hardware address for machine id")
		}
	}
	if mac == "" {
		return "", ErrNoHardwareAddress
	}

	log.Debug().Str("interface", name).Str("machine", Digest(mac)).Msg("Resolved machine id")

	h.mu.Lock()
	h.id = mac
	h.mu.Unlock()
	return mac, nil
}

// ComputerName returns the normalised hostname
func (h *Host) ComputerName() (string, error) {
	h.mu.RLock()
	name := h.name
	h.mu.RUnlock()
	if name != "" {
		return name, nil
	}

	hostname, err := h.hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if hostname == "" {
		return "", errors.New("hostname is empty")
	}

	h.mu.Lock()
	h.name = hostname
	h.mu.Unlock()
	return hostname, nil
}

// Reset drops cached values
func (h *Host) Reset() {
	h.mu.Lock()
	h.id = ""
	h.name = ""
	h.mu.Unlock()
}

func primaryHardwareAddr(ifaces []net.Interface, requireUp bool) (string, string) {
	for _, iface := range ifaces {
		if requireUp && (iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0) {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		mac := iface.HardwareAddr.String()
		if mac == "" || mac == "00:00:00:00:00:00" {
			continue
		}
		return mac, iface.Name
	}
	return "", ""
}

// Static is a fixed identity
type Static struct {
	ID   string
	Name string
}

func (s Static) MachineID() (string, error) {
	if s.ID == "" {
		return "", ErrNoHardwareAddress
	}
	return s.ID, nil
}

func (s Static) ComputerName() (string, error) {
	return s.Name, nil
}

// Digest returns a short, stable, non-reversible form of a machine id suitable for
// logs and history rows.
func Digest(machineID string) string {
	if machineID == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(strings.ToLower(machineID)))
	return hex.EncodeToString(sum[:8])
}
