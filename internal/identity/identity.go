// Package identity derives the stable device identity used for topics and
// the broker client id.
package identity

import (
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Identity is fixed for the lifetime of the process.
type Identity struct {
	// HardwareID is the upper-case hex id that appears in topic names.
	HardwareID string
	// ClientID is "<firmware-prefix>-<HardwareID>".
	ClientID string
}

// New builds an Identity from a firmware prefix and hardware id.
func New(prefix, hardwareID string) Identity {
	return Identity{
		HardwareID: hardwareID,
		ClientID:   fmt.Sprintf("%s-%s", prefix, hardwareID),
	}
}

// DefaultMachineIDPaths are checked in order for a host-unique id.
var DefaultMachineIDPaths = []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}

// Resolver finds or creates the unique seed the hardware id is hashed from.
type Resolver struct {
	MachineIDPaths []string
	// StateFile stores a generated UUID when no machine id exists.
	StateFile string
}

// HardwareID returns the hex CRC-32 of the first usable seed.
func (r Resolver) HardwareID() (string, error) {
	seed, err := r.seed()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%X", crc32.ChecksumIEEE([]byte(seed))), nil
}

func (r Resolver) seed() (string, error) {
	for _, p := range r.MachineIDPaths {
		if id := readTrimmed(p); id != "" {
			return id, nil
		}
	}

	if r.StateFile == "" {
		return "", errors.New("identity: no machine id and no state file configured")
	}
	if id := readTrimmed(r.StateFile); id != "" {
		if _, err := uuid.Parse(id); err == nil {
			return id, nil
		}
	}

	id := uuid.New().String()
	if err := os.MkdirAll(filepath.Dir(r.StateFile), 0o755); err != nil {
		return "", fmt.Errorf("identity: create state dir: %w", err)
	}
	if err := os.WriteFile(r.StateFile, []byte(id+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("identity: write state file: %w", err)
	}
	return id, nil
}

func readTrimmed(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
