// Package network provides the wifi snapshot published with telemetry.
package network

import (
	"bufio"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
)

// WifiSnapshot is the link state at one moment.
type WifiSnapshot struct {
	SSID string
	IP   string
	RSSI int // dBm, 0 when unknown
}

// Provider returns a fresh snapshot on demand.
type Provider interface {
	Snapshot() WifiSnapshot
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	EnvNetworkIP       = "NETWORK_IP"
	EnvNetworkWifiSSID = "NETWORK_WIFI_SSID"
)

// DefaultWirelessPath is the kernel's wireless statistics table.
const DefaultWirelessPath = "/proc/net/wireless"

// HostProvider reads link state from the host.
//
// SSID and IP come from the pi-helper environment when present; otherwise
// the IP is the first non-loopback IPv4 address. RSSI is read from the
// wireless statistics table.
type HostProvider struct {
	WirelessPath string
	Getenv       func(string) string
}

// NewHostProvider creates a provider reading the real host.
func NewHostProvider() *HostProvider {
	return &HostProvider{WirelessPath: DefaultWirelessPath, Getenv: os.Getenv}
}

// Snapshot implements Provider.
func (p *HostProvider) Snapshot() WifiSnapshot {
	getenv := p.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	s := WifiSnapshot{
		SSID: getenv(EnvNetworkWifiSSID),
		IP:   getenv(EnvNetworkIP),
	}
	if s.IP == "" {
		s.IP = firstIPv4()
	}
	if f, err := os.Open(p.WirelessPath); err == nil {
		if rssi, ok := ParseWireless(f); ok {
			s.RSSI = rssi
		}
		f.Close()
	}
	return s
}

func firstIPv4() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return ""
}

// ParseWireless returns the signal level of the first interface listed in
// a /proc/net/wireless table.
func ParseWireless(r io.Reader) (int, bool) {
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		if line <= 2 {
			continue // headers
		}
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || !strings.HasSuffix(fields[0], ":") {
			continue
		}
		level, err := strconv.ParseFloat(strings.TrimSuffix(fields[3], "."), 64)
		if err != nil {
			continue
		}
		return int(level), true
	}
	return 0, false
}

// Static is a Provider that always returns the same snapshot.
type Static WifiSnapshot

// Snapshot implements Provider.
func (s Static) Snapshot() WifiSnapshot {
	return WifiSnapshot(s)
}
