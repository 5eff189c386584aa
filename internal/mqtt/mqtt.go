// Package mqtt provides the broker link, telemetry publishing and command
// intake, with a transport abstraction for testing.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/geiger-gateway/internal/logic"
	"github.com/sweeney/geiger-gateway/internal/network"
)

// Availability payloads on the connection topic.
const (
	AvailabilityOnline  = "online"
	AvailabilityOffline = "offline"
)

// KeepAlivePayload is the fixed 4-byte keep-alive message.
const KeepAlivePayload = "ping"

// QoS levels used on the link.
const (
	qosTelemetry    byte = 0
	qosAvailability byte = 1
	qosCommand      byte = 0
)

// Errors returned by transports and publishers.
var (
	ErrNotConnected     = errors.New("mqtt: not connected")
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrSubscribeFailed  = errors.New("mqtt: subscribe failed")
	ErrPayloadTooLarge  = errors.New("mqtt: payload exceeds buffer")
)

// Topics holds the per-device topic names.
type Topics struct {
	Availability string
	State        string
	KeepAlive    string
	Command      string
}

// NewTopics builds topics of the form <base>/<hardware-id>/<suffix>.
func NewTopics(base, hardwareID string) Topics {
	prefix := fmt.Sprintf("%s/%s", base, hardwareID)
	return Topics{
		Availability: prefix + "/connection",
		State:        prefix + "/state",
		KeepAlive:    prefix + "/keep-alive",
		Command:      prefix + "/command",
	}
}

// Transport is the minimal broker session the gateway needs.
type Transport interface {
	// Connect opens a session. The last-will is part of the transport's setup.
	Connect() error

	// IsConnected reports the live state of the underlying connection.
	IsConnected() bool

	// Publish sends one message. Returns ErrNotConnected without a session.
	Publish(topic string, qos byte, retained bool, payload []byte) error

	// Subscribe registers handler for messages on topic.
	Subscribe(topic string, qos byte, handler MessageHandler) error

	// Disconnect closes the session cleanly.
	Disconnect()
}

// MessageHandler receives inbound messages. The payload slice belongs to
// the transport and must be copied before it is retained.
type MessageHandler func(topic string, payload []byte)

// StatePayload is the JSON document on the state topic.
type StatePayload struct {
	Radiation *RadiationPayload `json:"radiation,omitempty"`
	Wifi      WifiPayload       `json:"wifi"`
}

// RadiationPayload contains one dose sample.
type RadiationPayload struct {
	MicroSievertPerHour float64 `json:"micro_sievert_per_hour"`
	CountsInPeriod      uint64  `json:"counts_in_period"`
	LogPeriodSeconds    uint32  `json:"log_period_seconds"`
	CountsPerMinute     uint64  `json:"counts_per_minute"`
}

// WifiPayload describes the network link.
type WifiPayload struct {
	SSID string `json:"ssid"`
	IP   string `json:"ip"`
	RSSI int    `json:"rssi"`
}

func wifiPayload(w network.WifiSnapshot) WifiPayload {
	return WifiPayload{SSID: w.SSID, IP: w.IP, RSSI: w.RSSI}
}

// FormatState creates the JSON payload for a dose report.
func FormatState(s logic.DoseSample, w network.WifiSnapshot) ([]byte, error) {
	return json.Marshal(StatePayload{
		Radiation: &RadiationPayload{
			MicroSievertPerHour: s.DoseRate,
			CountsInPeriod:      s.CountsInPeriod,
			LogPeriodSeconds:    s.LogPeriodSeconds,
			CountsPerMinute:     s.CountsPerMinute,
		},
		Wifi: wifiPayload(w),
	})
}

// FormatNetworkState creates the wifi-only JSON payload.
func FormatNetworkState(w network.WifiSnapshot) ([]byte, error) {
	return json.Marshal(StatePayload{Wifi: wifiPayload(w)})
}

// Transport timing defaults.
const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
)
