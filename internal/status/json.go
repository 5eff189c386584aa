package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	DeviceID      string         `json:"device_id"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	SignalSeen    bool           `json:"signal_seen"`
	Samples       uint64         `json:"samples"`
	Radiation     *RadiationJSON `json:"radiation,omitempty"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Wifi          *WifiJSON      `json:"wifi,omitempty"`
	Config        ConfigJSON     `json:"config"`
}

// RadiationJSON is the last dose sample.
type RadiationJSON struct {
	MicroSievertPerHour float64 `json:"micro_sievert_per_hour"`
	CountsInPeriod      uint64  `json:"counts_in_period"`
	CountsPerMinute     uint64  `json:"counts_per_minute"`
	SampledAt           string  `json:"sampled_at"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	ClientID  string `json:"client_id"`
}

// WifiJSON is the JSON representation of the network snapshot.
type WifiJSON struct {
	SSID string `json:"ssid"`
	IP   string `json:"ip"`
	RSSI int    `json:"rssi"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Tube        string  `json:"tube"`
	TubeFactor  float64 `json:"tube_factor"`
	LogPeriodMs uint32  `json:"log_period_ms"`
	HTTPAddr    string  `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		DeviceID:      snap.Config.DeviceID,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		SignalSeen:    snap.SignalSeen,
		Samples:       snap.Samples,
		MQTT: MQTTStatus{
			State:     snap.MQTTState,
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
			ClientID:  snap.Config.ClientID,
		},
		Config: ConfigJSON{
			Tube:        snap.Config.Tube,
			TubeFactor:  snap.Config.TubeFactor,
			LogPeriodMs: snap.Config.LogPeriodMs,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}

	if snap.LastSample != nil {
		inner.Radiation = &RadiationJSON{
			MicroSievertPerHour: snap.LastSample.DoseRate,
			CountsInPeriod:      snap.LastSample.CountsInPeriod,
			CountsPerMinute:     snap.LastSample.CountsPerMinute,
			SampledAt:           snap.LastSampleAt.UTC().Format(time.RFC3339),
		}
	}
	if snap.Wifi != nil {
		inner.Wifi = &WifiJSON{SSID: snap.Wifi.SSID, IP: snap.Wifi.IP, RSSI: snap.Wifi.RSSI}
	}
	return inner
}

// FormatJSON returns the indented JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}
