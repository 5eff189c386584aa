// Package status provides a thread-safe status tracker for the gateway daemon.
// It is written by the main loop and read by HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/geiger-gateway/internal/logic"
	"github.com/sweeney/geiger-gateway/internal/network"
)

// Config contains daemon configuration for display.
type Config struct {
	Broker      string
	DeviceID    string
	ClientID    string
	Tube        string
	TubeFactor  float64
	LogPeriodMs uint32
	HTTPAddr    string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	StartTime     time.Time
	Now           time.Time
	MQTTState     string
	MQTTConnected bool
	SignalSeen    bool
	Samples       uint64
	LastSample    *logic.DoseSample
	LastSampleAt  time.Time
	Wifi          *network.WifiSnapshot
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			MQTTState: "disconnected",
			Config:    cfg,
		},
	}
}

// RecordSample stores the latest dose sample.
func (t *Tracker) RecordSample(s logic.DoseSample, at time.Time) {
	t.mu.Lock()
	t.snap.LastSample = &s
	t.snap.LastSampleAt = at
	t.snap.Samples++
	t.mu.Unlock()
}

// SetMQTT sets the broker session state.
func (t *Tracker) SetMQTT(state string, connected bool) {
	t.mu.Lock()
	t.snap.MQTTState = state
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetSignalSeen records whether the tube has produced any pulse.
func (t *Tracker) SetSignalSeen(seen bool) {
	t.mu.Lock()
	t.snap.SignalSeen = seen
	t.mu.Unlock()
}

// SetWifi sets the latest network snapshot.
func (t *Tracker) SetWifi(w network.WifiSnapshot) {
	t.mu.Lock()
	t.snap.Wifi = &w
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	if s.LastSample != nil {
		ls := *s.LastSample
		s.LastSample = &ls
	}
	if s.Wifi != nil {
		w := *s.Wifi
		s.Wifi = &w
	}
	s.Now = time.Now()
	return s
}
