// Package scheduler runs the gateway's single-goroutine main loop.
//
// Every periodic task is driven by a logic.Timer against one injectable
// millisecond clock, so cadence survives the 32-bit wrap and tests can step
// time by hand.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sweeney/geiger-gateway/internal/history"
	"github.com/sweeney/geiger-gateway/internal/logic"
	"github.com/sweeney/geiger-gateway/internal/mqtt"
	"github.com/sweeney/geiger-gateway/internal/network"
	"github.com/sweeney/geiger-gateway/internal/status"
)

// Clock returns wrapping milliseconds since an arbitrary origin.
type Clock func() uint32

// MonotonicClock returns a Clock counting from the moment of the call.
func MonotonicClock() Clock {
	start := time.Now()
	return func() uint32 {
		return uint32(time.Since(start).Milliseconds())
	}
}

// Intervals are the loop cadences in milliseconds.
type Intervals struct {
	KeepAliveMs         uint32
	NetworkMs           uint32
	ReconnectCooldownMs uint32
	// Tick is the loop period used by Run.
	Tick time.Duration
}

// Default cadences.
const (
	DefaultKeepAliveMs         = 60_000
	DefaultNetworkMs           = 30 * 60_000
	DefaultReconnectCooldownMs = 60_000
	DefaultTick                = 100 * time.Millisecond
)

// Deps are the collaborators the loop drives. History and Tracker are optional.
type Deps struct {
	Clock     Clock
	Now       func() time.Time
	Counter   *logic.PulseCounter
	Calc      *logic.Calculator
	Telemetry *mqtt.Telemetry
	Manager   *mqtt.Manager
	Network   network.Provider
	Commands  <-chan mqtt.Command
	History   history.Recorder
	Tracker   *status.Tracker
	Log       *slog.Logger
}

// Scheduler owns all loop state. Not safe for concurrent use.
type Scheduler struct {
	d    Deps
	tick time.Duration

	sample    *logic.Timer
	keepAlive *logic.Timer
	network   *logic.Timer
	reconnect *logic.Timer
}

// New creates a scheduler. Timers are anchored at the clock's current value.
func New(iv Intervals, d Deps) *Scheduler {
	if iv.KeepAliveMs == 0 {
		iv.KeepAliveMs = DefaultKeepAliveMs
	}
	if iv.NetworkMs == 0 {
		iv.NetworkMs = DefaultNetworkMs
	}
	if iv.ReconnectCooldownMs == 0 {
		iv.ReconnectCooldownMs = DefaultReconnectCooldownMs
	}
	if iv.Tick <= 0 {
		iv.Tick = DefaultTick
	}
	if d.Clock == nil {
		d.Clock = MonotonicClock()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.History == nil {
		d.History = history.Nop{}
	}

	now := d.Clock()
	return &Scheduler{
		d:         d,
		tick:      iv.Tick,
		sample:    logic.NewTimer(d.Calc.PeriodMs(), now),
		keepAlive: logic.NewTimer(iv.KeepAliveMs, now),
		network:   logic.NewTimer(iv.NetworkMs, now),
		reconnect: logic.NewTimer(iv.ReconnectCooldownMs, now),
	}
}

// Run performs the startup sequence, then steps every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	return s.run(ctx, ticker.C)
}

func (s *Scheduler) run(ctx context.Context, tick <-chan time.Time) error {
	s.Start(ctx)
	for {
		select {
		case <-ctx.Done():
			s.d.Log.Info("main loop stopped")
			return nil
		case <-tick:
			s.Step(ctx)
		}
	}
}

// Start connects, then publishes network state and a keep-alive once.
func (s *Scheduler) Start(ctx context.Context) {
	s.reconnect.Reset(s.d.Clock())
	s.d.Manager.Reconnect(ctx)

	s.publishNetwork()
	s.publishKeepAlive()
	s.updateTracker()
}

// Step runs one pass of the loop.
func (s *Scheduler) Step(ctx context.Context) {
	s.drainCommands()

	now := s.d.Clock()
	if s.sample.Fire(now) {
		s.takeSample()
	}
	if s.keepAlive.Fire(now) {
		s.publishKeepAlive()
	}
	if s.network.Fire(now) {
		s.publishNetwork()
	}
	if !s.d.Manager.IsConnected() && s.reconnect.Fire(now) {
		s.d.Manager.Reconnect(ctx)
	}

	s.updateTracker()
}

func (s *Scheduler) drainCommands() {
	for {
		select {
		case cmd := <-s.d.Commands:
			s.execute(cmd)
		default:
			return
		}
	}
}

func (s *Scheduler) execute(cmd mqtt.Command) {
	s.d.Log.Info("executing command", "command", cmd)
	switch cmd {
	case mqtt.CommandPing:
		s.publishKeepAlive()
	case mqtt.CommandNetwork:
		s.publishNetwork()
	}
}

func (s *Scheduler) takeSample() {
	sample := s.d.Calc.Sample(s.d.Counter)
	at := s.d.Now()
	wifi := s.d.Network.Snapshot()

	s.d.Log.Info("sample",
		"counts", sample.CountsInPeriod,
		"cpm", sample.CountsPerMinute,
		"usv_h", sample.DoseRate)

	s.logPublish("state", s.d.Telemetry.PublishState(sample, wifi))
	s.d.History.Record(sample, at)

	if s.d.Tracker != nil {
		s.d.Tracker.RecordSample(sample, at)
		s.d.Tracker.SetWifi(wifi)
	}
}

func (s *Scheduler) publishKeepAlive() {
	s.logPublish("keep-alive", s.d.Telemetry.PublishKeepAlive())
}

func (s *Scheduler) publishNetwork() {
	wifi := s.d.Network.Snapshot()
	s.logPublish("network", s.d.Telemetry.PublishNetworkState(wifi))
	if s.d.Tracker != nil {
		s.d.Tracker.SetWifi(wifi)
	}
}

// logPublish records a fire-and-forget result. A closed session is expected
// while reconnecting, so it is only logged at debug level.
func (s *Scheduler) logPublish(what string, err error) {
	switch {
	case err == nil:
		s.d.Log.Debug("published", "message", what)
	case errors.Is(err, mqtt.ErrNotConnected):
		s.d.Log.Debug("publish skipped, not connected", "message", what)
	default:
		s.d.Log.Warn("publish failed", "message", what, "error", err)
	}
}

func (s *Scheduler) updateTracker() {
	if s.d.Tracker == nil {
		return
	}
	s.d.Tracker.SetMQTT(s.d.Manager.State().String(), s.d.Manager.IsConnected())
	s.d.Tracker.SetSignalSeen(s.d.Counter.SignalSeen())
}
