package mqtt

import (
	"context"
	"log/slog"
	"time"
)

// State is the broker session state as seen by the Manager.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// ManagerConfig bounds a reconnect sequence.
type ManagerConfig struct {
	MaxAttempts int
	RetryDelay  time.Duration
	// Wait defaults to a context-aware sleep.
	Wait WaitFunc
}

// Manager owns the broker session and its availability announcements.
// Not safe for concurrent use; it belongs to the main loop.
type Manager struct {
	transport Transport
	topics    Topics
	cfg       ManagerConfig
	onCommand MessageHandler
	log       *slog.Logger
	state     State
}

// NewManager creates a manager. onCommand receives messages on the command
// topic once subscribed.
func NewManager(t Transport, topics Topics, cfg ManagerConfig, onCommand MessageHandler, log *slog.Logger) *Manager {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Wait == nil {
		cfg.Wait = sleep
	}
	return &Manager{
		transport: t,
		topics:    topics,
		cfg:       cfg,
		onCommand: onCommand,
		log:       log,
		state:     Disconnected,
	}
}

// State returns the current session state.
func (m *Manager) State() State {
	return m.state
}

// IsConnected reports the live transport state. A session the manager
// believed connected but whose link has dropped moves to Disconnected.
func (m *Manager) IsConnected() bool {
	live := m.transport.IsConnected()
	if !live && m.state == Connected {
		m.state = Disconnected
		m.log.Warn("mqtt link lost")
	}
	return live
}

// Reconnect runs one bounded reconnect sequence: up to MaxAttempts connects,
// RetryDelay apart. On success it announces "online" and only then
// subscribes to the command topic. Returns whether a session is up.
func (m *Manager) Reconnect(ctx context.Context) bool {
	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			break
		}

		m.state = Connecting
		err := m.transport.Connect()
		if err == nil {
			m.state = Connected
			m.onConnected(attempt)
			return true
		}

		m.log.Warn("mqtt connect failed", "attempt", attempt, "max_attempts", m.cfg.MaxAttempts, "error", err)
		if attempt == m.cfg.MaxAttempts {
			break
		}
		if err := m.cfg.Wait(ctx, m.cfg.RetryDelay); err != nil {
			break
		}
	}

	m.state = Disconnected
	m.log.Warn("mqtt reconnect gave up", "max_attempts", m.cfg.MaxAttempts)
	return false
}

func (m *Manager) onConnected(attempt int) {
	if err := m.transport.Publish(m.topics.Availability, qosAvailability, true, []byte(AvailabilityOnline)); err != nil {
		m.log.Warn("availability publish failed", "topic", m.topics.Availability, "error", err)
	}

	// Subscribe after announcing so commands never run against default state.
	if err := m.transport.Subscribe(m.topics.Command, qosCommand, m.onCommand); err != nil {
		m.log.Warn("command subscribe failed", "topic", m.topics.Command, "error", err)
	}

	m.log.Info("mqtt connected", "attempt", attempt, "availability", m.topics.Availability, "command", m.topics.Command)
}

// Close announces "offline" and disconnects. A clean disconnect suppresses
// the last-will, so the announcement is published explicitly.
func (m *Manager) Close() error {
	if m.transport.IsConnected() {
		if err := m.transport.Publish(m.topics.Availability, qosAvailability, true, []byte(AvailabilityOffline)); err != nil {
			m.log.Warn("offline publish failed", "error", err)
		}
	}
	m.transport.Disconnect()
	m.state = Disconnected
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
