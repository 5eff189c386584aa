package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Command is an allow-listed remote command token.
type Command string

const (
	// CommandPing asks for an immediate keep-alive publish.
	CommandPing Command = "ping"
	// CommandNetwork asks for an immediate network state publish.
	CommandNetwork Command = "network"
)

var allowedCommands = map[Command]bool{
	CommandPing:    true,
	CommandNetwork: true,
}

// maxCommandSize bounds the payload accepted for interpretation.
const maxCommandSize = 128

// Command parse errors.
var (
	ErrEmptyCommand    = errors.New("command: empty payload")
	ErrUnknownCommand  = errors.New("command: not allowed")
	ErrCommandTooLarge = errors.New("command: payload too large")
)

// ParseCommand extracts and validates the first token of a payload.
func ParseCommand(payload []byte) (Command, error) {
	if len(payload) > maxCommandSize {
		return "", fmt.Errorf("%w: %d bytes", ErrCommandTooLarge, len(payload))
	}
	fields := strings.Fields(string(payload))
	if len(fields) == 0 {
		return "", ErrEmptyCommand
	}
	cmd := Command(strings.ToLower(fields[0]))
	if !allowedCommands[cmd] {
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, fields[0])
	}
	return cmd, nil
}

// Listener receives messages on the command topic.
//
// OnMessage runs on the transport's goroutine. Accepted commands are handed
// to the main loop through a bounded queue; the loop executes them.
type Listener struct {
	queue chan Command
	log   *slog.Logger
}

// NewListener creates a listener with a queue of the given capacity.
func NewListener(capacity int, log *slog.Logger) *Listener {
	if capacity < 1 {
		capacity = 1
	}
	return &Listener{queue: make(chan Command, capacity), log: log}
}

// Commands returns the queue drained by the main loop.
func (l *Listener) Commands() <-chan Command {
	return l.queue
}

// OnMessage logs the message and queues it if it is an allowed command.
// Malformed input is logged and discarded.
func (l *Listener) OnMessage(topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("command handler panic recovered", "topic", topic, "panic", r)
		}
	}()

	msg := make([]byte, len(payload))
	copy(msg, payload)

	l.log.Info("received message", "topic", topic, "payload", string(msg))

	cmd, err := ParseCommand(msg)
	if err != nil {
		l.log.Warn("command rejected", "topic", topic, "error", err)
		return
	}

	select {
	case l.queue <- cmd:
	default:
		l.log.Warn("command queue full, dropping", "command", cmd)
	}
}
