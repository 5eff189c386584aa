package mqtt

import (
	"fmt"

	"github.com/sweeney/geiger-gateway/internal/logic"
	"github.com/sweeney/geiger-gateway/internal/network"
)

// Telemetry publishes the gateway's outbound messages.
//
// Every call attempts exactly one publish. Failures are returned and never
// retried here; the next periodic publish supersedes a lost one.
type Telemetry struct {
	transport Transport
	topics    Topics
	limit     int
}

// NewTelemetry creates a publisher. limit is the transport buffer budget in
// bytes; rendered payloads above it are rejected.
func NewTelemetry(t Transport, topics Topics, limit int) *Telemetry {
	return &Telemetry{transport: t, topics: topics, limit: limit}
}

// PublishState sends a retained dose report with the wifi snapshot.
func (p *Telemetry) PublishState(s logic.DoseSample, w network.WifiSnapshot) error {
	payload, err := FormatState(s, w)
	if err != nil {
		return fmt.Errorf("format state payload: %w", err)
	}
	return p.publish(p.topics.State, payload)
}

// PublishKeepAlive sends the retained "ping".
func (p *Telemetry) PublishKeepAlive() error {
	return p.publish(p.topics.KeepAlive, []byte(KeepAlivePayload))
}

// PublishNetworkState sends a retained wifi-only state document.
func (p *Telemetry) PublishNetworkState(w network.WifiSnapshot) error {
	payload, err := FormatNetworkState(w)
	if err != nil {
		return fmt.Errorf("format network payload: %w", err)
	}
	return p.publish(p.topics.State, payload)
}

func (p *Telemetry) publish(topic string, payload []byte) error {
	if p.limit > 0 && len(payload) > p.limit {
		return fmt.Errorf("%w: %d bytes on %s (limit %d)", ErrPayloadTooLarge, len(payload), topic, p.limit)
	}
	if err := p.transport.Publish(topic, qosTelemetry, true, payload); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}
