// Package history mirrors dose samples into an InfluxDB bucket.
//
// The sink is optional and off by default. Writes are non-blocking and
// batched by the client; a missing or slow database never stalls sampling.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/sweeney/geiger-gateway/internal/config"
	"github.com/sweeney/geiger-gateway/internal/logic"
)

// Measurement is the InfluxDB measurement name for dose samples.
const Measurement = "radiation"

const defaultPingTimeout = 5 * time.Second

// Sentinel errors.
var (
	ErrDisabled         = errors.New("history: disabled in configuration")
	ErrConnectionFailed = errors.New("history: connection failed")
)

// Recorder accepts completed dose samples.
type Recorder interface {
	Record(s logic.DoseSample, at time.Time)
	Close() error
}

// Nop discards every sample.
type Nop struct{}

func (Nop) Record(logic.DoseSample, time.Time) {}
func (Nop) Close() error                       { return nil }

// Influx writes samples through the non-blocking InfluxDB write API.
// Safe for concurrent use.
type Influx struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	deviceID string
	log      *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Connect pings the server and returns a ready sink.
func Connect(ctx context.Context, cfg config.InfluxDBConfig, deviceID string, log *slog.Logger) (*Influx, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrConnectionFailed, cfg.URL, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: %s not healthy", ErrConnectionFailed, cfg.URL)
	}

	h := &Influx{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		deviceID: deviceID,
		log:      log,
	}
	go h.drainErrors(h.writeAPI.Errors())
	return h, nil
}

func (h *Influx) drainErrors(errs <-chan error) {
	for err := range errs {
		h.log.Warn("history write failed", "error", err)
	}
}

// Record queues one point. No-op after Close.
func (h *Influx) Record(s logic.DoseSample, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.writeAPI.WritePoint(NewPoint(h.deviceID, s, at))
}

// Close flushes pending points and releases the client.
func (h *Influx) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.writeAPI.Flush()
	h.client.Close()
	return nil
}

// NewPoint builds the line-protocol point for a sample.
func NewPoint(deviceID string, s logic.DoseSample, at time.Time) *write.Point {
	return write.NewPoint(
		Measurement,
		map[string]string{"device_id": deviceID},
		map[string]interface{}{
			"micro_sievert_per_hour": s.DoseRate,
			"counts_in_period":       int64(s.CountsInPeriod),
			"counts_per_minute":      int64(s.CountsPerMinute),
			"log_period_seconds":     int64(s.LogPeriodSeconds),
		},
		at,
	)
}

// Open returns the configured recorder: an InfluxDB sink when enabled and
// reachable, otherwise Nop. A failed connection is logged, not fatal.
func Open(ctx context.Context, cfg config.InfluxDBConfig, deviceID string, log *slog.Logger) Recorder {
	if !cfg.Enabled {
		return Nop{}
	}
	h, err := Connect(ctx, cfg, deviceID, log)
	if err != nil {
		log.Warn("history sink unavailable, continuing without it", "error", err)
		return Nop{}
	}
	log.Info("history sink connected", "url", cfg.URL, "bucket", cfg.Bucket)
	return h
}
