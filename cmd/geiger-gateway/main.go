// Command geiger-gateway counts Geiger tube pulses on a GPIO line and
// publishes dose rate, keep-alive, and network state to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/geiger-gateway/internal/config"
	"github.com/sweeney/geiger-gateway/internal/gpio"
	"github.com/sweeney/geiger-gateway/internal/history"
	"github.com/sweeney/geiger-gateway/internal/identity"
	"github.com/sweeney/geiger-gateway/internal/logging"
	"github.com/sweeney/geiger-gateway/internal/logic"
	"github.com/sweeney/geiger-gateway/internal/mqtt"
	"github.com/sweeney/geiger-gateway/internal/network"
	"github.com/sweeney/geiger-gateway/internal/scheduler"
	"github.com/sweeney/geiger-gateway/internal/status"
	"github.com/sweeney/geiger-gateway/internal/web"
)

const commandQueueSize = 8

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to YAML config file")
	printConfig := flag.Bool("print-config", false, "Print effective config and exit")

	flag.Parse()

	if err := run(*configPath, *printConfig); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, printConfig bool) error {
	cfg, loadErr := loadConfig(configPath)
	log := logging.New(cfg.Logging)
	if loadErr != nil {
		log.Warn("config unavailable, running on defaults", "path", configPath, "error", loadErr)
	}

	if printConfig {
		return writeConfig(os.Stdout, cfg)
	}

	hwid, err := identity.Resolver{
		MachineIDPaths: identity.DefaultMachineIDPaths,
		StateFile:      cfg.Identity.StateFile,
	}.HardwareID()
	if err != nil {
		return fmt.Errorf("resolve hardware id: %w", err)
	}
	id := identity.New(cfg.Identity.FirmwarePrefix, hwid)
	topics := mqtt.NewTopics(cfg.MQTT.Topic, id.HardwareID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := &daemon{
		cfg:       cfg,
		id:        id,
		topics:    topics,
		source:    gpio.NewRealSource(cfg.Sensor.Chip, cfg.Sensor.Line),
		transport: mqtt.NewRealTransport(transportOptions(cfg, id, topics), log.With("component", "mqtt")),
		network:   network.NewHostProvider(),
		history:   history.Open(ctx, cfg.InfluxDB, id.HardwareID, log.With("component", "history")),
		log:       log,
		startTime: time.Now(),
	}
	return d.run(ctx)
}

// loadConfig returns the file config, or the env-overridden defaults together
// with the reason the file could not be used.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	fallback, envErr := config.FromEnv()
	if envErr != nil {
		return config.Default(), errors.Join(err, envErr)
	}
	return fallback, err
}

func writeConfig(w io.Writer, cfg *config.Config) error {
	redacted := *cfg
	if redacted.MQTT.Password != "" {
		redacted.MQTT.Password = "<redacted>"
	}
	if redacted.InfluxDB.Token != "" {
		redacted.InfluxDB.Token = "<redacted>"
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&redacted); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// transportOptions registers a retained "offline" last-will on the
// availability topic so the broker announces an unclean loss for us.
func transportOptions(cfg *config.Config, id identity.Identity, topics mqtt.Topics) mqtt.TransportOptions {
	return mqtt.TransportOptions{
		Broker:         cfg.MQTT.BrokerURL(),
		ClientID:       id.ClientID,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		KeepAlive:      cfg.MQTT.KeepAlive,
		ConnectTimeout: cfg.MQTT.ConnectTimeout,
		PublishTimeout: cfg.MQTT.PublishTimeout,
		Will: mqtt.Will{
			Topic:    topics.Availability,
			Payload:  mqtt.AvailabilityOffline,
			QoS:      1,
			Retained: true,
		},
	}
}

func statusConfig(cfg *config.Config, id identity.Identity, factor float64) status.Config {
	return status.Config{
		Broker:      cfg.MQTT.BrokerURL(),
		DeviceID:    id.HardwareID,
		ClientID:    id.ClientID,
		Tube:        cfg.Sensor.Tube,
		TubeFactor:  factor,
		LogPeriodMs: cfg.Sensor.LogPeriodMs,
		HTTPAddr:    cfg.HTTP.Addr,
	}
}

func millis(d time.Duration) uint32 {
	return uint32(d.Milliseconds())
}

// daemon holds the wired collaborators. Tests substitute fakes.
type daemon struct {
	cfg       *config.Config
	id        identity.Identity
	topics    mqtt.Topics
	source    gpio.Source
	transport mqtt.Transport
	network   network.Provider
	history   history.Recorder
	clock     scheduler.Clock
	log       *slog.Logger
	startTime time.Time
}

func (d *daemon) run(ctx context.Context) error {
	cfg := d.cfg
	log := d.log

	factor, err := cfg.Sensor.ResolveTubeFactor()
	if err != nil {
		return fmt.Errorf("resolve tube factor: %w", err)
	}
	calc := logic.NewCalculator(cfg.Sensor.LogPeriodMs, factor)
	if !calc.Exact() {
		log.Warn("log period does not divide a minute evenly, CPM is truncated",
			"log_period_ms", calc.PeriodMs(), "multiplier", calc.Multiplier())
	}

	if d.history == nil {
		d.history = history.Nop{}
	}
	defer d.history.Close()

	counter := &logic.PulseCounter{}
	if err := d.source.Start(counter.OnPulse); err != nil {
		return fmt.Errorf("start gpio: %w", err)
	}
	defer d.source.Close()

	listener := mqtt.NewListener(commandQueueSize, log.With("component", "command"))
	manager := mqtt.NewManager(d.transport, d.topics, mqtt.ManagerConfig{
		MaxAttempts: cfg.MQTT.Reconnect.MaxAttempts,
		RetryDelay:  cfg.MQTT.Reconnect.RetryDelay,
	}, listener.OnMessage, log.With("component", "mqtt"))
	defer manager.Close()

	tracker := status.NewTracker(d.startTime, statusConfig(cfg, d.id, factor))

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info("http status server listening", "addr", cfg.HTTP.Addr)
	}

	log.Info("started",
		"hardware_id", d.id.HardwareID,
		"client_id", d.id.ClientID,
		"broker", cfg.MQTT.BrokerURL(),
		"state_topic", d.topics.State,
		"gpio", fmt.Sprintf("%s/%d", cfg.Sensor.Chip, cfg.Sensor.Line),
		"tube", cfg.Sensor.Tube,
		"tube_factor", factor,
		"log_period_ms", calc.PeriodMs(),
		"multiplier", calc.Multiplier())

	sched := scheduler.New(scheduler.Intervals{
		KeepAliveMs:         millis(cfg.Intervals.KeepAlive),
		NetworkMs:           millis(cfg.Intervals.Network),
		ReconnectCooldownMs: millis(cfg.MQTT.Reconnect.Cooldown),
		Tick:                cfg.Intervals.Tick,
	}, scheduler.Deps{
		Clock:     d.clock,
		Counter:   counter,
		Calc:      calc,
		Telemetry: mqtt.NewTelemetry(d.transport, d.topics, cfg.MQTT.PayloadLimit),
		Manager:   manager,
		Network:   d.network,
		Commands:  listener.Commands(),
		History:   d.history,
		Tracker:   tracker,
		Log:       log.With("component", "loop"),
	})

	err = sched.Run(ctx)
	log.Info("shutting down")
	return err
}
