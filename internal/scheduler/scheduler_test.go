package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/geiger-gateway/internal/logic"
	"github.com/sweeney/geiger-gateway/internal/mqtt"
	"github.com/sweeney/geiger-gateway/internal/network"
	"github.com/sweeney/geiger-gateway/internal/status"
)

const testBase = "hab/devices/sensors/environment/radiation"

type recordedSample struct {
	sample logic.DoseSample
	at     time.Time
}

type fakeHistory struct {
	mu      sync.Mutex
	samples []recordedSample
}

func (f *fakeHistory) Record(s logic.DoseSample, at time.Time) {
	f.mu.Lock()
	f.samples = append(f.samples, recordedSample{s, at})
	f.mu.Unlock()
}

func (f *fakeHistory) Close() error { return nil }

type harness struct {
	ms       uint32
	ft       *mqtt.FakeTransport
	topics   mqtt.Topics
	counter  *logic.PulseCounter
	listener *mqtt.Listener
	manager  *mqtt.Manager
	waits    []time.Duration
	tracker  *status.Tracker
	history  *fakeHistory
	s        *Scheduler
}

func newHarness(t *testing.T, periodMs, startMs uint32) *harness {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := &harness{
		ms:      startMs,
		ft:      mqtt.NewFakeTransport(),
		topics:  mqtt.NewTopics(testBase, "1A2B3C4D"),
		counter: &logic.PulseCounter{},
		tracker: status.NewTracker(time.Now(), status.Config{}),
		history: &fakeHistory{},
	}
	h.listener = mqtt.NewListener(8, log)
	h.manager = mqtt.NewManager(h.ft, h.topics, mqtt.ManagerConfig{
		MaxAttempts: 3,
		RetryDelay:  5 * time.Second,
		Wait: func(_ context.Context, d time.Duration) error {
			h.waits = append(h.waits, d)
			return nil
		},
	}, h.listener.OnMessage, log)

	h.s = New(Intervals{}, Deps{
		Clock:     func() uint32 { return h.ms },
		Counter:   h.counter,
		Calc:      logic.NewCalculator(periodMs, logic.FactorJ305),
		Telemetry: mqtt.NewTelemetry(h.ft, h.topics, 256),
		Manager:   h.manager,
		Network:   network.Static{SSID: "home", IP: "10.0.0.5", RSSI: -58},
		Commands:  h.listener.Commands(),
		History:   h.history,
		Tracker:   h.tracker,
		Log:       log,
	})
	return h
}

func (h *harness) stepAt(ms uint32) {
	h.ms = ms
	h.s.Step(context.Background())
}

func (h *harness) radiationPublishes() []mqtt.Op {
	var out []mqtt.Op
	for _, op := range h.ft.Published(h.topics.State) {
		if strings.Contains(string(op.Payload), `"radiation"`) {
			out = append(out, op)
		}
	}
	return out
}

func (h *harness) networkPublishes() []mqtt.Op {
	var out []mqtt.Op
	for _, op := range h.ft.Published(h.topics.State) {
		if strings.HasPrefix(string(op.Payload), `{"wifi"`) {
			out = append(out, op)
		}
	}
	return out
}

func TestStartSequence(t *testing.T) {
	h := newHarness(t, 60000, 0)
	h.s.Start(context.Background())

	var got []string
	for _, op := range h.ft.Ops {
		got = append(got, string(op.Kind)+" "+op.Topic)
	}
	want := []string{
		"connect ",
		"publish " + h.topics.Availability,
		"subscribe " + h.topics.Command,
		"publish " + h.topics.State,
		"publish " + h.topics.KeepAlive,
	}
	if len(got) != len(want) {
		t.Fatalf("ops: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("op %d: got %q, want %q", i, got[i], want[i])
		}
	}

	snap := h.tracker.Snapshot()
	if snap.MQTTState != "connected" || !snap.MQTTConnected {
		t.Errorf("tracker MQTT: got %q/%v, want connected/true", snap.MQTTState, snap.MQTTConnected)
	}
	if snap.Wifi == nil || snap.Wifi.SSID != "home" {
		t.Errorf("tracker wifi: got %+v", snap.Wifi)
	}
}

func TestStartWhileBrokerDownStillRuns(t *testing.T) {
	h := newHarness(t, 60000, 0)
	boom := errors.New("refused")
	h.ft.ConnectErrors = []error{boom, boom, boom}

	h.s.Start(context.Background())

	if got := h.ft.Count(mqtt.OpConnect); got != 3 {
		t.Errorf("connects: got %d, want 3", got)
	}
	if got := len(h.ft.Published("")); got != 0 {
		t.Errorf("publishes while disconnected: got %d, want 0", got)
	}
	if h.tracker.Snapshot().MQTTConnected {
		t.Error("tracker should report disconnected")
	}
}

func TestSamplingCadence(t *testing.T) {
	h := newHarness(t, 60000, 0)
	h.s.Start(context.Background())

	for i := 0; i < 100; i++ {
		h.counter.OnPulse()
	}

	h.stepAt(59999)
	if got := len(h.radiationPublishes()); got != 0 {
		t.Fatalf("radiation publishes before period: got %d, want 0", got)
	}

	h.stepAt(60000)
	pubs := h.radiationPublishes()
	if len(pubs) != 1 {
		t.Fatalf("radiation publishes at period: got %d, want 1", len(pubs))
	}
	payload := string(pubs[0].Payload)
	for _, want := range []string{`"counts_in_period":100`, `"counts_per_minute":100`, `"log_period_seconds":60`, `"ssid":"home"`} {
		if !strings.Contains(payload, want) {
			t.Errorf("payload %s missing %s", payload, want)
		}
	}
	if !pubs[0].Retained || pubs[0].QoS != 0 {
		t.Errorf("state publish: retained=%v qos=%d, want retained qos 0", pubs[0].Retained, pubs[0].QoS)
	}
	if got := h.counter.Counts(); got != 0 {
		t.Errorf("counter after sample: got %d, want 0", got)
	}

	// Next sample is measured from the last one.
	h.stepAt(119999)
	if got := len(h.radiationPublishes()); got != 1 {
		t.Errorf("radiation publishes before second period: got %d, want 1", got)
	}
	h.stepAt(120000)
	pubs = h.radiationPublishes()
	if len(pubs) != 2 {
		t.Fatalf("radiation publishes: got %d, want 2", len(pubs))
	}
	if !strings.Contains(string(pubs[1].Payload), `"counts_in_period":0`) {
		t.Errorf("second sample should be empty: %s", pubs[1].Payload)
	}
}

func TestSampleRecordsHistoryAndTracker(t *testing.T) {
	h := newHarness(t, 10000, 0)
	h.s.Start(context.Background())

	for i := 0; i < 7; i++ {
		h.counter.OnPulse()
	}
	h.stepAt(10000)

	if len(h.history.samples) != 1 {
		t.Fatalf("history samples: got %d, want 1", len(h.history.samples))
	}
	got := h.history.samples[0].sample
	if got.CountsInPeriod != 7 || got.CountsPerMinute != 42 {
		t.Errorf("history sample: got %+v, want counts 7 cpm 42", got)
	}

	snap := h.tracker.Snapshot()
	if snap.LastSample == nil || snap.LastSample.CountsPerMinute != 42 {
		t.Errorf("tracker sample: got %+v", snap.LastSample)
	}
	if !snap.SignalSeen {
		t.Error("tracker should report signal seen")
	}
}

func TestKeepAliveCadence(t *testing.T) {
	h := newHarness(t, 60000, 0)
	h.s.Start(context.Background())

	if got := len(h.ft.Published(h.topics.KeepAlive)); got != 1 {
		t.Fatalf("startup keep-alives: got %d, want 1", got)
	}

	h.stepAt(30000)
	if got := len(h.ft.Published(h.topics.KeepAlive)); got != 1 {
		t.Errorf("keep-alives at 30s: got %d, want 1", got)
	}
	h.stepAt(60000)
	h.stepAt(120000)
	pubs := h.ft.Published(h.topics.KeepAlive)
	if len(pubs) != 3 {
		t.Fatalf("keep-alives at 120s: got %d, want 3", len(pubs))
	}
	if string(pubs[1].Payload) != "ping" || !pubs[1].Retained {
		t.Errorf("keep-alive: got %q retained=%v", pubs[1].Payload, pubs[1].Retained)
	}
}

func TestNetworkCadence(t *testing.T) {
	h := newHarness(t, 60000, 0)
	h.s.Start(context.Background())

	if got := len(h.networkPublishes()); got != 1 {
		t.Fatalf("startup network publishes: got %d, want 1", got)
	}

	h.stepAt(29 * 60000)
	if got := len(h.networkPublishes()); got != 1 {
		t.Errorf("network publishes at 29min: got %d, want 1", got)
	}
	h.stepAt(30 * 60000)
	if got := len(h.networkPublishes()); got != 2 {
		t.Errorf("network publishes at 30min: got %d, want 2", got)
	}
}

func TestReconnectCooldown(t *testing.T) {
	h := newHarness(t, 60000, 0)
	h.s.Start(context.Background())
	h.ft.Drop()

	h.stepAt(1000)
	if got := h.ft.Count(mqtt.OpConnect); got != 1 {
		t.Errorf("connects inside cooldown: got %d, want 1", got)
	}
	if h.manager.State() != mqtt.Disconnected {
		t.Errorf("state after drop: got %v, want disconnected", h.manager.State())
	}

	h.stepAt(60000)
	if got := h.ft.Count(mqtt.OpConnect); got != 2 {
		t.Errorf("connects after cooldown: got %d, want 2", got)
	}
	if !h.manager.IsConnected() {
		t.Error("expected reconnected session")
	}
}

func TestReconnectCooldownAfterFailedSequence(t *testing.T) {
	h := newHarness(t, 60000, 0)
	boom := errors.New("refused")
	h.ft.ConnectErrors = []error{boom, boom, boom, boom, boom, boom}
	h.s.Start(context.Background())

	h.stepAt(59999)
	if got := h.ft.Count(mqtt.OpConnect); got != 3 {
		t.Errorf("connects before cooldown: got %d, want 3", got)
	}
	h.stepAt(60000)
	if got := h.ft.Count(mqtt.OpConnect); got != 6 {
		t.Errorf("connects after cooldown: got %d, want 6", got)
	}
	if got := len(h.waits); got != 4 {
		t.Errorf("waits across two failed sequences: got %d, want 4", got)
	}
}

func TestReconnectTwoFailuresThenOnline(t *testing.T) {
	h := newHarness(t, 60000, 0)
	h.s.Start(context.Background())

	h.ft.Drop()
	h.ft.Ops = nil
	boom := errors.New("refused")
	h.ft.ConnectErrors = []error{boom, boom}
	h.waits = nil

	h.stepAt(60000)

	if got := h.ft.Count(mqtt.OpConnect); got != 3 {
		t.Errorf("connects: got %d, want 3", got)
	}
	if len(h.waits) != 2 || h.waits[0] != 5*time.Second || h.waits[1] != 5*time.Second {
		t.Errorf("waits: got %v, want [5s 5s]", h.waits)
	}
	online := 0
	for _, op := range h.ft.Published(h.topics.Availability) {
		if string(op.Payload) == mqtt.AvailabilityOnline {
			online++
		}
	}
	if online != 1 {
		t.Errorf("online announcements: got %d, want 1", online)
	}
}

func TestPingCommandPublishesKeepAlive(t *testing.T) {
	h := newHarness(t, 60000, 0)
	h.s.Start(context.Background())

	if err := h.ft.Deliver(h.topics.Command, []byte("ping")); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	h.stepAt(10)

	if got := len(h.ft.Published(h.topics.KeepAlive)); got != 2 {
		t.Errorf("keep-alives after ping: got %d, want 2", got)
	}
}

func TestNetworkCommandPublishesNetworkState(t *testing.T) {
	h := newHarness(t, 60000, 0)
	h.s.Start(context.Background())

	h.ft.Deliver(h.topics.Command, []byte("NETWORK now"))
	h.stepAt(10)

	if got := len(h.networkPublishes()); got != 2 {
		t.Errorf("network publishes after command: got %d, want 2", got)
	}
}

func TestUnknownCommandIgnored(t *testing.T) {
	h := newHarness(t, 60000, 0)
	h.s.Start(context.Background())
	before := len(h.ft.Published(""))

	h.ft.Deliver(h.topics.Command, []byte("reboot"))
	h.ft.Deliver(h.topics.Command, []byte(""))
	h.stepAt(10)

	if got := len(h.ft.Published("")); got != before {
		t.Errorf("publishes: got %d, want %d", got, before)
	}
}

func TestPublishFailureDoesNotStopSampling(t *testing.T) {
	h := newHarness(t, 60000, 0)
	h.s.Start(context.Background())
	h.ft.PublishError = errors.New("broker hiccup")

	for i := 0; i < 5; i++ {
		h.counter.OnPulse()
	}
	h.stepAt(60000)

	if got := h.counter.Counts(); got != 0 {
		t.Errorf("counter after failed publish: got %d, want 0", got)
	}
	if len(h.history.samples) != 1 {
		t.Errorf("history samples: got %d, want 1", len(h.history.samples))
	}

	h.ft.PublishError = nil
	h.stepAt(120000)
	if got := len(h.radiationPublishes()); got != 1 {
		t.Errorf("radiation publishes after recovery: got %d, want 1", got)
	}
}

func TestSamplingAcrossClockWrap(t *testing.T) {
	h := newHarness(t, 1000, math.MaxUint32-1000)
	h.s.Start(context.Background())

	h.stepAt(math.MaxUint32 - 1)
	if got := len(h.radiationPublishes()); got != 0 {
		t.Fatalf("radiation publishes before wrap: got %d, want 0", got)
	}

	h.stepAt(500)
	if got := len(h.radiationPublishes()); got != 1 {
		t.Errorf("radiation publishes after wrap: got %d, want 1", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, 60000, 0)
	ctx, cancel := context.WithCancel(context.Background())
	tick := make(chan time.Time)

	done := make(chan error, 1)
	go func() { done <- h.s.run(ctx, tick) }()

	tick <- time.Now()
	tick <- time.Now()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run: got %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestMonotonicClockAdvances(t *testing.T) {
	c := MonotonicClock()
	a := c()
	time.Sleep(5 * time.Millisecond)
	if b := c(); logic.Elapsed(b, a) < 5 {
		t.Errorf("elapsed: got %d, want >= 5", logic.Elapsed(b, a))
	}
}
