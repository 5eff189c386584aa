package mqtt

import (
	"errors"
	"sync"
)

// OpKind identifies a recorded transport call.
type OpKind string

const (
	OpConnect    OpKind = "connect"
	OpPublish    OpKind = "publish"
	OpSubscribe  OpKind = "subscribe"
	OpDisconnect OpKind = "disconnect"
)

// Op is one recorded transport call.
type Op struct {
	Kind     OpKind
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// FakeTransport records transport calls in order for test assertions.
type FakeTransport struct {
	mu sync.Mutex

	// Ops contains every call in the order it was made.
	Ops []Op

	// ConnectErrors is consumed one entry per Connect call; once exhausted
	// Connect succeeds.
	ConnectErrors []error

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// SubscribeError, if set, will be returned by Subscribe.
	SubscribeError error

	// Connected controls the return value of IsConnected.
	Connected bool

	handlers map[string]MessageHandler
}

// NewFakeTransport creates a disconnected FakeTransport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{handlers: make(map[string]MessageHandler)}
}

// Connect records the attempt and succeeds unless a scripted error is pending.
func (f *FakeTransport) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Ops = append(f.Ops, Op{Kind: OpConnect})
	if len(f.ConnectErrors) > 0 {
		err := f.ConnectErrors[0]
		f.ConnectErrors = f.ConnectErrors[1:]
		if err != nil {
			f.Connected = false
			return err
		}
	}
	f.Connected = true
	return nil
}

// IsConnected reports whether the fake transport is "connected".
func (f *FakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Publish records the message.
func (f *FakeTransport) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.Connected {
		return ErrNotConnected
	}
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Ops = append(f.Ops, Op{
		Kind:     OpPublish,
		Topic:    topic,
		QoS:      qos,
		Retained: retained,
		Payload:  append([]byte(nil), payload...),
	})
	return nil
}

// Subscribe records the subscription and stores the handler for Deliver.
func (f *FakeTransport) Subscribe(topic string, qos byte, handler MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.Connected {
		return ErrNotConnected
	}
	if f.SubscribeError != nil {
		return f.SubscribeError
	}
	f.Ops = append(f.Ops, Op{Kind: OpSubscribe, Topic: topic, QoS: qos})
	f.handlers[topic] = handler
	return nil
}

// Disconnect records the call and drops the connection.
func (f *FakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Ops = append(f.Ops, Op{Kind: OpDisconnect})
	f.Connected = false
}

// Deliver simulates an inbound message on a subscribed topic.
func (f *FakeTransport) Deliver(topic string, payload []byte) error {
	f.mu.Lock()
	h, ok := f.handlers[topic]
	f.mu.Unlock()
	if !ok {
		return errors.New("fake: no subscription for " + topic)
	}
	h(topic, payload)
	return nil
}

// Drop simulates an unclean link loss.
func (f *FakeTransport) Drop() {
	f.mu.Lock()
	f.Connected = false
	f.mu.Unlock()
}

// Published returns the publish ops, optionally filtered by topic.
func (f *FakeTransport) Published(topic string) []Op {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Op
	for _, op := range f.Ops {
		if op.Kind == OpPublish && (topic == "" || op.Topic == topic) {
			out = append(out, op)
		}
	}
	return out
}

// Count returns how many ops of the given kind were recorded.
func (f *FakeTransport) Count(kind OpKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, op := range f.Ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Reset clears recorded ops and scripted errors.
func (f *FakeTransport) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Ops = nil
	f.ConnectErrors = nil
	f.PublishError = nil
	f.SubscribeError = nil
	f.Connected = false
	f.handlers = make(map[string]MessageHandler)
}
