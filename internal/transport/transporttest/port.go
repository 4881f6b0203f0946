// Package transporttest provides an in-memory transport.Port for tests.
package transporttest

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/nerrad567/gray-logic-mixer/internal/transport"
)

// ErrMockSend is the error returned by Send when failures are enabled.
var ErrMockSend = errors.New("mock send error")

// MockPort implements transport.Port. Sent messages are recorded and inbound
// messages are injected with SimulateReceive.
type MockPort struct {
	mu sync.Mutex

	name string
	sent [][]byte

	onMsg func([]byte)
	onErr func(error)

	sendErr error
	closed  bool
}

// NewMockPort creates an open mock port.
func NewMockPort(name string) *MockPort {
	return &MockPort{name: name}
}

// Send implements transport.Port.
func (m *MockPort) Send(msg []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return transport.ErrClosed
	}
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, slices.Clone(msg))
	return nil
}

// Listen implements transport.Port.
func (m *MockPort) Listen(onMsg func([]byte), onErr func(error)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, transport.ErrClosed
	}
	if m.onMsg != nil {
		return nil, transport.ErrAlreadyListening
	}
	m.onMsg, m.onErr = onMsg, onErr
	return func() {
		m.mu.Lock()
		m.onMsg, m.onErr = nil, nil
		m.mu.Unlock()
	}, nil
}

// Close implements transport.Port.
func (m *MockPort) Close() error {
	m.mu.Lock()
	m.closed = true
	m.onMsg, m.onErr = nil, nil
	m.mu.Unlock()
	return nil
}

// String implements transport.Port.
func (m *MockPort) String() string { return "mock://" + m.name }

// SimulateReceive delivers raw bytes to the listener as if they arrived
// from the device.
func (m *MockPort) SimulateReceive(raw ...[]byte) {
	m.mu.Lock()
	onMsg := m.onMsg
	m.mu.Unlock()
	if onMsg == nil {
		return
	}
	for _, r := range raw {
		onMsg(r)
	}
}

// SimulateError reports a transport failure to the listener.
func (m *MockPort) SimulateError(err error) {
	m.mu.Lock()
	onErr := m.onErr
	m.mu.Unlock()
	if onErr != nil {
		onErr(err)
	}
}

// SetSendError makes every following Send fail with err (nil to clear).
func (m *MockPort) SetSendError(err error) {
	m.mu.Lock()
	m.sendErr = err
	m.mu.Unlock()
}

// Sent returns a copy of every message sent so far.
func (m *MockPort) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.sent))
	for i, s := range m.sent {
		out[i] = slices.Clone(s)
	}
	return out
}

// ClearSent discards the recorded messages.
func (m *MockPort) ClearSent() {
	m.mu.Lock()
	m.sent = nil
	m.mu.Unlock()
}

// IsClosed reports whether Close has been called.
func (m *MockPort) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Listening reports whether a listener is attached.
func (m *MockPort) Listening() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.onMsg != nil
}

// Dialer hands out mock ports by connection string.
type Dialer struct {
	mu    sync.Mutex
	ports map[string]*MockPort
	errs  map[string]error
	block map[string]bool
}

// NewDialer creates an empty dialer.
func NewDialer() *Dialer {
	return &Dialer{
		ports: make(map[string]*MockPort),
		errs:  make(map[string]error),
		block: make(map[string]bool),
	}
}

// Fail makes Dial for conn return err.
func (d *Dialer) Fail(conn string, err error) {
	d.mu.Lock()
	d.errs[conn] = err
	d.mu.Unlock()
}

// Hang makes Dial for conn block until its context is done.
func (d *Dialer) Hang(conn string) {
	d.mu.Lock()
	d.block[conn] = true
	d.mu.Unlock()
}

// Port returns the mock port last opened for conn, or nil.
func (d *Dialer) Port(conn string) *MockPort {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ports[conn]
}

// Dial implements transport.DialFunc.
func (d *Dialer) Dial(ctx context.Context, conn string) (transport.Port, error) {
	d.mu.Lock()
	err, hang := d.errs[conn], d.block[conn]
	d.mu.Unlock()
	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	p := NewMockPort(conn)
	d.mu.Lock()
	d.ports[conn] = p
	d.mu.Unlock()
	return p, nil
}
