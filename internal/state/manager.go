package state

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-mixer/internal/board"
	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
	"github.com/nerrad567/gray-logic-mixer/internal/registry"
)

// DefaultSettleDelay is how long RecallScene waits before re-syncing.
const DefaultSettleDelay = 100 * time.Millisecond

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config configures a Manager.
type Config struct {
	// SettleDelay is the pause between a scene recall and the re-sync.
	SettleDelay time.Duration

	// QueueSize is the per-plugin operation queue length.
	QueueSize int

	Logger Logger
}

// device is one connected console.
type device struct {
	plugin board.Plugin

	// mu is the writer lock for state.
	mu    sync.Mutex
	state *mixer.MixerState

	published atomic.Pointer[mixer.MixerState]
	meters    atomic.Pointer[mixer.MeterUpdate]
}

// publish stores an immutable copy of the working state. Caller holds mu.
func (d *device) publish() {
	st := d.state.Clone()
	st.Device = d.plugin.DeviceInfo()
	d.published.Store(st)
}

// refreshStatus republishes the snapshot with the plugin's current
// connection status. It does not take mu.
func (d *device) refreshStatus() {
	for {
		old := d.published.Load()
		if old == nil {
			return
		}
		cp := *old
		cp.Device = d.plugin.DeviceInfo()
		if d.published.CompareAndSwap(old, &cp) {
			return
		}
	}
}

func (d *device) id() string { return d.plugin.ID() }

// Manager is safe for concurrent use.
type Manager struct {
	cfg      Config
	logger   Logger
	registry *registry.Registry

	mu      sync.RWMutex
	devices map[string]*device

	listenersMu sync.RWMutex
	listeners   []Listener

	snapshotsMu sync.RWMutex
	snapshots   map[string]*mixer.Scene
}

// New creates a manager with its own plugin registry.
func New(cfg Config) *Manager {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	reg := registry.New()
	reg.SetLogger(cfg.Logger)
	reg.SetQueueSize(cfg.QueueSize)
	return &Manager{
		cfg:       cfg,
		logger:    cfg.Logger,
		registry:  reg,
		devices:   make(map[string]*device),
		snapshots: make(map[string]*mixer.Scene),
	}
}

// Registry returns the plugin registry owned by the manager.
func (m *Manager) Registry() *registry.Registry { return m.registry }

// AddListener registers a change listener.
func (m *Manager) AddListener(l Listener) {
	m.listenersMu.Lock()
	m.listeners = append(m.listeners, l)
	m.listenersMu.Unlock()
}

func (m *Manager) notify(fn func(Listener)) {
	m.listenersMu.RLock()
	ls := slices.Clone(m.listeners)
	m.listenersMu.RUnlock()
	for _, l := range ls {
		m.safely("listener", func() { fn(l) })
	}
}

func (m *Manager) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("state: panic recovered", "in", what, "panic", r)
		}
	}()
	fn()
}

// ConnectDevice registers the plugin, connects it and seeds canonical
// state from its SyncState. On a connect failure the plugin is
// unregistered again and the ConnectionError is returned.
func (m *Manager) ConnectDevice(ctx context.Context, p board.Plugin) (mixer.DeviceInfo, error) {
	id := p.ID()
	if err := m.registry.Register(p); err != nil {
		return mixer.DeviceInfo{}, err
	}

	initial, err := p.SyncState(ctx)
	if err != nil {
		initial = mixer.NewMixerState(p.DeviceInfo(), nil)
	}
	d := &device{plugin: p, state: initial}
	d.publish()

	m.mu.Lock()
	m.devices[id] = d
	m.mu.Unlock()

	p.SetHandlers(m.handlers(id))

	if err := p.Connect(ctx); err != nil {
		m.removeDevice(id)
		if uerr := m.registry.Unregister(context.WithoutCancel(ctx), id); uerr != nil {
			m.logger.Warn("unregister after failed connect", "device", id, "error", uerr)
		}
		return p.DeviceInfo(), err
	}

	m.resync(ctx, d)
	if p.DeviceInfo().Capabilities.SupportsMeters {
		if err := p.StartMeters(ctx); err != nil {
			m.logger.Warn("starting meters failed", "device", id, "error", err)
		}
	}

	info := p.DeviceInfo()
	m.logger.Info("device connected", "device", id, "model", info.Model, "connection", info.ConnectionString)
	m.notify(func(l Listener) { l.StateChanged(m.Snapshot()) })
	return info, nil
}

// ReconnectDevice reconnects a registered device after an error and
// re-syncs its state.
func (m *Manager) ReconnectDevice(ctx context.Context, id string) error {
	d, err := m.device(id)
	if err != nil {
		return err
	}
	if err := d.plugin.Connect(ctx); err != nil {
		return err
	}
	m.resync(ctx, d)
	m.notify(func(l Listener) { l.StateChanged(m.Snapshot()) })
	return nil
}

// DisconnectDevice unregisters and disconnects a device and drops its
// canonical state.
func (m *Manager) DisconnectDevice(ctx context.Context, id string) error {
	if !m.removeDevice(id) {
		return fmt.Errorf("%w: %s", mixer.ErrDeviceNotFound, id)
	}
	// No device lock may be held here: Disconnect waits for the inbound
	// consumer, which takes the lock in the hardware handlers.
	err := m.registry.Unregister(ctx, id)
	m.logger.Info("device disconnected", "device", id)
	m.notify(func(l Listener) { l.StateChanged(m.Snapshot()) })
	return err
}

func (m *Manager) removeDevice(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[id]; !ok {
		return false
	}
	delete(m.devices, id)
	return true
}

// resync replaces the device's canonical state with the plugin's view,
// keeping the fields no plugin reports.
func (m *Manager) resync(ctx context.Context, d *device) {
	st, err := d.plugin.SyncState(ctx)
	if err != nil {
		m.logger.Warn("state sync failed", "device", d.id(), "error", err)
		return
	}
	d.mu.Lock()
	keepCanonicalOnly(d.state, st)
	d.state = st
	d.publish()
	d.mu.Unlock()
}

// keepCanonicalOnly copies mute group membership and send enables from
// prev into next. Sends that only exist in prev are carried over whole.
func keepCanonicalOnly(prev, next *mixer.MixerState) {
	if prev == nil {
		return
	}
	for id, old := range prev.Channels {
		ch := next.Channels[id]
		if ch == nil {
			continue
		}
		ch.MuteGroups = maps.Clone(old.MuteGroups)
		for _, prevSend := range old.Sends {
			if s := ch.Send(prevSend.TargetID); s != nil {
				s.Enabled = prevSend.Enabled
			} else {
				ch.Sends = append(ch.Sends, prevSend)
			}
		}
	}
}

// Close disconnects every device.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.devices = make(map[string]*device)
	m.mu.Unlock()
	return m.registry.Close(ctx)
}

func (m *Manager) device(id string) (*device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", mixer.ErrDeviceNotFound, id)
	}
	return d, nil
}

// sortedDevices returns the devices ordered by id.
func (m *Manager) sortedDevices() []*device {
	m.mu.RLock()
	ds := slices.Collect(maps.Values(m.devices))
	m.mu.RUnlock()
	slices.SortFunc(ds, func(a, b *device) int { return cmp.Compare(a.id(), b.id()) })
	return ds
}

// Devices returns the connected devices ordered by id.
func (m *Manager) Devices() []mixer.DeviceInfo {
	ds := m.sortedDevices()
	out := make([]mixer.DeviceInfo, len(ds))
	for i, d := range ds {
		out[i] = d.plugin.DeviceInfo()
	}
	return out
}

// Snapshot returns the published state of every device ordered by id.
// The returned states are shared and must not be modified.
func (m *Manager) Snapshot() []*mixer.MixerState {
	ds := m.sortedDevices()
	out := make([]*mixer.MixerState, 0, len(ds))
	for _, d := range ds {
		if st := d.published.Load(); st != nil {
			out = append(out, st)
		}
	}
	return out
}

// State returns a copy of one device's state including current meters.
func (m *Manager) State(id string) (*mixer.MixerState, error) {
	d, err := m.device(id)
	if err != nil {
		return nil, err
	}
	return withMeters(d), nil
}

// States returns copies of every device's state ordered by id.
func (m *Manager) States() []*mixer.MixerState {
	ds := m.sortedDevices()
	out := make([]*mixer.MixerState, 0, len(ds))
	for _, d := range ds {
		out = append(out, withMeters(d))
	}
	return out
}

func withMeters(d *device) *mixer.MixerState {
	st := d.published.Load().Clone()
	if mu := d.meters.Load(); mu != nil {
		st.Meters = maps.Clone(mu.Levels)
		for id, level := range mu.Levels {
			if ch := st.Channels[id]; ch != nil {
				ch.MeterLevel = level
			}
		}
		for id, gr := range mu.GainReductions {
			if ch := st.Channels[id]; ch != nil {
				ch.GainReduction = gr
			}
		}
	}
	return st
}

// Channel returns a copy of one channel. A bare channel id resolves to the
// first device (by id) that declares it.
func (m *Manager) Channel(key string) (*mixer.Channel, error) {
	targets, k, err := m.resolve(mixer.ParseChannelKey(key))
	if err != nil {
		return nil, err
	}
	st := withMeters(targets[0])
	return st.Channels[k.ChannelID], nil
}

// resolve returns the devices addressed by a channel key, ordered by id.
func (m *Manager) resolve(k mixer.ChannelKey) ([]*device, mixer.ChannelKey, error) {
	if k.DeviceID != "" {
		d, err := m.device(k.DeviceID)
		if err != nil {
			return nil, k, err
		}
		if _, ok := d.published.Load().Channels[k.ChannelID]; !ok {
			return nil, k, &mixer.InvalidChannelError{ChannelID: k.ChannelID, DeviceID: k.DeviceID}
		}
		return []*device{d}, k, nil
	}
	var out []*device
	for _, d := range m.sortedDevices() {
		if _, ok := d.published.Load().Channels[k.ChannelID]; ok {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return nil, k, fmt.Errorf("%w: %s", mixer.ErrChannelNotFound, k.ChannelID)
	}
	return out, k, nil
}
