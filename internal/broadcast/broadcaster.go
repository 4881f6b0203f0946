package broadcast

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
	"github.com/nerrad567/gray-logic-mixer/internal/state"
)

// Logger defines the logging interface used by the Broadcaster.
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

// Observer receives events. Send must not block for long and must be safe
// for concurrent use; a non-nil error marks the observer for pruning.
// Observers that also implement io.Closer are closed when pruned.
type Observer interface {
	ID() string
	Send(Event) error
}

// StateSource provides the catch-up state for newly connected observers.
type StateSource interface {
	Snapshot() []*mixer.MixerState
}

type subscriber struct {
	obs Observer

	mu     sync.RWMutex
	filter map[string]struct{}

	// sendMu serialises delivery so the catch-up state goes out first.
	sendMu sync.Mutex
	failed atomic.Bool
}

// wants reports whether the subscriber's filter admits a channel. An
// empty filter admits everything; entries match either the bare channel
// id or the namespaced "device:channel" key.
func (s *subscriber) wants(deviceID, channelID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.filter) == 0 {
		return true
	}
	if _, ok := s.filter[channelID]; ok {
		return true
	}
	_, ok := s.filter[MeterKey(deviceID, channelID)]
	return ok
}

func (s *subscriber) filtered() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filter) > 0
}

func (s *subscriber) send(ev Event) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.failed.Load() {
		return false
	}
	if err := s.obs.Send(ev); err != nil {
		s.failed.Store(true)
		return false
	}
	return true
}

// Broadcaster delivers events to connected observers. It implements
// state.Listener.
type Broadcaster struct {
	source StateSource
	logger Logger

	mu        sync.RWMutex
	observers map[string]*subscriber
}

var _ state.Listener = (*Broadcaster)(nil)

// New creates a broadcaster. source may be nil, in which case new
// observers receive an empty state event.
func New(source StateSource) *Broadcaster {
	return &Broadcaster{
		source:    source,
		logger:    noopLogger{},
		observers: make(map[string]*subscriber),
	}
}

// SetLogger sets the logger.
func (b *Broadcaster) SetLogger(logger Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// Connect registers an observer with an optional channel filter and sends
// it the full current state. If the catch-up send fails the observer is
// not registered.
func (b *Broadcaster) Connect(_ context.Context, obs Observer, channels ...string) error {
	id := obs.ID()
	s := &subscriber{obs: obs, filter: make(map[string]struct{})}
	for _, ch := range channels {
		s.filter[ch] = struct{}{}
	}

	// Broadcasts reaching s before the catch-up state wait on sendMu.
	s.sendMu.Lock()
	b.mu.Lock()
	if _, ok := b.observers[id]; ok {
		b.mu.Unlock()
		s.sendMu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateObserver, id)
	}
	b.observers[id] = s
	b.mu.Unlock()

	var states []*mixer.MixerState
	if b.source != nil {
		states = b.source.Snapshot()
	}
	err := obs.Send(StateEvent(states))
	if err != nil {
		s.failed.Store(true)
	}
	s.sendMu.Unlock()
	if err != nil {
		b.remove(id)
		return fmt.Errorf("catch-up state: %w", err)
	}
	b.logger.Debug("observer connected", "observer", id, "filter", channels, "observers", b.Count())
	return nil
}

// Disconnect removes an observer. It does not close it.
func (b *Broadcaster) Disconnect(id string) {
	if b.remove(id) {
		b.logger.Debug("observer disconnected", "observer", id, "observers", b.Count())
	}
}

func (b *Broadcaster) remove(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.observers[id]; !ok {
		return false
	}
	delete(b.observers, id)
	return true
}

// Subscribe adds channels to an observer's filter.
func (b *Broadcaster) Subscribe(id string, channels ...string) error {
	s, err := b.subscriber(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	for _, ch := range channels {
		s.filter[ch] = struct{}{}
	}
	s.mu.Unlock()
	return nil
}

// Unsubscribe removes channels from an observer's filter. With no channels
// the filter is cleared and the observer receives everything again.
func (b *Broadcaster) Unsubscribe(id string, channels ...string) error {
	s, err := b.subscriber(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if len(channels) == 0 {
		clear(s.filter)
	}
	for _, ch := range channels {
		delete(s.filter, ch)
	}
	s.mu.Unlock()
	return nil
}

// Subscriptions returns an observer's filter, sorted.
func (b *Broadcaster) Subscriptions(id string) ([]string, error) {
	s, err := b.subscriber(id)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.filter)), nil
}

func (b *Broadcaster) subscriber(id string) (*subscriber, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.observers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownObserver, id)
	}
	return s, nil
}

// Count returns the number of connected observers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.observers)
}

// targets prunes failed observers and returns the rest ordered by id.
func (b *Broadcaster) targets() []*subscriber {
	b.mu.Lock()
	var pruned []*subscriber
	out := make([]*subscriber, 0, len(b.observers))
	for id, s := range b.observers {
		if s.failed.Load() {
			delete(b.observers, id)
			pruned = append(pruned, s)
			continue
		}
		out = append(out, s)
	}
	b.mu.Unlock()

	for _, s := range pruned {
		b.logger.Info("pruned failed observer", "observer", s.obs.ID())
		if c, ok := s.obs.(io.Closer); ok {
			_ = c.Close()
		}
	}
	slices.SortFunc(out, func(a, b *subscriber) int { return cmp.Compare(a.obs.ID(), b.obs.ID()) })
	return out
}

// BroadcastParameterChange delivers one change to every observer whose
// filter admits the channel, except the observer named by exclude.
func (b *Broadcaster) BroadcastParameterChange(c mixer.ParameterChange, exclude string) {
	ev := ParameterEvent(c)
	sent := 0
	for _, s := range b.targets() {
		if s.obs.ID() == exclude || !s.wants(c.DeviceID, c.ChannelID) {
			continue
		}
		if s.send(ev) {
			sent++
		}
	}
	if sent > 0 {
		b.logger.Debug("parameter broadcast", "channel", c.ChannelID, "parameter", c.Parameter, "recipients", sent)
	}
}

// BroadcastBatch delivers several changes as one event. Filtered observers
// receive only the changes their filter admits, and nothing if none match.
func (b *Broadcaster) BroadcastBatch(changes []mixer.ParameterChange, exclude string) {
	if len(changes) == 0 {
		return
	}
	now := time.Now().UTC()
	for _, s := range b.targets() {
		if s.obs.ID() == exclude {
			continue
		}
		admitted := changes
		if s.filtered() {
			admitted = slices.DeleteFunc(slices.Clone(changes), func(c mixer.ParameterChange) bool {
				return !s.wants(c.DeviceID, c.ChannelID)
			})
		}
		if len(admitted) == 0 {
			continue
		}
		s.send(Event{Type: EventBatch, Changes: admitted, Timestamp: now})
	}
}

// BroadcastState delivers full state to every observer regardless of
// filter.
func (b *Broadcaster) BroadcastState(states []*mixer.MixerState) {
	b.broadcastAll(StateEvent(states))
}

// BroadcastDevice delivers a device status change to every observer.
func (b *Broadcaster) BroadcastDevice(info mixer.DeviceInfo, err error) {
	ev := Event{Type: EventDevice, DeviceID: info.ID, Device: &info, Timestamp: time.Now().UTC()}
	if err != nil {
		ev.Error = err.Error()
	}
	b.broadcastAll(ev)
}

func (b *Broadcaster) broadcastAll(ev Event) {
	for _, s := range b.targets() {
		s.send(ev)
	}
}

// BroadcastMeters delivers meter readings. Filtered observers receive only
// the levels of their channels.
func (b *Broadcaster) BroadcastMeters(updates []mixer.MeterUpdate) {
	if len(updates) == 0 {
		return
	}
	now := time.Now().UTC()
	for _, s := range b.targets() {
		levels := make(map[string]float64)
		for _, u := range updates {
			for ch, level := range u.Levels {
				if s.wants(u.DeviceID, ch) {
					levels[MeterKey(u.DeviceID, ch)] = level
				}
			}
		}
		if len(levels) == 0 {
			continue
		}
		s.send(Event{Type: EventMeters, Levels: levels, Timestamp: now})
	}
}

// ParametersChanged implements state.Listener. Changes from one origin
// are never echoed back to it.
func (b *Broadcaster) ParametersChanged(changes []mixer.ParameterChange) {
	switch len(changes) {
	case 0:
	case 1:
		b.BroadcastParameterChange(changes[0], changes[0].Origin)
	default:
		b.BroadcastBatch(changes, changes[0].Origin)
	}
}

// StateChanged implements state.Listener.
func (b *Broadcaster) StateChanged(states []*mixer.MixerState) { b.BroadcastState(states) }

// DeviceStatusChanged implements state.Listener.
func (b *Broadcaster) DeviceStatusChanged(info mixer.DeviceInfo, err error) {
	b.BroadcastDevice(info, err)
}
