package board

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-mixer/internal/codec"
	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
	"github.com/nerrad567/gray-logic-mixer/internal/transport"
)

// Defaults applied by New when the Config leaves a field zero.
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultQueueSize      = 256
)

// Config holds per-device connection settings.
type Config struct {
	// ID overrides the derived "manufacturer_model" device id.
	ID string

	// Name is a human-readable label. Defaults to the model name.
	Name string

	// Connection is the transport connection string (see package transport).
	Connection string

	// MIDIChannel is the console's base MIDI channel (0-15).
	MIDIChannel int

	// ConnectTimeout bounds Connect.
	ConnectTimeout time.Duration

	// QueueSize bounds the inbound event queue. Messages arriving while the
	// queue is full are dropped and counted.
	QueueSize int

	// Dial opens the transport. Defaults to transport.Dial.
	Dial transport.DialFunc

	Logger Logger
}

// Stats are inbound counters for one board.
type Stats struct {
	Dropped   uint64 `json:"dropped"`
	Malformed uint64 `json:"malformed"`
}

// Board implements Plugin for a Model.
type Board struct {
	model    Model
	cfg      Config
	info     mixer.DeviceInfo
	channels *ChannelMap
	logger   Logger

	statusMu sync.RWMutex
	status   mixer.ConnectionStatus

	// connMu serialises Connect and Disconnect.
	connMu     sync.Mutex
	stopListen func()
	done       chan struct{}
	wg         sync.WaitGroup

	// writeMu is the single-writer lock: every message group of one
	// operation is sent while holding it.
	writeMu sync.Mutex
	port    transport.Port

	cacheMu sync.RWMutex
	cache   *mixer.MixerState
	scenes  map[int]string

	handlersMu sync.RWMutex
	handlers   Handlers

	metering  atomic.Bool
	dropped   atomic.Uint64
	malformed atomic.Uint64
}

var _ Plugin = (*Board)(nil)

// New creates a disconnected board for model.
func New(model Model, cfg Config) (*Board, error) {
	if cfg.MIDIChannel < 0 || cfg.MIDIChannel > 15 {
		return nil, &mixer.RangeError{Field: "midi channel", Value: float64(cfg.MIDIChannel), Min: 0, Max: 15}
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Dial == nil {
		cfg.Dial = transport.Dial
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}

	mi := model.Info()
	caps := model.Capabilities()
	if cfg.ID == "" {
		cfg.ID = mixer.DeviceID(mi.Manufacturer, mi.Model)
	}
	if cfg.Name == "" {
		cfg.Name = mi.Manufacturer + " " + mi.Model
	}

	channels, err := NewChannelMap(caps, model.Index)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.ID, err)
	}

	info := mixer.DeviceInfo{
		ID:               cfg.ID,
		Name:             cfg.Name,
		Manufacturer:     mi.Manufacturer,
		Model:            mi.Model,
		Protocol:         mi.Protocol,
		ConnectionString: cfg.Connection,
		Status:           mixer.StatusDisconnected,
		Capabilities:     caps,
	}

	return &Board{
		model:    model,
		cfg:      cfg,
		info:     info,
		channels: channels,
		logger:   cfg.Logger,
		status:   mixer.StatusDisconnected,
		cache:    mixer.NewMixerState(info, model.Index),
		scenes:   make(map[int]string),
	}, nil
}

// ID returns the device id.
func (b *Board) ID() string { return b.cfg.ID }

// Channels returns the model's channel map.
func (b *Board) Channels() *ChannelMap { return b.channels }

// DeviceInfo returns the device description with the current status.
func (b *Board) DeviceInfo() mixer.DeviceInfo {
	info := b.info
	info.Status = b.Status()
	return info
}

// Status returns the connection state.
func (b *Board) Status() mixer.ConnectionStatus {
	b.statusMu.RLock()
	defer b.statusMu.RUnlock()
	return b.status
}

// IsConnected reports whether the board is in the connected state.
func (b *Board) IsConnected() bool {
	return b.Status() == mixer.StatusConnected
}

// Stats returns the inbound counters.
func (b *Board) Stats() Stats {
	return Stats{Dropped: b.dropped.Load(), Malformed: b.malformed.Load()}
}

// SetHandlers replaces the event handlers.
func (b *Board) SetHandlers(h Handlers) {
	b.handlersMu.Lock()
	b.handlers = h
	b.handlersMu.Unlock()
}

func (b *Board) currentHandlers() Handlers {
	b.handlersMu.RLock()
	defer b.handlersMu.RUnlock()
	return b.handlers
}

// Connect opens the transport and starts the inbound consumer. The attempt
// is bounded by the configured connect timeout. On failure the board moves
// to the error state and the cause is also reported to OnStatus.
func (b *Board) Connect(ctx context.Context) error {
	b.connMu.Lock()
	defer b.connMu.Unlock()

	if b.IsConnected() {
		return nil
	}
	_ = b.teardown()
	b.setStatus(mixer.StatusConnecting, nil)

	dialCtx, cancel := context.WithTimeout(ctx, b.cfg.ConnectTimeout)
	defer cancel()

	port, err := b.cfg.Dial(dialCtx, b.cfg.Connection)
	if err != nil {
		return b.connectFailed(err)
	}

	events := make(chan []byte, b.cfg.QueueSize)
	done := make(chan struct{})
	decoder := b.model.NewDecoder(b.channels, b.cfg.MIDIChannel)

	b.wg.Add(1)
	go b.consume(events, done, decoder)

	stop, err := port.Listen(func(raw []byte) {
		b.enqueue(events, done, raw)
	}, func(err error) {
		b.fail("receive", err)
	})
	if err != nil {
		close(done)
		b.wg.Wait()
		_ = port.Close()
		return b.connectFailed(err)
	}

	b.writeMu.Lock()
	b.port = port
	b.writeMu.Unlock()
	b.stopListen = stop
	b.done = done

	b.setStatus(mixer.StatusConnected, nil)
	b.logger.Info("board connected", "device", b.cfg.ID, "port", port.String())
	return nil
}

func (b *Board) connectFailed(err error) error {
	cerr := &mixer.ConnectionError{DeviceID: b.cfg.ID, Op: "connect", Err: err}
	b.logger.Error("board connect failed", "device", b.cfg.ID, "connection", b.cfg.Connection, "error", err)
	b.setStatus(mixer.StatusError, cerr)
	return cerr
}

// Disconnect stops the consumer and closes the transport. Queued inbound
// messages that have not been consumed are discarded.
func (b *Board) Disconnect(_ context.Context) error {
	b.connMu.Lock()
	defer b.connMu.Unlock()

	err := b.teardown()
	b.metering.Store(false)
	if b.Status() != mixer.StatusDisconnected {
		b.setStatus(mixer.StatusDisconnected, nil)
		b.logger.Info("board disconnected", "device", b.cfg.ID)
	}
	if err != nil {
		return &mixer.ConnectionError{DeviceID: b.cfg.ID, Op: "disconnect", Err: err}
	}
	return nil
}

// teardown releases the current connection. Caller holds connMu.
func (b *Board) teardown() error {
	if b.stopListen != nil {
		b.stopListen()
		b.stopListen = nil
	}
	if b.done != nil {
		close(b.done)
		b.done = nil
	}
	b.wg.Wait()

	b.writeMu.Lock()
	port := b.port
	b.port = nil
	b.writeMu.Unlock()
	if port != nil {
		return port.Close()
	}
	return nil
}

func (b *Board) setStatus(status mixer.ConnectionStatus, err error) {
	b.statusMu.Lock()
	if b.status == status && err == nil {
		b.statusMu.Unlock()
		return
	}
	b.status = status
	b.statusMu.Unlock()

	if h := b.currentHandlers().OnStatus; h != nil {
		b.safely("status handler", func() { h(b.cfg.ID, status, err) })
	}
}

// fail records a transport failure. It never closes the port itself because
// it may run on the transport's own goroutine.
func (b *Board) fail(op string, err error) {
	cerr := &mixer.ConnectionError{DeviceID: b.cfg.ID, Op: op, Err: err}
	b.logger.Error("board transport failure", "device", b.cfg.ID, "op", op, "error", err)
	b.setStatus(mixer.StatusError, cerr)
}

func (b *Board) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("board: panic recovered", "device", b.cfg.ID, "in", what, "panic", r)
		}
	}()
	fn()
}

func (b *Board) enqueue(events chan<- []byte, done <-chan struct{}, raw []byte) {
	select {
	case <-done:
		return
	default:
	}
	select {
	case events <- raw:
	default:
		if n := b.dropped.Add(1); n == 1 || n%100 == 0 {
			b.logger.Warn("board event queue full, dropping message", "device", b.cfg.ID, "dropped_total", n)
		}
	}
}

func (b *Board) consume(events <-chan []byte, done <-chan struct{}, decoder Decoder) {
	defer b.wg.Done()
	for {
		select {
		case <-done:
			return
		case raw := <-events:
			b.safely("inbound decode", func() { b.handleInbound(decoder, raw) })
		}
	}
}

func (b *Board) handleInbound(decoder Decoder, raw []byte) {
	msg, err := codec.Decode(raw)
	if err != nil {
		b.malformed.Add(1)
		b.logger.Debug("dropping malformed message", "device", b.cfg.ID, "error", err)
		return
	}
	if msg.Kind == codec.KindIgnored {
		return
	}
	for _, ev := range decoder.Decode(msg) {
		b.handleEvent(ev)
	}
}

func (b *Board) handleEvent(ev Event) {
	h := b.currentHandlers()

	if ev.Scene > 0 {
		b.cacheMu.Lock()
		n := ev.Scene
		b.cache.CurrentScene = &n
		b.cacheMu.Unlock()
	}

	if len(ev.Meters) > 0 {
		b.cacheMu.Lock()
		for id, level := range ev.Meters {
			level = mixer.MeterRange.Clamp(level)
			b.cache.Meters[id] = level
			if ch := b.cache.Channels[id]; ch != nil {
				ch.MeterLevel = level
			}
		}
		levels := maps.Clone(b.cache.Meters)
		b.cacheMu.Unlock()
		if h.OnMeters != nil {
			h.OnMeters(mixer.MeterUpdate{DeviceID: b.cfg.ID, Levels: levels})
		}
	}

	if ev.Parameter == "" {
		return
	}
	target, err := mixer.ParsePath(ev.Parameter)
	if err != nil {
		b.logger.Warn("decoder produced unknown parameter", "device", b.cfg.ID, "parameter", ev.Parameter)
		return
	}
	b.cacheMu.Lock()
	ch := b.cache.Channels[ev.ChannelID]
	var value any
	if ch != nil {
		value, err = target.Apply(ch, ev.Value)
	}
	b.cacheMu.Unlock()
	if ch == nil || err != nil {
		b.logger.Debug("ignoring inbound change", "device", b.cfg.ID, "channel", ev.ChannelID, "parameter", ev.Parameter, "error", err)
		return
	}

	if h.OnParameter != nil {
		h.OnParameter(mixer.ParameterChange{
			DeviceID:  b.cfg.ID,
			ChannelID: ev.ChannelID,
			Parameter: ev.Parameter,
			Value:     value,
			Source:    mixer.SourceHardware,
			Timestamp: time.Now().UTC(),
		})
	}
}

// write sends one operation's messages under the writer lock. Transport
// errors are reported through the status handler, not returned.
func (b *Board) write(ctx context.Context, op string, msgs []codec.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.writeMu.Lock()
	port := b.port
	var sendErr error
	if port != nil {
		for _, m := range msgs {
			if sendErr = port.Send(m); sendErr != nil {
				break
			}
		}
	}
	b.writeMu.Unlock()

	if sendErr != nil {
		b.fail(op, sendErr)
	}
	return nil
}
