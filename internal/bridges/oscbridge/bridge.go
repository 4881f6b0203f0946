package oscbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/hypebeast/go-osc/osc"

	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
	"github.com/nerrad567/gray-logic-mixer/internal/state"
)

// Origin identifies changes submitted over OSC.
const Origin = "osc"

// AddressPrefix is the root of every address the bridge handles.
const AddressPrefix = "/graymixer"

const commandTimeout = 5 * time.Second

var (
	// ErrUnknownAddress is returned for addresses outside the bridge's
	// namespace or of the wrong shape.
	ErrUnknownAddress = errors.New("oscbridge: unknown address")

	// ErrBadArgument is returned when a message carries no usable argument.
	ErrBadArgument = errors.New("oscbridge: bad argument")
)

// Sender delivers feedback packets. *osc.Client satisfies it.
type Sender interface {
	Send(packet osc.Packet) error
}

// Controller applies inbound changes. *state.Manager satisfies it.
type Controller interface {
	ApplyBatch(ctx context.Context, changes []mixer.ParameterChange) ([]mixer.ParameterChange, error)
	RecallScene(ctx context.Context, number int) error
}

// LevelSetter changes the service log level at runtime.
type LevelSetter interface {
	SetLevel(level string)
	Level() string
}

// Logger defines the logging interface used by the bridge.
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

// Options configures a Bridge. Feedback and Levels are optional.
type Options struct {
	Controller Controller
	Feedback   Sender
	Levels     LevelSetter
	Logger     Logger
}

// Bridge handles inbound OSC and sends parameter feedback. It implements
// osc.Dispatcher and state.Listener.
type Bridge struct {
	state.NopListener

	ctrl     Controller
	feedback Sender
	levels   LevelSetter
	logger   Logger

	mu  sync.RWMutex
	ctx context.Context
}

var (
	_ osc.Dispatcher = (*Bridge)(nil)
	_ state.Listener = (*Bridge)(nil)
)

// New creates a bridge.
func New(opts Options) (*Bridge, error) {
	if opts.Controller == nil {
		return nil, fmt.Errorf("oscbridge: controller is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Bridge{
		ctrl:     opts.Controller,
		feedback: opts.Feedback,
		levels:   opts.Levels,
		logger:   logger,
		ctx:      context.Background(),
	}, nil
}

// NewFeedbackClient returns a UDP client for host:port.
func NewFeedbackClient(host string, port int) *osc.Client {
	return osc.NewClient(host, port)
}

// ListenAndServe listens on a UDP address and serves until ctx is
// cancelled.
func (b *Bridge) ListenAndServe(ctx context.Context, addr string) error {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return b.Serve(ctx, conn)
}

// Serve reads OSC packets from conn until ctx is cancelled, then closes
// conn. Commands run with a context derived from ctx.
func (b *Bridge) Serve(ctx context.Context, conn net.PacketConn) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	b.logger.Info("osc bridge listening", "addr", conn.LocalAddr().String())
	server := &osc.Server{Dispatcher: b}
	err := server.Serve(conn)
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("serving osc: %w", err)
}

// Dispatch implements osc.Dispatcher.
func (b *Bridge) Dispatch(packet osc.Packet) {
	switch p := packet.(type) {
	case *osc.Message:
		if err := b.handle(p); err != nil {
			b.logger.Warn("osc message rejected", "address", p.Address, "error", err)
		}
	case *osc.Bundle:
		for _, m := range p.Messages {
			b.Dispatch(m)
		}
		for _, nested := range p.Bundles {
			b.Dispatch(nested)
		}
	}
}

func (b *Bridge) handle(msg *osc.Message) error {
	rest, ok := strings.CutPrefix(msg.Address, AddressPrefix+"/")
	if !ok {
		return ErrUnknownAddress
	}
	if len(msg.Arguments) == 0 {
		return fmt.Errorf("%w: none given", ErrBadArgument)
	}
	arg := msg.Arguments[len(msg.Arguments)-1]

	b.mu.RLock()
	parent := b.ctx
	b.mu.RUnlock()
	ctx, cancel := context.WithTimeout(parent, commandTimeout)
	defer cancel()

	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1 && parts[0] == "scene":
		n, err := mixer.Float(arg)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBadArgument, err)
		}
		return b.ctrl.RecallScene(ctx, int(n))

	case len(parts) == 2 && parts[0] == "logging" && parts[1] == "level":
		return b.setLevel(arg)

	case len(parts) == 3 && parts[0] != "" && parts[1] != "" && parts[2] != "":
		value, err := inboundValue(parts[2], arg)
		if err != nil {
			return err
		}
		_, err = b.ctrl.ApplyBatch(ctx, []mixer.ParameterChange{{
			DeviceID:  parts[0],
			ChannelID: parts[1],
			Parameter: parts[2],
			Value:     value,
			Source:    mixer.SourceOSC,
			Origin:    Origin,
			Timestamp: time.Now().UTC(),
		}})
		return err
	}
	return fmt.Errorf("%w: %s", ErrUnknownAddress, msg.Address)
}

func (b *Bridge) setLevel(arg any) error {
	if b.levels == nil {
		return fmt.Errorf("%w: runtime log level not available", ErrUnknownAddress)
	}
	var name string
	switch v := arg.(type) {
	case string:
		name = v
	case int32:
		name = slog.Level(v).String()
	default:
		return fmt.Errorf("%w: level must be int32 or string, got %T", ErrBadArgument, arg)
	}
	b.levels.SetLevel(strings.ToLower(name))
	b.logger.Info("log level changed over osc", "level", b.levels.Level())
	return nil
}

// inboundValue converts an OSC argument for a parameter, turning numeric
// toggles into booleans where the parameter is on/off.
func inboundValue(parameter string, arg any) (any, error) {
	target, err := mixer.ParsePath(parameter)
	if err != nil {
		return nil, err
	}
	if target.Boolean() {
		if on, ok := arg.(bool); ok {
			return on, nil
		}
		f, err := mixer.Float(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadArgument, err)
		}
		return f > 0, nil
	}
	return arg, nil
}

// ParametersChanged implements state.Listener by sending feedback for
// every change that did not come from OSC.
func (b *Bridge) ParametersChanged(changes []mixer.ParameterChange) {
	if b.feedback == nil {
		return
	}
	for _, c := range changes {
		if c.Origin == Origin {
			continue
		}
		msg, ok := feedbackMessage(c)
		if !ok {
			continue
		}
		if err := b.feedback.Send(msg); err != nil {
			b.logger.Debug("osc feedback failed", "address", msg.Address, "error", err)
		}
	}
}

// Address returns the OSC address of a channel parameter.
func Address(deviceID, channelID, parameter string) string {
	return strings.Join([]string{AddressPrefix, deviceID, channelID, parameter}, "/")
}

func feedbackMessage(c mixer.ParameterChange) (*osc.Message, bool) {
	addr := Address(c.DeviceID, c.ChannelID, c.Parameter)
	switch v := c.Value.(type) {
	case float64:
		return osc.NewMessage(addr, float32(v)), true
	case bool:
		f := float32(0)
		if v {
			f = 1
		}
		return osc.NewMessage(addr, f), true
	case string:
		return osc.NewMessage(addr, v), true
	case mixer.Color:
		return osc.NewMessage(addr, int32(v)), true
	case int:
		return osc.NewMessage(addr, int32(v)), true //nolint:gosec // Parameter values are small
	}
	return nil, false
}
