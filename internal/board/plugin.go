package board

import (
	"context"

	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
)

// Plugin is the capability contract every console implements.
//
// Setters are fire-and-forget: they return an error only for an invalid
// channel or argument. Calls while disconnected and calls for capabilities
// the console lacks are accepted and have no hardware effect.
type Plugin interface {
	ID() string
	DeviceInfo() mixer.DeviceInfo

	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	// SyncState requests a state dump from the console and returns the
	// board's current view without waiting for the reply.
	SyncState(ctx context.Context) (*mixer.MixerState, error)
	ChannelState(channelID string) (*mixer.Channel, error)

	SetFader(ctx context.Context, channelID string, value float64) error
	SetMute(ctx context.Context, channelID string, muted bool) error
	SetSolo(ctx context.Context, channelID string, solo bool) error
	SetPan(ctx context.Context, channelID string, pan float64) error
	SetMainAssign(ctx context.Context, channelID string, assigned bool) error
	SetDCAAssign(ctx context.Context, channelID string, dca int, assigned bool) error
	SetSendLevel(ctx context.Context, channelID, targetID string, level float64) error
	SetSendPan(ctx context.Context, channelID, targetID string, pan float64) error
	SetSendPrePost(ctx context.Context, channelID, targetID string, preFader bool) error
	SetEQEnabled(ctx context.Context, channelID string, enabled bool) error
	SetEQBand(ctx context.Context, channelID string, band int, settings mixer.EQBand) error
	SetCompressor(ctx context.Context, channelID string, settings mixer.Compressor) error
	SetGate(ctx context.Context, channelID string, settings mixer.Gate) error
	SetChannelName(ctx context.Context, channelID, name string) error
	SetChannelColor(ctx context.Context, channelID string, color mixer.Color) error

	RecallScene(ctx context.Context, number int) error
	StoreScene(ctx context.Context, number int, name string) error
	SceneList(ctx context.Context) ([]mixer.SceneSummary, error)

	StartMeters(ctx context.Context) error
	StopMeters(ctx context.Context) error
	Meters(ctx context.Context) (mixer.MeterUpdate, error)

	SetHandlers(h Handlers)
}

// Handlers receive hardware-originated events. Each handler is optional.
// OnParameter and OnMeters are called from the device's consumer goroutine,
// one at a time and in arrival order. OnStatus may be called from any
// goroutine.
type Handlers struct {
	OnParameter func(change mixer.ParameterChange)
	OnMeters    func(update mixer.MeterUpdate)
	OnStatus    func(deviceID string, status mixer.ConnectionStatus, err error)
}

// Logger is the logging interface used by boards.
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
