package mqttrelay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-mixer/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
	"github.com/nerrad567/gray-logic-mixer/internal/state"
)

// Origin identifies changes submitted over MQTT to the broadcast layer.
const Origin = "mqtt"

const commandTimeout = 5 * time.Second

// Client is the subset of *mqtt.Client the relay uses.
type Client interface {
	PublishJSON(topic string, v any, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	QoS() byte
}

// Controller applies inbound commands. *state.Manager satisfies it.
type Controller interface {
	ApplyBatch(ctx context.Context, changes []mixer.ParameterChange) ([]mixer.ParameterChange, error)
	RecallScene(ctx context.Context, number int) error
}

// Logger defines the logging interface used by the relay.
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

// Options configures a Relay.
type Options struct {
	Client     Client
	Controller Controller

	// PublishMeters relays meter snapshots handed to BroadcastMeters.
	PublishMeters bool

	Logger Logger
}

// Relay publishes state to MQTT and applies MQTT commands. It implements
// state.Listener and broadcast.MeterSink.
type Relay struct {
	client        Client
	ctrl          Controller
	publishMeters bool
	logger        Logger

	mu        sync.Mutex
	ctx       context.Context
	ctxCancel context.CancelFunc
	wg        sync.WaitGroup
}

var _ state.Listener = (*Relay)(nil)

// New creates a relay. Call Start to accept commands.
func New(opts Options) (*Relay, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("mqttrelay: client is required")
	}
	if opts.Controller == nil {
		return nil, fmt.Errorf("mqttrelay: controller is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Relay{
		client:        opts.Client,
		ctrl:          opts.Controller,
		publishMeters: opts.PublishMeters,
		logger:        logger,
		ctx:           ctx,
		ctxCancel:     cancel,
	}, nil
}

// Start subscribes to the command topics. Commands are executed with a
// context derived from ctx, so cancelling it aborts in-flight commands.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	r.ctxCancel()
	r.ctx, r.ctxCancel = context.WithCancel(ctx)
	r.mu.Unlock()

	topic := mqtt.Topics{}.AllCommands()
	if err := r.client.Subscribe(topic, r.client.QoS(), r.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	r.logger.Info("mqtt relay started", "topic", topic)
	return nil
}

// Stop unsubscribes and waits for in-flight commands.
func (r *Relay) Stop() {
	if err := r.client.Unsubscribe(mqtt.Topics{}.AllCommands()); err != nil {
		r.logger.Debug("unsubscribing commands", "error", err)
	}
	r.mu.Lock()
	r.ctxCancel()
	r.mu.Unlock()
	r.wg.Wait()
	r.logger.Info("mqtt relay stopped")
}

func (r *Relay) commandContext() (context.Context, context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return context.WithTimeout(r.ctx, commandTimeout)
}

// handleCommand routes one inbound command. Errors are returned to the
// MQTT client, which logs them.
func (r *Relay) handleCommand(topic string, payload []byte) error {
	r.wg.Add(1)
	defer r.wg.Done()

	cmd, err := mqtt.ParseCommandTopic(topic)
	if err != nil {
		return err
	}
	ctx, cancel := r.commandContext()
	defer cancel()

	switch cmd.Kind {
	case mqtt.CommandScene:
		n, err := decodeScene(payload)
		if err != nil {
			return err
		}
		r.logger.Info("scene recall from mqtt", "scene", n)
		return r.ctrl.RecallScene(ctx, n)

	case mqtt.CommandBatch:
		changes, err := decodeBatch(cmd.DeviceID, payload)
		if err != nil {
			return err
		}
		return r.apply(ctx, changes)

	default:
		value, err := decodeValue(payload)
		if err != nil {
			return err
		}
		return r.apply(ctx, []mixer.ParameterChange{{
			DeviceID:  cmd.DeviceID,
			ChannelID: cmd.ChannelID,
			Parameter: cmd.Parameter,
			Value:     value,
		}})
	}
}

func (r *Relay) apply(ctx context.Context, changes []mixer.ParameterChange) error {
	now := time.Now().UTC()
	for i := range changes {
		changes[i].Source = mixer.SourceMQTT
		changes[i].Origin = Origin
		changes[i].Timestamp = now
	}
	if _, err := r.ctrl.ApplyBatch(ctx, changes); err != nil {
		return fmt.Errorf("applying %d changes: %w", len(changes), err)
	}
	return nil
}

// ParametersChanged implements state.Listener by publishing each change
// on its retained parameter topic.
func (r *Relay) ParametersChanged(changes []mixer.ParameterChange) {
	for _, c := range changes {
		ts := c.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		topic := mqtt.Topics{}.ParameterState(c.DeviceID, c.ChannelID, c.Parameter)
		r.publish(topic, ParameterMessage{Value: c.Value, Source: c.Source, Timestamp: ts}, true)
	}
}

// StateChanged implements state.Listener by publishing each device's full
// state and current scene.
func (r *Relay) StateChanged(states []*mixer.MixerState) {
	for _, st := range states {
		r.publish(mqtt.Topics{}.DeviceState(st.Device.ID), st, true)
		if st.CurrentScene != nil {
			r.publish(mqtt.Topics{}.Scene(st.Device.ID), SceneMessage{Scene: *st.CurrentScene}, true)
		}
	}
}

// DeviceStatusChanged implements state.Listener.
func (r *Relay) DeviceStatusChanged(info mixer.DeviceInfo, err error) {
	msg := DeviceStatusMessage{ID: info.ID, Name: info.Name, Model: info.Model, Status: info.Status}
	if err != nil {
		msg.Error = err.Error()
	}
	r.publish(mqtt.Topics{}.DeviceStatus(info.ID), msg, true)
}

// BroadcastMeters implements broadcast.MeterSink. It does nothing unless
// meter publishing is enabled.
func (r *Relay) BroadcastMeters(updates []mixer.MeterUpdate) {
	if !r.publishMeters {
		return
	}
	now := time.Now().UTC()
	for _, u := range updates {
		r.publish(mqtt.Topics{}.Meters(u.DeviceID), MeterMessage{
			Levels:         u.Levels,
			GainReductions: u.GainReductions,
			Timestamp:      now,
		}, false)
	}
}

func (r *Relay) publish(topic string, v any, retained bool) {
	if err := r.client.PublishJSON(topic, v, retained); err != nil {
		r.logger.Debug("mqtt publish failed", "topic", topic, "error", err)
	}
}
