package board

import (
	"context"
	"fmt"
	"maps"

	"github.com/nerrad567/gray-logic-mixer/internal/codec"
	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
)

func (b *Board) target(channelID string) (Target, error) {
	addr, err := b.channels.Resolve(channelID)
	if err != nil {
		return Target{}, &mixer.InvalidChannelError{ChannelID: channelID, DeviceID: b.cfg.ID}
	}
	return Target{Address: addr, ChannelID: channelID, MIDIChannel: b.cfg.MIDIChannel}, nil
}

func (b *Board) sendTarget(targetID string) (Target, error) {
	t, err := b.target(targetID)
	if err != nil {
		return Target{}, err
	}
	if !mixer.IsSendTarget(t.Type) {
		return Target{}, &mixer.InvalidChannelError{ChannelID: targetID, DeviceID: b.cfg.ID}
	}
	return t, nil
}

// apply is the common outgoing path. The channel is resolved first; encode
// runs only when connected and supported; the cache always records the
// accepted value.
func (b *Board) apply(
	ctx context.Context,
	op, channelID string,
	supported bool,
	encode func(Target) ([]codec.Message, error),
	update func(*mixer.Channel),
) error {
	t, err := b.target(channelID)
	if err != nil {
		return err
	}
	var msgs []codec.Message
	if supported && b.IsConnected() {
		if msgs, err = encode(t); err != nil {
			return fmt.Errorf("%s %s: %w", op, channelID, err)
		}
	}
	b.updateChannel(channelID, update)
	if len(msgs) == 0 {
		return nil
	}
	return b.write(ctx, op, msgs)
}

func (b *Board) updateChannel(channelID string, update func(*mixer.Channel)) {
	b.cacheMu.Lock()
	defer b.cacheMu.Unlock()
	if ch := b.cache.Channels[channelID]; ch != nil {
		update(ch)
	}
}

func (b *Board) caps() mixer.DeviceCapabilities { return b.info.Capabilities }

// SyncState asks the console for a state dump and returns the current view.
// Replies arrive asynchronously through the inbound consumer.
func (b *Board) SyncState(ctx context.Context) (*mixer.MixerState, error) {
	if b.IsConnected() {
		msgs, err := b.model.SyncRequest(b.cfg.MIDIChannel)
		if err != nil {
			return nil, fmt.Errorf("sync request: %w", err)
		}
		if len(msgs) > 0 {
			if err := b.write(ctx, "sync", msgs); err != nil {
				return nil, err
			}
		}
	}
	b.cacheMu.RLock()
	st := b.cache.Clone()
	b.cacheMu.RUnlock()
	st.Device = b.DeviceInfo()
	return st, nil
}

// ChannelState returns a copy of one channel from the board's view.
func (b *Board) ChannelState(channelID string) (*mixer.Channel, error) {
	if _, err := b.target(channelID); err != nil {
		return nil, err
	}
	b.cacheMu.RLock()
	defer b.cacheMu.RUnlock()
	return b.cache.Channels[channelID].Clone(), nil
}

func (b *Board) SetFader(ctx context.Context, channelID string, value float64) error {
	value = mixer.FaderRange.Clamp(value)
	return b.apply(ctx, "fader", channelID, true,
		func(t Target) ([]codec.Message, error) { return b.model.Fader(t, value) },
		func(ch *mixer.Channel) { ch.Fader = value })
}

func (b *Board) SetMute(ctx context.Context, channelID string, muted bool) error {
	return b.apply(ctx, "mute", channelID, true,
		func(t Target) ([]codec.Message, error) { return b.model.Mute(t, muted) },
		func(ch *mixer.Channel) { ch.Mute = muted })
}

func (b *Board) SetSolo(ctx context.Context, channelID string, solo bool) error {
	return b.apply(ctx, "solo", channelID, b.caps().HasSolo,
		func(t Target) ([]codec.Message, error) { return b.model.Solo(t, solo) },
		func(ch *mixer.Channel) { ch.Solo = solo })
}

func (b *Board) SetPan(ctx context.Context, channelID string, pan float64) error {
	pan = mixer.PanRange.Clamp(pan)
	return b.apply(ctx, "pan", channelID, b.caps().HasPan,
		func(t Target) ([]codec.Message, error) { return b.model.Pan(t, pan) },
		func(ch *mixer.Channel) { ch.Pan = pan })
}

func (b *Board) SetMainAssign(ctx context.Context, channelID string, assigned bool) error {
	return b.apply(ctx, "main_assign", channelID, b.caps().HasMain,
		func(t Target) ([]codec.Message, error) { return b.model.MainAssign(t, assigned) },
		func(ch *mixer.Channel) { ch.AssignedToMain = assigned })
}

func (b *Board) SetDCAAssign(ctx context.Context, channelID string, dca int, assigned bool) error {
	n := b.caps().DCAGroups
	if n == 0 {
		return nil
	}
	if dca < 1 || dca > n {
		return &mixer.RangeError{Field: "dca", Value: float64(dca), Min: 1, Max: float64(n)}
	}
	return b.apply(ctx, "dca_assign", channelID, true,
		func(t Target) ([]codec.Message, error) { return b.model.DCAAssign(t, dca, assigned) },
		func(ch *mixer.Channel) {
			if assigned {
				if ch.DCAGroups == nil {
					ch.DCAGroups = make(map[int]bool)
				}
				ch.DCAGroups[dca] = true
			} else {
				delete(ch.DCAGroups, dca)
			}
		})
}

func (b *Board) sendOp(
	ctx context.Context,
	op, channelID, targetID string,
	encode func(t, send Target) ([]codec.Message, error),
	update func(*mixer.Send),
) error {
	send, err := b.sendTarget(targetID)
	if err != nil {
		return err
	}
	return b.apply(ctx, op, channelID, b.caps().HasSends,
		func(t Target) ([]codec.Message, error) { return encode(t, send) },
		func(ch *mixer.Channel) { update(ch.EnsureSend(targetID)) })
}

func (b *Board) SetSendLevel(ctx context.Context, channelID, targetID string, level float64) error {
	level = mixer.FaderRange.Clamp(level)
	return b.sendOp(ctx, "send_level", channelID, targetID,
		func(t, s Target) ([]codec.Message, error) { return b.model.SendLevel(t, s, level) },
		func(s *mixer.Send) { s.Level = level })
}

func (b *Board) SetSendPan(ctx context.Context, channelID, targetID string, pan float64) error {
	pan = mixer.PanRange.Clamp(pan)
	return b.sendOp(ctx, "send_pan", channelID, targetID,
		func(t, s Target) ([]codec.Message, error) { return b.model.SendPan(t, s, pan) },
		func(s *mixer.Send) { s.Pan = pan })
}

func (b *Board) SetSendPrePost(ctx context.Context, channelID, targetID string, preFader bool) error {
	return b.sendOp(ctx, "send_pre_post", channelID, targetID,
		func(t, s Target) ([]codec.Message, error) { return b.model.SendPrePost(t, s, preFader) },
		func(s *mixer.Send) { s.PreFader = preFader })
}

func (b *Board) SetEQEnabled(ctx context.Context, channelID string, enabled bool) error {
	return b.apply(ctx, "eq_enabled", channelID, b.caps().HasEQ,
		func(t Target) ([]codec.Message, error) { return b.model.EQEnabled(t, enabled) },
		func(ch *mixer.Channel) { ch.EQ.Enabled = enabled })
}

func (b *Board) SetEQBand(ctx context.Context, channelID string, band int, settings mixer.EQBand) error {
	if !b.caps().HasEQ {
		return nil
	}
	if n := b.caps().EQBands; band < 0 || band >= n {
		return &mixer.RangeError{Field: "eq band", Value: float64(band), Min: 0, Max: float64(n - 1)}
	}
	settings.Frequency = mixer.FrequencyRange.Clamp(settings.Frequency)
	settings.Gain = mixer.DecibelRange.Clamp(settings.Gain)
	settings.Q = mixer.QRange.Clamp(settings.Q)
	return b.apply(ctx, "eq_band", channelID, b.caps().HasEQ,
		func(t Target) ([]codec.Message, error) { return b.model.EQBand(t, band, settings) },
		func(ch *mixer.Channel) {
			if band < len(ch.EQ.Bands) {
				ch.EQ.Bands[band] = settings
			}
		})
}

func (b *Board) SetCompressor(ctx context.Context, channelID string, settings mixer.Compressor) error {
	ch := mixer.Channel{Compressor: settings}
	ch.Normalize()
	settings = ch.Compressor
	return b.apply(ctx, "compressor", channelID, b.caps().HasCompressor,
		func(t Target) ([]codec.Message, error) { return b.model.Compressor(t, settings) },
		func(ch *mixer.Channel) { ch.Compressor = settings })
}

func (b *Board) SetGate(ctx context.Context, channelID string, settings mixer.Gate) error {
	ch := mixer.Channel{Gate: settings}
	ch.Normalize()
	settings = ch.Gate
	return b.apply(ctx, "gate", channelID, b.caps().HasGate,
		func(t Target) ([]codec.Message, error) { return b.model.Gate(t, settings) },
		func(ch *mixer.Channel) { ch.Gate = settings })
}

func (b *Board) SetChannelName(ctx context.Context, channelID, name string) error {
	name = mixer.TruncateName(name)
	return b.apply(ctx, "name", channelID, b.caps().SupportsNames,
		func(t Target) ([]codec.Message, error) { return b.model.Name(t, name) },
		func(ch *mixer.Channel) { ch.Name = name })
}

func (b *Board) SetChannelColor(ctx context.Context, channelID string, color mixer.Color) error {
	color = mixer.Color(mixer.ColorRange.Clamp(float64(color)))
	return b.apply(ctx, "color", channelID, b.caps().SupportsColors,
		func(t Target) ([]codec.Message, error) { return b.model.Color(t, color) },
		func(ch *mixer.Channel) { ch.Color = color })
}

func (b *Board) checkScene(number int) error {
	n := b.caps().Scenes
	if number < 1 || number > n {
		return &mixer.RangeError{Field: "scene", Value: float64(number), Min: 1, Max: float64(n)}
	}
	return nil
}

// RecallScene recalls a hardware scene (1-based).
func (b *Board) RecallScene(ctx context.Context, number int) error {
	if b.caps().Scenes == 0 {
		return nil
	}
	if err := b.checkScene(number); err != nil {
		return err
	}
	b.cacheMu.Lock()
	n := number
	b.cache.CurrentScene = &n
	b.cacheMu.Unlock()
	if !b.IsConnected() {
		return nil
	}
	msgs, err := b.model.RecallScene(b.cfg.MIDIChannel, number)
	if err != nil {
		return fmt.Errorf("recall scene %d: %w", number, err)
	}
	if len(msgs) == 0 {
		return nil
	}
	return b.write(ctx, "recall_scene", msgs)
}

// StoreScene stores the console's current state into a scene slot.
func (b *Board) StoreScene(ctx context.Context, number int, name string) error {
	if b.caps().Scenes == 0 {
		return nil
	}
	if err := b.checkScene(number); err != nil {
		return err
	}
	b.cacheMu.Lock()
	b.scenes[number] = name
	b.cacheMu.Unlock()
	if !b.IsConnected() {
		return nil
	}
	msgs, err := b.model.StoreScene(b.cfg.MIDIChannel, number, name)
	if err != nil {
		return fmt.Errorf("store scene %d: %w", number, err)
	}
	if len(msgs) == 0 {
		return nil
	}
	return b.write(ctx, "store_scene", msgs)
}

// SceneList returns every scene slot with its known name.
func (b *Board) SceneList(_ context.Context) ([]mixer.SceneSummary, error) {
	n := b.caps().Scenes
	out := make([]mixer.SceneSummary, 0, n)
	b.cacheMu.RLock()
	defer b.cacheMu.RUnlock()
	for i := 1; i <= n; i++ {
		name, ok := b.scenes[i]
		if !ok {
			name = fmt.Sprintf("Scene %d", i)
		}
		out = append(out, mixer.SceneSummary{Number: i, Name: name})
	}
	return out, nil
}

// StartMeters enables meter polling. A no-op for consoles without meters.
func (b *Board) StartMeters(_ context.Context) error {
	if b.caps().SupportsMeters {
		b.metering.Store(true)
	}
	return nil
}

// StopMeters disables meter polling.
func (b *Board) StopMeters(_ context.Context) error {
	b.metering.Store(false)
	return nil
}

// Meters requests a fresh meter dump (when metering) and returns the most
// recent readings. Replies update the readings asynchronously.
func (b *Board) Meters(ctx context.Context) (mixer.MeterUpdate, error) {
	if b.metering.Load() && b.IsConnected() {
		msgs, err := b.model.MeterRequest(b.cfg.MIDIChannel)
		if err != nil {
			return mixer.MeterUpdate{}, fmt.Errorf("meter request: %w", err)
		}
		if len(msgs) > 0 {
			if err := b.write(ctx, "meters", msgs); err != nil {
				return mixer.MeterUpdate{}, err
			}
		}
	}
	b.cacheMu.RLock()
	defer b.cacheMu.RUnlock()
	return mixer.MeterUpdate{DeviceID: b.cfg.ID, Levels: maps.Clone(b.cache.Meters)}, nil
}
