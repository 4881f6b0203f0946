package state

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/nerrad567/gray-logic-mixer/internal/board"
	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
	"github.com/nerrad567/gray-logic-mixer/internal/registry"
)

// action is one plugin call produced by an applied change.
type action func(ctx context.Context, p board.Plugin) error

// step is one change bound to one device.
type step struct {
	d      *device
	target mixer.Target
	change mixer.ParameterChange
}

// SetFader sets a channel fader. The value is clamped to [0,1].
func (m *Manager) SetFader(ctx context.Context, key string, value float64) ([]mixer.ParameterChange, error) {
	return m.ApplyParameterChange(ctx, mixer.ParameterChange{ChannelID: key, Parameter: "fader", Value: value})
}

// SetMute mutes or unmutes a channel.
func (m *Manager) SetMute(ctx context.Context, key string, muted bool) ([]mixer.ParameterChange, error) {
	return m.ApplyParameterChange(ctx, mixer.ParameterChange{ChannelID: key, Parameter: "mute", Value: muted})
}

// SetSolo solos or unsolos a channel.
func (m *Manager) SetSolo(ctx context.Context, key string, solo bool) ([]mixer.ParameterChange, error) {
	return m.ApplyParameterChange(ctx, mixer.ParameterChange{ChannelID: key, Parameter: "solo", Value: solo})
}

// SetPan sets a channel pan. The value is clamped to [-1,1].
func (m *Manager) SetPan(ctx context.Context, key string, pan float64) ([]mixer.ParameterChange, error) {
	return m.ApplyParameterChange(ctx, mixer.ParameterChange{ChannelID: key, Parameter: "pan", Value: pan})
}

// ApplyParameterChange applies one change to every device it addresses
// and returns the applied changes with their clamped values.
func (m *Manager) ApplyParameterChange(ctx context.Context, change mixer.ParameterChange) ([]mixer.ParameterChange, error) {
	return m.ApplyBatch(ctx, []mixer.ParameterChange{change})
}

// ApplyBatch applies several changes as one unit. Every change is
// validated before anything is mutated: a single invalid channel, path or
// value rejects the whole batch with no state or hardware effect.
func (m *Manager) ApplyBatch(ctx context.Context, changes []mixer.ParameterChange) ([]mixer.ParameterChange, error) {
	if len(changes) == 0 {
		return nil, nil
	}
	steps, err := m.plan(changes)
	if err != nil {
		return nil, err
	}

	devices := lockOrder(steps)
	for _, d := range devices {
		d.mu.Lock()
	}
	applied, outcomes, err := m.commit(ctx, steps, devices)
	for _, d := range devices {
		d.mu.Unlock()
	}
	if err != nil {
		return nil, err
	}

	m.notify(func(l Listener) { l.ParametersChanged(applied) })
	if err := outcomes.Err(); err != nil {
		return applied, fmt.Errorf("dispatch: %w", err)
	}
	return applied, nil
}

// plan resolves every change to its devices and parses its path.
func (m *Manager) plan(changes []mixer.ParameterChange) ([]step, error) {
	var steps []step
	for _, c := range changes {
		target, err := mixer.ParsePath(c.Parameter)
		if err != nil {
			return nil, err
		}
		ds, k, err := m.resolve(c.Key())
		if err != nil {
			return nil, err
		}
		if c.Source == "" {
			c.Source = mixer.SourceAPI
		}
		for _, d := range ds {
			sc := c
			sc.DeviceID = d.id()
			sc.ChannelID = k.ChannelID
			steps = append(steps, step{d: d, target: target, change: sc})
		}
	}
	return steps, nil
}

// lockOrder returns the distinct devices of steps sorted by id so that
// concurrent batches always lock in the same order.
func lockOrder(steps []step) []*device {
	var ds []*device
	for _, s := range steps {
		if !slices.Contains(ds, s.d) {
			ds = append(ds, s.d)
		}
	}
	slices.SortFunc(ds, func(a, b *device) int { return cmp.Compare(a.id(), b.id()) })
	return ds
}

// commit validates, applies and dispatches. Caller holds every device lock.
func (m *Manager) commit(ctx context.Context, steps []step, devices []*device) ([]mixer.ParameterChange, registry.Outcomes, error) {
	for _, s := range steps {
		ch := s.d.state.Channels[s.change.ChannelID]
		if ch == nil {
			return nil, nil, &mixer.InvalidChannelError{ChannelID: s.change.ChannelID, DeviceID: s.change.DeviceID}
		}
		if err := s.target.Validate(ch, s.d.state.Device.Capabilities); err != nil {
			return nil, nil, err
		}
		if _, err := s.target.Apply(ch.Clone(), s.change.Value); err != nil {
			return nil, nil, err
		}
	}

	now := time.Now().UTC()
	applied := make([]mixer.ParameterChange, 0, len(steps))
	actions := make(map[string][]action)
	for _, s := range steps {
		ch := s.d.state.Channels[s.change.ChannelID]
		value, err := s.target.Apply(ch, s.change.Value)
		if err != nil {
			// Unreachable after the dry run above.
			return nil, nil, err
		}
		c := s.change
		c.Value = value
		c.Timestamp = now
		applied = append(applied, c)
		if a := actionFor(s.target, c.ChannelID, ch); a != nil {
			actions[c.DeviceID] = append(actions[c.DeviceID], a)
		}
	}
	for _, d := range devices {
		d.publish()
	}

	if len(actions) == 0 {
		return applied, nil, nil
	}
	ids := make([]string, 0, len(actions))
	for _, d := range devices {
		if _, ok := actions[d.id()]; ok {
			ids = append(ids, d.id())
		}
	}
	outcomes := m.registry.DispatchTo(ctx, ids, registry.Op{
		Name: "apply",
		Fn: func(ctx context.Context, p board.Plugin) error {
			for _, a := range actions[p.ID()] {
				if err := a(ctx, p); err != nil {
					return err
				}
			}
			return nil
		},
	})
	return applied, outcomes, nil
}

// actionFor builds the plugin call that mirrors an applied target. The
// values are captured now so later steps of a batch do not leak in.
func actionFor(t mixer.Target, channelID string, ch *mixer.Channel) action {
	switch t.Kind {
	case mixer.TargetFader:
		v := ch.Fader
		return func(ctx context.Context, p board.Plugin) error { return p.SetFader(ctx, channelID, v) }
	case mixer.TargetMute:
		v := ch.Mute
		return func(ctx context.Context, p board.Plugin) error { return p.SetMute(ctx, channelID, v) }
	case mixer.TargetSolo:
		v := ch.Solo
		return func(ctx context.Context, p board.Plugin) error { return p.SetSolo(ctx, channelID, v) }
	case mixer.TargetPan:
		v := ch.Pan
		return func(ctx context.Context, p board.Plugin) error { return p.SetPan(ctx, channelID, v) }
	case mixer.TargetName:
		v := ch.Name
		return func(ctx context.Context, p board.Plugin) error { return p.SetChannelName(ctx, channelID, v) }
	case mixer.TargetColor:
		v := ch.Color
		return func(ctx context.Context, p board.Plugin) error { return p.SetChannelColor(ctx, channelID, v) }
	case mixer.TargetMainAssign:
		v := ch.AssignedToMain
		return func(ctx context.Context, p board.Plugin) error { return p.SetMainAssign(ctx, channelID, v) }
	case mixer.TargetDCA:
		n, v := t.Index, ch.DCAGroups[t.Index]
		return func(ctx context.Context, p board.Plugin) error { return p.SetDCAAssign(ctx, channelID, n, v) }
	case mixer.TargetEQEnabled:
		v := ch.EQ.Enabled
		return func(ctx context.Context, p board.Plugin) error { return p.SetEQEnabled(ctx, channelID, v) }
	case mixer.TargetEQBand:
		n, v := t.Index, ch.EQ.Bands[t.Index]
		return func(ctx context.Context, p board.Plugin) error { return p.SetEQBand(ctx, channelID, n, v) }
	case mixer.TargetCompressor:
		v := ch.Compressor
		return func(ctx context.Context, p board.Plugin) error { return p.SetCompressor(ctx, channelID, v) }
	case mixer.TargetGate:
		v := ch.Gate
		return func(ctx context.Context, p board.Plugin) error { return p.SetGate(ctx, channelID, v) }
	case mixer.TargetSend:
		s := ch.Send(t.SendID)
		if s == nil {
			return nil
		}
		send, target := *s, t.SendID
		switch t.Field {
		case "level":
			return func(ctx context.Context, p board.Plugin) error { return p.SetSendLevel(ctx, channelID, target, send.Level) }
		case "pan":
			return func(ctx context.Context, p board.Plugin) error { return p.SetSendPan(ctx, channelID, target, send.Pan) }
		case "pre_fader":
			return func(ctx context.Context, p board.Plugin) error {
				return p.SetSendPrePost(ctx, channelID, target, send.PreFader)
			}
		}
	}
	// Mute groups and send enable exist only in canonical state.
	return nil
}
