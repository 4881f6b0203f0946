package state

import (
	"context"
	"sync"

	"github.com/nerrad567/gray-logic-mixer/internal/board"
	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
	"github.com/nerrad567/gray-logic-mixer/internal/registry"
)

// handlers binds the plugin callbacks for one device. Hardware changes
// update canonical state but are never dispatched back to the console.
func (m *Manager) handlers(id string) board.Handlers {
	return board.Handlers{
		OnParameter: func(c mixer.ParameterChange) { m.hardwareChange(id, c) },
		OnMeters: func(u mixer.MeterUpdate) {
			if d, err := m.device(id); err == nil {
				u.DeviceID = id
				d.meters.Store(&u)
			}
		},
		OnStatus: func(_ string, status mixer.ConnectionStatus, err error) {
			// Runs on arbitrary goroutines, including inside a dispatch
			// that holds the device lock: it must stay lock-free.
			d, derr := m.device(id)
			if derr != nil {
				return
			}
			d.refreshStatus()
			if err != nil {
				m.logger.Warn("device status changed", "device", id, "status", status, "error", err)
			} else {
				m.logger.Debug("device status changed", "device", id, "status", status)
			}
			info := d.plugin.DeviceInfo()
			m.notify(func(l Listener) { l.DeviceStatusChanged(info, err) })
		},
	}
}

func (m *Manager) hardwareChange(id string, c mixer.ParameterChange) {
	d, err := m.device(id)
	if err != nil {
		return
	}
	target, err := mixer.ParsePath(c.Parameter)
	if err != nil {
		m.logger.Warn("hardware reported unknown parameter", "device", id, "parameter", c.Parameter)
		return
	}

	d.mu.Lock()
	ch := d.state.Channels[c.ChannelID]
	var value any
	if ch != nil {
		if err = target.Validate(ch, d.state.Device.Capabilities); err == nil {
			value, err = target.Apply(ch, c.Value)
		}
	}
	if ch != nil && err == nil {
		d.publish()
	}
	d.mu.Unlock()

	if ch == nil || err != nil {
		m.logger.Debug("ignoring hardware change", "device", id, "channel", c.ChannelID, "parameter", c.Parameter, "error", err)
		return
	}
	c.DeviceID = id
	c.Value = value
	c.Source = mixer.SourceHardware
	m.notify(func(l Listener) { l.ParametersChanged([]mixer.ParameterChange{c}) })
}

// CollectMeters polls every connected meter-capable device and returns the
// latest readings ordered by device id.
func (m *Manager) CollectMeters(ctx context.Context) ([]mixer.MeterUpdate, error) {
	var ids []string
	for _, d := range m.sortedDevices() {
		info := d.plugin.DeviceInfo()
		if info.Capabilities.SupportsMeters && info.Status == mixer.StatusConnected {
			ids = append(ids, d.id())
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var mu sync.Mutex
	got := make(map[string]mixer.MeterUpdate, len(ids))
	outcomes := m.registry.DispatchTo(ctx, ids, registry.Op{
		Name: "meters",
		Fn: func(ctx context.Context, p board.Plugin) error {
			u, err := p.Meters(ctx)
			if err != nil {
				return err
			}
			u.DeviceID = p.ID()
			mu.Lock()
			got[p.ID()] = u
			mu.Unlock()
			return nil
		},
	})

	out := make([]mixer.MeterUpdate, 0, len(got))
	for _, id := range ids {
		u, ok := got[id]
		if !ok || len(u.Levels) == 0 {
			continue
		}
		if d, err := m.device(id); err == nil {
			d.meters.Store(&u)
		}
		out = append(out, u)
	}
	return out, outcomes.Err()
}
