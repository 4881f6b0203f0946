package state

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-mixer/internal/board"
	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
	"github.com/nerrad567/gray-logic-mixer/internal/registry"
)

// RecallScene recalls a hardware scene on every device, waits the settle
// delay and then re-syncs canonical state from each plugin. Listeners get
// the full state afterwards. Devices that rejected the recall are reported
// in the returned error; the others are still re-synced.
func (m *Manager) RecallScene(ctx context.Context, number int) error {
	outcomes := m.registry.Dispatch(ctx, registry.Op{
		Name: "recall_scene",
		Fn: func(ctx context.Context, p board.Plugin) error {
			return p.RecallScene(ctx, number)
		},
	})

	timer := time.NewTimer(m.cfg.SettleDelay)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	}

	for _, d := range m.sortedDevices() {
		m.resync(ctx, d)
	}
	m.logger.Info("scene recalled", "scene", number, "devices", len(outcomes), "failed", len(outcomes.Failed()))
	m.notify(func(l Listener) { l.StateChanged(m.Snapshot()) })
	if err := outcomes.Err(); err != nil {
		return fmt.Errorf("recall scene %d: %w", number, err)
	}
	return nil
}

// StoreScene stores the current console state into a hardware scene slot
// on every device and keeps an in-memory snapshot per device.
func (m *Manager) StoreScene(ctx context.Context, number int, name string) ([]*mixer.Scene, error) {
	outcomes := m.registry.Dispatch(ctx, registry.Op{
		Name: "store_scene",
		Fn: func(ctx context.Context, p board.Plugin) error {
			return p.StoreScene(ctx, number, name)
		},
	})
	failed := make(map[string]bool)
	for _, oc := range outcomes.Failed() {
		failed[oc.DeviceID] = true
	}

	var scenes []*mixer.Scene
	for _, st := range m.Snapshot() {
		if failed[st.Device.ID] {
			continue
		}
		sc := mixer.NewScene(uuid.NewString(), st, number, name, "")
		m.putSnapshot(sc)
		scenes = append(scenes, sc)
	}
	if err := outcomes.Err(); err != nil {
		return scenes, fmt.Errorf("store scene %d: %w", number, err)
	}
	return scenes, nil
}

// Scenes returns the hardware scene list of every device keyed by id.
func (m *Manager) Scenes(ctx context.Context) (map[string][]mixer.SceneSummary, error) {
	var mu sync.Mutex
	out := make(map[string][]mixer.SceneSummary)
	outcomes := m.registry.Dispatch(ctx, registry.Op{
		Name: "scene_list",
		Fn: func(ctx context.Context, p board.Plugin) error {
			list, err := p.SceneList(ctx)
			if err != nil {
				return err
			}
			mu.Lock()
			out[p.ID()] = list
			mu.Unlock()
			return nil
		},
	})
	return out, outcomes.Err()
}

// CaptureSnapshot captures an in-memory snapshot of one device, or of
// every device when deviceID is empty.
func (m *Manager) CaptureSnapshot(deviceID, name, description string) ([]*mixer.Scene, error) {
	var states []*mixer.MixerState
	if deviceID != "" {
		d, err := m.device(deviceID)
		if err != nil {
			return nil, err
		}
		states = []*mixer.MixerState{d.published.Load()}
	} else {
		states = m.Snapshot()
	}
	scenes := make([]*mixer.Scene, 0, len(states))
	for _, st := range states {
		sc := mixer.NewScene(uuid.NewString(), st, 0, name, description)
		m.putSnapshot(sc)
		scenes = append(scenes, sc)
	}
	m.logger.Info("snapshot captured", "name", name, "devices", len(scenes))
	return scenes, nil
}

func (m *Manager) putSnapshot(sc *mixer.Scene) {
	m.snapshotsMu.Lock()
	m.snapshots[sc.ID] = sc
	m.snapshotsMu.Unlock()
}

// Snapshots returns the in-memory snapshots ordered by creation time.
func (m *Manager) Snapshots() []*mixer.Scene {
	m.snapshotsMu.RLock()
	out := slices.Collect(maps.Values(m.snapshots))
	m.snapshotsMu.RUnlock()
	slices.SortFunc(out, func(a, b *mixer.Scene) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.DeviceID, b.DeviceID)
	})
	return out
}

// DeleteSnapshot removes an in-memory snapshot.
func (m *Manager) DeleteSnapshot(id string) error {
	m.snapshotsMu.Lock()
	defer m.snapshotsMu.Unlock()
	if _, ok := m.snapshots[id]; !ok {
		return fmt.Errorf("%w: %s", mixer.ErrSceneNotFound, id)
	}
	delete(m.snapshots, id)
	return nil
}

// RecallSnapshot re-applies the parts of a snapshot selected by scope.
// Only parameters that differ from the current state are changed; the
// changes are applied as one batch with source "scene".
func (m *Manager) RecallSnapshot(ctx context.Context, id string, scope mixer.SceneRecallScope) ([]mixer.ParameterChange, error) {
	m.snapshotsMu.RLock()
	sc, ok := m.snapshots[id]
	m.snapshotsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", mixer.ErrSceneNotFound, id)
	}
	d, err := m.device(sc.DeviceID)
	if err != nil {
		return nil, err
	}

	current := d.published.Load()
	var changes []mixer.ParameterChange
	for _, chID := range current.ChannelIDs() {
		want, ok := sc.Channels[chID]
		if !ok {
			continue
		}
		for _, c := range diffChannel(current.Channels[chID], want, scope) {
			c.DeviceID = sc.DeviceID
			c.ChannelID = chID
			c.Source = mixer.SourceScene
			changes = append(changes, c)
		}
	}
	if len(changes) == 0 {
		return nil, nil
	}
	m.logger.Info("snapshot recalled", "snapshot", id, "device", sc.DeviceID, "changes", len(changes))
	return m.ApplyBatch(ctx, changes)
}

// diffChannel lists the parameter changes that turn have into want for the
// fields selected by scope.
func diffChannel(have, want *mixer.Channel, scope mixer.SceneRecallScope) []mixer.ParameterChange {
	var out []mixer.ParameterChange
	add := func(path string, differs bool, v any) {
		if differs {
			out = append(out, mixer.ParameterChange{Parameter: path, Value: v})
		}
	}

	if scope.Faders {
		add("fader", have.Fader != want.Fader, want.Fader)
		add("pan", have.Pan != want.Pan, want.Pan)
	}
	if scope.Mutes {
		add("mute", have.Mute != want.Mute, want.Mute)
	}
	if scope.Names {
		add("name", have.Name != want.Name, want.Name)
		add("color", have.Color != want.Color, int(want.Color))
	}
	if scope.Routing {
		add("assigned_to_main", have.AssignedToMain != want.AssignedToMain, want.AssignedToMain)
		for _, n := range groupNumbers(have.DCAGroups, want.DCAGroups) {
			add("dca."+strconv.Itoa(n), have.DCAGroups[n] != want.DCAGroups[n], want.DCAGroups[n])
		}
		for _, n := range groupNumbers(have.MuteGroups, want.MuteGroups) {
			add("mute_group."+strconv.Itoa(n), have.MuteGroups[n] != want.MuteGroups[n], want.MuteGroups[n])
		}
		for _, ws := range want.Sends {
			hs := have.Send(ws.TargetID)
			if hs == nil {
				hs = &mixer.Send{TargetID: ws.TargetID, Enabled: true}
			}
			prefix := "sends." + ws.TargetID + "."
			add(prefix+"level", hs.Level != ws.Level, ws.Level)
			add(prefix+"pan", hs.Pan != ws.Pan, ws.Pan)
			add(prefix+"pre_fader", hs.PreFader != ws.PreFader, ws.PreFader)
			add(prefix+"enabled", hs.Enabled != ws.Enabled, ws.Enabled)
		}
	}
	if scope.EQ {
		add("eq.enabled", have.EQ.Enabled != want.EQ.Enabled, want.EQ.Enabled)
		for i := range min(len(have.EQ.Bands), len(want.EQ.Bands)) {
			hb, wb := have.EQ.Bands[i], want.EQ.Bands[i]
			prefix := "eq.bands." + strconv.Itoa(i) + "."
			add(prefix+"enabled", hb.Enabled != wb.Enabled, wb.Enabled)
			add(prefix+"type", hb.Type != wb.Type, string(wb.Type))
			add(prefix+"frequency", hb.Frequency != wb.Frequency, wb.Frequency)
			add(prefix+"gain", hb.Gain != wb.Gain, wb.Gain)
			add(prefix+"q", hb.Q != wb.Q, wb.Q)
		}
	}
	if scope.Dynamics {
		hc, wc := have.Compressor, want.Compressor
		add("compressor.enabled", hc.Enabled != wc.Enabled, wc.Enabled)
		add("compressor.type", hc.Type != wc.Type, wc.Type.String())
		add("compressor.threshold", hc.Threshold != wc.Threshold, wc.Threshold)
		add("compressor.ratio", hc.Ratio != wc.Ratio, wc.Ratio)
		add("compressor.attack", hc.Attack != wc.Attack, wc.Attack)
		add("compressor.release", hc.Release != wc.Release, wc.Release)
		add("compressor.knee", hc.Knee != wc.Knee, wc.Knee)
		add("compressor.makeup_gain", hc.MakeupGain != wc.MakeupGain, wc.MakeupGain)
		hg, wg := have.Gate, want.Gate
		add("gate.enabled", hg.Enabled != wg.Enabled, wg.Enabled)
		add("gate.threshold", hg.Threshold != wg.Threshold, wg.Threshold)
		add("gate.range", hg.Range != wg.Range, wg.Range)
		add("gate.attack", hg.Attack != wg.Attack, wg.Attack)
		add("gate.hold", hg.Hold != wg.Hold, wg.Hold)
		add("gate.release", hg.Release != wg.Release, wg.Release)
	}
	return out
}

func groupNumbers(a, b map[int]bool) []int {
	ns := slices.Collect(maps.Keys(a))
	for n := range b {
		if !slices.Contains(ns, n) {
			ns = append(ns, n)
		}
	}
	slices.Sort(ns)
	return ns
}
