package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-mixer/internal/board"
	"github.com/nerrad567/gray-logic-mixer/internal/board/allenheath"
	"github.com/nerrad567/gray-logic-mixer/internal/board/focusrite"
	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
	"github.com/nerrad567/gray-logic-mixer/internal/registry"
	"github.com/nerrad567/gray-logic-mixer/internal/transport/transporttest"
)

type recordingListener struct {
	changes chan []mixer.ParameterChange
	states  chan []*mixer.MixerState
	status  chan mixer.DeviceInfo
}

func newRecordingListener() *recordingListener {
	return &recordingListener{
		changes: make(chan []mixer.ParameterChange, 64),
		states:  make(chan []*mixer.MixerState, 64),
		status:  make(chan mixer.DeviceInfo, 64),
	}
}

func (l *recordingListener) ParametersChanged(c []mixer.ParameterChange) {
	select {
	case l.changes <- c:
	default:
	}
}

func (l *recordingListener) StateChanged(s []*mixer.MixerState) {
	select {
	case l.states <- s:
	default:
	}
}

func (l *recordingListener) DeviceStatusChanged(info mixer.DeviceInfo, _ error) {
	select {
	case l.status <- info:
	default:
	}
}

type fixture struct {
	m        *Manager
	dialer   *transporttest.Dialer
	listener *recordingListener
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m := New(Config{SettleDelay: 10 * time.Millisecond})
	l := newRecordingListener()
	m.AddListener(l)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return &fixture{m: m, dialer: transporttest.NewDialer(), listener: l}
}

func (f *fixture) connect(t *testing.T, model board.Model, id string) *transporttest.MockPort {
	t.Helper()
	conn := "midi://" + id
	b, err := board.New(model, board.Config{ID: id, Connection: conn, Dial: f.dialer.Dial})
	require.NoError(t, err)
	_, err = f.m.ConnectDevice(context.Background(), b)
	require.NoError(t, err)
	port := f.dialer.Port(conn)
	port.ClearSent()
	return port
}

func (f *fixture) channel(t *testing.T, key string) *mixer.Channel {
	t.Helper()
	ch, err := f.m.Channel(key)
	require.NoError(t, err)
	return ch
}

func TestEndToEndFader(t *testing.T) {
	f := newFixture(t)
	port := f.connect(t, allenheath.Qu24(), "qu")

	applied, err := f.m.SetFader(context.Background(), "input_1", 0.5)
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, "qu", applied[0].DeviceID)
	assert.Equal(t, 0.5, applied[0].Value)

	assert.Equal(t, [][]byte{
		{0xB0, 0x63, 0x00},
		{0xB0, 0x62, 0x17},
		{0xB0, 0x06, 64},
		{0xB0, 0x26, 0x07},
	}, port.Sent())
	assert.Equal(t, 0.5, f.channel(t, "qu:input_1").Fader)
}

func TestClampBeforeDispatch(t *testing.T) {
	f := newFixture(t)
	port := f.connect(t, allenheath.Qu24(), "qu")
	ctx := context.Background()

	applied, err := f.m.SetFader(ctx, "input_1", 1.5)
	require.NoError(t, err)
	assert.Equal(t, 1.0, applied[0].Value)
	assert.Equal(t, byte(127), port.Sent()[2][2])

	port.ClearSent()
	applied, err = f.m.SetPan(ctx, "input_1", -3)
	require.NoError(t, err)
	assert.Equal(t, -1.0, applied[0].Value)
	assert.Equal(t, byte(0), port.Sent()[2][2])

	ch := f.channel(t, "input_1")
	assert.Equal(t, 1.0, ch.Fader)
	assert.Equal(t, -1.0, ch.Pan)
}

func TestApplyIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.connect(t, allenheath.Qu24(), "qu")
	ctx := context.Background()
	change := mixer.ParameterChange{ChannelID: "qu:input_4", Parameter: "eq.bands.2.gain", Value: 6.5}

	_, err := f.m.ApplyParameterChange(ctx, change)
	require.NoError(t, err)
	once, err := f.m.State("qu")
	require.NoError(t, err)

	_, err = f.m.ApplyParameterChange(ctx, change)
	require.NoError(t, err)
	twice, err := f.m.State("qu")
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Equal(t, 6.5, twice.Channels["input_4"].EQ.Bands[2].Gain)
}

func TestRejectedChangesHaveNoEffect(t *testing.T) {
	f := newFixture(t)
	port := f.connect(t, allenheath.Qu24(), "qu")
	ctx := context.Background()
	before, err := f.m.State("qu")
	require.NoError(t, err)

	tests := []struct {
		name   string
		change mixer.ParameterChange
		want   error
	}{
		{"unknown path", mixer.ParameterChange{ChannelID: "input_1", Parameter: "reverb.size", Value: 1.0}, mixer.ErrParameterPath},
		{"band out of range", mixer.ParameterChange{ChannelID: "input_1", Parameter: "eq.bands.4.gain", Value: 1.0}, mixer.ErrParameterPath},
		{"dca out of range", mixer.ParameterChange{ChannelID: "input_1", Parameter: "dca.5", Value: true}, mixer.ErrParameterPath},
		{"unknown send", mixer.ParameterChange{ChannelID: "input_1", Parameter: "sends.bus_1.level", Value: 1.0}, mixer.ErrParameterPath},
		{"wrong type", mixer.ParameterChange{ChannelID: "input_1", Parameter: "fader", Value: "loud"}, mixer.ErrInvalidValue},
		{"unknown channel", mixer.ParameterChange{ChannelID: "qu:input_99", Parameter: "fader", Value: 1.0}, mixer.ErrInvalidChannel},
		{"unknown device", mixer.ParameterChange{ChannelID: "x32:input_1", Parameter: "fader", Value: 1.0}, mixer.ErrDeviceNotFound},
		{"no device has it", mixer.ParameterChange{ChannelID: "bus_3", Parameter: "fader", Value: 1.0}, mixer.ErrChannelNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.m.ApplyParameterChange(ctx, tt.change)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	after, err := f.m.State("qu")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, port.Sent())
}

func TestBatchIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	port := f.connect(t, allenheath.Qu24(), "qu")

	_, err := f.m.ApplyBatch(context.Background(), []mixer.ParameterChange{
		{ChannelID: "input_1", Parameter: "fader", Value: 0.3},
		{ChannelID: "input_2", Parameter: "eq.bands.1.type", Value: "notch"},
	})
	assert.ErrorIs(t, err, mixer.ErrInvalidValue)
	assert.Equal(t, 0.0, f.channel(t, "input_1").Fader)
	assert.Empty(t, port.Sent())

	applied, err := f.m.ApplyBatch(context.Background(), []mixer.ParameterChange{
		{ChannelID: "input_1", Parameter: "fader", Value: 0.3},
		{ChannelID: "input_2", Parameter: "mute", Value: true},
		{ChannelID: "input_2", Parameter: "mute_group.1", Value: true},
	})
	require.NoError(t, err)
	assert.Len(t, applied, 3)
	// Two writes reach the console; mute groups are canonical only.
	assert.Len(t, port.Sent(), 4+1)
	assert.True(t, f.channel(t, "input_2").MuteGroups[1])
}

func TestChannelKeysAcrossDevices(t *testing.T) {
	f := newFixture(t)
	qu := f.connect(t, allenheath.Qu24(), "qu")
	c8 := f.connect(t, focusrite.Command8{}, "c8")
	ctx := context.Background()

	applied, err := f.m.SetMute(ctx, "input_1", true)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, "c8", applied[0].DeviceID)
	assert.Equal(t, "qu", applied[1].DeviceID)
	assert.Len(t, qu.Sent(), 1)
	assert.Len(t, c8.Sent(), 1)

	applied, err = f.m.SetFader(ctx, "c8:input_1", 0.7)
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, 0.7, f.channel(t, "c8:input_1").Fader)
	assert.Equal(t, 0.0, f.channel(t, "qu:input_1").Fader)

	applied, err = f.m.SetFader(ctx, "aux_1", 0.4)
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, "qu", applied[0].DeviceID)

	_, err = f.m.SetFader(ctx, "c8:aux_1", 0.4)
	assert.ErrorIs(t, err, mixer.ErrInvalidChannel)

	assert.Len(t, f.m.Devices(), 2)
	assert.Len(t, f.m.States(), 2)
}

func TestHardwareChangesAreNotEchoed(t *testing.T) {
	f := newFixture(t)
	port := f.connect(t, allenheath.Qu24(), "qu")

	port.SimulateReceive(
		[]byte{0xB0, 0x63, 0x02},
		[]byte{0xB0, 0x62, 0x17},
		[]byte{0xB0, 0x06, 127},
		[]byte{0xB0, 0x26, 0x07},
	)

	select {
	case changes := <-f.listener.changes:
		require.Len(t, changes, 1)
		c := changes[0]
		assert.Equal(t, "qu", c.DeviceID)
		assert.Equal(t, "input_3", c.ChannelID)
		assert.Equal(t, mixer.SourceHardware, c.Source)
		assert.Equal(t, 1.0, c.Value)
	case <-time.After(time.Second):
		t.Fatal("hardware change not reported")
	}
	assert.Equal(t, 1.0, f.channel(t, "qu:input_3").Fader)
	assert.Empty(t, port.Sent())
}

func TestListenerSeesOrigin(t *testing.T) {
	f := newFixture(t)
	f.connect(t, allenheath.Qu24(), "qu")

	_, err := f.m.ApplyParameterChange(context.Background(), mixer.ParameterChange{
		ChannelID: "input_1", Parameter: "mute", Value: true, Source: mixer.SourceWebSocket, Origin: "obs-1",
	})
	require.NoError(t, err)

	changes := <-f.listener.changes
	require.Len(t, changes, 1)
	assert.Equal(t, "obs-1", changes[0].Origin)
	assert.Equal(t, mixer.SourceWebSocket, changes[0].Source)
	assert.False(t, changes[0].Timestamp.IsZero())
}

func TestRecallScene(t *testing.T) {
	f := newFixture(t)
	qu := f.connect(t, allenheath.Qu24(), "qu")
	c8 := f.connect(t, focusrite.Command8{}, "c8")
	drain(f.listener.states)

	require.NoError(t, f.m.RecallScene(context.Background(), 5))

	sent := qu.Sent()
	require.GreaterOrEqual(t, len(sent), 2)
	assert.Equal(t, []byte{0xB0, 0x00, 0x00}, sent[0])
	assert.Equal(t, []byte{0xC0, 0x04}, sent[1])
	assert.Empty(t, c8.Sent(), "a console without scenes ignores the recall")

	st, err := f.m.State("qu")
	require.NoError(t, err)
	require.NotNil(t, st.CurrentScene)
	assert.Equal(t, 5, *st.CurrentScene)

	select {
	case states := <-f.listener.states:
		assert.Len(t, states, 2)
	default:
		t.Fatal("recall did not broadcast state")
	}

	err = f.m.RecallScene(context.Background(), 101)
	assert.ErrorIs(t, err, mixer.ErrRange)
}

func TestResyncKeepsCanonicalOnlyFields(t *testing.T) {
	f := newFixture(t)
	f.connect(t, allenheath.Qu24(), "qu")
	ctx := context.Background()

	_, err := f.m.ApplyBatch(ctx, []mixer.ParameterChange{
		{DeviceID: "qu", ChannelID: "input_1", Parameter: "mute_group.1", Value: true},
		{DeviceID: "qu", ChannelID: "input_1", Parameter: "sends.aux_1.enabled", Value: false},
		{DeviceID: "qu", ChannelID: "input_2", Parameter: "sends.aux_2.level", Value: 0.5},
		{DeviceID: "qu", ChannelID: "input_2", Parameter: "sends.aux_2.enabled", Value: false},
	})
	require.NoError(t, err)

	check := func(t *testing.T) {
		t.Helper()
		in1 := f.channel(t, "qu:input_1")
		assert.True(t, in1.MuteGroups[1])
		require.NotNil(t, in1.Send("aux_1"))
		assert.False(t, in1.Send("aux_1").Enabled)

		in2 := f.channel(t, "qu:input_2")
		require.NotNil(t, in2.Send("aux_2"))
		assert.False(t, in2.Send("aux_2").Enabled)
		assert.Equal(t, 0.5, in2.Send("aux_2").Level)
	}

	require.NoError(t, f.m.ReconnectDevice(ctx, "qu"))
	check(t)

	require.NoError(t, f.m.RecallScene(ctx, 2))
	check(t)
}

func TestStoreScene(t *testing.T) {
	f := newFixture(t)
	f.connect(t, allenheath.Qu24(), "qu")
	ctx := context.Background()

	scenes, err := f.m.StoreScene(ctx, 3, "Chorus")
	require.NoError(t, err)
	require.Len(t, scenes, 1)
	assert.Equal(t, 3, scenes[0].Number)

	lists, err := f.m.Scenes(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Chorus", lists["qu"][2].Name)
	assert.Len(t, f.m.Snapshots(), 1)
}

func TestSnapshotRecallWithScope(t *testing.T) {
	f := newFixture(t)
	f.connect(t, allenheath.Qu24(), "qu")
	ctx := context.Background()

	_, err := f.m.ApplyBatch(ctx, []mixer.ParameterChange{
		{ChannelID: "input_1", Parameter: "fader", Value: 0.2},
		{ChannelID: "input_1", Parameter: "mute", Value: true},
		{ChannelID: "input_1", Parameter: "sends.aux_1.level", Value: 0.6},
	})
	require.NoError(t, err)
	scenes, err := f.m.CaptureSnapshot("qu", "Soundcheck", "")
	require.NoError(t, err)
	require.Len(t, scenes, 1)
	id := scenes[0].ID

	_, err = f.m.ApplyBatch(ctx, []mixer.ParameterChange{
		{ChannelID: "input_1", Parameter: "fader", Value: 0.9},
		{ChannelID: "input_1", Parameter: "mute", Value: false},
		{ChannelID: "input_1", Parameter: "sends.aux_1.level", Value: 0.1},
	})
	require.NoError(t, err)

	applied, err := f.m.RecallSnapshot(ctx, id, mixer.SceneRecallScope{Faders: true})
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, mixer.SourceScene, applied[0].Source)
	ch := f.channel(t, "input_1")
	assert.Equal(t, 0.2, ch.Fader)
	assert.False(t, ch.Mute)

	_, err = f.m.RecallSnapshot(ctx, id, mixer.FullScope())
	require.NoError(t, err)
	ch = f.channel(t, "input_1")
	assert.True(t, ch.Mute)
	assert.Equal(t, 0.6, ch.Send("aux_1").Level)

	applied, err = f.m.RecallSnapshot(ctx, id, mixer.FullScope())
	require.NoError(t, err)
	assert.Empty(t, applied, "recalling an unchanged snapshot changes nothing")

	require.NoError(t, f.m.DeleteSnapshot(id))
	_, err = f.m.RecallSnapshot(ctx, id, mixer.FullScope())
	assert.ErrorIs(t, err, mixer.ErrSceneNotFound)
}

func TestConnectFailureReleasesPort(t *testing.T) {
	f := newFixture(t)
	f.dialer.Fail("midi://qu", errors.New("port busy"))
	b, err := board.New(allenheath.Qu24(), board.Config{ID: "qu", Connection: "midi://qu", Dial: f.dialer.Dial})
	require.NoError(t, err)

	_, err = f.m.ConnectDevice(context.Background(), b)
	assert.ErrorIs(t, err, mixer.ErrConnection)
	assert.Empty(t, f.m.Devices())
	assert.Equal(t, 0, f.m.Registry().Len())
}

func TestOnePluginPerPort(t *testing.T) {
	f := newFixture(t)
	f.connect(t, allenheath.Qu24(), "qu")
	b, err := board.New(focusrite.Command8{}, board.Config{ID: "other", Connection: "midi://qu", Dial: f.dialer.Dial})
	require.NoError(t, err)

	_, err = f.m.ConnectDevice(context.Background(), b)
	assert.ErrorIs(t, err, registry.ErrPortInUse)
}

func TestDisconnectDevice(t *testing.T) {
	f := newFixture(t)
	port := f.connect(t, allenheath.Qu24(), "qu")

	require.NoError(t, f.m.DisconnectDevice(context.Background(), "qu"))
	assert.True(t, port.IsClosed())
	assert.Empty(t, f.m.Devices())
	_, err := f.m.State("qu")
	assert.ErrorIs(t, err, mixer.ErrDeviceNotFound)
	assert.ErrorIs(t, f.m.DisconnectDevice(context.Background(), "qu"), mixer.ErrDeviceNotFound)
}

func TestSendFailureUpdatesStatusNotCaller(t *testing.T) {
	f := newFixture(t)
	port := f.connect(t, allenheath.Qu24(), "qu")
	drainInfo(f.listener.status)
	port.SetSendError(transporttest.ErrMockSend)

	_, err := f.m.SetFader(context.Background(), "input_1", 0.8)
	require.NoError(t, err)

	select {
	case info := <-f.listener.status:
		assert.Equal(t, mixer.StatusError, info.Status)
	case <-time.After(time.Second):
		t.Fatal("no status change")
	}
	st, err := f.m.State("qu")
	require.NoError(t, err)
	assert.Equal(t, mixer.StatusError, st.Device.Status)
	assert.Equal(t, 0.8, st.Channels["input_1"].Fader)

	// Still accepted while in the error state.
	_, err = f.m.SetFader(context.Background(), "input_1", 0.1)
	require.NoError(t, err)
	assert.Equal(t, 0.1, f.channel(t, "input_1").Fader)
}

func TestCollectMeters(t *testing.T) {
	f := newFixture(t)
	port := f.connect(t, allenheath.Qu24(), "qu")
	f.connect(t, focusrite.Command8{}, "c8")

	port.SimulateReceive([]byte{0xF0, 0x00, 0x00, 0x1A, 0x50, 0x11, 0x01, 0x00, 0x00, 0x13, 0x00, 127, 0xF7})

	require.Eventually(t, func() bool {
		updates, err := f.m.CollectMeters(context.Background())
		return err == nil && len(updates) == 1 && updates[0].Levels["input_1"] == 1
	}, time.Second, 10*time.Millisecond)

	st, err := f.m.State("qu")
	require.NoError(t, err)
	assert.Equal(t, 1.0, st.Meters["input_1"])
	assert.Equal(t, 1.0, st.Channels["input_1"].MeterLevel)
}

func TestConcurrentReadsAndWrites(t *testing.T) {
	f := newFixture(t)
	f.connect(t, allenheath.Qu24(), "qu")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := range 25 {
				_, _ = f.m.SetFader(ctx, "input_1", float64(i*25+j)/100)
			}
		}()
		go func() {
			defer wg.Done()
			for range 25 {
				for _, st := range f.m.Snapshot() {
					_ = st.Channels["input_1"].Fader
				}
			}
		}()
	}
	wg.Wait()
	fader := f.channel(t, "input_1").Fader
	assert.GreaterOrEqual(t, fader, 0.0)
	assert.LessOrEqual(t, fader, 1.0)
}

func drain(ch chan []*mixer.MixerState) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func drainInfo(ch chan mixer.DeviceInfo) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
