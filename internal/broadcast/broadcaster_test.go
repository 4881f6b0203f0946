package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-mixer/internal/board"
	"github.com/nerrad567/gray-logic-mixer/internal/board/allenheath"
	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
	"github.com/nerrad567/gray-logic-mixer/internal/state"
	"github.com/nerrad567/gray-logic-mixer/internal/transport/transporttest"
)

type fakeObserver struct {
	id string

	mu     sync.Mutex
	events []Event
	err    error
	closed bool
}

func (o *fakeObserver) ID() string { return o.id }

func (o *fakeObserver) Send(ev Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.events = append(o.events, ev)
	return nil
}

func (o *fakeObserver) Close() error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	return nil
}

func (o *fakeObserver) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *fakeObserver) fail(err error) {
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()
}

func (o *fakeObserver) received(types ...EventType) []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []Event
	for _, ev := range o.events {
		for _, t := range types {
			if ev.Type == t {
				out = append(out, ev)
			}
		}
	}
	return out
}

type staticSource []*mixer.MixerState

func (s staticSource) Snapshot() []*mixer.MixerState { return s }

func connect(t *testing.T, b *Broadcaster, id string, channels ...string) *fakeObserver {
	t.Helper()
	o := &fakeObserver{id: id}
	require.NoError(t, b.Connect(context.Background(), o, channels...))
	return o
}

func change(device, channel string, value float64) mixer.ParameterChange {
	return mixer.ParameterChange{DeviceID: device, ChannelID: channel, Parameter: "fader", Value: value, Source: mixer.SourceAPI}
}

func TestConnectSendsState(t *testing.T) {
	st := &mixer.MixerState{Device: mixer.DeviceInfo{ID: "qu"}}
	b := New(staticSource{st})

	o := connect(t, b, "a")
	events := o.received(EventState)
	require.Len(t, events, 1)
	assert.Equal(t, []*mixer.MixerState{st}, events[0].State)
	assert.Equal(t, 1, b.Count())

	err := b.Connect(context.Background(), &fakeObserver{id: "a"})
	assert.ErrorIs(t, err, ErrDuplicateObserver)

	broken := &fakeObserver{id: "b", err: errors.New("gone")}
	assert.Error(t, b.Connect(context.Background(), broken))
	assert.Equal(t, 1, b.Count())
}

// gatedSource blocks Snapshot until released.
type gatedSource struct {
	entered chan struct{}
	release chan struct{}
}

func (s *gatedSource) Snapshot() []*mixer.MixerState {
	close(s.entered)
	<-s.release
	return nil
}

func TestCatchUpStateComesFirst(t *testing.T) {
	src := &gatedSource{entered: make(chan struct{}), release: make(chan struct{})}
	b := New(src)
	o := &fakeObserver{id: "a"}

	connected := make(chan error, 1)
	go func() { connected <- b.Connect(context.Background(), o) }()
	<-src.entered

	delivered := make(chan struct{})
	go func() {
		b.BroadcastParameterChange(change("qu", "input_1", 0.5), "")
		close(delivered)
	}()

	select {
	case <-delivered:
		t.Fatal("parameter delivered before the catch-up state")
	case <-time.After(50 * time.Millisecond):
	}
	close(src.release)
	require.NoError(t, <-connected)
	<-delivered

	o.mu.Lock()
	defer o.mu.Unlock()
	require.Len(t, o.events, 2)
	assert.Equal(t, EventState, o.events[0].Type)
	assert.Equal(t, EventParameter, o.events[1].Type)
}

func TestFilteredObserver(t *testing.T) {
	b := New(nil)
	all := connect(t, b, "all")
	one := connect(t, b, "one", "input_1")
	scoped := connect(t, b, "scoped", "c8:input_2")

	b.BroadcastParameterChange(change("qu", "input_2", 0.5), "")
	b.BroadcastParameterChange(change("qu", "input_1", 0.7), "")
	b.BroadcastParameterChange(change("c8", "input_2", 0.1), "")
	b.BroadcastState(nil)

	assert.Len(t, all.received(EventParameter), 3)

	got := one.received(EventParameter)
	require.Len(t, got, 1)
	assert.Equal(t, "input_1", got[0].ChannelID)
	assert.Equal(t, 0.7, got[0].Value)
	assert.Len(t, one.received(EventState), 2, "catch-up and full-state broadcasts bypass the filter")

	got = scoped.received(EventParameter)
	require.Len(t, got, 1)
	assert.Equal(t, "c8", got[0].DeviceID)
}

func TestExcludeOrigin(t *testing.T) {
	b := New(nil)
	origin := connect(t, b, "origin")
	other := connect(t, b, "other")

	c := change("qu", "input_1", 0.3)
	c.Origin = "origin"
	b.ParametersChanged([]mixer.ParameterChange{c})

	assert.Empty(t, origin.received(EventParameter))
	assert.Len(t, other.received(EventParameter), 1)
}

func TestFailedObserverIsPruned(t *testing.T) {
	b := New(nil)
	a := connect(t, b, "a")
	bad := connect(t, b, "b")
	c := connect(t, b, "c")
	bad.fail(errors.New("broken pipe"))

	b.BroadcastParameterChange(change("qu", "input_1", 0.1), "")
	assert.Len(t, a.received(EventParameter), 1)
	assert.Len(t, c.received(EventParameter), 1)
	assert.Equal(t, 3, b.Count(), "marked, not yet pruned")

	b.BroadcastParameterChange(change("qu", "input_1", 0.2), "")
	assert.Equal(t, 2, b.Count())
	assert.True(t, bad.isClosed())
	assert.Len(t, a.received(EventParameter), 2)
	assert.Len(t, c.received(EventParameter), 2)
}

func TestBatchFiltering(t *testing.T) {
	b := New(nil)
	all := connect(t, b, "all")
	one := connect(t, b, "one", "input_1")
	none := connect(t, b, "none", "aux_9")

	b.BroadcastBatch([]mixer.ParameterChange{
		change("qu", "input_1", 0.1),
		change("qu", "input_2", 0.2),
	}, "")

	batches := all.received(EventBatch)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].Changes, 2)

	batches = one.received(EventBatch)
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Changes, 1)
	assert.Equal(t, "input_1", batches[0].Changes[0].ChannelID)

	assert.Empty(t, none.received(EventBatch))
}

func TestMetersFiltering(t *testing.T) {
	b := New(nil)
	all := connect(t, b, "all")
	one := connect(t, b, "one", "qu:input_1")

	b.BroadcastMeters([]mixer.MeterUpdate{
		{DeviceID: "qu", Levels: map[string]float64{"input_1": 0.5, "input_2": 0.25}},
		{DeviceID: "gld", Levels: map[string]float64{"input_1": 1}},
	})

	got := all.received(EventMeters)
	require.Len(t, got, 1)
	assert.Equal(t, map[string]float64{"qu:input_1": 0.5, "qu:input_2": 0.25, "gld:input_1": 1}, got[0].Levels)

	got = one.received(EventMeters)
	require.Len(t, got, 1)
	assert.Equal(t, map[string]float64{"qu:input_1": 0.5}, got[0].Levels)
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := New(nil)
	o := connect(t, b, "o")

	require.NoError(t, b.Subscribe("o", "input_3", "input_1"))
	subs, err := b.Subscriptions("o")
	require.NoError(t, err)
	assert.Equal(t, []string{"input_1", "input_3"}, subs)

	b.BroadcastParameterChange(change("qu", "input_2", 0.5), "")
	assert.Empty(t, o.received(EventParameter))

	require.NoError(t, b.Unsubscribe("o", "input_1"))
	b.BroadcastParameterChange(change("qu", "input_1", 0.5), "")
	assert.Empty(t, o.received(EventParameter))

	require.NoError(t, b.Unsubscribe("o"))
	b.BroadcastParameterChange(change("qu", "input_2", 0.5), "")
	assert.Len(t, o.received(EventParameter), 1)

	assert.ErrorIs(t, b.Subscribe("ghost", "input_1"), ErrUnknownObserver)
	b.Disconnect("o")
	assert.Equal(t, 0, b.Count())
}

func TestDeviceStatusReachesEveryone(t *testing.T) {
	b := New(nil)
	o := connect(t, b, "o", "input_1")

	b.DeviceStatusChanged(mixer.DeviceInfo{ID: "qu", Status: mixer.StatusError}, errors.New("port closed"))

	got := o.received(EventDevice)
	require.Len(t, got, 1)
	assert.Equal(t, mixer.StatusError, got[0].Device.Status)
	assert.Equal(t, "port closed", got[0].Error)
}

func TestManagerIntegration(t *testing.T) {
	dialer := transporttest.NewDialer()
	m := state.New(state.Config{SettleDelay: time.Millisecond})
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	b := New(m)
	m.AddListener(b)

	qu, err := board.New(allenheath.Qu24(), board.Config{ID: "qu", Connection: "midi://qu", Dial: dialer.Dial})
	require.NoError(t, err)
	_, err = m.ConnectDevice(context.Background(), qu)
	require.NoError(t, err)

	o := connect(t, b, "ui", "input_1")
	catchUp := o.received(EventState)
	require.Len(t, catchUp, 1)
	require.Len(t, catchUp[0].State, 1)
	assert.Equal(t, "qu", catchUp[0].State[0].Device.ID)

	_, err = m.SetFader(context.Background(), "input_2", 0.5)
	require.NoError(t, err)
	assert.Empty(t, o.received(EventParameter))

	_, err = m.SetFader(context.Background(), "input_1", 0.5)
	require.NoError(t, err)
	got := o.received(EventParameter)
	require.Len(t, got, 1)
	assert.Equal(t, "qu", got[0].DeviceID)
	assert.Equal(t, 0.5, got[0].Value)

	require.NoError(t, m.RecallScene(context.Background(), 2))
	assert.Len(t, o.received(EventState), 2)
}

type flakySource struct {
	calls atomic.Int32
}

func (s *flakySource) CollectMeters(context.Context) ([]mixer.MeterUpdate, error) {
	switch s.calls.Add(1) {
	case 1:
		return nil, errors.New("device busy")
	case 2:
		panic("decoder bug")
	}
	return []mixer.MeterUpdate{{DeviceID: "qu", Levels: map[string]float64{"input_1": 0.5}}}, nil
}

func TestMeterLoopRecovers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &flakySource{}
	got := make(chan []mixer.MeterUpdate, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		RunMeterLoop(ctx, src, MeterSinkFunc(func(u []mixer.MeterUpdate) {
			select {
			case got <- u:
			default:
			}
		}), MeterLoopConfig{Interval: time.Millisecond, Backoff: 5 * time.Millisecond})
	}()

	select {
	case u := <-got:
		assert.Equal(t, 0.5, u[0].Levels["input_1"])
	case <-time.After(2 * time.Second):
		t.Fatal("meter loop never delivered")
	}
	assert.GreaterOrEqual(t, src.calls.Load(), int32(3))

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("meter loop did not stop")
	}
}

func TestMeterSinks(t *testing.T) {
	var a, b int
	sinks := MeterSinks{
		MeterSinkFunc(func([]mixer.MeterUpdate) { a++ }),
		MeterSinkFunc(func([]mixer.MeterUpdate) { b++ }),
	}
	sinks.BroadcastMeters([]mixer.MeterUpdate{{DeviceID: "qu"}})
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}
