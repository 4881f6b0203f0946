package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-mixer/internal/board"
	"github.com/nerrad567/gray-logic-mixer/internal/board/focusrite"
	"github.com/nerrad567/gray-logic-mixer/internal/transport/transporttest"
)

func newPlugin(t *testing.T, dialer *transporttest.Dialer, id, conn string) *board.Board {
	t.Helper()
	b, err := board.New(focusrite.Command8{}, board.Config{ID: id, Connection: conn, Dial: dialer.Dial})
	require.NoError(t, err)
	return b
}

func newRegistry(t *testing.T, ids ...string) (*Registry, *transporttest.Dialer) {
	t.Helper()
	r := New()
	dialer := transporttest.NewDialer()
	for _, id := range ids {
		require.NoError(t, r.Register(newPlugin(t, dialer, id, "midi://"+id)))
	}
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r, dialer
}

// recorder collects which plugins an op ran on.
type recorder struct {
	mu  sync.Mutex
	ran []string
}

func (rec *recorder) op(name string, fail map[string]error) Op {
	return Op{Name: name, Fn: func(_ context.Context, p board.Plugin) error {
		rec.mu.Lock()
		rec.ran = append(rec.ran, p.ID())
		rec.mu.Unlock()
		return fail[p.ID()]
	}}
}

func (rec *recorder) devices() []string {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]string(nil), rec.ran...)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r, dialer := newRegistry(t, "a")

	err := r.Register(newPlugin(t, dialer, "a", "midi://other"))
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	err = r.Register(newPlugin(t, dialer, "b", "MIDI://a "))
	assert.ErrorIs(t, err, ErrPortInUse)

	assert.Equal(t, []string{"a"}, r.IDs())
}

func TestDispatchIsolatesFailures(t *testing.T) {
	r, _ := newRegistry(t, "one", "three", "two")
	rec := &recorder{}
	cause := errors.New("console rejected write")

	out := r.Dispatch(context.Background(), rec.op("fader", map[string]error{"two": cause}))

	require.Len(t, out, 3)
	assert.Equal(t, "one", out[0].DeviceID)
	assert.NoError(t, out[0].Err)
	assert.NoError(t, out[1].Err)
	assert.Equal(t, "two", out[2].DeviceID)
	assert.ErrorIs(t, out[2].Err, cause)
	assert.ElementsMatch(t, []string{"one", "two", "three"}, rec.devices())

	require.Len(t, out.Failed(), 1)
	assert.ErrorIs(t, out.Err(), cause)
	assert.Contains(t, out.Err().Error(), "two:")
}

func TestDispatchRecoversPanics(t *testing.T) {
	r, _ := newRegistry(t, "a", "b")
	panicky := Op{Name: "boom", Fn: func(_ context.Context, p board.Plugin) error {
		if p.ID() == "b" {
			panic("encoder bug")
		}
		return nil
	}}

	out := r.Dispatch(context.Background(), panicky)
	require.Len(t, out, 2)
	assert.NoError(t, out[0].Err)
	assert.ErrorIs(t, out[1].Err, ErrPanic)

	// The worker survives the panic.
	rec := &recorder{}
	out = r.DispatchTo(context.Background(), []string{"b"}, rec.op("after", nil))
	assert.NoError(t, out.Err())
	assert.Equal(t, []string{"b"}, rec.devices())
}

func TestDispatchToUnknown(t *testing.T) {
	r, _ := newRegistry(t, "a")
	rec := &recorder{}

	out := r.DispatchTo(context.Background(), []string{"a", "ghost"}, rec.op("mute", nil))
	require.Len(t, out, 2)
	assert.NoError(t, out[0].Err)
	assert.Equal(t, "ghost", out[1].DeviceID)
	assert.ErrorIs(t, out[1].Err, ErrNotRegistered)
}

func TestPluginsRunInParallel(t *testing.T) {
	r, _ := newRegistry(t, "slow", "fast")
	release := make(chan struct{})
	started := make(chan struct{})

	go r.DispatchTo(context.Background(), []string{"slow"}, Op{Name: "block", Fn: func(context.Context, board.Plugin) error {
		close(started)
		<-release
		return nil
	}})
	<-started

	done := make(chan Outcomes, 1)
	go func() {
		done <- r.DispatchTo(context.Background(), []string{"fast"}, Op{Name: "quick", Fn: func(context.Context, board.Plugin) error { return nil }})
	}()
	select {
	case out := <-done:
		assert.NoError(t, out.Err())
	case <-time.After(time.Second):
		t.Fatal("a blocked plugin stalled another plugin")
	}
	close(release)
}

func TestSubmitPreservesOrder(t *testing.T) {
	r, _ := newRegistry(t, "a")
	var (
		mu  sync.Mutex
		got []int
	)
	var results []<-chan Outcome
	for i := range 50 {
		res, err := r.Submit(context.Background(), "a", Op{Name: "seq", Fn: func(context.Context, board.Plugin) error {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			return nil
		}})
		require.NoError(t, err)
		results = append(results, res)
	}
	for _, res := range results {
		require.NoError(t, (<-res).Err)
	}
	for i, v := range got {
		require.Equal(t, i, v)
	}
	assert.Len(t, got, 50)
}

func TestCancelledContext(t *testing.T) {
	r, _ := newRegistry(t, "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &recorder{}

	out := r.Dispatch(ctx, rec.op("fader", nil))
	require.Len(t, out, 1)
	assert.ErrorIs(t, out[0].Err, context.Canceled)
	assert.Empty(t, rec.devices())
}

func TestUnregisterDisconnectsAndFreesPort(t *testing.T) {
	r, dialer := newRegistry(t, "a")
	p, ok := r.Plugin("a")
	require.True(t, ok)
	require.NoError(t, p.Connect(context.Background()))

	require.NoError(t, r.Unregister(context.Background(), "a"))
	assert.False(t, p.IsConnected())
	assert.True(t, dialer.Port("midi://a").IsClosed())
	assert.Equal(t, 0, r.Len())

	assert.NoError(t, r.Register(newPlugin(t, dialer, "a2", "midi://a")))
	assert.ErrorIs(t, r.Unregister(context.Background(), "a"), ErrNotRegistered)
}

func TestUnregisterDrainsQueue(t *testing.T) {
	r, _ := newRegistry(t, "a")
	release := make(chan struct{})
	var ran sync.WaitGroup
	ran.Add(3)
	var results []<-chan Outcome
	for range 3 {
		res, err := r.Submit(context.Background(), "a", Op{Name: "queued", Fn: func(context.Context, board.Plugin) error {
			<-release
			ran.Done()
			return nil
		}})
		require.NoError(t, err)
		results = append(results, res)
	}
	close(release)

	require.NoError(t, r.Unregister(context.Background(), "a"))
	ran.Wait()
	for _, res := range results {
		assert.NoError(t, (<-res).Err)
	}
}

func TestClose(t *testing.T) {
	r, dialer := newRegistry(t, "a", "b")
	require.NoError(t, r.Close(context.Background()))
	assert.Equal(t, 0, r.Len())
	assert.ErrorIs(t, r.Register(newPlugin(t, dialer, "c", "midi://c")), ErrClosed)
	assert.Empty(t, r.Dispatch(context.Background(), Op{Name: "noop", Fn: func(context.Context, board.Plugin) error { return nil }}))
}
