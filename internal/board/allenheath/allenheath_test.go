package allenheath

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-mixer/internal/board"
	"github.com/nerrad567/gray-logic-mixer/internal/codec"
	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
	"github.com/nerrad567/gray-logic-mixer/internal/transport/transporttest"
)

const conn = "midi://Qu-24"

func connectQu24(t *testing.T) (*board.Board, *transporttest.MockPort) {
	t.Helper()
	dialer := transporttest.NewDialer()
	b, err := board.New(Qu24(), board.Config{Connection: conn, Dial: dialer.Dial})
	require.NoError(t, err)
	require.NoError(t, b.Connect(context.Background()))
	t.Cleanup(func() { _ = b.Disconnect(context.Background()) })
	return b, dialer.Port(conn)
}

func decodeAll(t *testing.T, dec board.Decoder, raws ...[]byte) []board.Event {
	t.Helper()
	var out []board.Event
	for _, raw := range raws {
		msg, err := codec.Decode(raw)
		require.NoError(t, err)
		out = append(out, dec.Decode(msg)...)
	}
	return out
}

func newDecoder(t *testing.T, m *Model) board.Decoder {
	t.Helper()
	channels, err := board.NewChannelMap(m.Capabilities(), m.Index)
	require.NoError(t, err)
	return m.NewDecoder(channels, 0)
}

func TestDeviceID(t *testing.T) {
	b, _ := connectQu24(t)
	assert.Equal(t, "allen_&_heath_qu-24", b.ID())
}

func TestFaderIsOneNRPNGroup(t *testing.T) {
	b, port := connectQu24(t)

	require.NoError(t, b.SetFader(context.Background(), "input_1", 0.5))
	assert.Equal(t, [][]byte{
		{0xB0, 0x63, 0x00},
		{0xB0, 0x62, 0x17},
		{0xB0, 0x06, 0x40},
		{0xB0, 0x26, 0x07},
	}, port.Sent())
}

func TestEncoders(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		op   func(*board.Board) error
		want [][]byte
	}{
		{
			name: "mute on",
			op:   func(b *board.Board) error { return b.SetMute(ctx, "input_3", true) },
			want: [][]byte{{0x90, 0x02, 127}},
		},
		{
			name: "mute off",
			op:   func(b *board.Board) error { return b.SetMute(ctx, "input_3", false) },
			want: [][]byte{{0x90, 0x02, 1}},
		},
		{
			name: "pan centre on stereo",
			op:   func(b *board.Board) error { return b.SetPan(ctx, "stereo_1", 0) },
			want: [][]byte{{0xB0, 0x63, 0x20}, {0xB0, 0x62, 0x16}, {0xB0, 0x06, 64}, {0xB0, 0x26, 0x07}},
		},
		{
			name: "main assign off",
			op:   func(b *board.Board) error { return b.SetMainAssign(ctx, "aux_1", false) },
			want: [][]byte{{0xB0, 0x63, 0x30}, {0xB0, 0x62, 0x18}, {0xB0, 0x06, 0x3F}, {0xB0, 0x26, 0x07}},
		},
		{
			name: "dca 2 assign",
			op:   func(b *board.Board) error { return b.SetDCAAssign(ctx, "input_1", 2, true) },
			want: [][]byte{{0xB0, 0x63, 0x00}, {0xB0, 0x62, 0x41}, {0xB0, 0x06, 0x05}, {0xB0, 0x26, 0x07}},
		},
		{
			name: "fx send level follows the aux mixes",
			op:   func(b *board.Board) error { return b.SetSendLevel(ctx, "input_2", "fxsend_1", 1) },
			want: [][]byte{{0xB0, 0x63, 0x01}, {0xB0, 0x62, 0x07}, {0xB0, 0x06, 0x7F}, {0xB0, 0x26, 0x07}},
		},
		{
			name: "name",
			op:   func(b *board.Board) error { return b.SetChannelName(ctx, "input_2", "Kick") },
			want: [][]byte{{0xF0, 0x00, 0x00, 0x1A, 0x50, 0x11, 0x01, 0x00, 0x00, 0x03, 0x01, 'K', 'i', 'c', 'k', 0xF7}},
		},
		{
			name: "colour",
			op:   func(b *board.Board) error { return b.SetChannelColor(ctx, "main", mixer.ColorRed) },
			want: [][]byte{{0xF0, 0x00, 0x00, 0x1A, 0x50, 0x11, 0x01, 0x00, 0x00, 0x06, 0x50, 0x01, 0xF7}},
		},
		{
			name: "scene in second bank",
			op:   func(b *board.Board) error { return b.RecallScene(ctx, 130) },
			want: nil,
		},
		{
			name: "scene in first bank",
			op:   func(b *board.Board) error { return b.RecallScene(ctx, 5) },
			want: [][]byte{{0xB0, 0x00, 0x00}, {0xC0, 0x04}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, port := connectQu24(t)
			err := tt.op(b)
			if tt.want == nil {
				// The Qu-24 has 100 scenes.
				assert.ErrorIs(t, err, mixer.ErrRange)
				assert.Empty(t, port.Sent())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, port.Sent())
		})
	}
}

func TestGLD80SceneBanks(t *testing.T) {
	msgs, err := GLD80().RecallScene(0, 130)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte{0xB0, 0x00, 0x01}, []byte(msgs[0]))
	assert.Equal(t, []byte{0xC0, 0x01}, []byte(msgs[1]))
}

func TestGLD80SyncRequest(t *testing.T) {
	msgs, err := GLD80().SyncRequest(3)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte{0xF0, 0x00, 0x00, 0x1A, 0x50, 0x10, 0x01, 0x00, 0x7F, 0x10, 0x00, 0xF7}, []byte(msgs[0]))
}

func TestCompressorWritesSevenParameters(t *testing.T) {
	b, port := connectQu24(t)
	c := mixer.DefaultCompressor()
	c.Attack = 300
	c.Ratio = 1

	require.NoError(t, b.SetCompressor(context.Background(), "input_1", c))
	sent := port.Sent()
	require.Len(t, sent, 7*4)
	params := make([]byte, 0, 7)
	for i := 0; i < len(sent); i += 4 {
		params = append(params, sent[i+1][2])
	}
	assert.Equal(t, []byte{0x61, 0x62, 0x63, 0x64, 0x65, 0x66, 0x67}, params)
	assert.Equal(t, byte(127), sent[1*4+2][2], "attack at maximum")
	assert.Equal(t, byte(0), sent[4*4+2][2], "ratio at minimum")
}

func TestDecodeNRPN(t *testing.T) {
	dec := newDecoder(t, Qu24())

	events := decodeAll(t, dec,
		[]byte{0xB0, 0x63, 0x20},
		[]byte{0xB0, 0x62, 0x17},
		[]byte{0xB0, 0x06, 0x7F},
		[]byte{0xB0, 0x26, 0x07},
	)
	require.Len(t, events, 1)
	assert.Equal(t, board.Event{ChannelID: "stereo_1", Parameter: "fader", Value: 1.0}, events[0])

	events = decodeAll(t, dec,
		[]byte{0xB0, 0x63, 0x50},
		[]byte{0xB0, 0x62, 0x16},
		[]byte{0xB0, 0x06, 64},
		[]byte{0xB0, 0x26, 0x07},
	)
	require.Len(t, events, 1)
	assert.Equal(t, board.Event{ChannelID: "main", Parameter: "pan", Value: 0.0}, events[0])
}

func TestDecodeIgnoresOtherChannels(t *testing.T) {
	dec := newDecoder(t, Qu24())
	events := decodeAll(t, dec,
		[]byte{0xB1, 0x63, 0x00},
		[]byte{0xB1, 0x62, 0x17},
		[]byte{0xB1, 0x06, 0x7F},
		[]byte{0xB1, 0x26, 0x07},
		[]byte{0x91, 0x00, 0x7F},
	)
	assert.Empty(t, events)
}

func TestDecodeMute(t *testing.T) {
	dec := newDecoder(t, Qu24())
	events := decodeAll(t, dec, []byte{0x90, 0x30, 0x7F}, []byte{0x80, 0x30, 0x40})
	assert.Equal(t, []board.Event{
		{ChannelID: "aux_1", Parameter: "mute", Value: true},
		{ChannelID: "aux_1", Parameter: "mute", Value: false},
	}, events)
}

func TestDecodeSceneRecall(t *testing.T) {
	dec := newDecoder(t, Qu24())
	events := decodeAll(t, dec, []byte{0xB0, 0x00, 0x01}, []byte{0xC0, 0x02})
	assert.Equal(t, []board.Event{{Scene: 131}}, events)
}

func TestDecodeSysEx(t *testing.T) {
	dec := newDecoder(t, Qu24())
	header := []byte{0xF0, 0x00, 0x00, 0x1A, 0x50, 0x11, 0x01, 0x00, 0x00}
	frame := func(body ...byte) []byte {
		out := append([]byte(nil), header...)
		out = append(out, body...)
		return append(out, 0xF7)
	}

	events := decodeAll(t, dec, frame(0x02, 0x04, 'B', 'a', 's', 's'))
	assert.Equal(t, []board.Event{{ChannelID: "input_5", Parameter: "name", Value: "Bass"}}, events)

	events = decodeAll(t, dec, frame(0x05, 0x58, 0x04))
	assert.Equal(t, []board.Event{{ChannelID: "dca_1", Parameter: "color", Value: 4}}, events)

	events = decodeAll(t, dec, frame(0x13, 0x00, 127, 0x01, 0, 0x7E, 10))
	require.Len(t, events, 1)
	assert.Equal(t, map[string]float64{"input_1": 1, "input_2": 0}, events[0].Meters)

	// Another manufacturer's sysex is ignored.
	assert.Empty(t, decodeAll(t, dec, []byte{0xF0, 0x43, 0x10, 0x00, 0xF7}))
}

func TestInboundUpdatesBoard(t *testing.T) {
	b, port := connectQu24(t)
	changes := make(chan mixer.ParameterChange, 1)
	b.SetHandlers(board.Handlers{OnParameter: func(c mixer.ParameterChange) { changes <- c }})

	port.SimulateReceive(
		[]byte{0xB0, 0x63, 0x00},
		[]byte{0xB0, 0x62, 0x17},
		[]byte{0xB0, 0x06, 0x00},
		[]byte{0xB0, 0x26, 0x07},
	)
	c := <-changes
	assert.Equal(t, "input_1", c.ChannelID)
	assert.Equal(t, 0.0, c.Value)

	ch, err := b.ChannelState("input_1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, ch.Fader)
}

func TestASCIIName(t *testing.T) {
	assert.Equal(t, []byte("Lead Vo"), asciiName("Lead Vocal"))
	assert.Equal(t, []byte("Caf?"), asciiName("Caf\x80"))
	assert.Equal(t, []byte("Caf? ol"), asciiName("Café olé"))
}
