package focusrite

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

func TestStripPerMIDIChannel(t *testing.T) {
	dialer := transporttest.NewDialer()
	b, err := board.New(Command8{}, board.Config{Connection: "c8", Dial: dialer.Dial})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, b.Connect(ctx))
	defer b.Disconnect(ctx)

	require.NoError(t, b.SetFader(ctx, "input_16", 1))
	require.NoError(t, b.SetPan(ctx, "input_2", 1))
	require.NoError(t, b.SetMute(ctx, "input_1", true))
	assert.Equal(t, [][]byte{
		{0xBF, 7, 127},
		{0xB1, 10, 127},
		{0xB0, 14, 127},
	}, dialer.Port("c8").Sent())

	assert.ErrorIs(t, b.SetFader(ctx, "aux_1", 1), mixer.ErrInvalidChannel)
	assert.False(t, b.DeviceInfo().Capabilities.HasMain)
	assert.NoError(t, b.RecallScene(ctx, 1), "no scenes is a no-op")
}

func TestDecode(t *testing.T) {
	m := Command8{}
	channels, err := board.NewChannelMap(m.Capabilities(), m.Index)
	require.NoError(t, err)
	dec := m.NewDecoder(channels, 0)

	decode := func(raw ...byte) []board.Event {
		msg, err := codec.Decode(raw)
		require.NoError(t, err)
		return dec.Decode(msg)
	}

	assert.Equal(t, []board.Event{{ChannelID: "input_5", Parameter: "fader", Value: 0.0}}, decode(0xB4, 7, 0))
	assert.Equal(t, []board.Event{{ChannelID: "input_1", Parameter: "mute", Value: false}}, decode(0xB0, 14, 0))
	assert.Equal(t, []board.Event{{ChannelID: "input_3", Parameter: "pan", Value: 0.0}}, decode(0xB2, 10, 64))
	assert.Empty(t, decode(0xB0, 1, 1))
	assert.Empty(t, decode(0x90, 1, 1))
}
