package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-mixer/internal/broadcast"
	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
)

// dialWS connects a WebSocket client to the test server and consumes the
// catch-up state event.
func dialWS(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	ev := readEvent(t, conn)
	if ev.Type != broadcast.EventState {
		t.Fatalf("first event = %s, want state", ev.Type)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) broadcast.Event {
	t.Helper()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev broadcast.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("reading event: %v", err)
	}
	return ev
}

func writeRequest(t *testing.T, conn *websocket.Conn, req WSRequest) {
	t.Helper()
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("writing request: %v", err)
	}
}

func startWS(t *testing.T) (*testEnv, *httptest.Server) {
	t.Helper()
	env := testServer(t)
	env.connectQu(t)
	ts := httptest.NewServer(env.srv.Handler())
	t.Cleanup(ts.Close)
	return env, ts
}

func TestWebSocket_InitialState(t *testing.T) {
	_, ts := startWS(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	resp.Body.Close()
	defer conn.Close()

	ev := readEvent(t, conn)
	if ev.Type != broadcast.EventState {
		t.Fatalf("type = %s, want state", ev.Type)
	}
	if len(ev.State) != 1 || ev.State[0].Device.ID != "qu" {
		t.Fatalf("state = %+v", ev.State)
	}
	if _, ok := ev.State[0].Channels["input_1"]; !ok {
		t.Error("state has no input_1")
	}
}

func TestWebSocket_Ping(t *testing.T) {
	_, ts := startWS(t)
	conn := dialWS(t, ts, "")

	writeRequest(t, conn, WSRequest{Type: broadcast.EventPing, ID: "p1"})
	ev := readEvent(t, conn)
	if ev.Type != broadcast.EventPong || ev.ID != "p1" {
		t.Errorf("got %s/%s, want pong/p1", ev.Type, ev.ID)
	}
}

func TestWebSocket_FaderBroadcast(t *testing.T) {
	env, ts := startWS(t)
	a := dialWS(t, ts, "")
	b := dialWS(t, ts, "")

	writeRequest(t, a, WSRequest{Type: WSTypeFader, ID: "f1", ChannelID: "input_5", Value: 0.25})

	ev := readEvent(t, b)
	if ev.Type != broadcast.EventParameter {
		t.Fatalf("type = %s, want parameter", ev.Type)
	}
	if ev.DeviceID != "qu" || ev.ChannelID != "input_5" || ev.Parameter != "fader" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Value != 0.25 || ev.Source != mixer.SourceWebSocket {
		t.Errorf("value/source = %v/%s", ev.Value, ev.Source)
	}

	// The sender does not get its own change back.
	writeRequest(t, a, WSRequest{Type: broadcast.EventPing, ID: "after"})
	if ev := readEvent(t, a); ev.Type != broadcast.EventPong || ev.ID != "after" {
		t.Errorf("sender got %s/%s, want pong/after", ev.Type, ev.ID)
	}

	ch, err := env.manager.Channel("input_5")
	if err != nil {
		t.Fatal(err)
	}
	if ch.Fader != 0.25 {
		t.Errorf("fader = %v, want 0.25", ch.Fader)
	}
}

func TestWebSocket_RESTChangesReachClients(t *testing.T) {
	env, ts := startWS(t)
	conn := dialWS(t, ts, "")

	env.do(t, "POST", "/api/v1/mixer/channels/input_2/mute", `{"value":true}`)

	ev := readEvent(t, conn)
	if ev.Type != broadcast.EventParameter || ev.Parameter != "mute" || ev.Value != true {
		t.Errorf("event = %+v", ev)
	}
	if ev.Source != mixer.SourceAPI {
		t.Errorf("source = %s, want api", ev.Source)
	}
}

func TestWebSocket_Subscribe(t *testing.T) {
	env, ts := startWS(t)
	conn := dialWS(t, ts, "")

	writeRequest(t, conn, WSRequest{Type: broadcast.EventSubscribe, ID: "s1", Channels: []string{"input_7"}})
	ev := readEvent(t, conn)
	if ev.Type != broadcast.EventSubscribe || ev.ID != "s1" {
		t.Fatalf("got %s/%s, want subscribe/s1", ev.Type, ev.ID)
	}
	if len(ev.Channels) != 1 || ev.Channels[0] != "input_7" {
		t.Errorf("channels = %v", ev.Channels)
	}

	env.do(t, "POST", "/api/v1/mixer/channels/input_6/fader", `{"value":0.3}`)
	env.do(t, "POST", "/api/v1/mixer/channels/input_7/fader", `{"value":0.7}`)

	ev = readEvent(t, conn)
	if ev.ChannelID != "input_7" {
		t.Errorf("got change for %s, want only input_7", ev.ChannelID)
	}
}

func TestWebSocket_ChannelsQuery(t *testing.T) {
	env, ts := startWS(t)
	conn := dialWS(t, ts, "?channels=input_9")

	env.do(t, "POST", "/api/v1/mixer/channels/input_8/fader", `{"value":0.3}`)
	env.do(t, "POST", "/api/v1/mixer/channels/input_9/fader", `{"value":0.6}`)

	if ev := readEvent(t, conn); ev.ChannelID != "input_9" {
		t.Errorf("got change for %s, want only input_9", ev.ChannelID)
	}
}

func TestWebSocket_Errors(t *testing.T) {
	_, ts := startWS(t)
	conn := dialWS(t, ts, "")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	if ev := readEvent(t, conn); ev.Type != broadcast.EventError || ev.Error == "" {
		t.Errorf("invalid JSON: got %+v", ev)
	}

	tests := []struct {
		name string
		req  WSRequest
	}{
		{"unknown type", WSRequest{Type: "bogus", ID: "e1"}},
		{"missing parameter", WSRequest{Type: broadcast.EventParameter, ID: "e2", ChannelID: "input_1", Value: 1}},
		{"unknown channel", WSRequest{Type: WSTypeMute, ID: "e3", ChannelID: "input_99", Value: true}},
		{"bad value", WSRequest{Type: WSTypeMute, ID: "e4", ChannelID: "input_1", Value: "loud"}},
		{"empty batch", WSRequest{Type: broadcast.EventBatch, ID: "e5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeRequest(t, conn, tt.req)
			ev := readEvent(t, conn)
			if ev.Type != broadcast.EventError || ev.ID != tt.req.ID {
				t.Errorf("got %s/%s, want error/%s", ev.Type, ev.ID, tt.req.ID)
			}
		})
	}
}

func TestWebSocket_Batch(t *testing.T) {
	env, ts := startWS(t)
	a := dialWS(t, ts, "")
	b := dialWS(t, ts, "")

	writeRequest(t, a, WSRequest{Type: broadcast.EventBatch, ID: "b1", Changes: []mixer.ParameterChange{
		{ChannelID: "input_10", Parameter: "fader", Value: 0.1},
		{ChannelID: "input_11", Parameter: "solo", Value: true},
	}})

	ev := readEvent(t, b)
	if ev.Type != broadcast.EventBatch || len(ev.Changes) != 2 {
		t.Fatalf("event = %+v, want batch of 2", ev)
	}

	ch, _ := env.manager.Channel("input_11")
	if !ch.Solo {
		t.Error("solo not applied")
	}
}

func TestWebSocket_CloseDisconnectsClients(t *testing.T) {
	env, ts := startWS(t)
	conn := dialWS(t, ts, "")

	if err := env.srv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for env.srv.broadcaster.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("observers = %d after Close, want 0", env.srv.broadcaster.Count())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
