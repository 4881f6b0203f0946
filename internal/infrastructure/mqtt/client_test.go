package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-mixer/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing. Only the
// integration tests connect with it.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "graymixer-test",
			TLS:      false,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// disconnectedClient is a Client that never connected.
func disconnectedClient() *Client {
	return newClient(testConfig())
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errs = append(l.errs, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

// =============================================================================
// Options
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "mixer", Password: "secret"}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "graymixer-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "mixer" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("AutoReconnect and CleanSession should be set")
	}
	if opts.TLSConfig != nil && opts.TLSConfig.MinVersion != 0 {
		t.Error("TLS configured without broker.tls")
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS 1.2 minimum not configured")
	}
}

func TestLastWill(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, "graymixer-test")

	if opts.WillTopic != (Topics{}).SystemStatus() || !opts.WillRetained {
		t.Errorf("will = %q retained=%v", opts.WillTopic, opts.WillRetained)
	}

	var p statusPayload
	if err := json.Unmarshal(opts.WillPayload, &p); err != nil {
		t.Fatalf("will payload: %v", err)
	}
	if p.Status != "offline" || p.Reason != "unexpected_disconnect" || p.ClientID != "graymixer-test" {
		t.Errorf("will payload = %+v", p)
	}
}

func TestStatusPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		status  string
		reason  string
	}{
		{"online", buildOnlinePayload("c1"), "online", ""},
		{"offline", buildOfflinePayload("c1"), "offline", "graceful_shutdown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p statusPayload
			if err := json.Unmarshal([]byte(tt.payload), &p); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if p.Status != tt.status || p.Reason != tt.reason || p.ClientID != "c1" || p.Timestamp == "" {
				t.Errorf("payload = %+v", p)
			}
		})
	}
}

// =============================================================================
// Disconnected client
// =============================================================================

func TestCloseNil(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	if disconnectedClient().IsConnected() {
		t.Error("IsConnected() = true for a client that never connected")
	}
}

func TestHealthCheck(t *testing.T) {
	c := disconnectedClient()

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestPublishValidation(t *testing.T) {
	c := disconnectedClient()
	topic := Topics{}.ParameterState("qu", "input_1", "fader")

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("1"), 1, ErrInvalidTopic},
		{"invalid qos", topic, []byte("1"), 3, ErrInvalidQoS},
		{"oversized payload", topic, make([]byte, maxPayloadSize+1), 1, ErrPayloadTooLarge},
		{"disconnected", topic, []byte("0.5"), 1, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPublishJSON(t *testing.T) {
	c := disconnectedClient()

	if err := c.PublishJSON("t", make(chan int), false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON(chan) error = %v, want ErrPublishFailed", err)
	}
	if err := c.PublishJSON("t", map[string]float64{"value": 0.5}, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishJSON() error = %v, want ErrNotConnected", err)
	}
	if err := c.PublishRetained("t", []byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishRetained() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := disconnectedClient()
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		want    error
	}{
		{"empty topic", "", 1, noop, ErrInvalidTopic},
		{"invalid qos", "a/b", 5, noop, ErrInvalidQoS},
		{"nil handler", "a/b", 1, nil, ErrSubscribeFailed},
		{"disconnected", "a/b", 1, noop, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Subscribe(tt.topic, tt.qos, tt.handler); !errors.Is(err, tt.want) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.want)
			}
		})
	}

	if c.SubscriptionCount() != 0 || c.HasSubscription("a/b") {
		t.Error("failed subscriptions were tracked")
	}
	if published, _ := c.MessageCounts(); published != 0 {
		t.Errorf("published = %d after failed publishes", published)
	}
}

func TestUnsubscribeValidation(t *testing.T) {
	c := disconnectedClient()

	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Unsubscribe("a/b"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestQoS(t *testing.T) {
	c := disconnectedClient()
	c.cfg.QoS = 2
	if c.QoS() != 2 {
		t.Errorf("QoS() = %d, want 2", c.QoS())
	}
}

// =============================================================================
// Handler dispatch
// =============================================================================

func TestDispatch_HandlerError(t *testing.T) {
	c := disconnectedClient()
	log := &recordingLogger{}
	c.SetLogger(log)

	c.dispatch(func(string, []byte) error { return errors.New("bad payload") }, "t", nil)

	if len(log.warns) != 1 || !strings.Contains(log.warns[0], "handler returned error") {
		t.Errorf("warns = %v", log.warns)
	}
	if st := c.Stats(); st.Received != 1 || st.HandlerErrors != 1 || st.Panics != 0 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestDispatch_PanicRecovered(t *testing.T) {
	c := disconnectedClient()
	log := &recordingLogger{}
	c.SetLogger(log)

	c.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)

	if len(log.errs) != 1 || !strings.Contains(log.errs[0], "panic recovered") {
		t.Errorf("errors = %v", log.errs)
	}
	if st := c.Stats(); st.Received != 1 || st.Panics != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestDispatch_NoLogger(t *testing.T) {
	c := disconnectedClient()
	var got string
	c.dispatch(func(topic string, _ []byte) error {
		got = topic
		return errors.New("ignored")
	}, "graymixer/command/qu/input_1/fader", []byte("0.5"))

	if got != "graymixer/command/qu/input_1/fader" {
		t.Errorf("handler topic = %q", got)
	}
}

func TestCallbacks(t *testing.T) {
	c := disconnectedClient()
	var connected, disconnected bool
	c.SetOnConnect(func() { connected = true })
	c.SetOnDisconnect(func(error) { disconnected = true })

	c.mu.RLock()
	onUp, onDown := c.onUp, c.onDown
	c.mu.RUnlock()
	onUp()
	onDown(errors.New("lost"))

	if !connected || !disconnected {
		t.Error("callbacks not stored")
	}

	c.down(errors.New("lost again"))
	if c.IsConnected() {
		t.Error("IsConnected() = true after connection lost")
	}
}
