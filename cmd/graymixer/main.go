// Gray Logic Mixer - mixing console remote control service.
//
// This is the main entry point for the mixer service. It connects the
// configured consoles and exposes them over:
//   - a REST API and WebSocket observers
//   - an MQTT command and state relay (optional)
//   - an OSC control surface bridge (optional)
//
// Parameter changes are recorded to SQLite history and, when enabled,
// written to InfluxDB together with meter levels.
package main

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Registers the system MIDI driver used by midi:// connections.
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/nerrad567/gray-logic-mixer/internal/api"
	"github.com/nerrad567/gray-logic-mixer/internal/board"
	"github.com/nerrad567/gray-logic-mixer/internal/board/catalog"
	"github.com/nerrad567/gray-logic-mixer/internal/bridges/mqttrelay"
	"github.com/nerrad567/gray-logic-mixer/internal/bridges/oscbridge"
	"github.com/nerrad567/gray-logic-mixer/internal/broadcast"
	"github.com/nerrad567/gray-logic-mixer/internal/history"
	"github.com/nerrad567/gray-logic-mixer/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-mixer/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-mixer/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-mixer/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-mixer/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-mixer/internal/state"
	"github.com/nerrad567/gray-logic-mixer/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// shutdownTimeout bounds device disconnects during shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Mixer",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Parameter history (optional)
	var db *database.DB
	var historyRepo history.Repository
	var recorder *history.Recorder
	if cfg.History.Enabled {
		db, err = openDatabase(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		journal, jerr := db.JournalMode(ctx)
		if jerr != nil {
			log.Warn("reading journal mode", "error", jerr)
		}
		log.Info("database ready", "path", db.Path(), "journal_mode", journal)

		repo := history.NewSQLiteRepository(db.DB)
		historyRepo = repo
		recorder = history.NewRecorder(repo, time.Duration(cfg.History.Retention)*24*time.Hour, log)

		recorderCtx, stopRecorder := context.WithCancel(ctx)
		recorderDone := make(chan struct{})
		go func() {
			defer close(recorderDone)
			recorder.Run(recorderCtx)
		}()
		// The recorder flushes on cancellation; wait before the database closes.
		defer func() {
			stopRecorder()
			<-recorderDone
			if n := recorder.Dropped(); n > 0 {
				log.Warn("history change sets dropped", "count", n)
			}
		}()
	} else {
		log.Info("parameter history disabled")
	}

	// State manager and observer fan-out
	manager := state.New(state.Config{
		SettleDelay: cfg.Mixer.SettleDelayDuration(),
		QueueSize:   cfg.Mixer.QueueSize,
		Logger:      log,
	})
	broadcaster := broadcast.New(manager)
	broadcaster.SetLogger(log)
	manager.AddListener(broadcaster)
	if recorder != nil {
		manager.AddListener(recorder)
	}
	meterSinks := broadcast.MeterSinks{broadcaster}

	// MQTT relay (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			st := mqttClient.Stats()
			log.Info("disconnecting from MQTT",
				"published", st.Published,
				"received", st.Received,
				"handler_errors", st.HandlerErrors,
			)
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		relay, relayErr := mqttrelay.New(mqttrelay.Options{
			Client:        mqttClient,
			Controller:    manager,
			PublishMeters: cfg.MQTT.PublishMeters,
			Logger:        log,
		})
		if relayErr != nil {
			return fmt.Errorf("creating MQTT relay: %w", relayErr)
		}
		if startErr := relay.Start(ctx); startErr != nil {
			return fmt.Errorf("starting MQTT relay: %w", startErr)
		}
		defer func() {
			log.Info("stopping MQTT relay")
			relay.Stop()
		}()
		manager.AddListener(relay)
		meterSinks = append(meterSinks, relay)
	} else {
		log.Info("MQTT relay disabled")
	}

	// InfluxDB telemetry (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			st := influxClient.Stats()
			log.Info("closing InfluxDB connection", "points", st.Points, "write_errors", st.WriteErrors)
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		manager.AddListener(influxdb.NewTelemetry(influxClient))
		meterSinks = append(meterSinks, broadcast.MeterSinkFunc(influxClient.WriteMeters))
	} else {
		log.Info("InfluxDB disabled")
	}

	// OSC bridge (optional)
	if cfg.OSC.Enabled {
		if err := startOSC(ctx, cfg.OSC, manager, log); err != nil {
			return err
		}
	} else {
		log.Info("OSC bridge disabled")
	}

	// Devices are disconnected after the API stops and before the
	// relays and stores above shut down.
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("disconnecting devices")
		if closeErr := manager.Close(shutdownCtx); closeErr != nil {
			log.Error("error disconnecting devices", "error", closeErr)
		}
	}()
	connectDevices(ctx, cfg, manager, log)

	go broadcast.RunMeterLoop(ctx, manager, meterSinks, broadcast.MeterLoopConfig{
		Interval: cfg.Mixer.MeterIntervalDuration(),
		Backoff:  cfg.Mixer.MeterBackoffDuration(),
		Logger:   log,
	})

	// HTTP API and WebSocket server
	deps := api.Deps{
		Config:          cfg.API,
		WS:              cfg.WebSocket,
		Logger:          log,
		Manager:         manager,
		Broadcaster:     broadcaster,
		History:         historyRepo,
		ConnectTimeout:  cfg.Mixer.ConnectTimeoutDuration(),
		DeviceQueueSize: cfg.Mixer.QueueSize,
		Version:         version,
	}
	// Interfaces stay nil unless the link exists.
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	if influxClient != nil {
		deps.InfluxDB = influxClient
	}
	apiServer, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal",
		"devices", len(manager.Devices()),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API server
	// 2. Devices
	// 3. InfluxDB, MQTT relay and MQTT (if enabled)
	// 4. History recorder flush and database (if enabled)

	log.Info("Gray Logic Mixer stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYMIXER_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYMIXER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openDatabase opens the history database and applies pending migrations.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.Source); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// startOSC creates the OSC bridge, registers it for feedback and serves
// it in the background until ctx is cancelled.
func startOSC(ctx context.Context, cfg config.OSCConfig, manager *state.Manager, log *logging.Logger) error {
	var feedback oscbridge.Sender
	if cfg.FeedbackHost != "" && cfg.FeedbackPort > 0 {
		feedback = oscbridge.NewFeedbackClient(cfg.FeedbackHost, cfg.FeedbackPort)
	}

	bridge, err := oscbridge.New(oscbridge.Options{
		Controller: manager,
		Feedback:   feedback,
		Levels:     log,
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("creating OSC bridge: %w", err)
	}
	manager.AddListener(bridge)

	go func() {
		if err := bridge.ListenAndServe(ctx, cfg.Listen); err != nil {
			log.Error("OSC bridge stopped", "error", err)
		}
	}()
	log.Info("OSC bridge started",
		"listen", cfg.Listen,
		"feedback", fmt.Sprintf("%s:%d", cfg.FeedbackHost, cfg.FeedbackPort),
	)
	return nil
}

// connectDevices connects every configured device marked auto_connect.
// A console that is off or unplugged is logged and skipped; it can be
// connected later over the API.
func connectDevices(ctx context.Context, cfg *config.Config, manager *state.Manager, log *logging.Logger) {
	for _, d := range cfg.Devices {
		if !d.AutoConnect {
			continue
		}
		b, err := catalog.Open(d.Model, board.Config{
			ID:             d.ID,
			Name:           d.Name,
			Connection:     d.Connection,
			MIDIChannel:    d.MIDIChannel,
			ConnectTimeout: cfg.Mixer.ConnectTimeoutDuration(),
			QueueSize:      cfg.Mixer.QueueSize,
			Logger:         log.With("device", cmp.Or(d.ID, d.Model)),
		})
		if err != nil {
			log.Error("device not created", "model", d.Model, "connection", d.Connection, "error", err)
			continue
		}
		info, err := manager.ConnectDevice(ctx, b)
		if err != nil {
			log.Warn("device connect failed", "device", b.ID(), "connection", d.Connection, "error", err)
			continue
		}
		log.Info("device ready", "device", info.ID, "model", info.Model, "channels", info.Capabilities.InputChannels)
	}
}

// healthCheck verifies the infrastructure connections that are enabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
