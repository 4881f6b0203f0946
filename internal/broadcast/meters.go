package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
)

// Meter loop defaults.
const (
	DefaultMeterInterval = 50 * time.Millisecond
	DefaultMeterBackoff  = time.Second
)

// MeterSource produces the current meter readings of every device.
type MeterSource interface {
	CollectMeters(ctx context.Context) ([]mixer.MeterUpdate, error)
}

// MeterSink consumes meter readings.
type MeterSink interface {
	BroadcastMeters(updates []mixer.MeterUpdate)
}

// MeterSinkFunc adapts a function to MeterSink.
type MeterSinkFunc func(updates []mixer.MeterUpdate)

// BroadcastMeters calls f.
func (f MeterSinkFunc) BroadcastMeters(updates []mixer.MeterUpdate) { f(updates) }

// MeterSinks fans readings out to several sinks in order.
type MeterSinks []MeterSink

// BroadcastMeters calls every sink.
func (s MeterSinks) BroadcastMeters(updates []mixer.MeterUpdate) {
	for _, sink := range s {
		sink.BroadcastMeters(updates)
	}
}

// MeterLoopConfig configures RunMeterLoop. Zero values use the defaults.
type MeterLoopConfig struct {
	Interval time.Duration
	Backoff  time.Duration
	Logger   Logger
}

// RunMeterLoop collects meters every Interval and passes non-empty
// readings to sink until ctx is cancelled. A failed or panicking
// iteration is logged and followed by a Backoff pause.
func RunMeterLoop(ctx context.Context, source MeterSource, sink MeterSink, cfg MeterLoopConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultMeterInterval
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultMeterBackoff
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := meterTick(ctx, source, sink); err != nil {
			if ctx.Err() != nil {
				return
			}
			cfg.Logger.Warn("meter broadcast failed", "error", err, "backoff", cfg.Backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(cfg.Backoff):
			}
			ticker.Reset(cfg.Interval)
		}
	}
}

func meterTick(ctx context.Context, source MeterSource, sink MeterSink) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in meter loop: %v", r)
		}
	}()
	updates, err := source.CollectMeters(ctx)
	if err != nil {
		return err
	}
	if len(updates) > 0 {
		sink.BroadcastMeters(updates)
	}
	return nil
}
