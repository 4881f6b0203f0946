package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-mixer/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	// Meter snapshots arrive every few tens of milliseconds; telemetry
	// keeps at most one per meterWriteInterval.
	meterWriteInterval = time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// pointWriter is the subset of api.WriteAPI the client uses.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Stats counts telemetry points since Connect.
type Stats struct {
	Points      uint64 `json:"points"`
	WriteErrors uint64 `json:"write_errors"`
}

// Client is the telemetry sink for meters and parameter changes. Points
// are batched by the influxdb client and written in the background.
type Client struct {
	influx influxdb2.Client
	writer pointWriter

	open atomic.Bool

	points      atomic.Uint64
	writeErrors atomic.Uint64

	mu          sync.Mutex
	onError     func(err error)
	lastMeterAt time.Time
}

// Connect checks the server answers a ping and opens the batched writer
// for cfg.Org and cfg.Bucket.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batch, flush := defaultBatchSize, defaultFlushInterval
	if cfg.BatchSize > 0 {
		batch = cfg.BatchSize
	}
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}
	// #nosec G115 -- both values are positive
	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).
		SetFlushInterval(uint(flush.Milliseconds()))
	influx := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := ping(ctx, influx); err != nil {
		influx.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	w := influx.WriteAPI(cfg.Org, cfg.Bucket)
	c := newClient(influx, w)
	go c.watchErrors(w.Errors())
	return c, nil
}

func newClient(influx influxdb2.Client, w pointWriter) *Client {
	c := &Client{influx: influx, writer: w}
	c.open.Store(w != nil)
	return c
}

func ping(ctx context.Context, influx influxdb2.Client) error {
	healthy, err := influx.Ping(ctx)
	if err != nil {
		return err
	}
	if !healthy {
		return fmt.Errorf("server not ready")
	}
	return nil
}

// watchErrors forwards batch failures to the OnError callback until the
// writer closes errs.
func (c *Client) watchErrors(errs <-chan error) {
	for err := range errs {
		c.writeErrors.Add(1)
		c.mu.Lock()
		onError := c.onError
		c.mu.Unlock()
		if onError != nil {
			onError(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

func (c *Client) write(p *write.Point) {
	c.writer.WritePoint(p)
	c.points.Add(1)
}

// meterDue reports whether a meter snapshot taken at now should be kept.
func (c *Client) meterDue(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.Sub(c.lastMeterAt) < meterWriteInterval {
		return false
	}
	c.lastMeterAt = now
	return true
}

// Close flushes buffered points and releases the client. Later writes are
// dropped.
func (c *Client) Close() error {
	if c.writer == nil || !c.open.Swap(false) {
		return nil
	}
	c.writer.Flush()
	if c.influx != nil {
		c.influx.Close()
	}
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx, c.influx); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// IsConnected reports whether the client is open.
func (c *Client) IsConnected() bool { return c.open.Load() }

// Stats returns the point counters.
func (c *Client) Stats() Stats {
	return Stats{Points: c.points.Load(), WriteErrors: c.writeErrors.Load()}
}

// MessageCounts reports points written as sent. Nothing is received.
func (c *Client) MessageCounts() (sent, received uint64) {
	return c.points.Load(), 0
}

// SetOnError sets the callback for background write failures. Errors
// wrap ErrWriteFailed.
func (c *Client) SetOnError(fn func(err error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// Flush sends buffered points now.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writer.Flush()
	}
}
