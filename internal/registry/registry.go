package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/nerrad567/gray-logic-mixer/internal/board"
)

// DefaultQueueSize is the per-plugin operation queue length.
const DefaultQueueSize = 64

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Op is one operation to run against a plugin.
type Op struct {
	// Name identifies the operation in logs and panic reports.
	Name string
	Fn   func(ctx context.Context, p board.Plugin) error
}

// Outcome is the result of an Op on one plugin.
type Outcome struct {
	DeviceID string
	Op       string
	Err      error
}

// Outcomes holds one Outcome per addressed plugin, ordered by device id.
type Outcomes []Outcome

// Failed returns the outcomes that carry an error.
func (o Outcomes) Failed() Outcomes {
	var out Outcomes
	for _, oc := range o {
		if oc.Err != nil {
			out = append(out, oc)
		}
	}
	return out
}

// Err joins every failure, prefixed with its device id. Nil when all
// plugins succeeded.
func (o Outcomes) Err() error {
	var errs []error
	for _, oc := range o {
		if oc.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", oc.DeviceID, oc.Err))
		}
	}
	return errors.Join(errs...)
}

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]*worker
	ports   map[string]string // connection string -> device id
	closed  bool

	queueSize int
	logger    Logger
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		workers:   make(map[string]*worker),
		ports:     make(map[string]string),
		queueSize: DefaultQueueSize,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetQueueSize changes the queue length used for plugins registered later.
func (r *Registry) SetQueueSize(n int) {
	if n > 0 {
		r.queueSize = n
	}
}

// Register adds a plugin and starts its worker.
func (r *Registry) Register(p board.Plugin) error {
	id := p.ID()
	port := portKey(p.DeviceInfo().ConnectionString)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if _, ok := r.workers[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}
	if port != "" {
		if owner, ok := r.ports[port]; ok {
			return fmt.Errorf("%w: %s is bound to %s", ErrPortInUse, port, owner)
		}
		r.ports[port] = id
	}

	w := newWorker(p, r.queueSize, r.logger)
	r.workers[id] = w
	go w.run()

	r.logger.Info("plugin registered", "device", id, "port", port)
	return nil
}

// Unregister drains the plugin's queue, stops its worker and disconnects
// it. The port becomes free as soon as Unregister returns.
func (r *Registry) Unregister(ctx context.Context, id string) error {
	r.mu.Lock()
	w, ok := r.workers[id]
	if ok {
		delete(r.workers, id)
		for port, owner := range r.ports {
			if owner == id {
				delete(r.ports, port)
			}
		}
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	return r.stop(ctx, w)
}

func (r *Registry) stop(ctx context.Context, w *worker) error {
	close(w.quit)
	select {
	case <-w.done:
	case <-ctx.Done():
		return fmt.Errorf("draining %s: %w", w.id, ctx.Err())
	}
	if err := w.plugin.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnecting %s: %w", w.id, err)
	}
	r.logger.Info("plugin unregistered", "device", w.id)
	return nil
}

// Plugin returns the registered plugin with the given id.
func (r *Registry) Plugin(id string) (board.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[id]
	if !ok {
		return nil, false
	}
	return w.plugin, true
}

// Plugins returns every registered plugin ordered by id.
func (r *Registry) Plugins() []board.Plugin {
	ws, _ := r.lookup(nil)
	out := make([]board.Plugin, len(ws))
	for i, w := range ws {
		out[i] = w.plugin
	}
	return out
}

// IDs returns the registered plugin ids in order.
func (r *Registry) IDs() []string {
	ws, _ := r.lookup(nil)
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.id
	}
	return out
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// lookup returns the workers for ids (all when ids is nil) sorted by id.
// Unknown ids are returned in missing.
func (r *Registry) lookup(ids []string) (ws []*worker, missing []string) {
	r.mu.RLock()
	if ids == nil {
		for _, w := range r.workers {
			ws = append(ws, w)
		}
	} else {
		for _, id := range ids {
			if w, ok := r.workers[id]; ok {
				ws = append(ws, w)
			} else {
				missing = append(missing, id)
			}
		}
	}
	r.mu.RUnlock()
	slices.SortFunc(ws, func(a, b *worker) int { return strings.Compare(a.id, b.id) })
	ws = slices.CompactFunc(ws, func(a, b *worker) bool { return a == b })
	return ws, missing
}

// Dispatch runs op on every registered plugin and waits for all outcomes.
func (r *Registry) Dispatch(ctx context.Context, op Op) Outcomes {
	ws, _ := r.lookup(nil)
	return r.run(ctx, ws, nil, op)
}

// DispatchTo runs op on the plugins with the given ids. Unknown ids yield
// an ErrNotRegistered outcome.
func (r *Registry) DispatchTo(ctx context.Context, ids []string, op Op) Outcomes {
	ws, missing := r.lookup(ids)
	return r.run(ctx, ws, missing, op)
}

// Submit queues op for one plugin and returns immediately. The outcome is
// delivered on the returned channel once the op has run.
func (r *Registry) Submit(ctx context.Context, id string, op Op) (<-chan Outcome, error) {
	r.mu.RLock()
	w, ok := r.workers[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	res := make(chan Outcome, 1)
	if err := w.submit(ctx, job{ctx: ctx, op: op, result: res}); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Registry) run(ctx context.Context, ws []*worker, missing []string, op Op) Outcomes {
	pending := make([]chan Outcome, len(ws))
	out := make(Outcomes, 0, len(ws)+len(missing))

	// Enqueue everywhere first so plugins run in parallel.
	errs := make([]error, len(ws))
	for i, w := range ws {
		pending[i] = make(chan Outcome, 1)
		errs[i] = w.submit(ctx, job{ctx: ctx, op: op, result: pending[i]})
	}
	for i, w := range ws {
		if errs[i] != nil {
			out = append(out, Outcome{DeviceID: w.id, Op: op.Name, Err: errs[i]})
			continue
		}
		out = append(out, w.wait(ctx, op.Name, pending[i]))
	}
	for _, id := range missing {
		out = append(out, Outcome{DeviceID: id, Op: op.Name, Err: ErrNotRegistered})
	}
	for _, oc := range out {
		if oc.Err != nil {
			r.logger.Warn("plugin operation failed", "device", oc.DeviceID, "op", oc.Op, "error", oc.Err)
		}
	}
	return out
}

// Close unregisters every plugin. Later calls to Register fail.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	ws := make([]*worker, 0, len(r.workers))
	for _, w := range r.workers {
		ws = append(ws, w)
	}
	r.workers = make(map[string]*worker)
	r.ports = make(map[string]string)
	r.mu.Unlock()

	var errs []error
	for _, w := range ws {
		if err := r.stop(ctx, w); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// portKey normalises a connection string for the port-in-use check.
func portKey(conn string) string {
	return strings.ToLower(strings.TrimSpace(conn))
}
