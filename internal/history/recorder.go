package history

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
	"github.com/nerrad567/gray-logic-mixer/internal/state"
)

// DefaultRecorderQueue is the number of pending change sets a Recorder
// buffers before dropping.
const DefaultRecorderQueue = 1024

const pruneInterval = time.Hour

// Logger defines the logging interface used by the Recorder.
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

// Recorder writes applied changes to a Repository in the background. It
// implements state.Listener; state and device events are ignored.
type Recorder struct {
	state.NopListener

	repo      Repository
	retention time.Duration
	logger    Logger
	queue     chan []mixer.ParameterChange
	dropped   atomic.Uint64
}

// NewRecorder creates a recorder. A positive retention prunes older
// entries hourly while Run is active.
func NewRecorder(repo Repository, retention time.Duration, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		repo:      repo,
		retention: retention,
		logger:    logger,
		queue:     make(chan []mixer.ParameterChange, DefaultRecorderQueue),
	}
}

// ParametersChanged queues changes for writing. It never blocks; when the
// queue is full the changes are dropped and counted.
func (r *Recorder) ParametersChanged(changes []mixer.ParameterChange) {
	select {
	case r.queue <- changes:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns how many change sets were discarded on a full queue.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Run writes queued changes until ctx is cancelled, then flushes what is
// already queued.
func (r *Recorder) Run(ctx context.Context) {
	var prune <-chan time.Time
	if r.retention > 0 {
		t := time.NewTicker(pruneInterval)
		defer t.Stop()
		prune = t.C
	}
	for {
		select {
		case changes := <-r.queue:
			r.write(ctx, changes)
		case <-prune:
			if n, err := r.repo.Prune(ctx, r.retention); err != nil {
				r.logger.Warn("pruning history failed", "error", err)
			} else if n > 0 {
				r.logger.Debug("pruned history", "rows", n)
			}
		case <-ctx.Done():
			r.flush()
			return
		}
	}
}

func (r *Recorder) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case changes := <-r.queue:
			r.write(ctx, changes)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, changes []mixer.ParameterChange) {
	if err := r.repo.Record(ctx, changes); err != nil {
		r.logger.Warn("recording history failed", "changes", len(changes), "error", err)
	}
}
