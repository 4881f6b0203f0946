package registry

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-mixer/internal/board"
)

type job struct {
	ctx    context.Context
	op     Op
	result chan<- Outcome
}

// worker runs one plugin's operations in FIFO order.
type worker struct {
	id     string
	plugin board.Plugin
	logger Logger

	jobs chan job
	quit chan struct{}
	done chan struct{}
}

func newWorker(p board.Plugin, queueSize int, logger Logger) *worker {
	return &worker{
		id:     p.ID(),
		plugin: p,
		logger: logger,
		jobs:   make(chan job, queueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (w *worker) run() {
	defer close(w.done)
	for {
		select {
		case j := <-w.jobs:
			w.exec(j)
		case <-w.quit:
			// Drain what was queued before the stop.
			for {
				select {
				case j := <-w.jobs:
					w.exec(j)
				default:
					return
				}
			}
		}
	}
}

func (w *worker) submit(ctx context.Context, j job) error {
	select {
	case <-w.quit:
		return fmt.Errorf("%w: %s", ErrNotRegistered, w.id)
	default:
	}
	select {
	case w.jobs <- j:
		return nil
	case <-w.quit:
		return fmt.Errorf("%w: %s", ErrNotRegistered, w.id)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// wait returns the job's outcome. A job enqueued after the worker finished
// draining is reported as unregistered.
func (w *worker) wait(ctx context.Context, op string, res <-chan Outcome) Outcome {
	select {
	case oc := <-res:
		return oc
	case <-w.done:
		select {
		case oc := <-res:
			return oc
		default:
			return Outcome{DeviceID: w.id, Op: op, Err: ErrNotRegistered}
		}
	case <-ctx.Done():
		return Outcome{DeviceID: w.id, Op: op, Err: ctx.Err()}
	}
}

func (w *worker) exec(j job) {
	var err error
	if err = j.ctx.Err(); err == nil {
		err = w.call(j)
	}
	j.result <- Outcome{DeviceID: w.id, Op: j.op.Name, Err: err}
}

func (w *worker) call(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("registry: panic recovered", "device", w.id, "op", j.op.Name, "panic", r)
			err = fmt.Errorf("%w: %s: %v", ErrPanic, j.op.Name, r)
		}
	}()
	return j.op.Fn(j.ctx, w.plugin)
}
