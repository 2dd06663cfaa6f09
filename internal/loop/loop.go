// Package loop implements the single-threaded cooperative event loop that
// owns a Client/Server instance's mutable state (transaction table, dialog
// table, handler chain). Every mutation happens on the loop goroutine, so
// callers never need a mutex around that state.
//
// This replaces the teacher's (sip_old_ref/transaction_client_tx.go,
// transaction_server_tx.go) pattern of one goroutine plus sync.Mutex per
// transaction with time.AfterFunc firing state transitions inline on
// arbitrary goroutines: every timer here still uses time.AfterFunc, but the
// fired callback only ever posts a task back to the loop, so the actual
// transition always happens on the same goroutine as everything else.
package loop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrLoopClosed is returned by Post once the loop has been closed.
var ErrLoopClosed = errors.New("loop: closed")

// task is one unit of work the loop goroutine runs. The *Loop argument lets
// a task schedule follow-up work without reaching for a package-level
// variable.
type task func(l *Loop)

// Loop runs tasks one at a time on a single goroutine. Nothing outside of a
// task may touch state owned by the loop.
type Loop struct {
	tasks  chan task
	done   chan struct{}
	log    zerolog.Logger
	group  *errgroup.Group
	cancel context.CancelFunc

	closed chan struct{}
}

// Option configures a Loop at construction time.
type Option func(*Loop)

// WithLogger sets the logger the loop uses for dropped-task and panic
// reporting.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Loop) { l.log = log }
}

// WithQueueSize sets the task channel's buffer. The default (64) is enough
// for a handful of in-flight transactions; a busy server handling many
// concurrent calls should size this to its expected fan-in.
func WithQueueSize(n int) Option {
	return func(l *Loop) { l.tasks = make(chan task, n) }
}

// New starts a Loop's goroutine and returns a handle to it. Call Close to
// stop it; pending tasks posted after Close silently return
// ErrLoopClosed-wrapped errors to whoever tried to post them (see Post).
func New(ctx context.Context, opts ...Option) *Loop {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	l := &Loop{
		tasks:  make(chan task, 64),
		done:   make(chan struct{}),
		log:    zerolog.Nop(),
		group:  g,
		cancel: cancel,
		closed: make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}

	g.Go(func() error {
		l.run(gctx)
		return nil
	})

	return l
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case t := <-l.tasks:
			l.runTask(t)
		case <-ctx.Done():
			l.drain()
			return
		}
	}
}

// drain runs whatever tasks are already queued before the loop exits, so a
// Close racing with a just-posted task doesn't silently lose it. The tasks
// channel is never closed (Post and Close could otherwise race on a
// send-to-closed-channel panic), so draining is bounded by "nothing left
// buffered" rather than a close signal.
func (l *Loop) drain() {
	for {
		select {
		case t := <-l.tasks:
			l.runTask(t)
		default:
			return
		}
	}
}

func (l *Loop) runTask(t task) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Interface("panic", r).Msg("loop: task panicked, recovered")
		}
	}()
	t(l)
}

// Post enqueues fn to run on the loop goroutine. Safe to call from any
// goroutine, including from inside another task. Returns ErrLoopClosed if
// the loop has already been closed.
func (l *Loop) Post(fn func(l *Loop)) error {
	select {
	case <-l.closed:
		return ErrLoopClosed
	default:
	}
	select {
	case l.tasks <- fn:
		return nil
	case <-l.closed:
		return ErrLoopClosed
	}
}

// PostDelayed schedules fn to run on the loop goroutine after d. The
// time.AfterFunc timer itself runs on its own goroutine, as usual for Go
// timers, but its only job is to call Post — fn always executes on the loop
// goroutine like any other task. Returns a cancel function that stops the
// timer if it hasn't fired yet.
func (l *Loop) PostDelayed(d time.Duration, fn func(l *Loop)) (cancel func() bool) {
	t := time.AfterFunc(d, func() {
		_ = l.Post(fn)
	})
	return t.Stop
}

// Close stops accepting new tasks, lets already-queued tasks finish, and
// waits for the loop goroutine to exit.
func (l *Loop) Close() error {
	select {
	case <-l.closed:
		return nil
	default:
		close(l.closed)
	}
	l.cancel()
	if err := l.group.Wait(); err != nil {
		return fmt.Errorf("loop: shutdown: %w", err)
	}
	return nil
}

// Done closes once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} { return l.done }
