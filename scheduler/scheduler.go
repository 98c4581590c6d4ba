/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package scheduler posts handler dispatch onto a chosen execution
// topology — a fixed pool of dedicated goroutines standing in for the
// hosted runtime's own dedicated thread, or the caller's own goroutine when
// no dedicated pool is configured — and returns a bridge.Awaitable the
// connection driver waits on for the result.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sabouaram/aerohttp/bridge"
	"github.com/sabouaram/aerohttp/protocol"
)

// Config mirrors the "scheduling topology" fields of the worker
// configuration in spec.md §3: hosted-side thread count and their idle
// timeout.
type Config struct {
	// HostedThreads is the fixed pool size for LoopThread. Zero selects
	// RuntimeThread (inline dispatch on the caller's goroutine).
	HostedThreads int
	// HostedIdleTimeout is how long a pool goroutine waits for the next job
	// before exiting; it is respawned on demand, up to HostedThreads.
	HostedIdleTimeout time.Duration
	// QueueSize bounds the buffered job channel LoopThread reads from.
	QueueSize int
}

// New picks RuntimeThread when cfg.HostedThreads == 0, LoopThread otherwise
// — the selection rule of spec.md §4.4.
func New(cfg Config) Strategy {
	if cfg.HostedThreads <= 0 {
		return NewRuntimeThread()
	}
	return NewLoopThread(cfg)
}

// Strategy dispatches a handler call and returns the one-shot awaitable
// connserve waits on for the response. Loop returns a bridge.Loop that posts
// work onto this Strategy. Dispatch does not attach it to the request with
// bridge.TaskLocals, and a protocol.Handler receives no context, so a
// handler cannot recover it through bridge.LoopFrom; callers holding the
// Strategy use Loop directly.
type Strategy interface {
	Dispatch(ctx context.Context, scope *protocol.Scope, body any, h protocol.Handler) *bridge.Awaitable[protocol.Result]
	Loop() bridge.Loop
	Close()
}

// runHandler calls h, turning a panic into an error that carries the panic
// value and stack, so connserve answers with a 500 instead of the process
// crashing.
func runHandler(scope *protocol.Scope, body any, h protocol.Handler) (res protocol.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = protocol.Result{}, fmt.Errorf("handler panic: %v\n%s", p, debug.Stack())
		}
	}()
	return h(scope, body)
}

// RuntimeThread calls the handler inline, on whatever goroutine ends up
// running the future bridge.FromFuture spawns — the "shares the native
// runtime's thread" strategy, selected when Config.HostedThreads == 0.
type RuntimeThread struct{}

// NewRuntimeThread returns a Strategy that never hands dispatch off to a
// separate goroutine pool.
func NewRuntimeThread() *RuntimeThread {
	return &RuntimeThread{}
}

func (r *RuntimeThread) Dispatch(ctx context.Context, scope *protocol.Scope, body any, h protocol.Handler) *bridge.Awaitable[protocol.Result] {
	return bridge.FromFuture(ctx, func(ctx context.Context) (protocol.Result, error) {
		return runHandler(scope, body, h)
	})
}

func (r *RuntimeThread) Loop() bridge.Loop {
	return runtimeLoop{}
}

func (r *RuntimeThread) Close() {}

// runtimeLoop satisfies bridge.Loop by running fn inline: RuntimeThread has
// no dedicated goroutine to post to, so "dispatching onto the loop" is just
// calling fn where you already are.
type runtimeLoop struct{}

func (runtimeLoop) Dispatch(ctx context.Context, fn func(context.Context)) bool {
	fn(ctx)
	return true
}

type jobResult struct {
	result protocol.Result
	err    error
}

// job is either a handler dispatch (scope/body/h set) or a plain posted
// function (fn set, the bridge.Loop.Dispatch case) — runWorker executes
// whichever field is populated and reports completion on resp/done.
type job struct {
	scope *protocol.Scope
	body  any
	h     protocol.Handler
	resp  chan<- jobResult

	fn   func(context.Context)
	ctx  context.Context
	done chan<- struct{}
}

// LoopThread runs handler dispatch on a fixed pool of goroutines reading
// from a buffered job channel — the "dedicated thread" stand-in of
// spec.md §4.4. Idle workers exit after Config.HostedIdleTimeout and are
// respawned on demand, up to Config.HostedThreads.
type LoopThread struct {
	cfg    Config
	jobs   chan job
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	running int
}

// NewLoopThread builds a LoopThread sized by cfg.HostedThreads. Workers are
// spawned lazily, one per Dispatch/Loop().Dispatch call that finds the pool
// below its cap, so a LoopThread that never sees load starts no goroutines.
func NewLoopThread(cfg Config) *LoopThread {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.HostedThreads * 4
	}
	if cfg.HostedIdleTimeout <= 0 {
		cfg.HostedIdleTimeout = 30 * time.Second
	}

	return &LoopThread{
		cfg:    cfg,
		jobs:   make(chan job, cfg.QueueSize),
		closed: make(chan struct{}),
	}
}

func (l *LoopThread) Dispatch(ctx context.Context, scope *protocol.Scope, body any, h protocol.Handler) *bridge.Awaitable[protocol.Result] {
	resp := make(chan jobResult, 1)

	return bridge.FromFuture(ctx, func(ctx context.Context) (protocol.Result, error) {
		if err := ctx.Err(); err != nil {
			return protocol.Result{}, err
		}

		l.ensureWorker()

		select {
		case l.jobs <- job{scope: scope, body: body, h: h, resp: resp}:
		case <-ctx.Done():
			return protocol.Result{}, ctx.Err()
		case <-l.closed:
			return protocol.Result{}, ErrorStrategyStopped.Error(nil)
		}

		select {
		case r := <-resp:
			return r.result, r.err
		case <-ctx.Done():
			return protocol.Result{}, ctx.Err()
		case <-l.closed:
			return protocol.Result{}, ErrorStrategyStopped.Error(nil)
		}
	})
}

func (l *LoopThread) ensureWorker() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running >= l.cfg.HostedThreads {
		return
	}
	l.running++
	go l.runWorker()
}

func (l *LoopThread) runWorker() {
	defer func() {
		l.mu.Lock()
		l.running--
		l.mu.Unlock()
	}()

	idle := time.NewTimer(l.cfg.HostedIdleTimeout)
	defer idle.Stop()

	for {
		select {
		case j, ok := <-l.jobs:
			if !ok {
				return
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}

			switch {
			case j.h != nil:
				r, err := runHandler(j.scope, j.body, j.h)
				j.resp <- jobResult{result: r, err: err}
			case j.fn != nil:
				j.fn(j.ctx)
				close(j.done)
			}

			idle.Reset(l.cfg.HostedIdleTimeout)
		case <-idle.C:
			return
		case <-l.closed:
			return
		}
	}
}

func (l *LoopThread) Loop() bridge.Loop {
	return loopThreadLoop{l}
}

// Close stops accepting new jobs and lets running/queued workers drain on
// their own; it does not block for them to finish.
func (l *LoopThread) Close() {
	l.once.Do(func() {
		close(l.closed)
	})
}

type loopThreadLoop struct {
	l *LoopThread
}

// Dispatch posts fn onto the LoopThread pool the same way a handler
// dispatch is posted, and waits for it to run — the "thread-safe enqueue
// primitive of the hosted loop" of spec.md §4.4's loop-thread strategy.
func (t loopThreadLoop) Dispatch(ctx context.Context, fn func(context.Context)) bool {
	done := make(chan struct{})

	t.l.ensureWorker()

	select {
	case t.l.jobs <- job{fn: fn, ctx: ctx, done: done}:
	case <-ctx.Done():
		return false
	case <-t.l.closed:
		return false
	}

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	case <-t.l.closed:
		return false
	}
}
