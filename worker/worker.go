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

// Package worker is the orchestrator tying every other component
// together: it owns the listening socket, the optional TLS termination,
// the dispatch strategy, and the per-connection bookkeeping needed for a
// graceful shutdown, per spec.md §4.9.
package worker

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/sabouaram/aerohttp/bridge"
	"github.com/sabouaram/aerohttp/connserve"
	"github.com/sabouaram/aerohttp/listener"
	"github.com/sabouaram/aerohttp/logger"
	"github.com/sabouaram/aerohttp/metrics"
	"github.com/sabouaram/aerohttp/protocol"
	"github.com/sabouaram/aerohttp/scheduler"
	"github.com/sabouaram/aerohttp/staticfile"
	"github.com/sabouaram/aerohttp/tlsaccept"
	"github.com/sabouaram/aerohttp/wsbridge"
)

// Worker runs one accept loop against one listening socket, dispatching
// every connection's requests to handler through a scheduler.Strategy.
type Worker struct {
	cfg        Config
	handler    protocol.Handler
	rawHandler protocol.Handler
	log        logger.Logger

	strategy scheduler.Strategy
	static   *staticfile.Handler
	upgrader *wsbridge.Upgrader
	permits  *semaphore.Weighted

	mu            sync.Mutex
	ln            net.Listener
	conns         map[net.Conn]context.CancelFunc
	connCancelAll context.CancelFunc
	serving       bool

	wg sync.WaitGroup
}

// New builds a Worker from cfg. handler is the application-level
// protocol.Handler every accepted connection's requests are ultimately
// dispatched to.
func New(cfg Config, handler protocol.Handler, log logger.Logger) *Worker {
	w := &Worker{
		cfg:        cfg,
		handler:    handler,
		rawHandler: handler,
		log:        log,
		conns:      make(map[net.Conn]context.CancelFunc),
	}

	if cfg.Backpressure > 0 {
		w.permits = semaphore.NewWeighted(int64(cfg.Backpressure))
	}

	if cfg.StaticFiles != nil {
		w.static = staticfile.New(*cfg.StaticFiles)
	}

	if cfg.WebSocketsEnabled {
		w.upgrader = wsbridge.NewUpgrader(cfg.WebSocket, nil)
	}

	if cfg.Metrics != nil {
		w.handler = instrumentHandler(cfg.Metrics, w.handler)
	}

	return w
}

// instrumentHandler wraps h so every call records its method, resulting
// status, and latency on reg.
func instrumentHandler(reg *metrics.Registry, h protocol.Handler) protocol.Handler {
	return func(scope *protocol.Scope, body any) (protocol.Result, error) {
		start := time.Now()
		res, err := h(scope, body)

		status := int(res.Status)
		if err != nil && status == 0 {
			status = 500
		}
		reg.ObserveRequest(scope.Method, status, time.Since(start))

		return res, err
	}
}

// GetBindable reports the configured listen address, the pool's join key.
func (w *Worker) GetBindable() string {
	return string(w.cfg.Listener.Network) + ":" + w.cfg.Listener.Address
}

// GetName reports the worker's configured name, for status/filter use.
func (w *Worker) GetName() string {
	return w.cfg.Name
}

// Addr returns the actual listening address once Serve has bound the
// socket, or nil beforehand — useful when Config.Listener.Address names
// an ephemeral port ("127.0.0.1:0").
func (w *Worker) Addr() net.Addr {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ln == nil {
		return nil
	}
	return w.ln.Addr()
}

// IsRunning reports whether Serve is currently driving the accept loop.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.serving
}

// Serve opens the listening socket (wrapping it with TLS if configured),
// builds the dispatch strategy, and runs the accept loop until ctx is
// canceled or the listener itself fails fatally. It returns nil on a
// clean, caller-initiated stop.
func (w *Worker) Serve(ctx context.Context) error {
	w.mu.Lock()
	if w.serving {
		w.mu.Unlock()
		return ErrorAlreadyServing.Error(nil)
	}
	w.serving = true
	w.mu.Unlock()

	ln, lerr := listener.New(ctx, w.cfg.Listener)
	if lerr != nil {
		w.mu.Lock()
		w.serving = false
		w.mu.Unlock()
		return ErrorListen.Error(lerr)
	}

	if w.cfg.TLS != nil {
		wrapped, terr := tlsaccept.Wrap(ln, w.cfg.TLS, w.cfg.TLSMode, w.log)
		if terr != nil {
			_ = ln.Close()
			w.mu.Lock()
			w.serving = false
			w.mu.Unlock()
			return ErrorTLSWrap.Error(terr)
		}
		ln = wrapped
	}

	w.mu.Lock()
	w.ln = ln
	w.mu.Unlock()

	w.strategy = scheduler.New(w.cfg.Scheduler)

	// connRoot parents every accepted connection's context instead of ctx
	// itself: ctx is typically signal.NotifyContext-derived and dies the
	// instant SIGINT/SIGTERM fires, which would abort every in-flight
	// request before Shutdown ever got a chance to honor its own grace
	// window (spec.md §5). Shutdown cancels connRoot itself, once the
	// window elapses with connections still open.
	connRoot, connCancelAll := context.WithCancel(context.Background())
	w.mu.Lock()
	w.connCancelAll = connCancelAll
	w.mu.Unlock()
	defer connCancelAll()

	defer func() {
		w.mu.Lock()
		w.serving = false
		w.mu.Unlock()
	}()

	for {
		// spec.md §4.9's accept-loop contract acquires the permit before
		// calling accept, so a saturated worker stops pulling new
		// connections off the kernel queue instead of accepting and then
		// immediately blocking them.
		if w.permits != nil {
			if acqErr := w.permits.Acquire(ctx, 1); acqErr != nil {
				if ctx.Err() != nil {
					return nil
				}
				continue
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			if w.permits != nil {
				w.permits.Release(1)
			}
			if ctx.Err() != nil {
				return nil
			}
			if listener.IsFatal(err) {
				return err
			}
			continue
		}

		if w.cfg.Metrics != nil {
			w.cfg.Metrics.ConnectionOpened()
		}

		connCtx, cancel := context.WithCancel(connRoot)
		w.mu.Lock()
		w.conns[conn] = cancel
		w.mu.Unlock()

		w.wg.Add(1)
		go w.serveConn(connCtx, cancel, conn)
	}
}

func (w *Worker) serveConn(ctx context.Context, cancel context.CancelFunc, conn net.Conn) {
	defer w.wg.Done()
	defer cancel()
	defer conn.Close()
	defer func() {
		w.mu.Lock()
		delete(w.conns, conn)
		w.mu.Unlock()
		if w.permits != nil {
			w.permits.Release(1)
		}
		if w.cfg.Metrics != nil {
			w.cfg.Metrics.ConnectionClosed()
		}
	}()

	connID := uuid.NewString()
	connLog := w.log
	if connLog != nil {
		connLog = connLog.Clone()
		connLog.SetFields(logger.Fields{"conn_id": connID, "remote": conn.RemoteAddr().String()})
	}

	dispatch := func(ctx context.Context, scope *protocol.Scope, body any) *bridge.Awaitable[protocol.Result] {
		return w.strategy.Dispatch(ctx, scope, body, w.handler)
	}

	opts := w.cfg.HTTP
	if w.static != nil {
		opts.Static = func(rw http.ResponseWriter, r *http.Request) bool {
			served := w.static.TryServe(rw, r)
			if served && w.cfg.Metrics != nil {
				w.cfg.Metrics.StaticFileServed()
			}
			return served
		}
	}
	if w.upgrader != nil {
		opts.WebSocket = func(rw http.ResponseWriter, r *http.Request) bool {
			if wsbridge.ValidateUpgradeRequest(r) != nil {
				return false
			}

			sess, err := w.upgrader.Accept(ctx, rw, r, func() bool { return true })
			if err != nil {
				return true
			}
			if w.cfg.Metrics != nil {
				w.cfg.Metrics.WebSocketUpgraded()
			}

			// Dispatched through the same scheduler.Strategy as HTTP requests
			// (spec.md §4.9's "accepted WebSocket transport" case), but against
			// rawHandler rather than the instrumented w.handler: a session can
			// live for the life of the connection, and folding its whole
			// duration into the HTTP request-latency histogram would poison it.
			a := w.strategy.Dispatch(ctx, wsScope(r), sess, w.rawHandler)
			if _, derr := a.Await(ctx); derr != nil && connLog != nil {
				connLog.Entry(logger.DebugLevel, "websocket handler ended").ErrorAdd(true, derr).Check(logger.DebugLevel)
			}
			_ = sess.Close()
			return true
		}
	}

	if err := connserve.Serve(ctx, conn, opts, dispatch, connLog); err != nil {
		if connLog != nil {
			connLog.Entry(logger.DebugLevel, "connection serve ended").ErrorAdd(true, err).Check(logger.DebugLevel)
		}
	}
}

// Shutdown stops the accept loop and lets every live connection finish
// what it's already serving, only broadcasting cancellation if ctx's
// grace window elapses first — the ordering spec.md §5 lays out: stop
// accept, let in-flight work drain, abort-and-cancel on timeout, tracker
// wait, strategy teardown.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	ln := w.ln
	w.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if w.strategy != nil {
			w.strategy.Close()
		}
		return nil
	case <-ctx.Done():
	}

	// Grace window elapsed with connections still open: abort them now
	// rather than leave them running past the caller's deadline.
	w.mu.Lock()
	cancelAll := w.connCancelAll
	w.mu.Unlock()
	if cancelAll != nil {
		cancelAll()
	}

	if w.strategy != nil {
		w.strategy.Close()
	}

	return ErrorShutdownTimeout.Error(ctx.Err())
}

// wsScope builds the protocol.Scope for an upgraded connection the same way
// connserve.buildScope does for a plain request, with Proto set to
// "websocket" and Subprotocols parsed out of Sec-WebSocket-Protocol so an
// asgi/rsgi adapter sees the same candidate list wsbridge negotiated from.
func wsScope(r *http.Request) *protocol.Scope {
	var headers protocol.Headers
	for name, values := range r.Header {
		for _, v := range values {
			headers.Add(name, v)
		}
	}

	scheme := "ws"
	if r.TLS != nil {
		scheme = "wss"
	}

	var subprotocols []string
	if v := r.Header.Get("Sec-WebSocket-Protocol"); v != "" {
		for _, p := range strings.Split(v, ",") {
			subprotocols = append(subprotocols, strings.TrimSpace(p))
		}
	}

	return &protocol.Scope{
		Proto:        "websocket",
		HTTPVersion:  "1.1",
		Server:       r.Host,
		Client:       r.RemoteAddr,
		Scheme:       scheme,
		Method:       r.Method,
		Path:         r.URL.Path,
		RawPath:      r.URL.EscapedPath(),
		QueryString:  r.URL.RawQuery,
		Authority:    r.Host,
		Headers:      headers,
		Subprotocols: subprotocols,
	}
}
