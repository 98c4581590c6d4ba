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

package worker

import (
	"context"
	"strings"
	"sync"

	"github.com/sabouaram/aerohttp/errors"
)

// Pool manages multiple Workers bound to different listen addresses under
// one process, the way spec.md §4.9 describes a single engine hosting
// several sockets (plaintext + TLS, H1-only + H2-enabled, ...).
type Pool struct {
	mu      sync.RWMutex
	workers map[string]*Worker
}

// NewPool builds an empty Pool.
func NewPool() *Pool {
	return &Pool{workers: make(map[string]*Worker)}
}

// Add registers w under its GetBindable key. Adding a second worker for
// the same bind address is an error — use Del first to replace one.
func (p *Pool) Add(w *Worker) errors.Error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := w.GetBindable()
	if _, exists := p.workers[key]; exists {
		return ErrorPoolDuplicateBind.Error(nil)
	}

	p.workers[key] = w
	return nil
}

// Get returns the worker bound to bindAddress, or nil if none is
// registered.
func (p *Pool) Get(bindAddress string) *Worker {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.workers[bindAddress]
}

// Del shuts down and removes the worker bound to bindAddress.
func (p *Pool) Del(ctx context.Context, bindAddress string) errors.Error {
	p.mu.Lock()
	w, exists := p.workers[bindAddress]
	if exists {
		delete(p.workers, bindAddress)
	}
	p.mu.Unlock()

	if !exists {
		return ErrorPoolUnknownBind.Error(nil)
	}

	return w.Shutdown(ctx)
}

// Len reports how many workers are registered.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.workers)
}

// Filter returns every registered worker whose name contains pattern
// (case-insensitive).
func (p *Pool) Filter(pattern string) []*Worker {
	p.mu.RLock()
	defer p.mu.RUnlock()

	pattern = strings.ToLower(pattern)
	r := make([]*Worker, 0, len(p.workers))
	for _, w := range p.workers {
		if pattern == "" || strings.Contains(strings.ToLower(w.GetName()), pattern) {
			r = append(r, w)
		}
	}
	return r
}

// Serve starts every registered worker's accept loop concurrently,
// returning once all of them have stopped (by ctx cancellation, by a
// caller-initiated Shutdown, or by a fatal accept error).
func (p *Pool) Serve(ctx context.Context) {
	p.mu.RLock()
	workers := make([]*Worker, 0, len(p.workers))
	for _, w := range p.workers {
		workers = append(workers, w)
	}
	p.mu.RUnlock()

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			_ = w.Serve(ctx)
		}(w)
	}
	wg.Wait()
}

// Shutdown gracefully stops every registered worker, the fan-out-and-wait
// idiom httpserver/pool.go's runMapCommand applies to a pool of plain
// net/http servers, generalized here to a pool of raw-socket workers.
func (p *Pool) Shutdown(ctx context.Context) errors.Error {
	p.mu.RLock()
	workers := make([]*Worker, 0, len(p.workers))
	for _, w := range p.workers {
		workers = append(workers, w)
	}
	p.mu.RUnlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for _, w := range workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			if err := w.Shutdown(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	if len(errs) == 0 {
		return nil
	}
	return errors.New(ErrorShutdownTimeout.Uint16(), "one or more workers failed to shut down cleanly", errs...)
}
