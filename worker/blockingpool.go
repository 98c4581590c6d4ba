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

	"golang.org/x/sync/semaphore"
)

// BlockingPool bounds how many synchronous, blocking calls (WSGI handlers,
// which spec.md models as running on a dedicated "blocking-thread pool")
// may run at once. Unlike the accept-loop backpressure semaphore, it
// governs CPU/goroutine fan-out for handlers that cannot be written
// asynchronously, not the number of live connections.
type BlockingPool struct {
	sem *semaphore.Weighted
}

// NewBlockingPool builds a pool allowing up to size concurrent Run calls.
// size <= 0 is treated as 1 (never fully inline, so one slow handler still
// can't starve every other connection outright).
func NewBlockingPool(size int) *BlockingPool {
	if size <= 0 {
		size = 1
	}
	return &BlockingPool{sem: semaphore.NewWeighted(int64(size))}
}

// Run blocks until a pool slot is free (or ctx is done), then calls fn on
// the calling goroutine and releases the slot when fn returns.
func (p *BlockingPool) Run(ctx context.Context, fn func(ctx context.Context)) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	fn(ctx)
	return nil
}
