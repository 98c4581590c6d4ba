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

// Package bridge carries results across the boundary between the connection
// driver's goroutine and whatever goroutine a protocol.Handler actually runs
// on, standing in for the native/hosted-runtime awaitable of an embedded
// interpreter: here the "hosted runtime" is just the handler value the
// caller supplied.
package bridge

import (
	"context"
	"sync"

	liberr "github.com/sabouaram/aerohttp/errors"
)

type result[T any] struct {
	val T
	err error
}

// Awaitable wraps a one-shot, buffered result channel. Await blocks until
// the producer publishes or ctx is done; Cancel lets a consumer that no
// longer cares stop waiting without leaking the producer goroutine, which
// never blocks on send because the channel is buffered size 1.
type Awaitable[T any] struct {
	ch   chan result[T]
	done chan struct{}
	once sync.Once
}

func newAwaitable[T any]() *Awaitable[T] {
	return &Awaitable[T]{
		ch:   make(chan result[T], 1),
		done: make(chan struct{}),
	}
}

func (a *Awaitable[T]) publish(val T, err error) {
	a.ch <- result[T]{val: val, err: err}
}

// Await blocks until the producer publishes a value, ctx is done, or the
// awaitable is canceled, whichever happens first.
func (a *Awaitable[T]) Await(ctx context.Context) (T, error) {
	var zero T

	select {
	case r := <-a.ch:
		return r.val, r.err
	case <-a.done:
		select {
		case r := <-a.ch:
			return r.val, r.err
		default:
		}
		return zero, ErrorAwaitCanceled.Error(nil)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Cancel unblocks any pending Await with ErrorAwaitCanceled. It is a no-op
// if the awaitable already has a result or was already canceled.
func (a *Awaitable[T]) Cancel() {
	a.once.Do(func() {
		close(a.done)
	})
}

// FromFuture spawns f on a new goroutine and returns an Awaitable that
// publishes its result. f always receives ctx so it can honor cancellation
// itself; FromFuture does not kill the goroutine if ctx is done first, it
// only stops waiting on it (matching Awaitable.Await's ctx.Done race).
func FromFuture[T any](ctx context.Context, f func(context.Context) (T, error)) *Awaitable[T] {
	a := newAwaitable[T]()

	go func() {
		val, err := f(ctx)
		a.publish(val, err)
	}()

	return a
}

// loopKey is the context key carrying the Loop reference; TaskLocals stores
// the loop under this key and LoopFrom reads it back.
type loopKey struct{}

// Loop is the minimal surface bridge needs from a scheduler.Loop, so this
// package depends on behavior, not on the scheduler package's types.
type Loop interface {
	Dispatch(ctx context.Context, fn func(context.Context)) bool
}

// TaskLocals attaches loop to ctx, so nested handler calls can recover
// "the loop this request is running on" via LoopFrom. This replaces the
// {event_loop, context} tuple of an embedded-interpreter bridge.
func TaskLocals(ctx context.Context, loop Loop) context.Context {
	return context.WithValue(ctx, loopKey{}, loop)
}

// LoopFrom recovers the loop stashed by TaskLocals. defaultLoop is used
// when ctx carries none — the "current-thread running loop" fallback step
// of the lookup order; if that is also nil, LoopFrom reports ErrorNoLoop.
func LoopFrom(ctx context.Context, defaultLoop Loop) (Loop, liberr.Error) {
	if l, ok := ctx.Value(loopKey{}).(Loop); ok && l != nil {
		return l, nil
	}

	if defaultLoop != nil {
		return defaultLoop, nil
	}

	return nil, ErrorNoLoop.Error(nil)
}
