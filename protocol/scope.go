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

package protocol

// Scope is the read-only request metadata handed to every adapter, built
// once per request by connserve and never mutated afterwards — the Go
// analogue of RSGI's Scope object and ASGI's scope dict, unified so
// connserve only assembles it once per request regardless of which wire
// protocol the handler speaks.
type Scope struct {
	Proto        string // "http" or "websocket"
	HTTPVersion  string // "1.1", "2"
	Server       string // local address, host:port
	Client       string // remote address, host:port
	Scheme       string // "http" or "https"
	Method       string
	Path         string
	RawPath      string
	QueryString  string
	Authority    string // Host header / :authority pseudo-header
	RootPath     string
	Headers      Headers
	Subprotocols []string // WebSocket candidate subprotocols, empty for plain HTTP
}

// Handler is the Go stand-in for the hosted callable RSGI/ASGI/WSGI each
// invoke with a different calling convention; connserve always calls it the
// same way and leaves protocol-specific argument shape to the protocol/*
// adapter wrapping it. Body is the request body as an io.Reader for an HTTP
// request, or the *wsbridge.Session for an upgraded WebSocket; each adapter
// type-asserts the shape it expects out of this field and builds its own
// protocol object (an *rsgi.HTTPProtocol, asgi receive/send functions, a
// wsgi Environ) from it.
type Handler func(scope *Scope, body any) (Result, error)

// Result is the outcome connserve writes to the wire once a Handler's
// Awaitable resolves.
type Result struct {
	Status  uint16
	Headers Headers
	Body    []byte // used when the response fits in memory as one chunk

	// Stream carries a lazy finite sequence of body chunks (spec.md §2's
	// "finite lazy sequence of byte chunks") for adapters that produce the
	// response incrementally — rsgi.StreamTransport and wsgi's yielded
	// iterable both publish through this instead of Body. connserve drains
	// it to completion (a closed channel ends the response) instead of
	// using Body when Stream is non-nil.
	Stream <-chan []byte
}
