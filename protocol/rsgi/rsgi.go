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

// Package rsgi is the native typed protocol adapter: the handler receives a
// *HTTPProtocol value exposing strongly-typed request-body and
// response-emission methods, the Go analogue of spec.md §4.6.1's RSGI
// HTTPProtocol object.
package rsgi

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/sabouaram/aerohttp/bridge"
	"github.com/sabouaram/aerohttp/protocol"
	"github.com/sabouaram/aerohttp/wsbridge"
)

// StreamTransport lets a handler push response chunks as they become
// available instead of returning one finished body.
type StreamTransport interface {
	Send(chunk []byte) error
	Close() error
}

// HTTPProtocol is the per-request RSGI protocol object: a request-body
// reader plus exactly one response emission (ResponseEmpty/Bytes/String/
// File/Stream — calling a second one returns ErrorDoubleResponse).
type HTTPProtocol struct {
	body io.Reader

	mu        sync.Mutex
	responded bool
	result    protocol.Result
}

// New wraps body (the request's io.Reader, typically an *http.Request.Body)
// as an RSGI HTTPProtocol.
func New(body io.Reader) *HTTPProtocol {
	return &HTTPProtocol{body: body}
}

// Body reads the whole request body as one []byte, via bridge.FromFuture so
// a blocking read never ties up the caller's goroutine synchronously.
func (p *HTTPProtocol) Body(ctx context.Context) ([]byte, error) {
	a := bridge.FromFuture(ctx, func(ctx context.Context) ([]byte, error) {
		b, err := io.ReadAll(p.body)
		if err != nil {
			return nil, ErrorPeerClosed.Error(err)
		}
		return b, nil
	})
	return a.Await(ctx)
}

// BodyStream reads the request body in chunks, publishing each one on the
// returned channel; the channel closes when the body is exhausted or ctx
// is done.
func (p *HTTPProtocol) BodyStream(ctx context.Context) <-chan []byte {
	out := make(chan []byte)

	go func() {
		defer close(out)
		buf := make([]byte, 32*1024)
		for {
			n, err := p.body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	return out
}

func (p *HTTPProtocol) markResponded() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.responded {
		return ErrorDoubleResponse.Error(nil)
	}
	p.responded = true
	return nil
}

// ResponseEmpty sends status/headers with no body.
func (p *HTTPProtocol) ResponseEmpty(status uint16, headers protocol.Headers) error {
	if err := p.markResponded(); err != nil {
		return err
	}
	p.result = protocol.Result{Status: status, Headers: headers}
	return nil
}

// ResponseBytes sends status/headers and a fixed-size body.
func (p *HTTPProtocol) ResponseBytes(status uint16, headers protocol.Headers, body []byte) error {
	if err := p.markResponded(); err != nil {
		return err
	}
	p.result = protocol.Result{Status: status, Headers: headers, Body: body}
	return nil
}

// ResponseString is ResponseBytes for a string body.
func (p *HTTPProtocol) ResponseString(status uint16, headers protocol.Headers, body string) error {
	return p.ResponseBytes(status, headers, []byte(body))
}

// ResponseFile reads path's whole contents into memory and sends them as a
// fixed-size response body; the file is not streamed in chunks.
func (p *HTTPProtocol) ResponseFile(status uint16, headers protocol.Headers, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	body, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	return p.ResponseBytes(status, headers, body)
}

// streamTransport is the concrete StreamTransport: Send publishes one
// chunk onto the channel connserve drains via protocol.Result.Stream.
type streamTransport struct {
	ch     chan []byte
	closed bool
	mu     sync.Mutex
}

func (s *streamTransport) Send(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrorDoubleResponse.Error(nil)
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.ch <- cp
	return nil
}

func (s *streamTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.ch)
	return nil
}

// ResponseStream opens a streaming response: status/headers are committed
// immediately, and the caller pushes body chunks through the returned
// StreamTransport until it calls Close.
func (p *HTTPProtocol) ResponseStream(status uint16, headers protocol.Headers) (StreamTransport, error) {
	if err := p.markResponded(); err != nil {
		return nil, err
	}

	ch := make(chan []byte, 8)
	p.result = protocol.Result{Status: status, Headers: headers, Stream: ch}

	return &streamTransport{ch: ch}, nil
}

// Result returns the response committed by whichever Response* method the
// handler called; it is an error for the handler to return without calling
// one.
func (p *HTTPProtocol) Result() (protocol.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.responded {
		return protocol.Result{}, ErrorDoubleResponse.Error(nil)
	}
	return p.result, nil
}

// Handler adapts an RSGI-style callback (scope, protocol) -> error into the
// shared protocol.Handler contract connserve/scheduler dispatch, per
// spec.md §4.6.1's handler signature.
func Handler(fn func(scope *protocol.Scope, proto *HTTPProtocol) error) protocol.Handler {
	return func(scope *protocol.Scope, body any) (protocol.Result, error) {
		reader, _ := body.(io.Reader)
		proto := New(reader)

		if err := fn(scope, proto); err != nil {
			return protocol.Result{}, err
		}

		return proto.Result()
	}
}

// WebSocket is the per-connection RSGI websocket protocol object: the
// typed-adapter analogue of asgi's websocket.* message vocabulary, per
// spec.md §4.6.1. Accept is a no-op here because connserve/worker already
// perform the 101 handshake before the handler ever runs (this engine's
// eager-upgrade design); it exists for RSGI call-shape parity with an
// embedder that expects to decide accept/reject itself.
type WebSocket struct {
	sess *wsbridge.Session
}

// NewWebSocket wraps an already-upgraded session as an RSGI WebSocket
// object.
func NewWebSocket(sess *wsbridge.Session) *WebSocket {
	return &WebSocket{sess: sess}
}

// Accept always succeeds: the handshake response was already sent.
func (ws *WebSocket) Accept() error {
	return nil
}

// Receive blocks for the next frame or the peer's close.
func (ws *WebSocket) Receive(ctx context.Context) (wsbridge.Message, error) {
	return ws.sess.Receive(ctx)
}

// Send writes one frame.
func (ws *WebSocket) Send(ctx context.Context, msg wsbridge.Message) error {
	return ws.sess.Send(ctx, msg)
}

// Close ends the session with a normal closure frame.
func (ws *WebSocket) Close() error {
	return ws.sess.Close()
}

// HandlerWS adapts an RSGI-style websocket callback into the shared
// protocol.Handler contract, the websocket analogue of Handler.
func HandlerWS(fn func(scope *protocol.Scope, ws *WebSocket) error) protocol.Handler {
	return func(scope *protocol.Scope, body any) (protocol.Result, error) {
		sess, _ := body.(*wsbridge.Session)
		if sess == nil {
			return protocol.Result{}, ErrorPeerClosed.Error(nil)
		}
		return protocol.Result{}, fn(scope, NewWebSocket(sess))
	}
}
