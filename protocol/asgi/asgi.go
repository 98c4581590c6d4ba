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

// Package asgi is the message-passing protocol adapter: the handler gets a
// scope dict plus receive/send callables, the Go analogue of spec.md
// §4.6.2's ASGI application contract.
package asgi

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/sabouaram/aerohttp/protocol"
	"github.com/sabouaram/aerohttp/wsbridge"
)

// Scope is the ASGI scope dict, built once per request with the exact keys
// spec.md §4.6.2 lists.
type Scope = map[string]any

// Receive and Send are the Go analogue of ASGI's receive/send callables.
type Receive func(ctx context.Context) (map[string]any, error)
type Send func(ctx context.Context, message map[string]any) error

// App is the ASGI-style application callable.
type App func(ctx context.Context, scope Scope, receive Receive, send Send) error

// BuildScope assembles the ASGI scope dict from the shared protocol.Scope.
func BuildScope(s *protocol.Scope) Scope {
	headers := make([][2]string, 0, len(s.Headers))
	for _, f := range s.Headers {
		headers = append(headers, [2]string{strings.ToLower(f.Name), f.Value})
	}

	scopeType := "http"
	if s.Proto == "websocket" {
		scopeType = "websocket"
	}

	return Scope{
		"asgi":         map[string]any{"version": "3.0", "spec_version": "2.3"},
		"extensions":   map[string]any{},
		"type":         scopeType,
		"http_version": s.HTTPVersion,
		"server":       splitHostPort(s.Server),
		"client":       splitHostPort(s.Client),
		"scheme":       s.Scheme,
		"method":       s.Method,
		"path":         s.Path,
		"raw_path":     []byte(s.RawPath),
		"query_string": []byte(s.QueryString),
		"root_path":    s.RootPath,
		"headers":      headers,
		"subprotocols": s.Subprotocols,
	}
}

func splitHostPort(hostport string) []any {
	idx := strings.LastIndexByte(hostport, ':')
	if idx < 0 {
		return []any{hostport, 0}
	}
	return []any{hostport[:idx], hostport[idx+1:]}
}

// receiveChannel is the SPMC-in-name, single-consumer-in-practice receive
// side: connserve is the single producer (it has already read the whole
// body before the handler runs), the handler goroutine the single
// consumer. One "http.request" message carries the full body; a second
// Receive call reports "http.disconnect", matching an ASGI app that keeps
// calling receive() after the body is exhausted.
type receiveChannel struct {
	once sync.Once
	ch   chan map[string]any
}

func newReceiveChannel(body []byte) *receiveChannel {
	rc := &receiveChannel{ch: make(chan map[string]any, 1)}
	rc.ch <- map[string]any{"type": "http.request", "body": body, "more_body": false}
	return rc
}

func (rc *receiveChannel) Receive(ctx context.Context) (map[string]any, error) {
	select {
	case m, ok := <-rc.ch:
		if ok {
			return m, nil
		}
	default:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		return map[string]any{"type": "http.disconnect"}, nil
	}
}

// sendState enforces ASGI's message ordering: start must precede body; a
// second start or any send after a terminal message is a protocol
// violation.
type sendState int

const (
	stateInitial sendState = iota
	stateStarted
	stateTerminal
)

// sendChannel is the MPSC-in-name, single-producer-in-practice send side:
// only the handler ever calls Send. It accumulates http.response.start/
// http.response.body messages into one protocol.Result.
type sendChannel struct {
	mu      sync.Mutex
	state   sendState
	status  uint16
	headers protocol.Headers
	body    []byte
}

func newSendChannel() *sendChannel {
	return &sendChannel{}
}

func (sc *sendChannel) Send(ctx context.Context, message map[string]any) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	msgType, _ := message["type"].(string)

	switch msgType {
	case "http.response.start":
		if sc.state != stateInitial {
			return ErrorOutOfOrder.Error(nil)
		}
		sc.state = stateStarted

		if status, ok := message["status"].(int); ok {
			sc.status = uint16(status)
		}
		if hdrs, ok := message["headers"].([][2]string); ok {
			for _, h := range hdrs {
				sc.headers.Add(h[0], h[1])
			}
		}
		return nil

	case "http.response.body":
		if sc.state != stateStarted {
			return ErrorOutOfOrder.Error(nil)
		}
		if b, ok := message["body"].([]byte); ok {
			sc.body = append(sc.body, b...)
		}

		more, _ := message["more_body"].(bool)
		if !more {
			sc.state = stateTerminal
		}
		return nil

	default:
		return ErrorOutOfOrder.Error(nil)
	}
}

// Result returns the assembled response once Send has reached a terminal
// http.response.body message.
func (sc *sendChannel) Result() (protocol.Result, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.state != stateTerminal {
		return protocol.Result{}, ErrorOutOfOrder.Error(nil)
	}

	return protocol.Result{Status: sc.status, Headers: sc.headers, Body: sc.body}, nil
}

// wsReceiveChannel feeds an ASGI websocket application the connect event
// first, then one receive event per inbound frame, ending in a disconnect
// event once the peer closes or the session errors — the websocket.*
// vocabulary spec.md §4.6.2 lists alongside the http.* one.
type wsReceiveChannel struct {
	sess *wsbridge.Session

	mu      sync.Mutex
	started bool
	done    bool
}

func (rc *wsReceiveChannel) Receive(ctx context.Context) (map[string]any, error) {
	rc.mu.Lock()
	first := !rc.started
	rc.started = true
	alreadyDone := rc.done
	rc.mu.Unlock()

	if first {
		return map[string]any{"type": "websocket.connect"}, nil
	}
	if alreadyDone {
		return map[string]any{"type": "websocket.disconnect", "code": 1000}, nil
	}

	msg, err := rc.sess.Receive(ctx)
	if err != nil {
		rc.mu.Lock()
		rc.done = true
		rc.mu.Unlock()
		return map[string]any{"type": "websocket.disconnect", "code": 1006}, nil
	}
	if msg.Kind == wsbridge.Close {
		rc.mu.Lock()
		rc.done = true
		rc.mu.Unlock()
		return map[string]any{"type": "websocket.disconnect", "code": 1000}, nil
	}

	event := map[string]any{"type": "websocket.receive"}
	if msg.Kind == wsbridge.Text {
		event["text"] = string(msg.Data)
	} else {
		event["bytes"] = msg.Data
	}
	return event, nil
}

// wsSendChannel is the send half of an ASGI websocket application: accept
// must precede any send, mirroring the ordering sendChannel enforces for
// http.response.start/body.
type wsSendChannel struct {
	sess *wsbridge.Session

	mu       sync.Mutex
	accepted bool
}

func (sc *wsSendChannel) Send(ctx context.Context, message map[string]any) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	msgType, _ := message["type"].(string)

	switch msgType {
	case "websocket.accept":
		sc.accepted = true
		return nil

	case "websocket.send":
		if !sc.accepted {
			return ErrorOutOfOrder.Error(nil)
		}
		if text, ok := message["text"].(string); ok {
			return sc.sess.Send(ctx, wsbridge.Message{Kind: wsbridge.Text, Data: []byte(text)})
		}
		if b, ok := message["bytes"].([]byte); ok {
			return sc.sess.Send(ctx, wsbridge.Message{Kind: wsbridge.Binary, Data: b})
		}
		return ErrorOutOfOrder.Error(nil)

	case "websocket.close":
		return sc.sess.Close()

	default:
		return ErrorOutOfOrder.Error(nil)
	}
}

// Handler adapts an ASGI-style App into the shared protocol.Handler
// contract. For an HTTP scope it reads the full request body up front
// (connserve's body argument) since the h1/h2 paths do not yet stream
// partial request bodies to adapters, then runs app synchronously: by the
// time app returns without error it must have completed its response via
// send. For a websocket scope, body is the already-upgraded *wsbridge.Session
// (connserve performs the 101 handshake itself, per this engine's eager-
// upgrade design — see worker's upgrade hook); app drives it with the
// websocket.* message vocabulary until it returns.
func Handler(app App) protocol.Handler {
	return func(scope *protocol.Scope, body any) (protocol.Result, error) {
		if scope.Proto == "websocket" {
			sess, _ := body.(*wsbridge.Session)
			if sess == nil {
				return protocol.Result{}, ErrorOutOfOrder.Error(nil)
			}

			rc := &wsReceiveChannel{sess: sess}
			sc := &wsSendChannel{sess: sess}

			err := app(context.Background(), BuildScope(scope), rc.Receive, sc.Send)
			return protocol.Result{}, err
		}

		var raw []byte
		if reader, ok := body.(io.Reader); ok && reader != nil {
			raw, _ = io.ReadAll(reader)
		}

		rc := newReceiveChannel(raw)
		sc := newSendChannel()

		if err := app(context.Background(), BuildScope(scope), rc.Receive, sc.Send); err != nil {
			return protocol.Result{}, err
		}

		return sc.Result()
	}
}
