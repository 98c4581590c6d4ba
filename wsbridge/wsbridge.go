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

// Package wsbridge upgrades an HTTP connection to a WebSocket per RFC 6455
// and translates gorilla/websocket frames to/from this package's Message
// type, per spec.md §4.7.
package wsbridge

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Options configures the upgrade handshake.
type Options struct {
	HandshakeTimeout time.Duration
	ReadBufferSize   int
	WriteBufferSize  int
}

// Upgrader validates and performs the RFC 6455 handshake, deferred until
// the handler signals acceptance.
type Upgrader struct {
	u *websocket.Upgrader
}

// NewUpgrader builds an Upgrader configured from opts and the subprotocols
// the server offers during negotiation (nil offers none).
func NewUpgrader(opts Options, subprotocols []string) *Upgrader {
	return &Upgrader{u: &websocket.Upgrader{
		HandshakeTimeout: opts.HandshakeTimeout,
		ReadBufferSize:   opts.ReadBufferSize,
		WriteBufferSize:  opts.WriteBufferSize,
		Subprotocols:     subprotocols,
		CheckOrigin:      func(r *http.Request) bool { return true },
	}}
}

// ValidateUpgradeRequest checks the three headers RFC 6455 requires before
// any handshake is attempted: Connection: Upgrade, Upgrade: websocket,
// Sec-WebSocket-Version: 13.
func ValidateUpgradeRequest(r *http.Request) error {
	if !headerContains(r.Header, "Connection", "upgrade") {
		return ErrorNotUpgradeRequest.Error(nil)
	}
	if !headerEquals(r.Header, "Upgrade", "websocket") {
		return ErrorNotUpgradeRequest.Error(nil)
	}
	if r.Header.Get("Sec-WebSocket-Version") != "13" {
		return ErrorNotUpgradeRequest.Error(nil)
	}
	return nil
}

func headerContains(h http.Header, key, token string) bool {
	for _, v := range h.Values(key) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

func headerEquals(h http.Header, key, val string) bool {
	return strings.EqualFold(strings.TrimSpace(h.Get(key)), val)
}

// Accept validates the request, then calls decide to let the handler
// choose whether to accept the upgrade (the RSGI Accept()/ASGI
// websocket.accept equivalent). The 101 response is only sent if decide
// returns true; otherwise a plain 403 is written and the TCP stream is
// never handed to gorilla.
func (u *Upgrader) Accept(ctx context.Context, w http.ResponseWriter, r *http.Request, decide func() bool) (*Session, error) {
	if err := ValidateUpgradeRequest(r); err != nil {
		return nil, err
	}

	if !decide() {
		http.Error(w, "websocket upgrade rejected", http.StatusForbidden)
		return nil, ErrorRejected.Error(nil)
	}

	conn, err := u.u.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	return &Session{conn: conn}, nil
}

// MessageKind classifies a Message the way RSGI/ASGI distinguish
// {bytes}/{text}/close.
type MessageKind int

const (
	Binary MessageKind = iota
	Text
	Close
)

// Message is the protocol-neutral representation of one WebSocket frame.
type Message struct {
	Kind MessageKind
	Data []byte
}

// Session wraps one upgraded connection. Ping frames are answered
// transparently by gorilla's default SetPingHandler; Session never
// overrides it.
type Session struct {
	conn *websocket.Conn
}

// Receive blocks for the next frame, translating it to a Message.
func (s *Session) Receive(ctx context.Context) (Message, error) {
	mt, data, err := s.conn.ReadMessage()
	if err != nil {
		return Message{}, err
	}

	switch mt {
	case websocket.BinaryMessage:
		return Message{Kind: Binary, Data: data}, nil
	case websocket.TextMessage:
		return Message{Kind: Text, Data: data}, nil
	case websocket.CloseMessage:
		return Message{Kind: Close, Data: data}, nil
	default:
		return Message{}, ErrorUnknownMessageType.Error(nil)
	}
}

// Send writes one Message as the corresponding WebSocket frame type.
func (s *Session) Send(ctx context.Context, msg Message) error {
	var mt int
	switch msg.Kind {
	case Binary:
		mt = websocket.BinaryMessage
	case Text:
		mt = websocket.TextMessage
	case Close:
		mt = websocket.CloseMessage
	default:
		return ErrorUnknownMessageType.Error(nil)
	}

	return s.conn.WriteMessage(mt, msg.Data)
}

// Close sends a close frame and closes the underlying connection.
func (s *Session) Close() error {
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}
