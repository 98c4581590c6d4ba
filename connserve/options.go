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

// Package connserve drives one accepted connection end to end: it decides
// between HTTP/1.1 and HTTP/2 (by configured mode or by sniffing the
// connection preface), reads requests off the wire, builds the shared
// protocol.Scope, and dispatches to a scheduler.Strategy for the handler
// call.
package connserve

import (
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// ConnMode selects the HTTP generation a connection is driven as.
type ConnMode int

const (
	// Auto sniffs the connection for the HTTP/2 client preface, falling
	// back to H1.
	Auto ConnMode = iota
	H1
	H2
)

// H1Options mirrors spec.md §4.5's H1 options table.
type H1Options struct {
	HeaderReadTimeout time.Duration
	KeepAlive         bool
	MaxBuffer         int
	PipelineFlush     bool
}

// H2Options mirrors spec.md §4.5's H2 options table, copied field-for-field
// onto a golang.org/x/net/http2.Server the way the teacher's serverOpt.go
// copies optServer fields onto http2.Server.
type H2Options struct {
	AdaptiveWindow               bool
	MaxConcurrentStreams         uint32
	MaxReadFrameSize             uint32
	MaxUploadBufferPerConnection int32
	MaxUploadBufferPerStream     int32
	MaxHeaderListSize            uint32
	IdleTimeout                  time.Duration
	PermitProhibitedCipherSuites bool
}

func (o H2Options) apply(s *http2.Server) {
	if o.MaxConcurrentStreams > 0 {
		s.MaxConcurrentStreams = o.MaxConcurrentStreams
	}
	if o.MaxReadFrameSize > 0 {
		s.MaxReadFrameSize = o.MaxReadFrameSize
	}
	if o.MaxUploadBufferPerConnection > 0 {
		s.MaxUploadBufferPerConnection = o.MaxUploadBufferPerConnection
	}
	if o.MaxUploadBufferPerStream > 0 {
		s.MaxUploadBufferPerStream = o.MaxUploadBufferPerStream
	}
	if o.MaxHeaderListSize > 0 {
		s.MaxHeaderListSize = o.MaxHeaderListSize
	}
	if o.IdleTimeout > 0 {
		s.IdleTimeout = o.IdleTimeout
	}
	if o.PermitProhibitedCipherSuites {
		s.PermitProhibitedCipherSuites = true
	}
}

// Options bundles everything Serve needs beyond the connection itself.
type Options struct {
	Mode      ConnMode
	H1Options H1Options
	H2Options H2Options

	// Static, when set, is tried before any scope/dispatch work for every
	// request; returning true means it already wrote the full response and
	// Serve must not call dispatch at all (spec.md §4.8's short-circuit).
	Static func(w http.ResponseWriter, r *http.Request) bool

	// WebSocket, when set, is tried after Static and before dispatch for
	// every request; it should return false for anything that isn't a
	// WebSocket upgrade so the request falls through to dispatch,
	// and true once it has taken over the connection, run the session to
	// completion, and written the final close — Serve never resumes
	// driving HTTP on this connection afterward (spec.md §4.7's deferred
	// handshake). Only meaningful on H1 connections: the response writer
	// needs http.Hijacker, which an H2 stream cannot provide.
	WebSocket func(w http.ResponseWriter, r *http.Request) bool
}
