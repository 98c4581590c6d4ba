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
	"github.com/sabouaram/aerohttp/certificates"
	"github.com/sabouaram/aerohttp/connserve"
	"github.com/sabouaram/aerohttp/listener"
	"github.com/sabouaram/aerohttp/metrics"
	"github.com/sabouaram/aerohttp/scheduler"
	"github.com/sabouaram/aerohttp/staticfile"
	"github.com/sabouaram/aerohttp/tlsaccept"
	"github.com/sabouaram/aerohttp/wsbridge"
)

// Config describes one worker: the socket it listens on, the TLS
// termination layered on top of it (if any), the H1/H2 wire options, the
// dispatch strategy, the backpressure ceiling, and an optional static-file
// short-circuit, per spec.md §4.9's worker configuration.
type Config struct {
	Name string

	Listener listener.Config

	TLS     certificates.TLSConfig
	TLSMode tlsaccept.Mode

	HTTP connserve.Options

	Scheduler scheduler.Config

	// Backpressure caps the number of connections being actively served at
	// once; zero or negative means unbounded.
	Backpressure int

	// WebSocketsEnabled turns on the upgrade short-circuit ahead of every
	// connection's ordinary HTTP dispatch; WebSocket carries the handshake
	// tuning gorilla/websocket.Upgrader needs.
	WebSocketsEnabled bool
	WebSocket         wsbridge.Options

	StaticFiles *staticfile.Config

	// Metrics, when set, receives request, connection, static-file and
	// WebSocket-upgrade metrics as the worker runs (the worker records no
	// backpressure rejections); Shutdown does not unregister them (a Registry
	// outlives any one worker bound to it).
	Metrics *metrics.Registry
}
