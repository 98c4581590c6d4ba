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

// Package listener opens and tunes the raw sockets the worker engine accepts
// connections on: TCP with SO_REUSEADDR/SO_REUSEPORT, TCP_NODELAY, and
// AF_UNIX domain sockets, plus an Accept wrapper that classifies errors into
// the Transient/Fatal contract the worker's accept loop relies on.
package listener

import (
	"context"
	"net"

	libval "github.com/go-playground/validator/v10"
	liberr "github.com/sabouaram/aerohttp/errors"
)

// Network selects the socket family to listen on.
type Network string

const (
	NetworkTCP  Network = "tcp"
	NetworkUnix Network = "unix"
)

// Config describes one listening socket, validated with the same
// go-playground/validator tags the teacher's httpserver.ServerConfig uses.
type Config struct {
	Network Network `mapstructure:"network" json:"network" yaml:"network" toml:"network" validate:"required,oneof=tcp unix"`
	Address string  `mapstructure:"address" json:"address" yaml:"address" toml:"address" validate:"required"`

	// ReuseAddr sets SO_REUSEADDR so a restarted process can rebind a
	// socket still draining TIME_WAIT connections.
	ReuseAddr bool `mapstructure:"reuse_addr" json:"reuse_addr" yaml:"reuse_addr" toml:"reuse_addr"`

	// ReusePort sets SO_REUSEPORT (SO_REUSEPORT_LB on freebsd) so multiple
	// worker processes can share one listen address with kernel-side load
	// balancing across accept queues. No-op on platforms without it
	// (windows): setting it there is silently ignored.
	ReusePort bool `mapstructure:"reuse_port" json:"reuse_port" yaml:"reuse_port" toml:"reuse_port"`

	// NoDelay disables Nagle's algorithm on accepted TCP connections.
	NoDelay bool `mapstructure:"no_delay" json:"no_delay" yaml:"no_delay" toml:"no_delay"`

	// Backlog is validated (it must not be negative) but not applied: New
	// always listens with the platform's default pending-connection queue
	// length, whatever value is set here.
	Backlog int `mapstructure:"backlog" json:"backlog" yaml:"backlog" toml:"backlog" validate:"gte=0"`
}

// Validate checks the configuration using the shared validator instance.
func (c Config) Validate() liberr.Error {
	if err := libval.New().Struct(c); err != nil {
		return liberr.New(ErrorConfigInvalid.Uint16(), err.Error(), err)
	}
	return nil
}

// New opens and configures the listening socket described by cfg. For
// NetworkTCP it installs a net.ListenConfig.Control callback that applies
// SO_REUSEADDR/SO_REUSEPORT before bind, mirroring the per-connection
// socket tuning momentics-hioload-ws applies directly with
// golang.org/x/sys/unix. For NetworkUnix the reuse options are meaningless
// (AF_UNIX has no port to share) and are ignored.
func New(ctx context.Context, cfg Config) (net.Listener, liberr.Error) {
	if e := cfg.Validate(); e != nil {
		return nil, e
	}

	lc := net.ListenConfig{}
	if cfg.Network == NetworkTCP && (cfg.ReuseAddr || cfg.ReusePort) {
		lc.Control = controlFunc(cfg)
	}

	ln, err := lc.Listen(ctx, string(cfg.Network), cfg.Address)
	if err != nil {
		return nil, liberr.New(ErrorBind.Uint16(), err.Error(), err)
	}

	return &tunedListener{Listener: ln, noDelay: cfg.NoDelay && cfg.Network == NetworkTCP}, nil
}

// tunedListener applies per-connection tuning (TCP_NODELAY) on Accept,
// the accepted-connection analogue of the listen-time socket options set
// by controlFunc.
type tunedListener struct {
	net.Listener
	noDelay bool
}

func (l *tunedListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}

	if l.noDelay {
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
	}

	return conn, nil
}
