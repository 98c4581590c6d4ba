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

// Package tlsaccept wraps a net.Listener with TLS termination, deriving the
// ALPN protocol list from the HTTP mode the worker was configured for. The
// certificate/cipher/curve/version/client-auth machinery itself comes
// unmodified from package certificates; this package only adds the
// ALPN/NextProtos selection certificates.TLSConfig does not do on its own.
package tlsaccept

import (
	"crypto/tls"
	"net"

	"github.com/sabouaram/aerohttp/certificates"
	liberr "github.com/sabouaram/aerohttp/errors"
	"github.com/sabouaram/aerohttp/logger"
)

// Mode selects which protocols are offered during ALPN negotiation.
type Mode uint8

const (
	// ModeAuto offers both h2 and http/1.1, in that preference order.
	ModeAuto Mode = iota
	// ModeH1Only offers http/1.1 only.
	ModeH1Only
	// ModeH2Only offers h2 only.
	ModeH2Only
)

// NextProtos returns the ALPN protocol list for mode, in server preference
// order.
func (m Mode) NextProtos() []string {
	switch m {
	case ModeH1Only:
		return []string{"http/1.1"}
	case ModeH2Only:
		return []string{"h2"}
	default:
		return []string{"h2", "http/1.1"}
	}
}

// Wrap returns a tls.Listener terminating TLS on top of ln, using cfg's
// certificate/cipher/version configuration (serverName is empty: this is a
// listen-time config, not per-connection SNI) plus mode's ALPN list. A nil
// cfg is an error — TLS termination without a config makes no sense, unlike
// listener.New's plaintext path.
func Wrap(ln net.Listener, cfg certificates.TLSConfig, mode Mode, log logger.Logger) (net.Listener, liberr.Error) {
	if cfg == nil {
		return nil, ErrorConfigNil.Error(nil)
	}

	tlsCfg := cfg.TlsConfig("")
	if tlsCfg == nil {
		return nil, ErrorConfigInvalid.Error(nil)
	}

	tlsCfg.NextProtos = mode.NextProtos()

	return &acceptListener{
		Listener: tls.NewListener(ln, tlsCfg),
		log:      log,
	}, nil
}

// acceptListener logs handshake failures at Accept() time without aborting
// the listener's own accept loop — per SPEC_FULL.md §4.2, a single bad
// handshake must not take down the whole worker.
type acceptListener struct {
	net.Listener
	log logger.Logger
}

// Accept performs the handshake eagerly (rather than deferring to the
// first Read/Write, tls.Listener's default) so a failed handshake is
// logged and the connection discarded here, without ever reaching
// connserve's protocol sniffing.
func (l *acceptListener) Accept() (net.Conn, error) {
	for {
		conn, err := l.Listener.Accept()
		if err != nil {
			return nil, err
		}

		tc, ok := conn.(*tls.Conn)
		if !ok {
			return conn, nil
		}

		if err := tc.Handshake(); err != nil {
			if l.log != nil {
				l.log.Entry(logger.InfoLevel, "tls handshake failed").
					Field("remote", conn.RemoteAddr().String()).
					ErrorAdd(true, err).
					Log()
			}
			_ = conn.Close()
			continue
		}

		return tc, nil
	}
}
