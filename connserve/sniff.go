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

package connserve

import (
	"bufio"
	"crypto/tls"
	"net"
)

// h2Preface is the fixed HTTP/2 connection preface every h2c/h2 client
// sends before any frame.
const h2Preface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// Sniff classifies conn as H1 or H2 for Auto mode. If conn is a *tls.Conn
// that already completed its handshake (tlsaccept performs an eager
// handshake at Accept time), the ALPN-negotiated protocol decides it
// without consuming any bytes. Otherwise it peeks the first len(h2Preface)
// bytes through a bufio.Reader and compares them to the HTTP/2 client
// preface, returning the buffered reader so the caller doesn't lose the
// peeked bytes.
func Sniff(conn net.Conn) (ConnMode, *bufio.Reader, error) {
	if tc, ok := conn.(*tls.Conn); ok {
		switch tc.ConnectionState().NegotiatedProtocol {
		case "h2":
			return H2, bufio.NewReader(conn), nil
		case "http/1.1":
			return H1, bufio.NewReader(conn), nil
		}
	}

	br := bufio.NewReader(conn)
	peek, err := br.Peek(len(h2Preface))
	if err != nil {
		// Short reads (fewer bytes than the preface on a connection that
		// closes immediately, or a short pipelined H1 request) are not h2;
		// fall through to H1 and let the H1 reader surface the real error.
		return H1, br, nil
	}

	if string(peek) == h2Preface {
		return H2, br, nil
	}

	return H1, br, nil
}
