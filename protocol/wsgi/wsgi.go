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

// Package wsgi is the synchronous, blocking protocol adapter: the handler
// gets a CGI-derived environ map and a start_response callback, the Go
// analogue of spec.md §4.6.3's WSGI callable contract. Because WSGI
// handlers block, Call always runs them on a worker.BlockingPool instead of
// the caller's own goroutine.
package wsgi

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/sabouaram/aerohttp/protocol"
	"github.com/sabouaram/aerohttp/worker"
)

// Environ is the WSGI environ dict, keyed the way spec.md §4.6.3 lists:
// SERVER_PROTOCOL, SERVER_NAME, SERVER_PORT, REMOTE_ADDR, REQUEST_METHOD,
// PATH_INFO, QUERY_STRING, wsgi.url_scheme, wsgi.input, CONTENT_TYPE,
// CONTENT_LENGTH, plus HTTP_* headers.
type Environ map[string]any

// StartResponse is the WSGI start_response callable: statusLine is e.g.
// "200 OK", headers is the wire-order (name, value) list the app supplies.
type StartResponse func(statusLine string, headers [][2]string)

// App is a WSGI application: it must call start exactly once before or
// during its first yield, then yield zero or more body chunks via yield.
type App func(environ Environ, start StartResponse, yield func(chunk []byte))

// BuildEnviron assembles the environ dict from the shared protocol.Scope
// and the request body reader, synthesizing HOST from the authority when
// absent as spec.md §4.6.3 describes.
func BuildEnviron(s *protocol.Scope, body io.Reader) Environ {
	env := Environ{
		"SERVER_PROTOCOL": "HTTP/" + s.HTTPVersion,
		"SERVER_NAME":     hostOnly(s.Server),
		"SERVER_PORT":     portOnly(s.Server),
		"REMOTE_ADDR":     hostOnly(s.Client),
		"REQUEST_METHOD":  s.Method,
		"PATH_INFO":       s.Path,
		"QUERY_STRING":    s.QueryString,
		"wsgi.url_scheme": s.Scheme,
		"wsgi.input":      bufio.NewReader(body),
	}

	if _, ok := env["HTTP_HOST"]; !ok {
		if v, found := s.Headers.Get("Host"); found {
			env["HTTP_HOST"] = v
		} else {
			env["HTTP_HOST"] = s.Authority
		}
	}

	for _, f := range s.Headers {
		key := "HTTP_" + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		switch key {
		case "HTTP_CONTENT_TYPE":
			env["CONTENT_TYPE"] = f.Value
		case "HTTP_CONTENT_LENGTH":
			env["CONTENT_LENGTH"] = f.Value
		default:
			env[key] = f.Value
		}
	}

	return env
}

func hostOnly(hostport string) string {
	if idx := strings.LastIndexByte(hostport, ':'); idx >= 0 {
		return hostport[:idx]
	}
	return hostport
}

func portOnly(hostport string) string {
	if idx := strings.LastIndexByte(hostport, ':'); idx >= 0 {
		return hostport[idx+1:]
	}
	return ""
}

func parseStatusLine(line string) (uint16, error) {
	fields := strings.SplitN(line, " ", 2)
	code, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, ErrorBadStatusLine.Error(err)
	}
	return uint16(code), nil
}

// Call runs app on pool, blocking until start_response has been invoked
// (or app returns/ctx is canceled without calling it), then returns a
// protocol.Result whose Stream is fed by app's remaining yields as they
// happen — giving the channel's buffering as the WSGI handler's natural
// backpressure, per SPEC_FULL.md §4.6.3.
func Call(ctx context.Context, pool *worker.BlockingPool, environ Environ, app App) (protocol.Result, error) {
	var (
		once      sync.Once
		status    uint16
		headers   protocol.Headers
		started   = make(chan struct{})
		statusErr error
	)

	chunks := make(chan []byte, 4)
	runDone := make(chan error, 1)

	go func() {
		err := pool.Run(ctx, func(ctx context.Context) {
			start := func(statusLine string, hdrs [][2]string) {
				once.Do(func() {
					code, e := parseStatusLine(statusLine)
					if e != nil {
						statusErr = e
					}
					status = code
					for _, h := range hdrs {
						headers.Add(h[0], h[1])
					}
					close(started)
				})
			}

			app(environ, start, func(chunk []byte) {
				if len(chunk) == 0 {
					return
				}
				select {
				case chunks <- chunk:
				case <-ctx.Done():
				}
			})
		})
		close(chunks)
		runDone <- err
	}()

	select {
	case <-started:
		if statusErr != nil {
			return protocol.Result{}, statusErr
		}
		return protocol.Result{Status: status, Headers: headers, Stream: chunks}, nil
	case err := <-runDone:
		if err != nil {
			return protocol.Result{}, err
		}
		return protocol.Result{}, ErrorNoStartResponse.Error(nil)
	case <-ctx.Done():
		return protocol.Result{}, ctx.Err()
	}
}

// Handler adapts a WSGI-style App plus a BlockingPool into the shared
// protocol.Handler contract.
func Handler(pool *worker.BlockingPool, app App) protocol.Handler {
	return func(scope *protocol.Scope, body any) (protocol.Result, error) {
		reader, _ := body.(io.Reader)
		if reader == nil {
			reader = strings.NewReader("")
		}

		environ := BuildEnviron(scope, reader)
		return Call(context.Background(), pool, environ, app)
	}
}
