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
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strings"

	"golang.org/x/net/http2"

	"github.com/sabouaram/aerohttp/bridge"
	"github.com/sabouaram/aerohttp/logger"
	"github.com/sabouaram/aerohttp/protocol"
)

// serverHeaderValue is stamped onto every response that reaches
// scopeHandler.ServeHTTP's dispatch path, per spec.md §3/§6's "the core
// appends Server: <product-name> if not present" requirement.
const serverHeaderValue = "aerohttp"

// DispatchFunc hands one request off to a scheduler.Strategy; it is
// scheduler.Strategy.Dispatch with the handler already closed over by the
// caller (worker), since connserve itself never chooses which protocol
// adapter or handler runs.
type DispatchFunc func(ctx context.Context, scope *protocol.Scope, body any) *bridge.Awaitable[protocol.Result]

// Serve drives conn to completion: it classifies the connection (per
// cfg.Mode), reads requests, builds a protocol.Scope per request, calls
// dispatch, and writes the resulting protocol.Result back to the wire.
// Serve returns when the connection is closed by either side or ctx is
// canceled.
func Serve(ctx context.Context, conn net.Conn, cfg Options, dispatch DispatchFunc, log logger.Logger) error {
	mode := cfg.Mode
	br := bufio.NewReader(conn)

	if mode == Auto {
		var err error
		mode, br, err = Sniff(conn)
		if err != nil {
			return ErrorSniffFailed.Error(err)
		}
	}

	switch mode {
	case H2:
		return serveH2(ctx, conn, br, cfg, dispatch)
	default:
		return serveH1(ctx, conn, br, cfg, dispatch, log)
	}
}

func serveH2(ctx context.Context, conn net.Conn, br *bufio.Reader, cfg Options, dispatch DispatchFunc) error {
	s2 := &http2.Server{}
	cfg.H2Options.apply(s2)

	// WebSocket is left unset here deliberately: RFC 8441 (WebSocket over
	// HTTP/2) is out of scope, and http2's ResponseWriter never implements
	// http.Hijacker, so the upgrade hook would never succeed anyway.
	h := &scopeHandler{dispatch: dispatch, scheme: schemeOf(conn), static: cfg.Static}

	rw := &bufferedConn{Conn: conn, r: br}
	s2.ServeConn(rw, &http2.ServeConnOpts{
		Context: ctx,
		Handler: h,
	})

	return nil
}

func serveH1(ctx context.Context, conn net.Conn, br *bufio.Reader, cfg Options, dispatch DispatchFunc, log logger.Logger) error {
	h := &scopeHandler{dispatch: dispatch, scheme: schemeOf(conn), static: cfg.Static, ws: cfg.WebSocket}
	bw := bufio.NewWriter(conn)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if cfg.H1Options.HeaderReadTimeout > 0 {
			_ = conn.SetReadDeadline(deadlineFrom(cfg.H1Options.HeaderReadTimeout))
		}

		req, err := http.ReadRequest(br)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			if log != nil {
				log.Entry(logger.DebugLevel, "h1 read request failed").ErrorAdd(true, err).Check(logger.DebugLevel)
			}
			return ErrorReadHead.Error(err)
		}

		_ = conn.SetReadDeadline(zeroTime())
		req = req.WithContext(ctx)

		rw := newResponseWriter(conn, br, bw)
		h.ServeHTTP(rw, req)

		if rw.hijacked {
			// The connection now belongs to whatever hijacked it (a
			// WebSocket session); this loop must never touch it again.
			return nil
		}

		rw.finish()

		if err := bw.Flush(); err != nil {
			return err
		}

		if !cfg.H1Options.KeepAlive || req.Close || req.ProtoAtMost(1, 0) {
			return nil
		}

		if req.Body != nil {
			_, _ = io.Copy(io.Discard, req.Body)
		}
	}
}

func schemeOf(conn net.Conn) string {
	if _, ok := conn.(*tls.Conn); ok {
		return "https"
	}
	return "http"
}

// bufferedConn lets http2.Server.ServeConn read through the bufio.Reader
// that already consumed the preface-sniffing peek, while writes still go
// straight to the underlying conn.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (b *bufferedConn) Read(p []byte) (int, error) {
	return b.r.Read(p)
}

// scopeHandler adapts an http.Request/http.ResponseWriter pair to the
// shared protocol.Scope/Handler contract, usable by both the H1 loop and
// http2.Server.ServeConn (which requires an http.Handler).
type scopeHandler struct {
	dispatch DispatchFunc
	scheme   string
	static   func(w http.ResponseWriter, r *http.Request) bool
	ws       func(w http.ResponseWriter, r *http.Request) bool
}

func (h *scopeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.static != nil && h.static(w, r) {
		return
	}

	if h.ws != nil && h.ws(w, r) {
		return
	}

	scope := buildScope(r, h.scheme)

	a := h.dispatch(r.Context(), scope, r.Body)
	res, err := a.Await(r.Context())
	if err != nil {
		if w.Header().Get("Server") == "" {
			w.Header().Set("Server", serverHeaderValue)
		}
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	for _, f := range res.Headers {
		w.Header().Add(f.Name, f.Value)
	}

	if w.Header().Get("Server") == "" {
		w.Header().Set("Server", serverHeaderValue)
	}

	status := int(res.Status)
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	if res.Stream != nil {
		flusher, _ := w.(http.Flusher)
		for chunk := range res.Stream {
			if len(chunk) == 0 {
				continue
			}
			if _, err := w.Write(chunk); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		return
	}

	if len(res.Body) > 0 {
		_, _ = w.Write(res.Body)
	}
}

func buildScope(r *http.Request, scheme string) *protocol.Scope {
	var headers protocol.Headers
	for name, values := range r.Header {
		for _, v := range values {
			headers.Add(name, v)
		}
	}

	rawPath := r.URL.EscapedPath()
	path := r.URL.Path
	if idx := strings.IndexByte(rawPath, '?'); idx >= 0 {
		rawPath = rawPath[:idx]
	}

	return &protocol.Scope{
		Proto:       "http",
		HTTPVersion: protoVersion(r.Proto),
		Server:      r.Host,
		Client:      r.RemoteAddr,
		Scheme:      scheme,
		Method:      r.Method,
		Path:        path,
		RawPath:     rawPath,
		QueryString: r.URL.RawQuery,
		Authority:   r.Host,
		RootPath:    "",
		Headers:     headers,
	}
}

func protoVersion(proto string) string {
	switch {
	case strings.HasSuffix(proto, "2.0"):
		return "2"
	case strings.HasSuffix(proto, "1.0"):
		return "1.0"
	default:
		return "1.1"
	}
}

// responseWriter is a minimal http.ResponseWriter writing directly to a
// bufio.Writer wrapping the raw connection, used by the hand-rolled H1
// loop (which never constructs an http.Server). It also implements
// http.Hijacker so a WebSocket upgrade hook can take the raw connection
// away from the HTTP response cycle.
type responseWriter struct {
	conn        net.Conn
	br          *bufio.Reader
	bw          *bufio.Writer
	header      http.Header
	wroteHeader bool
	status      int
	buf         bytes.Buffer
	hijacked    bool
}

func newResponseWriter(conn net.Conn, br *bufio.Reader, bw *bufio.Writer) *responseWriter {
	return &responseWriter{conn: conn, br: br, bw: bw, header: make(http.Header)}
}

// Hijack hands the raw connection and its buffered reader/writer to the
// caller, who now owns the wire entirely; finish becomes a no-op once this
// has been called.
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.hijacked = true
	return w.conn, bufio.NewReadWriter(w.br, w.bw), nil
}

func (w *responseWriter) Header() http.Header {
	return w.header
}

func (w *responseWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.buf.Write(p)
}

func (w *responseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = status
}

// finish flushes the status line, headers, and buffered body to bw.
func (w *responseWriter) finish() {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}

	resp := &http.Response{
		StatusCode:    w.status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        w.header,
		Body:          io.NopCloser(bytes.NewReader(w.buf.Bytes())),
		ContentLength: int64(w.buf.Len()),
	}
	_ = resp.Write(w.bw)
}
