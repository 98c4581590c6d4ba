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

// Package main is a thin cobra entrypoint wiring one worker.Worker to a
// listening socket from flags. Master-process supervision, file-based
// config loading, and metrics aggregation across processes are out of
// scope here — embedders compose worker.Worker/worker.Pool directly for
// anything beyond a single standalone listener.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sabouaram/aerohttp/certificates"
	tlscrt "github.com/sabouaram/aerohttp/certificates/certs"
	"github.com/sabouaram/aerohttp/connserve"
	"github.com/sabouaram/aerohttp/listener"
	"github.com/sabouaram/aerohttp/logger"
	"github.com/sabouaram/aerohttp/metrics"
	"github.com/sabouaram/aerohttp/protocol"
	"github.com/sabouaram/aerohttp/staticfile"
	"github.com/sabouaram/aerohttp/tlsaccept"
	"github.com/sabouaram/aerohttp/worker"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		network      string
		listen       string
		tlsCert      string
		tlsKey       string
		httpMode     string
		tlsMode      string
		staticRoot   string
		staticPrefix string
		backpressure int
		metricsAddr  string
		logLevel     string
	)

	cmd := &cobra.Command{
		Use:   "aerohttpd",
		Short: "Standalone HTTP/WebSocket worker engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl := parseLevel(logLevel)
			log := logger.New(os.Stderr, lvl)

			mode, err := parseHTTPMode(httpMode)
			if err != nil {
				return err
			}

			cfg := worker.Config{
				Name: "aerohttpd",
				Listener: listener.Config{
					Network: listener.Network(network),
					Address: listen,
					NoDelay: true,
				},
				HTTP: connserve.Options{
					Mode: mode,
				},
				Backpressure: backpressure,
			}

			if tlsCert != "" || tlsKey != "" {
				tc, err := loadTLSConfig(tlsCert, tlsKey)
				if err != nil {
					return fmt.Errorf("loading TLS material: %w", err)
				}
				cfg.TLS = tc

				alpn, err := parseTLSMode(tlsMode)
				if err != nil {
					return err
				}
				cfg.TLSMode = alpn
			}

			if staticRoot != "" {
				cfg.StaticFiles = &staticfile.Config{
					Root:   staticRoot,
					Prefix: staticPrefix,
				}
			}

			if metricsAddr != "" {
				reg, err := metrics.New("aerohttpd")
				if err != nil {
					return fmt.Errorf("building metrics registry: %w", err)
				}
				cfg.Metrics = reg

				go serveMetrics(metricsAddr, reg, log)
			}

			w := worker.New(cfg, notFoundHandler, log)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Entry(logger.InfoLevel, "starting worker").
				Field("listen", string(cfg.Listener.Network)+"://"+cfg.Listener.Address).
				Check(logger.InfoLevel)

			errCh := make(chan error, 1)
			go func() { errCh <- w.Serve(ctx) }()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("serve: %w", err)
				}
				return nil
			}

			shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := w.Shutdown(shCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}

			return <-errCh
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&network, "network", "tcp", "socket family to listen on: tcp or unix")
	flags.StringVar(&listen, "listen", ":8080", "address to listen on")
	flags.StringVar(&tlsCert, "tls-cert", "", "PEM certificate file; enables TLS when set with --tls-key")
	flags.StringVar(&tlsKey, "tls-key", "", "PEM private key file; enables TLS when set with --tls-cert")
	flags.StringVar(&httpMode, "http-mode", "auto", "HTTP generation driven on each connection: auto, h1, or h2")
	flags.StringVar(&tlsMode, "tls-mode", "auto", "ALPN protocols offered when TLS is enabled: auto, h1, or h2")
	flags.StringVar(&staticRoot, "static-root", "", "directory served by the static-file short-circuit; disabled when empty")
	flags.StringVar(&staticPrefix, "static-prefix", "/static/", "URL prefix the static-file short-circuit answers")
	flags.IntVar(&backpressure, "backpressure", 0, "maximum connections served concurrently; zero means unbounded")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "address for the Prometheus exposition endpoint; disabled when empty")
	flags.StringVar(&logLevel, "log-level", "info", "panic, fatal, error, warning, info, or debug")

	return cmd
}

// notFoundHandler is the demo handler this binary dispatches to once the
// static-file short-circuit has had a chance to answer a request; wiring a
// real application handler (an RSGI/ASGI/WSGI-hosted one) is an embedder's
// job, not this thin CLI's.
func notFoundHandler(scope *protocol.Scope, body any) (protocol.Result, error) {
	h := protocol.Headers{}
	h.Add("Content-Type", "text/plain; charset=utf-8")
	return protocol.Result{
		Status:  http.StatusNotFound,
		Headers: h,
		Body:    []byte("404 not found\n"),
	}, nil
}

func serveMetrics(addr string, reg *metrics.Registry, log logger.Logger) {
	srv := &http.Server{Addr: addr, Handler: reg.Handler()}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Entry(logger.ErrorLevel, "metrics endpoint stopped").ErrorAdd(true, err).Check(logger.ErrorLevel)
	}
}

func parseTLSMode(s string) (tlsaccept.Mode, error) {
	switch s {
	case "auto", "":
		return tlsaccept.ModeAuto, nil
	case "h1":
		return tlsaccept.ModeH1Only, nil
	case "h2":
		return tlsaccept.ModeH2Only, nil
	default:
		return tlsaccept.ModeAuto, fmt.Errorf("unknown --tls-mode %q: want auto, h1, or h2", s)
	}
}

func parseHTTPMode(s string) (connserve.ConnMode, error) {
	switch s {
	case "auto", "":
		return connserve.Auto, nil
	case "h1":
		return connserve.H1, nil
	case "h2":
		return connserve.H2, nil
	default:
		return connserve.Auto, fmt.Errorf("unknown --http-mode %q: want auto, h1, or h2", s)
	}
}

func parseLevel(s string) logger.Level {
	switch s {
	case "panic":
		return logger.PanicLevel
	case "fatal":
		return logger.FatalLevel
	case "error":
		return logger.ErrorLevel
	case "warning", "warn":
		return logger.WarnLevel
	case "debug":
		return logger.DebugLevel
	default:
		return logger.InfoLevel
	}
}

func loadTLSConfig(certPath, keyPath string) (certificates.TLSConfig, error) {
	if certPath == "" || keyPath == "" {
		return nil, fmt.Errorf("both --tls-cert and --tls-key are required to enable TLS")
	}

	pub, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("reading --tls-cert: %w", err)
	}

	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("reading --tls-key: %w", err)
	}

	cert, err := tlscrt.ParsePair(string(key), string(pub))
	if err != nil {
		return nil, fmt.Errorf("parsing certificate pair: %w", err)
	}

	c := &certificates.Config{
		Certs:          []tlscrt.Certif{cert.Model()},
		InheritDefault: true,
	}

	return c.New(), nil
}
