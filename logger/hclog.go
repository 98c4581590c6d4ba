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

package logger

import (
	"io"
	"log"

	"github.com/hashicorp/go-hclog"
)

// HCLogName is the Fields key used to stash the hclog logger name.
const HCLogName = "hclog.name"

// HCLog adapts a Logger to the hclog.Logger interface, for code (golang.org/x/net/http2,
// third-party transports) that expects a HashiCorp-style logger.
func HCLog(l Logger) hclog.Logger {
	return &_hclog{l: l}
}

type _hclog struct {
	l Logger
}

func (l *_hclog) Log(level hclog.Level, msg string, args ...interface{}) {
	switch level {
	case hclog.Trace, hclog.Debug:
		l.Debug(msg, args...)
	case hclog.Info:
		l.Info(msg, args...)
	case hclog.Warn:
		l.Warn(msg, args...)
	case hclog.Error:
		l.Error(msg, args...)
	}
}

func (l *_hclog) fields(args ...interface{}) Fields {
	if len(args) == 0 {
		return nil
	}
	f := make(Fields, len(args)/2+1)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		f[key] = args[i+1]
	}
	return f
}

func (l *_hclog) Trace(msg string, args ...interface{}) { l.l.Debug(msg, l.fields(args...)) }
func (l *_hclog) Debug(msg string, args ...interface{}) { l.l.Debug(msg, l.fields(args...)) }
func (l *_hclog) Info(msg string, args ...interface{})  { l.l.Info(msg, l.fields(args...)) }
func (l *_hclog) Warn(msg string, args ...interface{})  { l.l.Warning(msg, l.fields(args...)) }
func (l *_hclog) Error(msg string, args ...interface{}) { l.l.Error(msg, l.fields(args...)) }

func (l *_hclog) IsTrace() bool { return l.l.GetLevel() >= DebugLevel }
func (l *_hclog) IsDebug() bool { return l.l.GetLevel() >= DebugLevel }
func (l *_hclog) IsInfo() bool  { return l.l.GetLevel() >= InfoLevel }
func (l *_hclog) IsWarn() bool  { return l.l.GetLevel() >= WarnLevel }
func (l *_hclog) IsError() bool { return l.l.GetLevel() >= ErrorLevel }

func (l *_hclog) ImpliedArgs() []interface{} { return nil }

func (l *_hclog) With(args ...interface{}) hclog.Logger {
	l.l.SetFields(l.l.GetFields().Merge(l.fields(args...)))
	return l
}

func (l *_hclog) Name() string {
	if n, ok := l.l.GetFields()[HCLogName].(string); ok {
		return n
	}
	return ""
}

func (l *_hclog) Named(name string) hclog.Logger {
	l.l.SetFields(l.l.GetFields().With(HCLogName, name))
	return l
}

func (l *_hclog) ResetNamed(name string) hclog.Logger {
	return l.Named(name)
}

func (l *_hclog) SetLevel(level hclog.Level) {
	switch level {
	case hclog.Off, hclog.NoLevel:
		l.l.SetLevel(NilLevel)
	case hclog.Trace, hclog.Debug:
		l.l.SetLevel(DebugLevel)
	case hclog.Info:
		l.l.SetLevel(InfoLevel)
	case hclog.Warn:
		l.l.SetLevel(WarnLevel)
	case hclog.Error:
		l.l.SetLevel(ErrorLevel)
	}
}

func (l *_hclog) GetLevel() hclog.Level {
	switch l.l.GetLevel() {
	case NilLevel:
		return hclog.Off
	case DebugLevel:
		return hclog.Debug
	case InfoLevel:
		return hclog.Info
	case WarnLevel:
		return hclog.Warn
	case ErrorLevel, FatalLevel, PanicLevel:
		return hclog.Error
	}
	return hclog.NoLevel
}

func (l *_hclog) StandardLogger(opts *hclog.StandardLoggerOptions) *log.Logger {
	return log.New(l.StandardWriter(opts), "", 0)
}

func (l *_hclog) StandardWriter(opts *hclog.StandardLoggerOptions) io.Writer {
	return &stdWriter{l: l.l}
}

// stdWriter routes raw line-oriented writes (as used by net/http's ErrorLog and
// golang.org/x/net/http2) into the structured logger at ErrorLevel.
type stdWriter struct {
	l Logger
}

func (w *stdWriter) Write(p []byte) (int, error) {
	w.l.Error(string(p), nil)
	return len(p), nil
}
