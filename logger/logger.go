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
	"os"
	"sync"
	"sync/atomic"

	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
)

// Logger is the structured logger handed to every component.
type Logger interface {
	SetLevel(lvl Level)
	GetLevel() Level
	SetFields(f Fields)
	GetFields() Fields
	Clone() Logger

	Entry(lvl Level, msg string) Entry

	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warning(msg string, f Fields)
	Error(msg string, f Fields)
}

type logger struct {
	mu  sync.RWMutex
	log *logrus.Logger
	lvl atomic.Uint32
	fld Fields
}

// New returns a Logger writing structured entries to w (colorized when w is a
// terminal), honoring lvl as the minimal emitted level.
func New(w io.Writer, lvl Level) Logger {
	if w == nil {
		w = colorable.NewColorableStdout()
	}

	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(lvl.Logrus())

	g := &logger{log: l}
	g.lvl.Store(uint32(lvl))
	return g
}

// Default returns a logger writing to stderr at InfoLevel.
func Default() Logger {
	return New(os.Stderr, InfoLevel)
}

func (g *logger) SetLevel(lvl Level) {
	g.lvl.Store(uint32(lvl))
	g.log.SetLevel(lvl.Logrus())
}

func (g *logger) GetLevel() Level {
	return Level(g.lvl.Load())
}

func (g *logger) SetFields(f Fields) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fld = f.Clone()
}

func (g *logger) GetFields() Fields {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.fld.Clone()
}

func (g *logger) Clone() Logger {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n := &logger{log: g.log, fld: g.fld.Clone()}
	n.lvl.Store(g.lvl.Load())
	return n
}

func (g *logger) Entry(lvl Level, msg string) Entry {
	return newEntry(g.log, lvl, msg, g.GetFields())
}

func (g *logger) Debug(msg string, f Fields)   { g.Entry(DebugLevel, msg).Fields(f).Log() }
func (g *logger) Info(msg string, f Fields)    { g.Entry(InfoLevel, msg).Fields(f).Log() }
func (g *logger) Warning(msg string, f Fields) { g.Entry(WarnLevel, msg).Fields(f).Log() }
func (g *logger) Error(msg string, f Fields)   { g.Entry(ErrorLevel, msg).Fields(f).Log() }
