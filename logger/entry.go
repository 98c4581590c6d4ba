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

import "github.com/sirupsen/logrus"

// Entry is a fluent builder for a single log line, following the same
// chain-then-Log/Check shape the teacher's logger/entry package uses.
type Entry interface {
	Field(key string, val interface{}) Entry
	Fields(f Fields) Entry
	// ErrorAdd attaches errors to the entry; nil errors are dropped when cleanNil is true.
	ErrorAdd(cleanNil bool, err ...error) Entry
	// Check logs at the entry's level if any error was attached, otherwise logs at lvlOK
	// (NilLevel suppresses the ok-path log). Returns true if no error was attached.
	Check(lvlOK Level) bool
	// Log unconditionally emits the entry at its configured level.
	Log()
}

type entry struct {
	log *logrus.Logger
	lvl Level
	msg string
	fld Fields
	err []error
}

func newEntry(log *logrus.Logger, lvl Level, msg string, fld Fields) Entry {
	return &entry{log: log, lvl: lvl, msg: msg, fld: fld.Clone()}
}

func (e *entry) Field(key string, val interface{}) Entry {
	if e.fld == nil {
		e.fld = Fields{}
	}
	e.fld[key] = val
	return e
}

func (e *entry) Fields(f Fields) Entry {
	e.fld = e.fld.Merge(f)
	return e
}

func (e *entry) ErrorAdd(cleanNil bool, err ...error) Entry {
	for _, er := range err {
		if er == nil && cleanNil {
			continue
		}
		e.err = append(e.err, er)
	}
	return e
}

func (e *entry) Check(lvlOK Level) bool {
	if len(e.err) == 0 {
		if lvlOK != NilLevel {
			e.lvl = lvlOK
			e.Log()
		}
		return true
	}

	e.Log()
	return false
}

func (e *entry) Log() {
	if e.log == nil || e.lvl == NilLevel {
		return
	}

	fields := make(logrus.Fields, len(e.fld)+1)
	for k, v := range e.fld {
		fields[k] = v
	}

	if len(e.err) > 0 {
		errs := make([]string, 0, len(e.err))
		for _, er := range e.err {
			if er != nil {
				errs = append(errs, er.Error())
			}
		}
		if len(errs) > 0 {
			fields["errors"] = errs
		}
	}

	e.log.WithFields(fields).Log(e.lvl.Logrus(), e.msg)
}
