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

// Package protocol carries the types shared by connserve and the three
// wire-protocol adapters (rsgi, asgi, wsgi): the read-only request scope,
// an ordered header multi-map, and the handler/result contract connserve
// dispatches through scheduler.
package protocol

import "strings"

// HeaderField is one (name, value) pair. Headers preserves insertion order
// and duplicate names, matching RSGI/ASGI semantics where a header may
// appear more than once (e.g. multiple Set-Cookie / Cookie fragments).
type HeaderField struct {
	Name  string
	Value string
}

// Headers is an ordered multi-map of header fields. The zero value is an
// empty header set ready to use.
type Headers []HeaderField

// Add appends a field, preserving any existing occurrences of name.
func (h *Headers) Add(name, value string) {
	*h = append(*h, HeaderField{Name: name, Value: value})
}

// Get returns the first value for name (case-insensitive), and whether it
// was found.
func (h Headers) Get(name string) (string, bool) {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// Values returns every value recorded for name, in insertion order.
func (h Headers) Values(name string) []string {
	var out []string
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			out = append(out, f.Value)
		}
	}
	return out
}

// Set replaces every existing occurrence of name with a single field.
func (h *Headers) Set(name, value string) {
	out := make(Headers, 0, len(*h)+1)
	for _, f := range *h {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	out = append(out, HeaderField{Name: name, Value: value})
	*h = out
}

// Len reports the number of fields, including duplicates.
func (h Headers) Len() int {
	return len(h)
}
