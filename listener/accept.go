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

package listener

import (
	"errors"
	"net"

	liberr "github.com/sabouaram/aerohttp/errors"
)

// Classify turns a raw error returned by net.Listener.Accept into the
// worker's Transient/Fatal contract: Transient errors (a single connection
// failed mid-accept, e.g. ECONNABORTED) should not stop the accept loop;
// Fatal errors (the listening socket itself is gone) should.
func Classify(err error) liberr.Error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return liberr.New(ErrorAcceptTransient.Uint16(), err.Error(), err)
	}

	if errors.Is(err, net.ErrClosed) {
		return liberr.New(ErrorAcceptFatal.Uint16(), err.Error(), err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Temporary() {
			return liberr.New(ErrorAcceptTransient.Uint16(), err.Error(), err)
		}
	}

	return liberr.New(ErrorAcceptFatal.Uint16(), err.Error(), err)
}

// IsFatal reports whether err (as classified by Classify) should stop the
// accept loop.
func IsFatal(err error) bool {
	return Classify(err).GetCode() == ErrorAcceptFatal
}
