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

package protocol

import "github.com/sabouaram/aerohttp/errors"

const (
	// ErrorProtocolViolation covers double response_* calls, a second RSGI
	// start, or any ASGI send after a terminal message.
	ErrorProtocolViolation errors.CodeError = iota + errors.MinPkgProtocol
	// ErrorClosed reports that the peer disconnected before the handler
	// finished reading the body or writing the response.
	ErrorClosed
)

var isCodeError = false

func IsCodeError() bool {
	return isCodeError
}

func init() {
	isCodeError = errors.ExistInMapMessage(ErrorProtocolViolation)
	errors.RegisterIdFctMessage(ErrorProtocolViolation, getMessage)
}

func getMessage(code errors.CodeError) (message string) {
	switch code {
	case errors.UnknownError:
		return ""
	case ErrorProtocolViolation:
		return "protocol violation: response already sent or message out of order"
	case ErrorClosed:
		return "peer closed the connection"
	}

	return ""
}

// ErrProtocol and ErrClosed are plain-error forms of the two codes above,
// convertible back to their errors.CodeError via errors.IsCodeError-style
// handling where callers need the numeric code. The rsgi, asgi and wsgi
// adapters do not return them; each reports its own package's codes.
var (
	ErrProtocol = ErrorProtocolViolation.Error(nil)
	ErrClosed   = ErrorClosed.Error(nil)
)
