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

package worker

import "github.com/sabouaram/aerohttp/errors"

const (
	ErrorAlreadyServing errors.CodeError = iota + errors.MinPkgWorker
	ErrorNotServing
	ErrorShutdownTimeout
	ErrorListen
	ErrorTLSWrap
)

const (
	ErrorPoolDuplicateBind errors.CodeError = iota + errors.MinPkgWorkerPool
	ErrorPoolUnknownBind
)

var isCodeError = false

func IsCodeError() bool {
	return isCodeError
}

func init() {
	isCodeError = errors.ExistInMapMessage(ErrorAlreadyServing)
	errors.RegisterIdFctMessage(ErrorAlreadyServing, getMessage)
	errors.RegisterIdFctMessage(ErrorPoolDuplicateBind, getMessage)
}

func getMessage(code errors.CodeError) (message string) {
	switch code {
	case errors.UnknownError:
		return ""
	case ErrorAlreadyServing:
		return "worker is already serving"
	case ErrorNotServing:
		return "worker is not currently serving"
	case ErrorShutdownTimeout:
		return "worker shutdown deadline exceeded waiting for connections to drain"
	case ErrorListen:
		return "worker failed to open its listening socket"
	case ErrorTLSWrap:
		return "worker failed to wrap its listener with TLS"
	case ErrorPoolDuplicateBind:
		return "a worker is already registered for this bind address"
	case ErrorPoolUnknownBind:
		return "no worker registered for this bind address"
	}

	return ""
}
