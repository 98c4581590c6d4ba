//go:build !windows

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
	"runtime"
	"syscall"

	"golang.org/x/sys/unix"
)

// controlFunc returns a net.ListenConfig.Control callback that sets
// SO_REUSEADDR/SO_REUSEPORT on the raw socket before bind, the same
// setsockopt idiom momentics-hioload-ws applies with golang.org/x/sys/unix
// in transport_linux.go (there for TCP_NODELAY on a manually-created
// socket; here for the listen-time reuse options).
func controlFunc(cfg Config) func(string, string, syscall.RawConn) error {
	return func(_, _ string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			if cfg.ReuseAddr {
				if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); e != nil {
					sockErr = e
					return
				}
			}
			if cfg.ReusePort {
				opt := reusePortOption()
				if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, opt, 1); e != nil {
					sockErr = e
					return
				}
			}
		})
		if err != nil {
			return err
		}
		return sockErr
	}
}

// reusePortOption returns the platform-specific socket option for port
// sharing: SO_REUSEPORT on linux/darwin, SO_REUSEPORT_LB on freebsd.
func reusePortOption() int {
	if runtime.GOOS == "freebsd" {
		return unix.SO_REUSEPORT_LB
	}
	return unix.SO_REUSEPORT
}
