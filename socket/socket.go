// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package socket provides nonblocking IPv4 TCP sockets and self-pipes, with
// a stable numeric error taxonomy so callers can pattern-match on failure
// kind without parsing strings.
package socket

import (
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

func getLogger() *log.Logger {
	loggerOnce.Do(func() {
		var w io.Writer = ioutil.Discard
		if os.Getenv("SUBSTRATE_DEBUG") != "" {
			w = os.Stderr
		}
		logger = log.New(w, "socket: ", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	})
	return logger
}

// Err is the stable, platform-independent socket error taxonomy. Each
// value is a distinct negative sentinel, mirroring the original C surface's
// numeric error codes, so callers can test for a specific failure kind
// without string matching.
type Err int

const (
	ErrSocket Err = -(iota + 1)
	ErrConnect
	ErrSetsockopt
	ErrBind
	ErrListen
	ErrAccept
	ErrFcntl
	ErrRegister
	ErrMultiplexInit
	ErrGetsockname
	ErrAgain
)

func (e Err) Error() string {
	switch e {
	case ErrSocket:
		return "socket: socket(2) failed"
	case ErrConnect:
		return "socket: connect(2) failed"
	case ErrSetsockopt:
		return "socket: setsockopt(2) failed"
	case ErrBind:
		return "socket: bind(2) failed"
	case ErrListen:
		return "socket: listen(2) failed"
	case ErrAccept:
		return "socket: accept(2) failed"
	case ErrFcntl:
		return "socket: fcntl(2) failed"
	case ErrRegister:
		return "socket: poller registration failed"
	case ErrMultiplexInit:
		return "socket: poller initialization failed"
	case ErrGetsockname:
		return "socket: getsockname(2) failed"
	case ErrAgain:
		return "socket: would block"
	default:
		return fmt.Sprintf("socket: unknown error %d", int(e))
	}
}

// Handle owns exactly one OS file descriptor in nonblocking mode. Equality
// is fd equality. A Handle is created by Connect, Listen, or (*Handle)
// Accept, and destroyed by Close, which returns the fd to the OS. Shutdown
// is an independent transition that does not release the fd.
type Handle struct {
	fd int
}

// Fd returns the raw file descriptor. It is exposed for registration with a
// poller.Poller; the poller does not take ownership of it.
func (h *Handle) Fd() int { return h.fd }

// Equal reports whether two Handles wrap the same file descriptor.
func (h *Handle) Equal(o *Handle) bool {
	if h == nil || o == nil {
		return h == o
	}
	return h.fd == o.fd
}

func setNonblocking(fd int) error {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return ErrFcntl
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFL, flags|unix.O_NONBLOCK); err != nil {
		return ErrFcntl
	}
	return nil
}

func closeFd(fd int) error {
	err := unix.Close(fd)
	if err == nil {
		fdCountDec()
	}
	return err
}

// Connect opens a nonblocking TCP connection to dst:port. dst is four bytes
// in network order, port is a host-order port number.
func Connect(dst [4]byte, port int) (*Handle, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, ErrSocket
	}
	fdCountInc()

	addr := &unix.SockaddrInet4{Port: port, Addr: dst}
	if err := unix.Connect(fd, addr); err != nil {
		getLogger().Printf("connect: %v", err)
		closeFd(fd)
		return nil, ErrConnect
	}

	if err := setNonblocking(fd); err != nil {
		closeFd(fd)
		return nil, err
	}

	return &Handle{fd: fd}, nil
}

// Listen binds and listens on backlog connections, returning the actual
// bound port (useful with port == 0 for ephemeral-port allocation) via
// getsockname.
//
// Listen always binds 0.0.0.0 regardless of bind's contents. This is a
// design artefact carried forward unchanged from the original
// implementation rather than silently fixed: the original spec lists it as
// an open question ("unclear whether intentional"), not a defect to repair,
// so this rewrite preserves the exact observable behavior.
func Listen(bind [4]byte, port, backlog int) (*Handle, int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, 0, ErrSocket
	}
	fdCountInc()

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		closeFd(fd)
		return nil, 0, ErrSetsockopt
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		closeFd(fd)
		return nil, 0, ErrSetsockopt
	}

	if err := setNonblocking(fd); err != nil {
		closeFd(fd)
		return nil, 0, err
	}

	addr := &unix.SockaddrInet4{Port: port, Addr: [4]byte{0, 0, 0, 0}}
	if err := unix.Bind(fd, addr); err != nil {
		closeFd(fd)
		return nil, 0, ErrBind
	}

	if err := unix.Listen(fd, backlog); err != nil {
		closeFd(fd)
		return nil, 0, ErrListen
	}

	sa, err := unix.Getsockname(fd)
	if err != nil {
		closeFd(fd)
		return nil, 0, ErrGetsockname
	}
	boundPort := 0
	if in4, ok := sa.(*unix.SockaddrInet4); ok {
		boundPort = in4.Port
	}

	return &Handle{fd: fd}, boundPort, nil
}

// Accept accepts one pending connection, placing it in nonblocking mode
// before returning. It returns ErrAgain itself (so errors.Is(err, ErrAgain)
// holds) if no connection is pending.
func (h *Handle) Accept() (*Handle, error) {
	fd, _, err := unix.Accept(h.fd)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return nil, ErrAgain
		}
		return nil, ErrAccept
	}
	fdCountInc()

	if err := setNonblocking(fd); err != nil {
		closeFd(fd)
		return nil, err
	}

	return &Handle{fd: fd}, nil
}

// Send writes buf to the socket, returning ErrAgain if the socket would
// block. Any other negative return is a hard error.
func (h *Handle) Send(buf []byte) (int, error) {
	n, err := unix.Write(h.fd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return 0, ErrAgain
		}
		return 0, err
	}
	return n, nil
}

// Recv reads into buf, returning ErrAgain if the socket would block. A
// zero-byte, nil-error return means the peer closed the connection in an
// orderly fashion.
func (h *Handle) Recv(buf []byte) (int, error) {
	n, err := unix.Read(h.fd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return 0, ErrAgain
		}
		return 0, err
	}
	return n, nil
}

// Shutdown half-closes both directions of the connection. It is independent
// of Close: the fd is not released and remains valid to Close later.
func (h *Handle) Shutdown() error {
	return unix.Shutdown(h.fd, unix.SHUT_RDWR)
}

// Close releases the fd back to the OS.
func (h *Handle) Close() error {
	return closeFd(h.fd)
}

// ClearPipe drains a readable fd until it would block. It is the standard
// way to empty a self-pipe after waking a poller.
func (h *Handle) ClearPipe() error {
	buf := make([]byte, 512)
	for {
		n, err := unix.Read(h.fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return ErrAgain
			}
			return err
		}
		if n <= 0 {
			return ErrAgain
		}
	}
}

// NewSelfPipe opens a pipe(2) pair with both ends in nonblocking mode. A
// poller owner wakes itself from another goroutine by writing one byte to
// the write end while blocked on the read end in Wait.
func NewSelfPipe() (r, w *Handle, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], 0); err != nil {
		return nil, nil, err
	}
	fdCountInc()
	fdCountInc()

	for _, fd := range fds {
		if err := setNonblocking(fd); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			fdCountDec()
			fdCountDec()
			return nil, nil, err
		}
	}

	return &Handle{fd: fds[0]}, &Handle{fd: fds[1]}, nil
}
