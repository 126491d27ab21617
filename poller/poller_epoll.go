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

//go:build linux

package poller

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/cordial-systems/substrate/socket"
)

// Poller wraps a Linux epoll instance. No explicit EPOLLET is requested, so
// registrations are level-triggered: readiness is re-reported on every Wait
// until the caller drains to socket.ErrAgain or calls UnregisterWrite. This
// differs from the kqueue implementation, whose filters carry EV_CLEAR and
// are therefore edge-triggered.
type Poller struct {
	fd int

	mu   sync.Mutex
	regs map[int]*registration // GUARDED_BY(mu)
}

// New allocates a fresh epoll instance.
func New() (*Poller, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, socket.ErrMultiplexInit
	}
	return &Poller{fd: fd, regs: make(map[int]*registration)}, nil
}

func epollFlags(d Direction) uint32 {
	var f uint32
	if d&Read != 0 {
		f |= unix.EPOLLIN
	}
	if d&Write != 0 {
		f |= unix.EPOLLOUT
	}
	return f
}

// Register idempotently associates s with the readiness directions in
// flags and the opaque cookie. A prior registration for the same fd is
// replaced: EPOLL_CTL_ADD is retried as EPOLL_CTL_MOD on EEXIST, matching
// the original's fallback behavior exactly.
func (p *Poller) Register(s *socket.Handle, flags Direction, cookie Cookie) error {
	fd := s.Fd()
	ev := unix.EpollEvent{Events: epollFlags(flags), Fd: int32(fd)}

	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		if err == unix.EEXIST {
			getLogger().Printf("fd %d already registered, falling back to MOD", fd)
			if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
				return socket.ErrRegister
			}
		} else {
			return socket.ErrRegister
		}
	}

	p.mu.Lock()
	p.regs[fd] = &registration{cookie: cookie, flags: flags}
	p.mu.Unlock()

	return nil
}

// UnregisterWrite removes write interest while retaining read interest, by
// issuing an EPOLL_CTL_MOD restricted to EPOLLIN.
func (p *Poller) UnregisterWrite(s *socket.Handle, cookie Cookie) error {
	fd := s.Fd()
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return socket.ErrRegister
	}

	p.mu.Lock()
	if r, ok := p.regs[fd]; ok {
		r.flags &^= Write
	}
	p.mu.Unlock()

	return nil
}

// Wait blocks up to timeout (negative means indefinite, zero means poll)
// and returns the number of readiness records written into buf.
func (p *Poller) Wait(buf []Event, timeout time.Duration) (int, error) {
	raw := make([]unix.EpollEvent, len(buf))

	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}

	n, err := unix.EpollWait(p.fd, raw, ms)
	if err != nil {
		if err == unix.EINTR {
			getLogger().Printf("epoll_wait interrupted by signal, returning zero events")
			return 0, nil
		}
		return 0, err
	}

	p.mu.Lock()
	for i := 0; i < n; i++ {
		fd := int(raw[i].Fd)
		reg := p.regs[fd]
		var cookie Cookie
		if reg != nil {
			cookie = reg.cookie
		}
		buf[i] = Event{
			fd:     fd,
			cookie: cookie,
			read:   raw[i].Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0,
			write:  raw[i].Events&unix.EPOLLOUT != 0,
		}
	}
	p.mu.Unlock()

	return n, nil
}

// Close releases the epoll fd.
func (p *Poller) Close() error {
	return unix.Close(p.fd)
}
