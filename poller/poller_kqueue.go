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

//go:build darwin

package poller

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/cordial-systems/substrate/socket"
)

// Poller wraps a BSD/macOS kqueue instance. Read and write interest are
// tracked as two independent kevent filters per fd, so UnregisterWrite can
// delete EVFILT_WRITE without disturbing EVFILT_READ. Registrations carry
// EV_CLEAR, matching the original's edge-triggered semantics: a filter only
// re-fires after new activity, so callers must drain to socket.ErrAgain
// rather than relying on Wait to keep reporting a static ready state.
type Poller struct {
	fd int

	mu   sync.Mutex
	regs map[int]*registration // GUARDED_BY(mu)
}

// New allocates a fresh kqueue instance.
func New() (*Poller, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, socket.ErrMultiplexInit
	}
	return &Poller{fd: fd, regs: make(map[int]*registration)}, nil
}

// Register idempotently associates s with the readiness directions in
// flags and the opaque cookie, adding or removing EVFILT_READ/EVFILT_WRITE
// kevents as needed to converge on the requested flag set.
func (p *Poller) Register(s *socket.Handle, flags Direction, cookie Cookie) error {
	fd := s.Fd()

	p.mu.Lock()
	prev := Direction(0)
	if r, ok := p.regs[fd]; ok {
		prev = r.flags
	}
	p.mu.Unlock()

	var changes []unix.Kevent_t
	if flags&Read != 0 && prev&Read == 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE | unix.EV_CLEAR})
	}
	if flags&Read == 0 && prev&Read != 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE})
	}
	if flags&Write != 0 && prev&Write == 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_ENABLE | unix.EV_CLEAR})
	}
	if flags&Write == 0 && prev&Write != 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE})
	}

	if len(changes) > 0 {
		if _, err := unix.Kevent(p.fd, changes, nil, nil); err != nil {
			return socket.ErrRegister
		}
	}

	p.mu.Lock()
	p.regs[fd] = &registration{cookie: cookie, flags: flags}
	p.mu.Unlock()

	return nil
}

// UnregisterWrite removes write interest while retaining read interest.
func (p *Poller) UnregisterWrite(s *socket.Handle, cookie Cookie) error {
	fd := s.Fd()

	change := unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE}
	if _, err := unix.Kevent(p.fd, []unix.Kevent_t{change}, nil, nil); err != nil {
		if err != unix.ENOENT {
			return socket.ErrRegister
		}
	}

	p.mu.Lock()
	if r, ok := p.regs[fd]; ok {
		r.flags &^= Write
		r.cookie = cookie
	}
	p.mu.Unlock()

	return nil
}

// Wait blocks up to timeout (negative means indefinite, zero means poll)
// and returns the number of readiness records written into buf.
func (p *Poller) Wait(buf []Event, timeout time.Duration) (int, error) {
	raw := make([]unix.Kevent_t, len(buf))

	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}

	n, err := unix.Kevent(p.fd, nil, raw, ts)
	if err != nil {
		if err == unix.EINTR {
			getLogger().Printf("kevent interrupted by signal, returning zero events")
			return 0, nil
		}
		return 0, err
	}

	p.mu.Lock()
	for i := 0; i < n; i++ {
		fd := int(raw[i].Ident)
		reg := p.regs[fd]
		var cookie Cookie
		if reg != nil {
			cookie = reg.cookie
		}
		buf[i] = Event{
			fd:     fd,
			cookie: cookie,
			read:   raw[i].Filter == unix.EVFILT_READ,
			write:  raw[i].Filter == unix.EVFILT_WRITE,
		}
	}
	p.mu.Unlock()

	return n, nil
}

// Close releases the kqueue fd.
func (p *Poller) Close() error {
	return unix.Close(p.fd)
}
