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

// Package poller provides a single portable readiness-poll interface
// wrapping kqueue on BSD/macOS and epoll on Linux. Callers register a
// socket fd with a bitmask of desired readiness directions and an opaque
// cookie, then block in Wait for a batch of readiness events.
//
// The poller holds no buffers of its own: once Wait reports write
// readiness, the caller is expected to write until it observes
// socket.ErrAgain or to call UnregisterWrite; once it reports read
// readiness, the caller is expected to drain until socket.ErrAgain.
package poller

import (
	"io"
	"io/ioutil"
	"log"
	"os"
	"sync"
	"unsafe"
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
		logger = log.New(w, "poller: ", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	})
	return logger
}

// Direction is a registration flag set: Read and Write are independently
// combinable via bitwise OR, matching the original's
// MULTIPLEX_REGISTER_TYPE_FLAG_{READ,WRITE}.
type Direction int

const (
	Read Direction = 1 << iota
	Write
)

// Cookie is the opaque value a caller associates with a registration. It is
// returned unchanged on every Event produced for that registration,
// enabling O(1) caller-side dispatch without a second lookup.
//
// Unlike the original C surface, which stuffs a raw pointer into the
// kernel's per-event opaque field (kevent.udata / epoll_event.data.ptr) and
// reads it back across the kernel boundary, this package keeps cookies in
// an fd-keyed table inside the Poller itself and only ever hands the kernel
// a bare fd. This sidesteps relying on golang.org/x/sys/unix's internal
// struct layout for a raw pointer round-trip through kernel memory, which
// would be unsafe to do across a moving/compacting future GC. The
// observable contract — an Event carries back exactly the Cookie that was
// registered — is identical.
type Cookie any

// Event is an opaque readiness record produced by Wait.
type Event struct {
	fd     int
	cookie Cookie
	read   bool
	write  bool
}

// Fd returns the registered socket's file descriptor.
func (e Event) Fd() int { return e.fd }

// Cookie returns the opaque value supplied at registration time.
func (e Event) Cookie() Cookie { return e.cookie }

// IsRead reports whether the event signals read readiness.
func (e Event) IsRead() bool { return e.read }

// IsWrite reports whether the event signals write readiness.
func (e Event) IsWrite() bool { return e.write }

// EventSize documents the size, in bytes, of a single Event record, kept
// for parity with the original FFI-oriented *_size() accessor pattern.
// Go callers allocate an []Event directly and never need this value; it
// exists for a hypothetical cgo/FFI binding layer sitting on top of this
// package.
func EventSize() uintptr {
	return unsafe.Sizeof(Event{})
}

type registration struct {
	cookie Cookie
	flags  Direction
}
