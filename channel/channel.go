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

// Package channel provides a thread-safe intrusive FIFO for any-to-any
// producer/consumer handoff between goroutines, with condition-variable
// blocking on receive.
//
// The queue has no capacity bound and applies no backpressure: memory
// pressure from an unbounded backlog is the caller's problem, not the
// channel's. Exactly one consumer ever sees a given Message.
package channel

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Send once the Channel has been closed.
var ErrClosed = errors.New("channel: send on closed channel")

// Message is a heap-allocated record with an intrusive next pointer and a
// payload. Ownership transfers from producer to Channel on Send, and from
// Channel to consumer on Recv; the Channel itself never frees a Message.
type Message struct {
	next    *Message
	Payload []byte
}

// NewMessage allocates a Message wrapping the given payload. The payload
// slice is held, not copied; callers should not mutate it after handing the
// Message to Send.
func NewMessage(payload []byte) *Message {
	return &Message{Payload: payload}
}

// Channel is a mutex, a condition variable, and head/tail pointers into a
// singly linked list of Messages.
//
// Invariants, all GUARDED_BY(mu): (head == nil) == (tail == nil); when
// non-empty, tail.next == nil and the list is reachable from head.
type Channel struct {
	mu   sync.Mutex
	cond sync.Cond

	head *Message // GUARDED_BY(mu)
	tail *Message // GUARDED_BY(mu)
	closed bool   // GUARDED_BY(mu)
}

// New returns a ready-to-use, empty Channel.
func New() *Channel {
	c := &Channel{}
	c.cond.L = &c.mu
	return c
}

// Send enqueues msg, waking exactly one blocked Recv call (if any). It
// returns ErrClosed if the Channel has already been Closed; the message is
// not enqueued in that case and the caller retains ownership.
//
// send order from a single producer is preserved: Send acquires the lock for
// the whole link-and-signal sequence, so two Sends from the same goroutine
// can never be observed out of order by any consumer.
func (c *Channel) Send(msg *Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	msg.next = nil
	if c.tail != nil {
		c.tail.next = msg
	} else {
		c.head = msg
	}
	c.tail = msg

	c.cond.Signal()
	return nil
}

// Recv blocks until a Message is available or the Channel is Closed. ok is
// false only when the Channel was closed with no Message pending; in that
// case the returned Message is nil.
func (c *Channel) Recv() (msg *Message, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.head == nil && !c.closed {
		c.cond.Wait()
	}

	if c.head == nil {
		return nil, false
	}

	msg = c.head
	c.head = msg.next
	if c.head == nil {
		c.tail = nil
	}
	msg.next = nil

	return msg, true
}

// Pending reports whether a Message is currently queued. It is advisory
// only: by the time the caller observes the result, an intervening Recv may
// have already drained the head. The read itself takes the lock, which
// keeps it free of data races but does not make the answer any less of a
// snapshot.
func (c *Channel) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head != nil
}

// Close marks the Channel closed. Any goroutines currently blocked in Recv
// are woken and return (nil, false) once the queue drains; any pending
// Messages already queued are still delivered to Recv callers before (nil,
// false) is returned. Further Sends return ErrClosed.
//
// The original C channel has no such primitive; its design notes flag this
// as a gap a rewrite should close, which this does.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cond.Broadcast()
}
