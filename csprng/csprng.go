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

// Package csprng provides a counter-mode AES keystream suitable for use as a
// cryptographically secure pseudo-random byte source.
//
// It exposes both a process-global stream, lazily seeded from OS entropy on
// first use, and per-instance contexts for callers that need lock-free
// partitioning across goroutines. Neither is internally synchronised: the
// global stream must be confined to one goroutine or externally locked, and
// the same is true of any individual Ctx.
package csprng

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

const (
	keySize = 32
	ivSize  = aes.BlockSize // 16
)

// Ctx is an AES-CTR keystream context. Every byte it produces is the raw
// keystream at the context's current counter offset; the counter's forward
// progress is the sole guarantor of non-repetition within a seed.
//
// A Ctx is not safe for concurrent use. Callers that need concurrency should
// give each goroutine its own Ctx via NewContext.
type Ctx struct {
	stream cipher.Stream
}

func newCtx(key, iv []byte) (*Ctx, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("csprng: aes.NewCipher: %w", err)
	}
	return &Ctx{stream: cipher.NewCTR(block, iv)}, nil
}

// NewContext allocates a fresh context and seeds it independently from OS
// entropy. It returns a non-nil error on entropy failure rather than
// panicking, because per-context use is explicit and recoverable: unlike the
// global stream, nothing has already committed to this context being
// available.
func NewContext() (*Ctx, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("csprng: reading key entropy: %w", err)
	}
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("csprng: reading iv entropy: %w", err)
	}
	return newCtx(key, iv)
}

// RandBytes XORs len(v) zero bytes into v with the context's keystream,
// advancing the counter by len(v).
func (c *Ctx) RandBytes(v []byte) {
	c.stream.XORKeyStream(v, v)
}

// RandByte draws a single keystream byte.
func (c *Ctx) RandByte() byte {
	var b [1]byte
	c.RandBytes(b[:])
	return b[0]
}

// RandInt64 draws eight keystream bytes as an int64.
func (c *Ctx) RandInt64() int64 {
	var b [8]byte
	c.RandBytes(b[:])
	return int64(binary.LittleEndian.Uint64(b[:]))
}

// RandInt draws four keystream bytes as an int32-range int.
func (c *Ctx) RandInt() int {
	var b [4]byte
	c.RandBytes(b[:])
	return int(int32(binary.LittleEndian.Uint32(b[:])))
}

var (
	globalOnce sync.Once
	global     *Ctx
)

// initGlobal seeds the package-global context from OS entropy. It is
// guarded by sync.Once rather than run from a pre-main constructor, since Go
// has no equivalent of __attribute__((constructor)); every public entry
// point below funnels through the same Once.
func initGlobal() {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		panic(fmt.Sprintf("csprng: could not generate entropy for AES key generation: %v", err))
	}
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		panic(fmt.Sprintf("csprng: could not generate entropy for AES iv generation: %v", err))
	}
	ctx, err := newCtx(key, iv)
	if err != nil {
		panic(fmt.Sprintf("csprng: initializing global context: %v", err))
	}
	global = ctx
}

func globalCtx() *Ctx {
	globalOnce.Do(initGlobal)
	return global
}

// Reseed re-draws fresh entropy and re-initialises the global context. Like
// the initial seed, failure to draw entropy is treated as unrecoverable:
// there is no safe way to keep serving randomness without a key.
func Reseed() {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		panic(fmt.Sprintf("csprng: could not generate entropy for AES key generation: %v", err))
	}
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		panic(fmt.Sprintf("csprng: could not generate entropy for AES iv generation: %v", err))
	}
	ctx, err := newCtx(key, iv)
	if err != nil {
		panic(fmt.Sprintf("csprng: reseeding global context: %v", err))
	}
	globalOnce.Do(func() {}) // ensure Once is considered fired before we overwrite global
	global = ctx
}

// RandByte draws a single byte from the global keystream. Not safe for
// concurrent use; see the package doc comment.
func RandByte() byte { return globalCtx().RandByte() }

// RandInt64 draws an int64 from the global keystream.
func RandInt64() int64 { return globalCtx().RandInt64() }

// RandInt draws an int from the global keystream.
func RandInt() int { return globalCtx().RandInt() }

// RandBytes fills v from the global keystream.
func RandBytes(v []byte) { globalCtx().RandBytes(v) }
