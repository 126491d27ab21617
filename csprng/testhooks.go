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

//go:build substrate_testhooks

package csprng

// TestSeed deterministically re-initialises the global context from the
// given IV and key, bypassing OS entropy. Only available under the
// substrate_testhooks build tag; production builds never link this in.
//
// Matching the original test suite's expectations, the first int64 drawn
// after seeding is deliberately discarded as a warm-up draw.
func TestSeed(iv [16]byte, key [32]byte) {
	ctx, err := newCtx(key[:], iv[:])
	if err != nil {
		panic(err)
	}
	globalOnce.Do(func() {})
	global = ctx
	_ = global.RandInt64()
}
