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

//go:build substrate_fdcount

package socket

import "sync/atomic"

var fdCount int64

func fdCountInc() { atomic.AddInt64(&fdCount, 1) }
func fdCountDec() { atomic.AddInt64(&fdCount, -1) }

// FDCount returns the number of fds produced by this package's
// constructors, minus the number of successful Closes. Only available
// under the substrate_fdcount build tag, so tests can assert no leaks
// without production builds paying for the bookkeeping.
func FDCount() int64 { return atomic.LoadInt64(&fdCount) }
