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

// Package backtrace renders the current goroutine's call stack into a
// human-readable string by shelling out to the platform symbolizer
// (addr2line on Linux, atos on macOS). Capture is a no-op unless
// BACKTRACE_VERBOSE is set in the environment.
package backtrace

import (
	"io"
	"io/ioutil"
	"log"
	"os"
	"runtime"
	"sync"
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
		logger = log.New(w, "backtrace: ", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	})
	return logger
}

// maxFrames bounds how many return addresses Capture collects, mirroring
// the original's MAX_BACKTRACE_ENTRIES.
const maxFrames = 128

// maxOutputBytes bounds the rendered backtrace, mirroring the original's
// MAX_BACKTRACE_LEN. Symbolication stops once the accumulated output would
// exceed this size.
const maxOutputBytes = 1024 * 1024

// verboseEnv is the activation gate. The original checks RUST_BACKTRACE, an
// artefact of its build tooling sharing a toolchain with a Rust component;
// this substrate has no such neighbour, so the gate is renamed to something
// self-describing.
const verboseEnv = "BACKTRACE_VERBOSE"

// Capture returns a symbolicated backtrace of the calling goroutine as a
// single string, one frame per line. It returns an empty string if
// BACKTRACE_VERBOSE is unset, if the platform symbolizer isn't available,
// or if the caller's own binary path can't be determined.
//
// skip is the number of additional stack frames to skip beyond Capture
// itself, matching runtime.Callers' convention.
func Capture(skip int) string {
	if os.Getenv(verboseEnv) == "" {
		return ""
	}

	binary, err := os.Executable()
	if err != nil {
		getLogger().Printf("os.Executable: %v", err)
		return ""
	}

	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return ""
	}

	return symbolicate(binary, pcs[:n])
}
