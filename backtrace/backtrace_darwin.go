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

package backtrace

import (
	"bufio"
	"fmt"
	"os/exec"
	"strings"
)

// darwinPCFixup mirrors the original's "- 4" adjustment applied to each
// return address before the atos lookup.
const darwinPCFixup = 4

// loadAddress is the fixed Mach-O text segment base atos expects with -l,
// matching the original's hardcoded 0x100000000.
const loadAddress = "0x100000000"

// selfFramePrefix filters out this package's own Capture frame from the
// rendered output, the same way the original excludes lines that start
// with "backtrace_full ".
const selfFramePrefix = "backtrace.Capture"

func symbolicate(binary string, pcs []uintptr) string {
	var out strings.Builder

	for _, pc := range pcs {
		addr := uint64(pc) - darwinPCFixup
		cmd := exec.Command("atos", "-fullPath", "-o", binary, "-l", loadAddress, fmt.Sprintf("0x%x", addr))
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			getLogger().Printf("atos StdoutPipe: %v", err)
			continue
		}
		if err := cmd.Start(); err != nil {
			getLogger().Printf("atos Start: %v", err)
			continue
		}

		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, selfFramePrefix) {
				continue
			}
			if out.Len()+len(line)+1 >= maxOutputBytes {
				break
			}
			out.WriteString(line)
			out.WriteByte('\n')
		}
		cmd.Wait()
	}

	return out.String()
}
