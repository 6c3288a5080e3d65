// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

//go:build linux

package pmu

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// currentCPU returns the logical CPU the calling goroutine's underlying
// thread is executing on right now, via the getcpu(2) syscall. This is a
// best-effort hint: by the time a caller uses the result the scheduler may
// already have moved the thread elsewhere, and it says nothing about which
// CPU the sampled target thread is running on — only where the sampler
// itself happened to be at read time.
func currentCPU() (uint32, error) {
	var cpu, node uint32
	_, _, errno := unix.Syscall(unix.SYS_GETCPU,
		uintptr(unsafe.Pointer(&cpu)),
		uintptr(unsafe.Pointer(&node)),
		0)
	if errno != 0 {
		return 0, errno
	}
	return cpu, nil
}
