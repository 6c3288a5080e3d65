// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

//go:build linux

package pmu

import (
	"encoding/binary"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	enableRequest  = unix.PERF_EVENT_IOC_ENABLE
	disableRequest = unix.PERF_EVENT_IOC_DISABLE
	resetRequest   = unix.PERF_EVENT_IOC_RESET
)

func eventTypeConfig(event EventType) (typ uint32, config uint64) {
	switch event {
	case EventCPUCycles:
		return perfTypeHardware, perfCountHWCPUCycles
	case EventInstructions:
		return perfTypeHardware, perfCountHWInstructions
	case EventLLCReferences:
		return perfTypeHWCache, cacheConfig(perfCountHWCacheLL, perfCountHWCacheOpRead, perfCountHWCacheResAccess)
	case EventLLCMisses:
		return perfTypeHWCache, cacheConfig(perfCountHWCacheLL, perfCountHWCacheOpRead, perfCountHWCacheResMiss)
	default:
		return perfTypeHardware, perfCountHWBranchMisses
	}
}

// OpenCounter opens a single hardware event on pid/cpu. A pid of -1 is
// translated to 0 ("self") before the syscall: -1 has a different, kernel-
// level meaning for perf_event_open (all processes on cpu, which needs
// elevated privilege) and is not the "self" shorthand this package's callers
// intend by it.
func OpenCounter(event EventType, pid, cpu int) (*Counter, error) {
	if pid == -1 {
		pid = 0
	}

	typ, config := eventTypeConfig(event)

	attr := unix.PerfEventAttr{
		Type:   typ,
		Config: config,
		Size:   uint32(unsafe.Sizeof(unix.PerfEventAttr{})),
		Bits:   unix.PerfBitExcludeKernel | unix.PerfBitExcludeHv | unix.PerfBitDisabled,
	}

	fd, err := unix.PerfEventOpen(&attr, pid, cpu, -1, unix.PERF_FLAG_FD_CLOEXEC)
	if err != nil {
		return nil, mapOpenError(err)
	}

	return &Counter{event: event, fd: int32(fd)}, nil
}

// Close releases the counter's file descriptor.
func (c *Counter) Close() error {
	if c.fd == invalidFd {
		return nil
	}
	err := unix.Close(int(c.fd))
	c.fd = invalidFd
	return err
}

// Read returns the current raw value of the tracked event.
func (c *Counter) Read() (uint64, error) {
	buf := make([]byte, 8)
	n, err := unix.Read(int(c.fd), buf)
	if err != nil {
		return 0, newError(ReasonReadFailed, c.event.String(), err)
	}
	if n < 8 {
		return 0, newError(ReasonReadFailed, c.event.String(), nil)
	}
	return binary.LittleEndian.Uint64(buf), nil
}

func counterIoctl(fd int32, request int) error {
	if fd == invalidFd {
		return newError(ReasonInvalidState, "", nil)
	}
	// arg 0: the ioctl applies to this counter only, not a group.
	if err := unix.IoctlSetInt(int(fd), uint(request), 0); err != nil {
		return newError(ReasonInvalidState, "", err)
	}
	return nil
}
