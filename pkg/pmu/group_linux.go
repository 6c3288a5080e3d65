// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

//go:build linux

package pmu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	perfTypeHardware = 0
	perfTypeHWCache  = 3

	perfCountHWCPUCycles      = 0
	perfCountHWInstructions   = 1
	perfCountHWBranchMisses   = 5
	perfCountHWCacheLL        = 2 // PERF_COUNT_HW_CACHE_LL
	perfCountHWCacheOpRead    = 0 // PERF_COUNT_HW_CACHE_OP_READ
	perfCountHWCacheResAccess = 0 // PERF_COUNT_HW_CACHE_RESULT_ACCESS
	perfCountHWCacheResMiss   = 1 // PERF_COUNT_HW_CACHE_RESULT_MISS
)

func cacheConfig(cacheID, opID, resultID uint64) uint64 {
	return cacheID | (opID << 8) | (resultID << 16)
}

// OpenGroup opens the fixed five-counter hardware group (cycles, instructions,
// LLC loads, LLC load misses, branch misses) targeting pid on cpu. Pass
// pid=-1, cpu>=0 to measure a whole CPU regardless of which thread runs on
// it; pid>=0, cpu=-1 measures a specific thread wherever it runs, the mode
// Sampler.AddTarget uses.
//
// On any failure, already-opened file descriptors are closed before
// returning, so a caller never needs to clean up a partially constructed
// Group.
func OpenGroup(pid, cpu int) (*Group, error) {
	g := &Group{}
	for i := range g.fds {
		g.fds[i] = invalidFd
	}

	specs := []struct {
		typ    uint32
		config uint64
	}{
		{perfTypeHardware, perfCountHWCPUCycles},
		{perfTypeHardware, perfCountHWInstructions},
		{perfTypeHWCache, cacheConfig(perfCountHWCacheLL, perfCountHWCacheOpRead, perfCountHWCacheResAccess)},
		{perfTypeHWCache, cacheConfig(perfCountHWCacheLL, perfCountHWCacheOpRead, perfCountHWCacheResMiss)},
		{perfTypeHardware, perfCountHWBranchMisses},
	}

	leaderFd := -1
	for i, spec := range specs {
		attr := unix.PerfEventAttr{
			Type:        spec.typ,
			Config:      spec.config,
			Size:        uint32(unsafe.Sizeof(unix.PerfEventAttr{})),
			Bits:        unix.PerfBitExcludeKernel | unix.PerfBitExcludeHv,
			Read_format: 0,
		}

		if i == 0 {
			attr.Bits |= unix.PerfBitDisabled
			attr.Read_format = unix.PERF_FORMAT_GROUP
		}

		groupFd := leaderFd

		fd, err := unix.PerfEventOpen(&attr, pid, cpu, groupFd, unix.PERF_FLAG_FD_CLOEXEC)
		if err != nil {
			g.Close()
			return nil, mapOpenError(err)
		}

		g.fds[i] = int32(fd)
		if i == 0 {
			leaderFd = fd
		}
	}

	return g, nil
}

// mapOpenError translates a perf_event_open errno into our closed Reason
// taxonomy, matching the mapping the kernel documents for this syscall.
func mapOpenError(err error) error {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return newError(ReasonOpenFailed, "", err)
	}

	switch errno {
	case unix.EACCES, unix.EPERM:
		return newError(ReasonPermissionDenied, "", err)
	case unix.ENOENT, unix.ENODEV, unix.EOPNOTSUPP:
		return newError(ReasonEventNotSupported, "", err)
	case unix.ESRCH, unix.EINVAL:
		return newError(ReasonInvalidTarget, "", err)
	case unix.EMFILE, unix.ENFILE:
		return newError(ReasonTooManyEvents, "", err)
	default:
		return newError(ReasonOpenFailed, "", err)
	}
}

// Close releases all file descriptors held by the group. It is safe to call
// on a partially opened or already-closed group.
func (g *Group) Close() error {
	var firstErr error
	for i, fd := range g.fds {
		if fd == invalidFd {
			continue
		}
		if err := unix.Close(int(fd)); err != nil && firstErr == nil {
			firstErr = err
		}
		g.fds[i] = invalidFd
	}
	return firstErr
}

// Enable starts all counters in the group simultaneously via the leader's
// ioctl with PERF_IOC_FLAG_GROUP.
func (g *Group) Enable() error {
	if !g.IsValid() {
		return newError(ReasonInvalidState, "", nil)
	}
	return ioctlGroup(g.fds[counterCycles], unix.PERF_EVENT_IOC_ENABLE)
}

// Disable stops all counters in the group simultaneously.
func (g *Group) Disable() error {
	if !g.IsValid() {
		return newError(ReasonInvalidState, "", nil)
	}
	return ioctlGroup(g.fds[counterCycles], unix.PERF_EVENT_IOC_DISABLE)
}

// Reset zeroes all counter values in the group without changing their
// running state.
func (g *Group) Reset() error {
	if !g.IsValid() {
		return newError(ReasonInvalidState, "", nil)
	}
	return ioctlGroup(g.fds[counterCycles], unix.PERF_EVENT_IOC_RESET)
}

func ioctlGroup(leaderFd int32, request int) error {
	if err := unix.IoctlSetInt(int(leaderFd), uint(request), unix.PERF_IOC_FLAG_GROUP); err != nil {
		return newError(ReasonInvalidState, "", err)
	}
	return nil
}

// groupReadFormatSize is nr(8) + 5 values(8 each), the layout the kernel
// writes for a PERF_FORMAT_GROUP read with no TOTAL_TIME_* flags set.
const groupReadFormatSize = 8 + counterCount*8

// Read takes an atomic snapshot of all five counters via a single read() on
// the group leader.
func (g *Group) Read() (GroupReading, error) {
	if !g.IsValid() {
		return GroupReading{}, newError(ReasonInvalidState, "", nil)
	}

	buf := make([]byte, groupReadFormatSize)
	n, err := unix.Read(int(g.fds[counterCycles]), buf)
	if err != nil {
		return GroupReading{}, newError(ReasonReadFailed, "", err)
	}
	if n < groupReadFormatSize {
		return GroupReading{}, newError(ReasonReadFailed, "", fmt.Errorf("short read: got %d bytes, want %d", n, groupReadFormatSize))
	}

	nr := binary.LittleEndian.Uint64(buf[0:8])
	if nr != counterCount {
		return GroupReading{}, newError(ReasonReadFailed, "", fmt.Errorf("group reported %d counters, want %d", nr, counterCount))
	}

	values := [counterCount]uint64{}
	for i := 0; i < counterCount; i++ {
		off := 8 + i*8
		values[i] = binary.LittleEndian.Uint64(buf[off : off+8])
	}

	return GroupReading{
		Cycles:        values[counterCycles],
		Instructions:  values[counterInstructions],
		LLCReferences: values[counterLLCLoads],
		LLCMisses:     values[counterLLCMisses],
		BranchMisses:  values[counterBranchMisses],
	}, nil
}
