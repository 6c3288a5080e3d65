// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

//go:build !linux

package pmu

const (
	enableRequest  = 0
	disableRequest = 0
	resetRequest   = 0
)

// OpenCounter always fails on non-Linux platforms: perf_event_open is a
// Linux-only syscall.
func OpenCounter(event EventType, pid, cpu int) (*Counter, error) {
	return nil, newError(ReasonOpenFailed, event.String(), errUnsupportedPlatform())
}

// Close is a no-op on a Counter that was never successfully opened.
func (c *Counter) Close() error { return nil }

// Read always fails: there is no counter data without an open event.
func (c *Counter) Read() (uint64, error) {
	return 0, newError(ReasonInvalidState, c.event.String(), nil)
}

func counterIoctl(fd int32, request int) error {
	return newError(ReasonInvalidState, "", nil)
}
