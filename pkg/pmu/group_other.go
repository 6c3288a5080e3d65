// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

//go:build !linux

package pmu

import "runtime"

// OpenGroup always fails on non-Linux platforms: perf_event_open is a
// Linux-only syscall.
func OpenGroup(pid, cpu int) (*Group, error) {
	return nil, newError(ReasonOpenFailed, "", errUnsupportedPlatform())
}

func errUnsupportedPlatform() error {
	return &unsupportedPlatformError{goos: runtime.GOOS}
}

type unsupportedPlatformError struct {
	goos string
}

func (e *unsupportedPlatformError) Error() string {
	return "perf_event_open is not supported on " + e.goos
}

// Close is a no-op on a Group that was never successfully opened.
func (g *Group) Close() error { return nil }

// Enable always fails: there is nothing to enable without an open group.
func (g *Group) Enable() error { return newError(ReasonInvalidState, "", nil) }

// Disable always fails: there is nothing to disable without an open group.
func (g *Group) Disable() error { return newError(ReasonInvalidState, "", nil) }

// Reset always fails: there is nothing to reset without an open group.
func (g *Group) Reset() error { return newError(ReasonInvalidState, "", nil) }

// Read always fails: there is no counter data without an open group.
func (g *Group) Read() (GroupReading, error) {
	return GroupReading{}, newError(ReasonInvalidState, "", nil)
}
