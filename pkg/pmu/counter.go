// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package pmu

// EventType names a single countable hardware event a Counter can track in
// isolation, independent of the fixed five-counter Group used by Sampler.
type EventType int

const (
	EventCPUCycles EventType = iota
	EventInstructions
	EventLLCReferences
	EventLLCMisses
	EventBranchMisses
)

// String returns the perf-stat-style name of the event.
func (e EventType) String() string {
	switch e {
	case EventCPUCycles:
		return "cpu-cycles"
	case EventInstructions:
		return "instructions"
	case EventLLCReferences:
		return "llc-references"
	case EventLLCMisses:
		return "llc-misses"
	case EventBranchMisses:
		return "branch-misses"
	default:
		return "unknown"
	}
}

// Counter tracks a single hardware event for one target, for ad hoc
// measurement outside of the fixed counter group Sampler manages. Most
// callers correlating migrations with PMU activity want Sampler/Group
// instead; Counter exists for one-off diagnostics such as a CLI that prints
// a single event's value for a PID.
type Counter struct {
	event EventType
	fd    int32
}

// Enable starts the counter.
func (c *Counter) Enable() error { return counterIoctl(c.fd, enableRequest) }

// Disable stops the counter.
func (c *Counter) Disable() error { return counterIoctl(c.fd, disableRequest) }

// Reset zeroes the counter value without changing its running state.
func (c *Counter) Reset() error { return counterIoctl(c.fd, resetRequest) }
