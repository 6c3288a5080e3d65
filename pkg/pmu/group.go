// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package pmu

// counterIndex is the position of each hardware counter within a Group's
// perf_event_open group. Index 0 is always the group leader.
type counterIndex int

const (
	counterCycles       counterIndex = 0
	counterInstructions counterIndex = 1
	counterLLCLoads     counterIndex = 2
	counterLLCMisses    counterIndex = 3
	counterBranchMisses counterIndex = 4
	counterCount                     = 5
)

// GroupReading is one atomic snapshot of all five counters in a Group,
// read via PERF_FORMAT_GROUP so the values are mutually consistent.
type GroupReading struct {
	Cycles        uint64
	Instructions  uint64
	LLCReferences uint64
	LLCMisses     uint64
	BranchMisses  uint64
}

// Group opens cycles, instructions, LLC loads/misses, and branch misses as a
// single perf_event_open counter group for one CPU or one thread, so all five
// values can be read atomically and enabled/disabled together.
//
// A Group is not safe for concurrent use.
type Group struct {
	fds [counterCount]int32
}

const invalidFd int32 = -1

// IsValid reports whether every counter in the group was successfully
// opened.
func (g *Group) IsValid() bool {
	for _, fd := range g.fds {
		if fd == invalidFd {
			return false
		}
	}
	return true
}
