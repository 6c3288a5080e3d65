// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package events defines the correlated record types this profiler collects
// — scheduler migrations from the kernel and PMU counter snapshots from
// userspace — and the logic that classifies a migration by the core types it
// crossed.
package events

import "github.com/rutgerkool/threveal/pkg/topology"

// MaxCommLength is the size of the kernel's task comm buffer (TASK_COMM_LEN),
// matching the layout bpf_get_current_comm expects to write into.
const MaxCommLength = 16

// MigrationType classifies a migration by the core types of its source and
// destination CPU.
type MigrationType uint8

const (
	MigrationUnknown MigrationType = 0
	MigrationPToP    MigrationType = 1
	MigrationPToE    MigrationType = 2
	MigrationEToP    MigrationType = 3
	MigrationEToE    MigrationType = 4
)

// String renders the migration type using the arrow notation used in reports.
func (m MigrationType) String() string {
	switch m {
	case MigrationPToP:
		return "P→P"
	case MigrationPToE:
		return "P→E"
	case MigrationEToP:
		return "E→P"
	case MigrationEToE:
		return "E→E"
	default:
		return "unknown"
	}
}

// MigrationEvent is a single sched_migrate_task tracepoint hit, as decoded
// from the eBPF ring buffer.
type MigrationEvent struct {
	TimestampNanos uint64
	PID            uint32
	TID            uint32
	SrcCPU         uint32
	DstCPU         uint32
	Comm           [MaxCommLength]byte
}

// CommString returns Comm as a Go string, trimmed at the first NUL byte.
func (e *MigrationEvent) CommString() string {
	for i, b := range e.Comm {
		if b == 0 {
			return string(e.Comm[:i])
		}
	}
	return string(e.Comm[:])
}

// PmuSample is a snapshot of the hardware counter group read by the PMU
// sampler for a single thread at a point in time.
type PmuSample struct {
	TimestampNanos uint64
	TID            uint32
	CPUID          uint32
	Instructions   uint64
	Cycles         uint64
	LLCMisses      uint64
	LLCReferences  uint64
	BranchMisses   uint64
}

// IPC returns instructions-per-cycle, or 0 if Cycles is 0 rather than
// dividing by zero.
func (s *PmuSample) IPC() float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(s.Instructions) / float64(s.Cycles)
}

// LLCMissRate returns the fraction of last-level-cache references that
// missed, or 0 if LLCReferences is 0.
func (s *PmuSample) LLCMissRate() float64 {
	if s.LLCReferences == 0 {
		return 0
	}
	return float64(s.LLCMisses) / float64(s.LLCReferences)
}

// ClassifyMigration determines the MigrationType of event using topo to look
// up the core type of its source and destination CPU. A CPU ID outside the
// discovered topology yields MigrationUnknown rather than an error — the
// classifier is a best-effort annotation, not a source of hard failures.
func ClassifyMigration(event *MigrationEvent, topo *topology.Map) MigrationType {
	src, err := topo.GetCoreType(int(event.SrcCPU))
	if err != nil {
		return MigrationUnknown
	}
	dst, err := topo.GetCoreType(int(event.DstCPU))
	if err != nil {
		return MigrationUnknown
	}

	switch {
	case src == topology.CoreTypePCore && dst == topology.CoreTypePCore:
		return MigrationPToP
	case src == topology.CoreTypePCore && dst == topology.CoreTypeECore:
		return MigrationPToE
	case src == topology.CoreTypeECore && dst == topology.CoreTypePCore:
		return MigrationEToP
	case src == topology.CoreTypeECore && dst == topology.CoreTypeECore:
		return MigrationEToE
	default:
		return MigrationUnknown
	}
}
