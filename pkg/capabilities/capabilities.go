// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package capabilities checks the Linux capabilities this profiler's
// privileged operations need: attaching the migration tracepoint program
// and opening the PMU counter group.
package capabilities

import "github.com/rutgerkool/threveal/pkg/kernel"

// Capability represents a Linux capability bit.
type Capability int

const (
	// CAP_SYS_ADMIN was required to attach tracepoints and load BPF programs
	// before the dedicated BPF capabilities below existed. Still the
	// fallback requirement on kernels predating kernel.MinSplitCapabilities.
	CAP_SYS_ADMIN Capability = 21

	// CAP_PERFMON allows perf_event_open and tracepoint attach on kernel
	// 5.8+. Required by pkg/pmu.OpenGroup and migration.Tracker.Start.
	CAP_PERFMON Capability = 38

	// CAP_BPF allows loading BPF programs and maps on kernel 5.8+. Required
	// by migration.NewTracker.
	CAP_BPF Capability = 39
)

// String returns the name of the capability.
func (c Capability) String() string {
	switch c {
	case CAP_SYS_ADMIN:
		return "CAP_SYS_ADMIN"
	case CAP_BPF:
		return "CAP_BPF"
	case CAP_PERFMON:
		return "CAP_PERFMON"
	default:
		return "UNKNOWN"
	}
}

// RequiredForTracing returns the capabilities the migration tracker and PMU
// sampler need on the running kernel: the split CAP_BPF+CAP_PERFMON pair on
// kernel 5.8+, or the coarser CAP_SYS_ADMIN on older kernels that predate
// that split. If the kernel version can't be determined, the split pair is
// assumed (the common case on any kernel recent enough to be in production
// today).
func RequiredForTracing() []Capability {
	version, err := kernel.GetCurrentVersion()
	if err == nil && !version.IsAtLeast(kernel.MinSplitCapabilities.Major, kernel.MinSplitCapabilities.Minor) {
		return []Capability{CAP_SYS_ADMIN}
	}
	return []Capability{CAP_BPF, CAP_PERFMON}
}
