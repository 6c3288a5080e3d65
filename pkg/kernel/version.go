// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package kernel parses and compares Linux kernel version strings, used to
// gate the profiler's kernel-dependent features: the migration ring buffer
// (needs 5.8+), CO-RE relocations (needs 4.18+, full native BTF at 5.2+),
// and the legacy-vs-split CAP_BPF/CAP_PERFMON capability requirement
// (pkg/capabilities.RequiredForTracing).
package kernel

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Version represents a parsed kernel version
type Version struct {
	Major int
	Minor int
	Patch int
	Raw   string // Original version string
}

// Minimum kernel versions this profiler's kernel-dependent components
// require. Compared against with Version.IsAtLeast.
var (
	// MinRingBuffer is the first kernel exposing BPF_MAP_TYPE_RINGBUF, which
	// migration.Tracker relies on for kernel->user event delivery.
	MinRingBuffer = Version{Major: 5, Minor: 8}

	// MinCORE is the first kernel where CO-RE relocations work at all
	// (against an externally supplied BTF blob).
	MinCORE = Version{Major: 4, Minor: 18}

	// MinFullCORE is the first kernel exposing native
	// /sys/kernel/btf/vmlinux, giving CO-RE relocations without an external
	// BTF file.
	MinFullCORE = Version{Major: 5, Minor: 2}

	// MinSplitCapabilities is the first kernel with dedicated CAP_BPF/
	// CAP_PERFMON capabilities; older kernels need the coarser
	// CAP_SYS_ADMIN for the same operations.
	MinSplitCapabilities = Version{Major: 5, Minor: 8}
)

// GetCurrentVersion returns the current kernel version
func GetCurrentVersion() (*Version, error) {
	// Try to read from /proc/version
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return nil, fmt.Errorf("failed to read /proc/version: %w", err)
	}

	// Parse "Linux version X.Y.Z"
	parts := strings.Fields(string(data))
	if len(parts) < 3 {
		return nil, fmt.Errorf("unexpected /proc/version format: %s", string(data))
	}

	return ParseVersion(parts[2])
}

// ParseVersion parses a kernel version string (e.g., "5.15.0-generic" or "5.15.0")
func ParseVersion(version string) (*Version, error) {
	v := &Version{Raw: version}

	// Remove any suffix (e.g., "-generic")
	if idx := strings.Index(version, "-"); idx != -1 {
		version = version[:idx]
	}

	// Parse X.Y.Z format
	parts := strings.Split(version, ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid kernel version format: %s", version)
	}

	// Parse major version
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid major version: %s", parts[0])
	}
	v.Major = major

	// Parse minor version
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid minor version: %s", parts[1])
	}
	v.Minor = minor

	// Parse patch version if present
	if len(parts) >= 3 {
		patch, err := strconv.Atoi(parts[2])
		if err != nil {
			// Patch might have additional info, just use 0
			v.Patch = 0
		} else {
			v.Patch = patch
		}
	}

	return v, nil
}

// IsAtLeast returns true if the current version is >= the specified version
func (v *Version) IsAtLeast(major, minor int) bool {
	if v.Major > major {
		return true
	}
	if v.Major == major && v.Minor >= minor {
		return true
	}
	return false
}

// SupportsRingBuffer reports whether this kernel exposes
// BPF_MAP_TYPE_RINGBUF, required by migration.Tracker.
func (v *Version) SupportsRingBuffer() bool {
	return v.IsAtLeast(MinRingBuffer.Major, MinRingBuffer.Minor)
}

// CORESupportLevel reports how well this kernel supports CO-RE relocations:
// "full" (native BTF, 5.2+), "partial" (4.18-5.1, external BTF only), or
// "none" (predates CO-RE entirely).
func (v *Version) CORESupportLevel() string {
	switch {
	case v.IsAtLeast(MinFullCORE.Major, MinFullCORE.Minor):
		return "full"
	case v.IsAtLeast(MinCORE.Major, MinCORE.Minor):
		return "partial"
	default:
		return "none"
	}
}

// String returns the version as a string
func (v *Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1 if v < other, 0 if v == other, 1 if v > other
func (v *Version) Compare(other *Version) int {
	if v.Major != other.Major {
		if v.Major < other.Major {
			return -1
		}
		return 1
	}
	if v.Minor != other.Minor {
		if v.Minor < other.Minor {
			return -1
		}
		return 1
	}
	if v.Patch != other.Patch {
		if v.Patch < other.Patch {
			return -1
		}
		return 1
	}
	return 0
}