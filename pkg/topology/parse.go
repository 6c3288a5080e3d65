// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package topology

import (
	"strconv"
	"strings"
)

// parseCPUList parses a Linux kernel CPU list string, e.g. "0-3,6,8-10", into
// a sorted-by-appearance slice of CPU IDs. Unlike the lenient list parser used
// elsewhere in this codebase for /proc and /sys enumeration, this parser is
// strict: it rejects empty elements (a stray leading, trailing, or doubled
// comma), malformed ranges, and inverted ranges. sysfs core-type lists are
// kernel-generated and never contain such artifacts, so a parse failure here
// indicates a genuinely unreadable or corrupted topology file.
func parseCPUList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, newError(ReasonParseError, "", nil)
	}

	parts := strings.Split(s, ",")
	cpus := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, newError(ReasonParseError, "", nil)
		}

		if idx := strings.IndexByte(part, '-'); idx >= 0 {
			startStr := strings.TrimSpace(part[:idx])
			endStr := strings.TrimSpace(part[idx+1:])
			if strings.ContainsRune(endStr, '-') {
				return nil, newError(ReasonParseError, "", nil)
			}

			start, err := strconv.Atoi(startStr)
			if err != nil || start < 0 {
				return nil, newError(ReasonParseError, "", nil)
			}
			end, err := strconv.Atoi(endStr)
			if err != nil || end < 0 {
				return nil, newError(ReasonParseError, "", nil)
			}
			if start > end {
				return nil, newError(ReasonParseError, "", nil)
			}

			for cpu := start; cpu <= end; cpu++ {
				cpus = append(cpus, cpu)
			}
			continue
		}

		cpu, err := strconv.Atoi(part)
		if err != nil || cpu < 0 {
			return nil, newError(ReasonParseError, "", nil)
		}
		cpus = append(cpus, cpu)
	}

	return cpus, nil
}

// parseCoreType maps the content of a sysfs topology/core_type file to a
// CoreType. Intel publishes "Core"/"intel_core" for P-cores and
// "Atom"/"intel_atom" for E-cores; anything else is unrecognized.
func parseCoreType(s string) (CoreType, error) {
	switch strings.TrimSpace(s) {
	case "Core", "intel_core":
		return CoreTypePCore, nil
	case "Atom", "intel_atom":
		return CoreTypeECore, nil
	default:
		return CoreTypeUnknown, newError(ReasonParseError, "", nil)
	}
}
