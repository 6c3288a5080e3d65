// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package cpu

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// OnlineCPUs reads the kernel's online CPU list from sysRoot/devices/system/cpu/online.
// Useful as a cross-check against topology.Map's CPU set: a CPU present in the
// topology but absent here has been hotplugged offline since topology was loaded.
func OnlineCPUs(sysRoot string) ([]int32, error) {
	data, err := os.ReadFile(filepath.Join(sysRoot, "devices/system/cpu/online"))
	if err != nil {
		return nil, fmt.Errorf("reading online CPU list: %w", err)
	}
	return ParseCPUList(string(data))
}

// ParseCPUList parses the kernel's CPU list format ("0", "0-3", "0,2-4,7")
// into int32 CPU IDs. Unlike the strict parser topology uses for core-type
// lists, this one is lenient — empty elements are skipped and an empty string
// yields an empty (non-nil) slice — because its inputs (cpu/online,
// Cpus_allowed_list, NUMA node lists) come from more varied sources than a
// single sysfs attribute.
func ParseCPUList(cpuList string) ([]int32, error) {
	cpuList = strings.TrimSpace(cpuList)
	if cpuList == "" {
		return []int32{}, nil
	}

	var cpus []int32
	for _, part := range strings.Split(cpuList, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.Contains(part, "-") {
			rangeParts := strings.Split(part, "-")
			if len(rangeParts) != 2 {
				return nil, fmt.Errorf("invalid CPU range: %s", part)
			}

			start, err := strconv.ParseInt(strings.TrimSpace(rangeParts[0]), 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid CPU number in range: %s", rangeParts[0])
			}

			end, err := strconv.ParseInt(strings.TrimSpace(rangeParts[1]), 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid CPU number in range: %s", rangeParts[1])
			}

			if start > end {
				return nil, fmt.Errorf("invalid CPU range (start > end): %s", part)
			}

			// Single-element ranges like "5-5" are accepted even though the
			// kernel itself would render that as "5".
			for cpu := start; cpu <= end; cpu++ {
				cpus = append(cpus, int32(cpu))
			}
		} else {
			cpu, err := strconv.ParseInt(part, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid CPU number: %s", part)
			}
			cpus = append(cpus, int32(cpu))
		}
	}

	return cpus, nil
}
