// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package topology

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	pCoreSysfsPath = "devices/cpu_core/cpus"
	eCoreSysfsPath = "devices/cpu_atom/cpus"
	cpuBasePath    = "devices/system/cpu"
)

var cpuDirPattern = regexp.MustCompile(`^cpu([0-9]+)$`)

// Map reports, for every logical CPU discovered at load time, whether it
// belongs to the P-core or E-core cluster of a hybrid x86 processor.
//
// A Map is immutable after construction and safe for concurrent reads from
// multiple goroutines.
type Map struct {
	pCores     []int
	eCores     []int
	cpuToType  map[int]CoreType
	coreToCPUs map[int][]int // physical core id -> sibling logical CPU IDs, for SMT lookups
}

// NewMap builds a Map directly from explicit P-core and E-core CPU ID lists.
// It is primarily useful for tests and callers that already know the layout
// (e.g. from a config override) and want to skip sysfs discovery.
func NewMap(pCores, eCores []int) *Map {
	m := &Map{
		pCores: append([]int(nil), pCores...),
		eCores: append([]int(nil), eCores...),
	}
	m.buildLookupTable()
	return m
}

// LoadFromSysfs discovers the hybrid CPU topology of the host rooted at
// sysRoot (normally "/sys"). It first looks for the dedicated cpu_core/cpu_atom
// sysfs groups Linux exposes on Alder Lake and later; if those are absent it
// falls back to enumerating topology/core_type under each cpu* directory.
func LoadFromSysfs(sysRoot string) (*Map, error) {
	pCores, pErr := readCPUListFile(filepath.Join(sysRoot, pCoreSysfsPath))
	if pErr == nil {
		eCores, eErr := readCPUListFile(filepath.Join(sysRoot, eCoreSysfsPath))
		if eErr != nil {
			if topoErr, ok := eErr.(*Error); ok && topoErr.Reason == ReasonSysfsNotFound {
				return nil, newError(ReasonNotHybridCPU, "", nil)
			}
			return nil, eErr
		}

		m := &Map{pCores: pCores, eCores: eCores}
		m.buildLookupTable()
		m.loadSMTData(sysRoot)
		return m, nil
	}

	if topoErr, ok := pErr.(*Error); !ok || topoErr.Reason != ReasonSysfsNotFound {
		return nil, pErr
	}

	return loadFromCoreType(sysRoot)
}

// loadFromCoreType is the fallback discovery path for kernels that expose
// per-CPU topology/core_type files but not the aggregate cpu_core/cpu_atom
// groups.
func loadFromCoreType(sysRoot string) (*Map, error) {
	cpuDir := filepath.Join(sysRoot, cpuBasePath)
	entries, err := os.ReadDir(cpuDir)
	if err != nil {
		return nil, newError(ReasonSysfsNotFound, cpuDir, err)
	}

	var pCores, eCores []int
	for _, entry := range entries {
		match := cpuDirPattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}

		cpu, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}

		coreTypePath := filepath.Join(cpuDir, entry.Name(), "topology", "core_type")
		data, err := os.ReadFile(coreTypePath)
		if err != nil {
			continue
		}

		coreType, err := parseCoreType(string(data))
		if err != nil {
			continue
		}

		switch coreType {
		case CoreTypePCore:
			pCores = append(pCores, cpu)
		case CoreTypeECore:
			eCores = append(eCores, cpu)
		}
	}

	if len(pCores) == 0 && len(eCores) == 0 {
		return nil, newError(ReasonSysfsNotFound, cpuDir, nil)
	}
	if len(pCores) == 0 || len(eCores) == 0 {
		return nil, newError(ReasonNotHybridCPU, "", nil)
	}

	sort.Ints(pCores)
	sort.Ints(eCores)

	m := &Map{pCores: pCores, eCores: eCores}
	m.buildLookupTable()
	m.loadSMTData(sysRoot)
	return m, nil
}

func readCPUListFile(path string) ([]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newError(ReasonSysfsNotFound, path, err)
		}
		if os.IsPermission(err) {
			return nil, newError(ReasonPermissionDenied, path, err)
		}
		return nil, newError(ReasonSysfsNotFound, path, err)
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		return nil, newError(ReasonParseError, path, nil)
	}

	cpus, err := parseCPUList(content)
	if err != nil {
		return nil, newError(ReasonParseError, path, err)
	}

	return cpus, nil
}

func (m *Map) buildLookupTable() {
	m.cpuToType = make(map[int]CoreType, len(m.pCores)+len(m.eCores))
	for _, cpu := range m.pCores {
		m.cpuToType[cpu] = CoreTypePCore
	}
	for _, cpu := range m.eCores {
		m.cpuToType[cpu] = CoreTypeECore
	}
}

// loadSMTData populates the physical-core sibling map from
// topology/core_id, so IsSMTSibling can answer without another sysfs round
// trip. Any failure leaves coreToCPUs nil; IsSMTSibling then conservatively
// reports false rather than guessing.
func (m *Map) loadSMTData(sysRoot string) {
	coreToCPUs := make(map[int][]int)

	for cpu := range m.cpuToType {
		coreIDPath := filepath.Join(sysRoot, cpuBasePath, "cpu"+strconv.Itoa(cpu), "topology/core_id")
		data, err := os.ReadFile(coreIDPath)
		if err != nil {
			return
		}

		coreID, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil {
			return
		}

		coreToCPUs[coreID] = append(coreToCPUs[coreID], cpu)
	}

	m.coreToCPUs = coreToCPUs
}

// GetCoreType reports the CoreType of cpu, or a ReasonInvalidCPUID error if
// cpu was not part of the discovered topology.
func (m *Map) GetCoreType(cpu int) (CoreType, error) {
	coreType, ok := m.cpuToType[cpu]
	if !ok {
		return CoreTypeUnknown, newError(ReasonInvalidCPUID, "", nil)
	}
	return coreType, nil
}

// PCores returns the sorted P-core CPU IDs. The returned slice must not be
// modified by the caller.
func (m *Map) PCores() []int {
	return m.pCores
}

// ECores returns the sorted E-core CPU IDs. The returned slice must not be
// modified by the caller.
func (m *Map) ECores() []int {
	return m.eCores
}

// TotalCPUCount returns the number of logical CPUs known to the map.
func (m *Map) TotalCPUCount() int {
	return len(m.cpuToType)
}

// IsHybrid reports whether the map discovered both P-cores and E-cores.
func (m *Map) IsHybrid() bool {
	return len(m.pCores) > 0 && len(m.eCores) > 0
}

// IsSMTSibling reports whether cpuA and cpuB are hyperthread siblings on the
// same physical core. It returns false if SMT topology data was unavailable
// at load time, rather than erroring — callers that need to distinguish
// "no" from "unknown" should check HasSMTData first.
func (m *Map) IsSMTSibling(cpuA, cpuB int) bool {
	if m.coreToCPUs == nil || cpuA == cpuB {
		return false
	}

	for _, siblings := range m.coreToCPUs {
		hasA, hasB := false, false
		for _, cpu := range siblings {
			if cpu == cpuA {
				hasA = true
			}
			if cpu == cpuB {
				hasB = true
			}
		}
		if hasA && hasB {
			return true
		}
	}
	return false
}

// HasSMTData reports whether per-core SMT sibling data was successfully
// loaded during discovery.
func (m *Map) HasSMTData() bool {
	return m.coreToCPUs != nil
}
