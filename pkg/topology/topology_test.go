// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package topology_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rutgerkool/threveal/pkg/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSysfsFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadFromSysfs_PrimaryPath(t *testing.T) {
	sysRoot := t.TempDir()
	writeSysfsFile(t, sysRoot, "devices/cpu_core/cpus", "0-7")
	writeSysfsFile(t, sysRoot, "devices/cpu_atom/cpus", "8-11")

	m, err := topology.LoadFromSysfs(sysRoot)
	require.NoError(t, err)

	assert.True(t, m.IsHybrid())
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, m.PCores())
	assert.Equal(t, []int{8, 9, 10, 11}, m.ECores())
	assert.Equal(t, 12, m.TotalCPUCount())

	coreType, err := m.GetCoreType(3)
	require.NoError(t, err)
	assert.Equal(t, topology.CoreTypePCore, coreType)

	coreType, err = m.GetCoreType(9)
	require.NoError(t, err)
	assert.Equal(t, topology.CoreTypeECore, coreType)
}

func TestLoadFromSysfs_InvalidCPUID(t *testing.T) {
	sysRoot := t.TempDir()
	writeSysfsFile(t, sysRoot, "devices/cpu_core/cpus", "0-3")
	writeSysfsFile(t, sysRoot, "devices/cpu_atom/cpus", "4-7")

	m, err := topology.LoadFromSysfs(sysRoot)
	require.NoError(t, err)

	_, err = m.GetCoreType(99)
	require.Error(t, err)

	var topoErr *topology.Error
	require.ErrorAs(t, err, &topoErr)
	assert.Equal(t, topology.ReasonInvalidCPUID, topoErr.Reason)
}

func TestLoadFromSysfs_PCoreWithoutECoreIsNotHybrid(t *testing.T) {
	sysRoot := t.TempDir()
	writeSysfsFile(t, sysRoot, "devices/cpu_core/cpus", "0-7")

	_, err := topology.LoadFromSysfs(sysRoot)
	require.Error(t, err)

	var topoErr *topology.Error
	require.ErrorAs(t, err, &topoErr)
	assert.Equal(t, topology.ReasonNotHybridCPU, topoErr.Reason)
}

func TestLoadFromSysfs_FallsBackToCoreTypeEnumeration(t *testing.T) {
	sysRoot := t.TempDir()
	writeSysfsFile(t, sysRoot, "devices/system/cpu/cpu0/topology/core_type", "Core")
	writeSysfsFile(t, sysRoot, "devices/system/cpu/cpu1/topology/core_type", "Core")
	writeSysfsFile(t, sysRoot, "devices/system/cpu/cpu2/topology/core_type", "Atom")
	writeSysfsFile(t, sysRoot, "devices/system/cpu/cpu3/topology/core_type", "Atom")

	m, err := topology.LoadFromSysfs(sysRoot)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, m.PCores())
	assert.Equal(t, []int{2, 3}, m.ECores())
}

func TestLoadFromSysfs_FallbackNonHybrid(t *testing.T) {
	sysRoot := t.TempDir()
	writeSysfsFile(t, sysRoot, "devices/system/cpu/cpu0/topology/core_type", "Core")
	writeSysfsFile(t, sysRoot, "devices/system/cpu/cpu1/topology/core_type", "Core")

	_, err := topology.LoadFromSysfs(sysRoot)
	require.Error(t, err)

	var topoErr *topology.Error
	require.ErrorAs(t, err, &topoErr)
	assert.Equal(t, topology.ReasonNotHybridCPU, topoErr.Reason)
}

func TestLoadFromSysfs_MissingSysfs(t *testing.T) {
	sysRoot := t.TempDir()

	_, err := topology.LoadFromSysfs(sysRoot)
	require.Error(t, err)

	var topoErr *topology.Error
	require.ErrorAs(t, err, &topoErr)
	assert.Equal(t, topology.ReasonSysfsNotFound, topoErr.Reason)
}

func TestIsSMTSibling(t *testing.T) {
	sysRoot := t.TempDir()
	writeSysfsFile(t, sysRoot, "devices/cpu_core/cpus", "0-3")
	writeSysfsFile(t, sysRoot, "devices/cpu_atom/cpus", "4-5")
	writeSysfsFile(t, sysRoot, "devices/system/cpu/cpu0/topology/core_id", "0")
	writeSysfsFile(t, sysRoot, "devices/system/cpu/cpu1/topology/core_id", "0")
	writeSysfsFile(t, sysRoot, "devices/system/cpu/cpu2/topology/core_id", "1")
	writeSysfsFile(t, sysRoot, "devices/system/cpu/cpu3/topology/core_id", "1")
	writeSysfsFile(t, sysRoot, "devices/system/cpu/cpu4/topology/core_id", "2")
	writeSysfsFile(t, sysRoot, "devices/system/cpu/cpu5/topology/core_id", "3")

	m, err := topology.LoadFromSysfs(sysRoot)
	require.NoError(t, err)

	require.True(t, m.HasSMTData())
	assert.True(t, m.IsSMTSibling(0, 1))
	assert.False(t, m.IsSMTSibling(0, 2))
	assert.False(t, m.IsSMTSibling(0, 0))
}

func TestIsSMTSibling_NoDataIsFalse(t *testing.T) {
	m := topology.NewMap([]int{0, 1}, []int{2, 3})
	assert.False(t, m.HasSMTData())
	assert.False(t, m.IsSMTSibling(0, 1))
}

func TestCoreType_String(t *testing.T) {
	assert.Equal(t, "P-core", topology.CoreTypePCore.String())
	assert.Equal(t, "E-core", topology.CoreTypeECore.String())
	assert.Equal(t, "unknown", topology.CoreTypeUnknown.String())
}
