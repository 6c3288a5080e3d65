// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

//go:build !linux

package capabilities

// HasAllCapabilities always reports success on non-Linux: the migration
// tracker and PMU group never attempt to run here in the first place
// (pkg/migration.tracker_other.go, pkg/pmu.group_other.go), so there is
// nothing for a capability gate to protect.
func HasAllCapabilities(required []Capability) (bool, []Capability, error) {
	return true, nil, nil
}
