// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package topology discovers the P-core/E-core layout of hybrid x86 CPUs
// from sysfs and answers core-type lookups for individual CPU IDs.
package topology

import "math"

// InvalidCPUID marks a CPU ID as unset, analogous to an unset optional.
const InvalidCPUID = math.MaxInt32

// CoreType classifies a logical CPU as belonging to the performance (P) or
// efficiency (E) core cluster of a hybrid CPU.
type CoreType uint8

const (
	// CoreTypeUnknown is returned for CPU IDs outside the discovered topology.
	CoreTypeUnknown CoreType = 0
	// CoreTypePCore marks a performance core.
	CoreTypePCore CoreType = 1
	// CoreTypeECore marks an efficiency core.
	CoreTypeECore CoreType = 2
)

// String returns the display name of the core type.
func (c CoreType) String() string {
	switch c {
	case CoreTypePCore:
		return "P-core"
	case CoreTypeECore:
		return "E-core"
	default:
		return "unknown"
	}
}
