// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package migration

import (
	"encoding/binary"

	"github.com/rutgerkool/threveal/pkg/events"
)

// wireRecordSize is the size in bytes of struct migration_event as laid out
// by ebpf/include/bpf_common.h: u64 + 4*u32 + 16 bytes of comm, unpadded.
const wireRecordSize = 8 + 4*4 + events.MaxCommLength

// decodeMigrationEvent parses one ring buffer record into a MigrationEvent.
// Records shorter than wireRecordSize are rejected rather than partially
// decoded — a short record means the kernel and userspace struct layouts
// have drifted, and partially-parsed fields would be silently wrong rather
// than absent.
func decodeMigrationEvent(raw []byte) (events.MigrationEvent, bool) {
	if len(raw) < wireRecordSize {
		return events.MigrationEvent{}, false
	}

	var event events.MigrationEvent
	event.TimestampNanos = binary.LittleEndian.Uint64(raw[0:8])
	event.PID = binary.LittleEndian.Uint32(raw[8:12])
	event.TID = binary.LittleEndian.Uint32(raw[12:16])
	event.SrcCPU = binary.LittleEndian.Uint32(raw[16:20])
	event.DstCPU = binary.LittleEndian.Uint32(raw[20:24])
	copy(event.Comm[:], raw[24:24+events.MaxCommLength])

	return event, true
}
