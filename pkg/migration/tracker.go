// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package migration

import "github.com/rutgerkool/threveal/pkg/events"

// EventCallback is invoked once per decoded migration event. It is called
// from the tracker's internal ring-buffer-reading goroutine and must not
// block for long.
type EventCallback func(events.MigrationEvent)

// Stats reports the tracker's running counters, useful for diagnosing a
// profiling run that seems to be losing events.
type Stats struct {
	EventsProcessed uint64
	EventsDropped   uint64 // short/malformed ring buffer records, discarded rather than delivered
}
