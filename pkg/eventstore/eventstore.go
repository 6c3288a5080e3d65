// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package eventstore keeps the migration events and PMU samples collected
// during a profiling run in timestamp order, so the classifier and reporting
// layer can efficiently ask "what was the PMU state just before/after this
// migration" without an O(n) scan per query.
package eventstore

import (
	"sort"
	"sync"

	"github.com/rutgerkool/threveal/pkg/events"
)

// Store holds both event sequences sorted by TimestampNanos. Both
// AddMigration and AddPmuSample insert in sorted position rather than
// appending — the producers (the eBPF ring buffer reader and the PMU
// sampler) are independent goroutines whose timestamps can interleave out of
// strict arrival order, so insertion must re-sort rather than assume
// monotonic append order.
//
// A Store is safe for concurrent use by multiple producer goroutines and
// readers.
type Store struct {
	mu         sync.RWMutex
	migrations []events.MigrationEvent
	pmuSamples []events.PmuSample
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

// AddMigration inserts event into the migration sequence at its sorted
// position.
func (s *Store) AddMigration(event events.MigrationEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := sort.Search(len(s.migrations), func(i int) bool {
		return s.migrations[i].TimestampNanos > event.TimestampNanos
	})
	s.migrations = insertMigration(s.migrations, idx, event)
}

func insertMigration(slice []events.MigrationEvent, idx int, event events.MigrationEvent) []events.MigrationEvent {
	slice = append(slice, events.MigrationEvent{})
	copy(slice[idx+1:], slice[idx:])
	slice[idx] = event
	return slice
}

// AddPmuSample inserts sample into the PMU sample sequence at its sorted
// position.
func (s *Store) AddPmuSample(sample events.PmuSample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := sort.Search(len(s.pmuSamples), func(i int) bool {
		return s.pmuSamples[i].TimestampNanos > sample.TimestampNanos
	})
	s.pmuSamples = insertPmuSample(s.pmuSamples, idx, sample)
}

func insertPmuSample(slice []events.PmuSample, idx int, sample events.PmuSample) []events.PmuSample {
	slice = append(slice, events.PmuSample{})
	copy(slice[idx+1:], slice[idx:])
	slice[idx] = sample
	return slice
}

// AllMigrations returns a copy of every migration event held, in timestamp
// order.
func (s *Store) AllMigrations() []events.MigrationEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]events.MigrationEvent, len(s.migrations))
	copy(result, s.migrations)
	return result
}

// AllPmuSamples returns a copy of every PMU sample held, in timestamp order.
func (s *Store) AllPmuSamples() []events.PmuSample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]events.PmuSample, len(s.pmuSamples))
	copy(result, s.pmuSamples)
	return result
}

// MigrationsForThread returns every migration event for tid, in timestamp
// order. This is a linear scan: thread id is not part of the sort key.
func (s *Store) MigrationsForThread(tid uint32) []events.MigrationEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []events.MigrationEvent
	for _, m := range s.migrations {
		if m.TID == tid {
			result = append(result, m)
		}
	}
	return result
}

// PmuSamplesForThread returns every PMU sample for tid, in timestamp order.
func (s *Store) PmuSamplesForThread(tid uint32) []events.PmuSample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []events.PmuSample
	for _, sample := range s.pmuSamples {
		if sample.TID == tid {
			result = append(result, sample)
		}
	}
	return result
}

// Clear empties both sequences.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.migrations = nil
	s.pmuSamples = nil
}

// MigrationCount returns the number of migration events held.
func (s *Store) MigrationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.migrations)
}

// PmuSampleCount returns the number of PMU samples held.
func (s *Store) PmuSampleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pmuSamples)
}

// MigrationsInRange returns a copy of every migration event with
// startNanos <= TimestampNanos <= endNanos, in timestamp order.
func (s *Store) MigrationsInRange(startNanos, endNanos uint64) []events.MigrationEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo := sort.Search(len(s.migrations), func(i int) bool {
		return s.migrations[i].TimestampNanos >= startNanos
	})
	hi := sort.Search(len(s.migrations), func(i int) bool {
		return s.migrations[i].TimestampNanos > endNanos
	})

	result := make([]events.MigrationEvent, hi-lo)
	copy(result, s.migrations[lo:hi])
	return result
}

// PmuSamplesInRange returns a copy of every PMU sample with
// startNanos <= TimestampNanos <= endNanos, in timestamp order.
func (s *Store) PmuSamplesInRange(startNanos, endNanos uint64) []events.PmuSample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo := sort.Search(len(s.pmuSamples), func(i int) bool {
		return s.pmuSamples[i].TimestampNanos >= startNanos
	})
	hi := sort.Search(len(s.pmuSamples), func(i int) bool {
		return s.pmuSamples[i].TimestampNanos > endNanos
	})

	result := make([]events.PmuSample, hi-lo)
	copy(result, s.pmuSamples[lo:hi])
	return result
}

// PmuBeforeMigration returns the most recent PMU sample for tid with a
// timestamp at or before the migration's, or false if none exists. It binary
// searches for the timestamp bound, then walks backward from there looking
// for a TID match, rather than scanning the whole sequence from the start.
func (s *Store) PmuBeforeMigration(migration events.MigrationEvent, tid uint32) (events.PmuSample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := sort.Search(len(s.pmuSamples), func(i int) bool {
		return s.pmuSamples[i].TimestampNanos > migration.TimestampNanos
	})

	for i := idx - 1; i >= 0; i-- {
		if s.pmuSamples[i].TID == tid {
			return s.pmuSamples[i], true
		}
	}
	return events.PmuSample{}, false
}

// PmuAfterMigration returns the earliest PMU sample for tid with a timestamp
// at or after the migration's, or false if none exists.
func (s *Store) PmuAfterMigration(migration events.MigrationEvent, tid uint32) (events.PmuSample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := sort.Search(len(s.pmuSamples), func(i int) bool {
		return s.pmuSamples[i].TimestampNanos >= migration.TimestampNanos
	})

	for i := idx; i < len(s.pmuSamples); i++ {
		if s.pmuSamples[i].TID == tid {
			return s.pmuSamples[i], true
		}
	}
	return events.PmuSample{}, false
}
