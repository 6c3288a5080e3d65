// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package pmu

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/rutgerkool/threveal/pkg/events"
)

const (
	// DefaultInterval is the sampling period used when none is configured.
	DefaultInterval = time.Millisecond
	// MinInterval is the floor NewSampler clamps shorter intervals up to.
	// Going below this turns the sampler itself into the dominant source of
	// scheduling noise it's trying to measure.
	MinInterval = 100 * time.Microsecond
)

// SampleCallback is invoked once per sampling tick for every tracked target
// with a freshly read PmuSample. It is called from the sampler's internal
// goroutine and must not block for long.
type SampleCallback func(events.PmuSample)

// target pairs a tracked thread with its open counter group.
type target struct {
	tid   uint32
	group *Group
}

// Sampler periodically reads PMU counter groups for a set of tracked threads
// and emits a events.PmuSample per target per tick via its SampleCallback.
//
// A Sampler is safe for concurrent AddTarget/RemoveTarget calls while
// running; each tick reads every tracked group under the lock and invokes
// the callback only after releasing it.
type Sampler struct {
	logger   logr.Logger
	interval time.Duration
	callback SampleCallback

	mu      sync.Mutex
	targets map[uint32]*target

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewSampler constructs a Sampler with the given tick interval. An interval
// of 0 uses DefaultInterval; intervals below MinInterval are clamped up to
// it.
func NewSampler(logger logr.Logger, interval time.Duration, callback SampleCallback) *Sampler {
	if interval == 0 {
		interval = DefaultInterval
	}
	if interval < MinInterval {
		interval = MinInterval
	}

	return &Sampler{
		logger:   logger,
		interval: interval,
		callback: callback,
		targets:  make(map[uint32]*target),
	}
}

// Interval returns the effective sampling period, after clamping.
func (s *Sampler) Interval() time.Duration {
	return s.interval
}

// AddTarget opens a counter group for tid, bound with cpu=-1 so the kernel
// follows the thread across migrations, and begins tracking it.
func (s *Sampler) AddTarget(tid uint32) error {
	group, err := OpenGroup(int(tid), -1)
	if err != nil {
		return err
	}

	if err := group.Enable(); err != nil {
		group.Close()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.targets[tid]; ok {
		existing.group.Close()
	}
	s.targets[tid] = &target{tid: tid, group: group}
	return nil
}

// RemoveTarget stops tracking tid and closes its counter group. It is a
// no-op if tid was not being tracked.
func (s *Sampler) RemoveTarget(tid uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.targets[tid]; ok {
		t.group.Close()
		delete(s.targets, tid)
	}
}

// Start launches the sampling loop on a background goroutine. It returns
// immediately; use Stop or cancel ctx to end the loop.
func (s *Sampler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(ctx)
}

// Stop ends the sampling loop, waits for it to exit, and closes every
// tracked target's counter group.
func (s *Sampler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for tid, t := range s.targets {
		t.group.Close()
		delete(s.targets, tid)
	}
}

func (s *Sampler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Sampler) tick() {
	now := uint64(time.Now().UnixNano())
	cpu, err := currentCPU()
	if err != nil {
		s.logger.V(1).Info("failed to read sampler's current CPU, reporting 0", "error", err)
	}

	s.mu.Lock()
	samples := make([]events.PmuSample, 0, len(s.targets))
	for _, t := range s.targets {
		reading, err := t.group.Read()
		if err != nil {
			s.logger.V(1).Info("failed to read PMU group", "tid", t.tid, "error", err)
			continue
		}

		samples = append(samples, events.PmuSample{
			TimestampNanos: now,
			TID:            t.tid,
			CPUID:          cpu,
			Instructions:   reading.Instructions,
			Cycles:         reading.Cycles,
			LLCMisses:      reading.LLCMisses,
			LLCReferences:  reading.LLCReferences,
			BranchMisses:   reading.BranchMisses,
		})
	}
	s.mu.Unlock()

	for _, sample := range samples {
		s.callback(sample)
	}
}
