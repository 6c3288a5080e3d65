// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

//go:build linux

package migration

//go:generate go run github.com/cilium/ebpf/cmd/bpf2go -cc clang -cflags "-I../../ebpf/include -Wall -Werror -g -O2 -D__TARGET_ARCH_x86 -fdebug-types-section -fno-stack-protector" -target bpfel migrationtracker ../../ebpf/src/migration_tracker.bpf.c -- -I../../ebpf/include

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"
	"github.com/go-logr/logr"
	"golang.org/x/sys/unix"

	"github.com/rutgerkool/threveal/pkg/capabilities"
	"github.com/rutgerkool/threveal/pkg/ebpf/core"
)

// configTargetPID is the array index in the migration_config map that holds
// the optional PID filter. Must match CONFIG_TARGET_PID in the BPF source.
const configTargetPID uint32 = 0

// Tracker loads the migration_tracker eBPF program, attaches it to
// sched:sched_migrate_task, and streams decoded events from its ring buffer
// to a callback until Stop is called.
type Tracker struct {
	logger   logr.Logger
	callback EventCallback

	mu      sync.Mutex
	running bool

	objs       migrationtrackerObjects
	tpLink     link.Link
	ringReader *ringbuf.Reader

	stopCh chan struct{}
	wg     sync.WaitGroup

	eventsProcessed atomic.Uint64
	eventsDropped   atomic.Uint64
}

// NewTracker loads and verifies the eBPF program but does not attach it yet;
// call Start to begin tracing.
func NewTracker(logger logr.Logger, callback EventCallback) (*Tracker, error) {
	if callback == nil {
		return nil, newError(ReasonInvalidState, errors.New("callback must not be nil"))
	}

	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, newError(ReasonOpenFailed, fmt.Errorf("removing memlock: %w", err))
	}

	if preflight, err := core.NewPreflight(logger); err != nil {
		logger.V(1).Info("CO-RE feature detection failed, proceeding without it", "error", err)
	} else if features := preflight.Features(); features.CORESupport == "none" {
		logger.Info("kernel predates CO-RE support, tracepoint attach may fail", "kernel", features.KernelVersion)
	}

	objs := migrationtrackerObjects{}
	if err := loadMigrationtrackerObjects(&objs, nil); err != nil {
		mapped := mapLoadError(err)
		var trackerErr *Error
		if errors.As(mapped, &trackerErr) && trackerErr.Reason == ReasonPermissionDenied {
			if ok, missing, capErr := capabilities.HasAllCapabilities(capabilities.RequiredForTracing()); capErr == nil && !ok {
				logger.Info("BPF program load denied; process is missing capabilities", "missing", missing)
			}
		}
		return nil, mapped
	}

	return &Tracker{
		logger:   logger,
		callback: callback,
		objs:     objs,
	}, nil
}

// mapLoadError maps a verifier/load failure to a Reason. Permission errors
// surface distinctly from generic verifier rejections since the remediation
// (grant CAP_BPF/CAP_PERFMON) differs from fixing the program itself.
func mapLoadError(err error) error {
	if errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES) {
		return newError(ReasonPermissionDenied, err)
	}
	return newError(ReasonLoadFailed, err)
}

// SetTargetPID scopes tracing to a single process. A pid of 0 captures every
// migration on the system. Safe to call before or after Start.
func (t *Tracker) SetTargetPID(pid uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := configTargetPID
	if err := t.objs.MigrationConfig.Update(&key, &pid, 0); err != nil {
		return newError(ReasonMapAccessFailed, err)
	}
	return nil
}

// Start attaches the tracepoint and begins decoding ring buffer records on a
// background goroutine. Start is not re-entrant; call Stop before starting
// again.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return newError(ReasonInvalidState, errors.New("tracker already running"))
	}

	tpLink, err := link.Tracepoint("sched", "sched_migrate_task", t.objs.HandleSchedMigrateTask, nil)
	if err != nil {
		return newError(ReasonAttachFailed, err)
	}
	t.tpLink = tpLink

	reader, err := ringbuf.NewReader(t.objs.Events)
	if err != nil {
		t.tpLink.Close()
		t.tpLink = nil
		return newError(ReasonOpenFailed, fmt.Errorf("opening ring buffer reader: %w", err))
	}
	t.ringReader = reader

	t.stopCh = make(chan struct{})
	t.wg.Add(1)
	go t.readLoop(ctx)

	t.running = true
	return nil
}

// Stop halts the read loop and releases the attached program, link, and ring
// buffer reader. Stop is idempotent.
func (t *Tracker) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}

	close(t.stopCh)
	t.ringReader.Close() // unblocks a pending Read() in readLoop
	t.wg.Wait()

	t.tpLink.Close()
	t.tpLink = nil
	t.ringReader = nil
	t.running = false
	return nil
}

// Close releases the loaded eBPF objects. Call after Stop (or without ever
// calling Start) to release kernel resources.
func (t *Tracker) Close() error {
	return t.objs.Close()
}

// Stats returns the tracker's running event counters.
func (t *Tracker) Stats() Stats {
	return Stats{
		EventsProcessed: t.eventsProcessed.Load(),
		EventsDropped:   t.eventsDropped.Load(),
	}
}

func (t *Tracker) readLoop(ctx context.Context) {
	defer t.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		default:
		}

		record, err := t.ringReader.Read()
		if err != nil {
			if errors.Is(err, ringbuf.ErrClosed) {
				return
			}
			t.logger.Error(err, "reading migration ring buffer")
			continue
		}

		event, ok := decodeMigrationEvent(record.RawSample)
		if !ok {
			t.eventsDropped.Add(1)
			t.logger.V(1).Info("dropping malformed migration record", "size", len(record.RawSample))
			continue
		}

		t.eventsProcessed.Add(1)
		t.callback(event)
	}
}
