// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Command threveal is a minimal end-to-end harness wiring topology
// detection, PMU sampling, and migration tracing together against the
// running process. It is a demonstration driver, not the product CLI: the
// core packages intentionally expose no argument parsing, report
// rendering, or persistence of their own.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	"github.com/rutgerkool/threveal/pkg/cpu"
	"github.com/rutgerkool/threveal/pkg/events"
	"github.com/rutgerkool/threveal/pkg/eventstore"
	"github.com/rutgerkool/threveal/pkg/migration"
	"github.com/rutgerkool/threveal/pkg/pmu"
	"github.com/rutgerkool/threveal/pkg/topology"
)

func main() {
	zapLog, _ := zap.NewDevelopment()
	defer zapLog.Sync()
	logger := zapr.NewLogger(zapLog)

	if err := run(logger); err != nil {
		logger.Error(err, "threveal exited with error")
		os.Exit(1)
	}
}

func run(logger logr.Logger) error {
	fmt.Println("=== threveal: scheduler migration profiler ===")

	topo, err := topology.LoadFromSysfs("/sys")
	if err != nil {
		return fmt.Errorf("loading CPU topology: %w", err)
	}
	reportTopology(topo)

	if !topo.IsHybrid() {
		fmt.Println("this host has no P-core/E-core split; migration classification will report \"unknown\" throughout")
	}

	store := eventstore.New()

	sampler := pmu.NewSampler(logger, pmu.DefaultInterval, func(sample events.PmuSample) {
		store.AddPmuSample(sample)
	})

	sampled := make(map[uint32]bool) // touched only from the tracker's read goroutine
	tracker, err := migration.NewTracker(logger, func(event events.MigrationEvent) {
		store.AddMigration(event)
		if sampled[event.TID] {
			return
		}
		if err := sampler.AddTarget(event.TID); err != nil {
			logger.V(1).Info("failed to start sampling migrated thread", "tid", event.TID, "error", err)
			return
		}
		sampled[event.TID] = true
	})
	if err != nil {
		return fmt.Errorf("creating migration tracker: %w", err)
	}
	defer tracker.Close()

	pid := uint32(os.Getpid())
	if err := tracker.SetTargetPID(pid); err != nil {
		return fmt.Errorf("scoping tracker to pid %d: %w", pid, err)
	}

	cycles, err := pmu.OpenCounter(pmu.EventCPUCycles, int(pid), -1)
	if err != nil {
		logger.V(1).Info("failed to open standalone cycles counter, skipping diagnostic", "error", err)
	} else {
		defer cycles.Close()
		if err := cycles.Reset(); err != nil {
			logger.V(1).Info("failed to reset standalone cycles counter", "error", err)
		}
		if err := cycles.Enable(); err != nil {
			logger.V(1).Info("failed to enable standalone cycles counter", "error", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	sampler.Start(ctx)
	defer sampler.Stop()

	if err := tracker.Start(ctx); err != nil {
		return fmt.Errorf("starting migration tracker: %w", err)
	}
	defer tracker.Stop()

	fmt.Println("tracing this process's scheduler migrations; press Ctrl-C to stop")

	select {
	case <-ctx.Done():
	case <-time.After(30 * time.Second):
	}

	stats := tracker.Stats()
	fmt.Printf("captured %d migrations (%d dropped), %d PMU samples\n",
		store.MigrationCount(), stats.EventsDropped, store.PmuSampleCount())

	if cycles != nil {
		if value, err := cycles.Read(); err != nil {
			logger.V(1).Info("failed to read standalone cycles counter", "error", err)
		} else {
			fmt.Printf("%s for this process over the run: %d\n", pmu.EventCPUCycles, value)
		}
	}

	return nil
}

func reportTopology(topo *topology.Map) {
	fmt.Printf("P-cores: %v\n", topo.PCores())
	fmt.Printf("E-cores: %v\n", topo.ECores())
	fmt.Printf("total CPUs: %d, hybrid: %v, SMT data: %v\n",
		topo.TotalCPUCount(), topo.IsHybrid(), topo.HasSMTData())

	online, err := cpu.OnlineCPUs("/sys")
	if err != nil {
		fmt.Printf("could not read online CPU list: %v\n", err)
		return
	}
	if len(online) != topo.TotalCPUCount() {
		fmt.Printf("warning: %d CPUs online but topology has %d; some CPUs may have been hotplugged since topology was loaded\n",
			len(online), topo.TotalCPUCount())
	}
}
