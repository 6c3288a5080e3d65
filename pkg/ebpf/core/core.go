// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package core runs a one-time CO-RE (Compile Once - Run Everywhere)
// preflight check before migration.NewTracker loads the migration
// tracepoint program, so a kernel that predates BTF relocations gets a
// clear diagnostic log line instead of an opaque verifier failure.
package core

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/cilium/ebpf/btf"
	"github.com/go-logr/logr"

	"github.com/rutgerkool/threveal/pkg/kernel"
)

// btfPath is where native kernel BTF is exposed when the kernel supports it.
const btfPath = "/sys/kernel/btf/vmlinux"

// Features reports what a Preflight found about the running kernel's CO-RE
// support.
type Features struct {
	KernelVersion string
	HasBTF        bool
	BTFPath       string
	CORESupport   string // "full", "partial", "none" — see kernel.Version.CORESupportLevel
}

// Preflight probes the running kernel once at construction time and holds
// the result (plus the loaded kernel BTF spec, if any) for the migration
// tracker to consult before attaching its tracepoint program.
type Preflight struct {
	logger    logr.Logger
	kernelBTF *btf.Spec
	features  *Features
}

// NewPreflight detects the running kernel's CO-RE support and, if native
// BTF is present, loads it so the caller doesn't pay that cost twice.
func NewPreflight(logger logr.Logger) (*Preflight, error) {
	if runtime.GOOS != "linux" {
		return nil, errors.New("CO-RE preflight is only supported on Linux")
	}

	features, err := detectFeatures()
	if err != nil {
		return nil, fmt.Errorf("detecting kernel CO-RE features: %w", err)
	}

	logger.Info("kernel CO-RE features detected for migration tracepoint load",
		"kernel", features.KernelVersion,
		"btf", features.HasBTF,
		"core_support", features.CORESupport,
	)

	var kernelBTF *btf.Spec
	if features.HasBTF {
		kernelBTF, err = btf.LoadKernelSpec()
		if err != nil {
			logger.Error(err, "failed to load kernel BTF, CO-RE relocations in the migration program may fail")
			// cilium/ebpf still attempts the load without a cached spec.
		}
	}

	return &Preflight{
		logger:    logger,
		kernelBTF: kernelBTF,
		features:  features,
	}, nil
}

// Features returns what NewPreflight detected about the running kernel.
func (p *Preflight) Features() *Features {
	return p.features
}

// HasFullCORESupport reports whether the kernel has native BTF and full
// CO-RE relocation support, rather than requiring an externally supplied
// BTF blob.
func (p *Preflight) HasFullCORESupport() bool {
	return p.features.CORESupport == "full"
}

func detectFeatures() (*Features, error) {
	versionStr := "unknown"
	coreSupport := "none"

	if version, err := kernel.GetCurrentVersion(); err == nil {
		versionStr = version.String()
		coreSupport = version.CORESupportLevel()
	}

	features := &Features{
		KernelVersion: versionStr,
		CORESupport:   coreSupport,
	}

	if _, err := os.Stat(btfPath); err == nil {
		features.HasBTF = true
		features.BTFPath = btfPath
	}

	return features, nil
}
