// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

//go:build !linux

package migration

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/go-logr/logr"
)

// Tracker is a non-functional stub on platforms without eBPF support.
type Tracker struct{}

func NewTracker(logger logr.Logger, callback EventCallback) (*Tracker, error) {
	return nil, newError(ReasonOpenFailed, fmt.Errorf("migration tracing is not supported on %s", runtime.GOOS))
}

func (t *Tracker) SetTargetPID(pid uint32) error {
	return newError(ReasonInvalidState, errors.New("not supported on this platform"))
}

func (t *Tracker) Start(ctx context.Context) error {
	return newError(ReasonInvalidState, errors.New("not supported on this platform"))
}

func (t *Tracker) Stop() error {
	return nil
}

func (t *Tracker) Close() error {
	return nil
}

func (t *Tracker) Stats() Stats {
	return Stats{}
}
