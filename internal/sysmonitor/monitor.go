// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package sysmonitor periodically samples the destination volume's
// free space and the host's CPU/load, for a create run to size its
// traversal pool. Stats.LowSpace offers a low-free-space check; the
// create command does not call it. Adapted from
// the teacher's internal/agent.SystemMonitor, which samples the same
// gopsutil families but against "/" and for a different purpose (an
// agent's own health reporting); here the disk sample targets the
// archive's destination path specifically, since that is the volume
// spec.md §4.6's WriteZero condition actually depends on, not the
// root filesystem.
package sysmonitor

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
)

// Stats holds one sampling round's results.
type Stats struct {
	CPUPercent      float64
	LoadAverage     float64
	DestFreeBytes   uint64
	DestTotalBytes  uint64
	DestUsedPercent float64
	// DestSampleErr is set when the destination path could not be
	// statted (e.g. it's a tape device node, not a filesystem path, or
	// doesn't exist yet) — callers should treat a non-nil value here as
	// "no free-space signal available," not a fatal condition.
	DestSampleErr error
}

// LowSpace reports whether the last sample found less than minFree
// bytes free at the destination. Returns false (no warning) if no
// destination sample has succeeded yet.
func (s Stats) LowSpace(minFree uint64) bool {
	return s.DestSampleErr == nil && s.DestFreeBytes < minFree
}

// Monitor periodically samples host load and destination free space.
// Grounded on the teacher's SystemMonitor: same ticker-goroutine
// lifecycle (Start/Stop/Stats), same RWMutex-guarded snapshot.
type Monitor struct {
	logger   *slog.Logger
	destPath string
	interval time.Duration

	closeCh chan struct{}
	wg      sync.WaitGroup

	mu    sync.RWMutex
	stats Stats
}

// New creates a Monitor that samples destPath's free space (a
// directory on the destination filesystem — for a raw tape device this
// should be its containing mount, e.g. "/" when no better path is
// known) and host load every interval. A zero interval defaults to 15s,
// the teacher's own cadence.
func New(logger *slog.Logger, destPath string, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Monitor{
		logger:   logger.With("component", "sysmonitor"),
		destPath: destPath,
		interval: interval,
		closeCh:  make(chan struct{}),
	}
}

// Start begins periodic sampling, taking one sample immediately so
// Stats is populated before the first tick.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.run()
}

// Stop halts sampling and waits for the background goroutine to exit.
func (m *Monitor) Stop() {
	close(m.closeCh)
	m.wg.Wait()
}

// Stats returns the most recent sample.
func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.collect()
	for {
		select {
		case <-m.closeCh:
			return
		case <-ticker.C:
			m.collect()
		}
	}
}

func (m *Monitor) collect() {
	s := Stats{}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		s.CPUPercent = pct[0]
	} else {
		m.logger.Debug("failed to collect cpu stats", "error", err)
	}

	if l, err := load.Avg(); err == nil {
		s.LoadAverage = l.Load1
	} else {
		m.logger.Debug("failed to collect load stats", "error", err)
	}

	if d, err := disk.Usage(m.destPath); err == nil {
		s.DestFreeBytes = d.Free
		s.DestTotalBytes = d.Total
		s.DestUsedPercent = d.UsedPercent
	} else {
		s.DestSampleErr = err
		m.logger.Debug("failed to collect destination disk stats", "path", m.destPath, "error", err)
	}

	m.mu.Lock()
	m.stats = s
	m.mu.Unlock()
}

// RecommendedWorkers scales a configured worker budget down under high
// host load, so a create run sharing a machine with other work doesn't
// compound an already-loaded system: when load1 exceeds cores the
// budget is halved, never below 1. The caller passes cores in, which
// keeps this package free of a cpu.Counts() call for every single
// decision; a cores value below 1 leaves the budget unchanged.
func RecommendedWorkers(configured int, load1 float64, cores int) int {
	if configured < 1 {
		configured = 1
	}
	if cores < 1 || load1 <= float64(cores) {
		return configured
	}
	// Load exceeds available cores: halve the pool, never below 1.
	scaled := configured / 2
	if scaled < 1 {
		scaled = 1
	}
	return scaled
}
