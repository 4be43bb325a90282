// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package progress renders a live terminal status line for a create
// run: bytes written, throughput, objects committed, elapsed time, ETA
// and volume-change retries. Adapted from the teacher's
// internal/agent.ProgressReporter — that type drives the same kind of
// ticker-based terminal line for an upload, not an archive, and this
// package keeps its shape (atomic counters, a render goroutine on a
// ticker, a final untruncated line on Stop) while renaming "upload" to
// "volume" concepts and adding the retries counter spec.md's spanning
// model calls for.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"
)

// Reporter tracks and renders create-run progress. It satisfies
// archive.ProgressReporter. The zero value is not usable; construct
// with New.
type Reporter struct {
	name string
	out  io.Writer

	bytesWritten atomic.Int64
	objectsDone  atomic.Int64
	retries      atomic.Int32

	totalBytes   int64
	totalObjects int64

	startTime time.Time
	done      chan struct{}
}

// New creates a Reporter and starts its render loop immediately.
// totalBytes/totalObjects may be 0 when the traversal's pre-scan
// couldn't estimate them (e.g. the walker is still running); the
// render falls back to a spinner and an unbounded ETA in that case.
// out is typically os.Stderr, kept separate from stdout so archive
// output piped to a file isn't interleaved with status text.
func New(name string, totalBytes, totalObjects int64, out io.Writer) *Reporter {
	r := &Reporter{
		name:         name,
		out:          out,
		totalBytes:   totalBytes,
		totalObjects: totalObjects,
		startTime:    time.Now(),
		done:         make(chan struct{}),
	}
	go r.renderLoop()
	return r
}

// AddBytes records n bytes committed to the current volume's sink.
func (r *Reporter) AddBytes(n int64) {
	r.bytesWritten.Add(n)
}

// AddObject records one entry fully written.
func (r *Reporter) AddObject() {
	r.objectsDone.Add(1)
}

// AddRetry records one pass through Recover.
func (r *Reporter) AddRetry() {
	r.retries.Add(1)
}

// Stop halts the render loop and prints a final, newline-terminated
// status line. Safe to call once; a second call panics on the closed
// channel, same as the teacher's ProgressReporter.
func (r *Reporter) Stop() {
	close(r.done)
	r.render(true)
}

func (r *Reporter) renderLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.render(false)
		}
	}
}

func (r *Reporter) render(final bool) {
	bytes := r.bytesWritten.Load()
	objects := r.objectsDone.Load()
	retries := r.retries.Load()
	elapsed := time.Since(r.startTime)

	var speed, objsPerSec float64
	if elapsedSec := elapsed.Seconds(); elapsedSec > 0.1 {
		speed = float64(bytes) / elapsedSec
		objsPerSec = float64(objects) / elapsedSec
	}

	const barWidth = 30
	var bar string
	if r.totalBytes > 0 {
		pct := float64(bytes) / float64(r.totalBytes)
		if pct > 1.0 {
			// A spanned archive's committed bytes can exceed the
			// pre-scan estimate once padding and per-volume headers
			// are counted; clamp rather than show a broken bar.
			pct = 1.0
		}
		filled := int(pct * float64(barWidth))
		if filled > barWidth {
			filled = barWidth
		}
		bar = strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	} else {
		pos := int(elapsed.Seconds()*2) % barWidth
		bar = strings.Repeat("░", pos) + "█" + strings.Repeat("░", barWidth-pos-1)
	}

	eta := "∞"
	if r.totalBytes > 0 && speed > 0 && bytes > 0 {
		remaining := float64(r.totalBytes) - float64(bytes)
		if remaining < 0 {
			remaining = 0
		}
		eta = formatDuration(time.Duration(remaining / speed * float64(time.Second)))
	}

	retriesStr := ""
	if retries > 0 {
		retriesStr = fmt.Sprintf("  │  volumes: %d", retries+1)
	}

	line := fmt.Sprintf("\r[%s] %s  %s  │  %s/s  │  %s objs (%s/s)  │  %s  │  ETA %s%s",
		r.name, bar, formatBytes(bytes),
		formatBytes(int64(speed)),
		formatNumber(objects), formatNumber(int64(objsPerSec)),
		formatDuration(elapsed), eta, retriesStr,
	)

	if len(line) < 120 {
		line += strings.Repeat(" ", 120-len(line))
	}

	if final {
		fmt.Fprintf(r.out, "%s\n", line)
	} else {
		fmt.Fprint(r.out, line)
	}
}

func formatBytes(b int64) string {
	switch {
	case b >= 1024*1024*1024:
		return fmt.Sprintf("%.1f GB", float64(b)/(1024*1024*1024))
	case b >= 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(b)/(1024*1024))
	case b >= 1024:
		return fmt.Sprintf("%.1f KB", float64(b)/1024)
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func formatNumber(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var result []byte
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, byte(c))
	}
	return string(result)
}
