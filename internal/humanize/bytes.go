// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package humanize formats byte counts for CLI messages, e.g. "ran out
// of space after 3.20GB". Ported from the original rapidtar's
// librapidarchive/src/units/data.rs DataSize Display impl: this repo
// has no Go analogue (the teacher's internal/agent/progress.go rolls
// its own inline formatBytes with 1-decimal, space-separated units,
// which internal/progress already keeps for its own rendering), so
// this package exists purely to carry the original's own formatting
// choices — two decimals, no space before the unit — into the one
// caller that quotes it verbatim: the recovery prompt.
package humanize

import "fmt"

// Bytes formats n using the same binary-magnitude thresholds as the
// original's DataSize::fmt: log2(n) > 40/30/20/10 selects TB/GB/MB/KB
// (1024-based), anything smaller renders in bytes. Two decimal places,
// no space between the number and the unit, matching the original
// exactly — including its off-by-one at exact powers: log2(n) uses a
// strict ">" against each threshold, so n landing exactly on a power
// of 1024 (e.g. n == 1<<30) reports one unit down (MB, not GB) rather
// than rounding up to "1.00GB". Preserved here rather than "fixed"
// since this package exists specifically to match the original's
// wording verbatim.
func Bytes(n int64) string {
	f := float64(n)
	switch {
	case f > tb:
		return fmt.Sprintf("%.2fTB", f/tb)
	case f > gb:
		return fmt.Sprintf("%.2fGB", f/gb)
	case f > mb:
		return fmt.Sprintf("%.2fMB", f/mb)
	case f > kb:
		return fmt.Sprintf("%.2fKB", f/kb)
	default:
		return fmt.Sprintf("%.2fB", f)
	}
}

const (
	kb = 1024
	mb = 1024 * kb
	gb = 1024 * mb
	tb = 1024 * gb
)
