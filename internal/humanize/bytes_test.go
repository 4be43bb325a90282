// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package humanize

import "testing"

func TestBytes(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0.00B"},
		{1023, "1023.00B"},
		{1024, "1024.00B"},      // exact power of 1024: stays in the lower unit.
		{1025, "1.00KB"},
		{1 << 20, "1024.00KB"},  // exact power: stays in KB, not 1.00MB.
		{1<<20 + 1, "1.00MB"},
		{1 << 30, "1024.00MB"},  // exact power: stays in MB, not 1.00GB.
		{1<<30 + 1, "1.00GB"},
		{3*(1<<30) + (1 << 29), "3.50GB"},
		{1 << 40, "1024.00GB"}, // exact power: stays in GB, not 1.00TB.
		{1<<40 + 1, "1.00TB"},
	}

	for _, c := range cases {
		if got := Bytes(c.in); got != c.want {
			t.Errorf("Bytes(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}
