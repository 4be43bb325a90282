// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package tarfmt

import "strings"

// splitPath implements spec.md §4.7's path-splitting rule: names up to
// 100 bytes go entirely in the USTAR name field; longer names are
// split at the last '/' within the final 100 bytes, with the suffix in
// name and the prefix (up to 155 bytes) in prefix. Paths that can't be
// split this way, or that contain non-ASCII bytes, are flagged
// truncated so the caller emits a PAX path= attribute.
//
// This supersedes
// _examples/original_source/src/rapidtar/tar/pax.rs's
// format_pax_legacy_filename, whose "Hail Mary" fallback re-splitting
// loop produces a lossy, haphazardly chopped name for the pathological
// case (no '/' anywhere in the final 255 bytes). spec.md's simpler
// rule instead flags that case truncated immediately and lets the PAX
// path= attribute carry the real name, which is strictly better for
// any archive written as PAX — USTAR-only archives inherit the same
// best-effort/lossy limitation the original had.
func splitPath(p string) (name [100]byte, prefix [155]byte, truncated bool) {
	if !isASCII(p) {
		truncated = true
	}

	clean := stripNonASCII(p)

	if len(clean) <= 100 {
		copy(name[:], clean)
		return name, prefix, truncated
	}

	tail := clean
	if len(tail) > 100 {
		tail = tail[len(tail)-100:]
	}
	split := strings.LastIndexByte(tail, '/')
	if split < 0 {
		return name, prefix, true
	}

	suffixStart := len(clean) - len(tail) + split + 1
	suffix := clean[suffixStart:]
	prefixPart := clean[:suffixStart-1]

	if len(suffix) > 100 || len(prefixPart) > 155 {
		return name, prefix, true
	}

	copy(name[:], suffix)
	copy(prefix[:], prefixPart)
	return name, prefix, truncated
}

// formatLinkname renders a symlink/hardlink target into a 100-byte
// USTAR linkname field, flagging truncated when it doesn't fit.
// Unlike Path there is no prefix field for linkname to split into, so
// anything over 100 bytes (after stripping non-ASCII) is simply
// flagged rather than re-split.
func formatLinkname(s string) (name [100]byte, truncated bool) {
	if !isASCII(s) {
		truncated = true
	}

	clean := stripNonASCII(s)
	if len(clean) > 100 {
		return name, true
	}

	copy(name[:], clean)
	return name, truncated
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7F {
			return false
		}
	}
	return true
}

func stripNonASCII(s string) string {
	if isASCII(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] <= 0x7F {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
