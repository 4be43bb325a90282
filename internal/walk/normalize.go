// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package walk

import (
	"path/filepath"
	"strings"
)

// normalizeArchivePath turns an absolute filesystem path into the
// path recorded inside the archive: relative to baseDir (the -C
// directory), using forward slashes, with no leading "./" or "/".
// This is one of SPEC_FULL.md's supplemented peripheral helpers (spec.md
// §1 calls "path-normalization helpers" peripheral, grounded on the
// Rust original's rapidtar::normalize module referenced by
// header.rs's abstract_header_for_file but not itself present in the
// retrieved source tree).
func normalizeArchivePath(baseDir, entryPath string) string {
	rel, err := filepath.Rel(baseDir, entryPath)
	if err != nil {
		rel = entryPath
	}
	rel = filepath.ToSlash(rel)
	rel = strings.TrimPrefix(rel, "./")
	rel = strings.TrimLeft(rel, "/")
	if rel == "" {
		rel = "."
	}
	return rel
}
