// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package walk

import (
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/nishisan-dev/spantar/internal/tarfmt"
)

// prefixCacheLimit bounds how much of a regular file's content is
// read ahead during traversal and cached in the result, per spec.md
// §4.8 ("pre-read up to a bounded prefix (~64 KiB)").
const prefixCacheLimit = 64 * 1024

// Result is a precomputed archive entry ready for the writer: the
// abstract header, its encoded header bytes, the original and
// canonicalized paths, and an optional cached prefix of file bytes.
// Grounded on
// _examples/original_source/librapidarchive/src/tar/header.rs's
// HeaderGenResult.
type Result struct {
	Header        tarfmt.Header
	Encoded       tarfmt.EncodedHeader
	OriginalPath  string
	CanonicalPath string
	FilePrefix    []byte

	// Err is set when traversal or header encoding failed for this
	// entry in a way that should be reported and skipped rather than
	// fail the whole run (spec.md §7's SourceIO/HeaderEncoding kinds).
	Err error
}

// headergen builds a Result for one filesystem entry: stat metadata is
// already captured in info; archivalPath is the entry's path as it
// will appear in the archive (after normalization); entryPath is the
// real filesystem path used to open the file.
func headergen(meta MetadataSource, format tarfmt.Format, entryPath, archivalPath string, info fs.FileInfo) Result {
	canonical, err := filepathAbs(entryPath)
	if err != nil {
		canonical = entryPath
	}

	h := tarfmt.Header{
		Path:      archivalPath,
		UnixMode:  meta.Mode(info),
		UnixUID:   meta.UID(info),
		UnixGID:   meta.GID(info),
		FileSize:  uint64(info.Size()),
		Mtime:     info.ModTime(),
		FileType:  meta.FileType(info),
		UnixUname: meta.Uname(info),
		UnixGname: meta.Gname(info),
		UnixDevmajor: meta.DevMajor(info),
		UnixDevminor: meta.DevMinor(info),
	}

	if h.FileType == tarfmt.TypeSymlink {
		target, err := meta.SymlinkTarget(entryPath, info)
		if err == nil {
			h.SymlinkPath = target
		}
	}

	encoded, err := tarfmt.Encode(&h, format)
	if err != nil {
		return Result{Header: h, OriginalPath: archivalPath, CanonicalPath: canonical, Err: err}
	}

	result := Result{
		Header:        h,
		Encoded:       encoded,
		OriginalPath:  archivalPath,
		CanonicalPath: canonical,
	}

	// Errors opening a file during prefix read do not fail the
	// traversal: the entry is still queued without a prefix and will
	// be re-opened by the serializer (spec.md §4.8's invariant).
	if h.FileType == tarfmt.TypeRegular {
		if prefix, err := readPrefix(canonical, h.FileSize); err == nil {
			result.FilePrefix = prefix
		}
	}

	return result
}

func readPrefix(path string, fileSize uint64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cacheLen := fileSize
	if cacheLen > prefixCacheLimit {
		cacheLen = prefixCacheLimit
	}
	buf := make([]byte, cacheLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}
