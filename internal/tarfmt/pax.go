// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package tarfmt

import (
	"fmt"
	"path"
	"strings"
)

// formatPaxAttribute renders one "<len> <key>=<value>\n" PAX extended
// attribute, where len is the fixed point of
// len = digits(minimum + digits(len)), per spec.md §4.7. Grounded on
// _examples/original_source/src/rapidtar/tar/pax.rs's
// format_pax_attribute.
func formatPaxAttribute(key, val string) []byte {
	minimum := 1 + len(key) + 1 + len(val) + 1 // space, key, '=', val, '\n'
	numberLength := len(fmt.Sprintf("%d", minimum))
	for len(fmt.Sprintf("%d", numberLength+minimum)) > numberLength {
		numberLength++
	}
	total := minimum + numberLength
	return []byte(fmt.Sprintf("%d %s=%s\n", total, key, val))
}

// buildExtendedStream assembles the PAX extended attribute stream for
// h. The stream is empty when nothing needs PAX representation; it
// carries a path= attribute when the USTAR name/prefix split couldn't
// losslessly represent the path.
func buildExtendedStream(h *Header) []byte {
	var stream []byte

	if formatOctal(h.FileSize, 12) == nil {
		stream = append(stream, formatPaxAttribute("size", fmt.Sprintf("%d", h.FileSize))...)
	}

	archivalPath := h.Path
	_, _, truncated := splitPath(archivalPath)
	if truncated {
		stream = append(stream, formatPaxAttribute("path", archivalPath)...)
	}

	if h.SymlinkPath != "" {
		if _, linkTruncated := formatLinkname(h.SymlinkPath); linkTruncated {
			stream = append(stream, formatPaxAttribute("linkpath", h.SymlinkPath)...)
		}
	}

	if !h.Mtime.IsZero() {
		stream = append(stream, formatPaxAttribute("mtime", fmt.Sprintf("%d", h.Mtime.Unix()))...)
	}
	if !h.Atime.IsZero() {
		stream = append(stream, formatPaxAttribute("atime", fmt.Sprintf("%d", h.Atime.Unix()))...)
	}
	if !h.Birthtime.IsZero() {
		stream = append(stream, formatPaxAttribute("LIBARCHIVE.creationtime", fmt.Sprintf("%d", h.Birthtime.Unix()))...)
	}

	if h.IsContinuation {
		stream = append(stream, formatPaxAttribute("GNU.volume.filename", h.RecoveryPath)...)
		stream = append(stream, formatPaxAttribute("GNU.volume.size", fmt.Sprintf("%d", h.FileSize))...)
		stream = append(stream, formatPaxAttribute("GNU.volume.offset", fmt.Sprintf("%d", h.RecoverySeekOffset))...)
	}

	return stream
}

// paxHeadersPath mirrors GNU tar's convention for where to park the
// extended-attribute entry's own name: "PaxHeaders/<basename>" next to
// the real file, or "./PaxHeaders/<path>" for a top-level entry.
// Grounded on
// _examples/original_source/src/rapidtar/tar/pax.rs's pax_header.
func paxHeadersPath(p string) string {
	dir, base := path.Split(strings.TrimRight(p, "/"))
	if dir == "" {
		return path.Join("./PaxHeaders", base)
	}
	return path.Join(strings.TrimRight(dir, "/"), "PaxHeaders", base)
}

// encodePAX produces the extended-header record(s) followed by the
// real USTAR-compatible header record, per spec.md §4.7. When the
// extended stream is empty (nothing needed PAX representation), the
// result degrades to a single USTAR-equivalent record so small,
// ordinary entries don't carry dead weight.
func encodePAX(h *Header) ([]byte, error) {
	extended := buildExtendedStream(h)

	realHeader, err := encodeUSTARLossy(h)
	if err != nil {
		return nil, err
	}

	if len(extended) == 0 {
		return realHeader, nil
	}

	extHeader := Header{
		Path:         paxHeadersPath(h.Path),
		UnixMode:     h.UnixMode,
		UnixUID:      h.UnixUID,
		UnixGID:      h.UnixGID,
		FileSize:     uint64(len(extended)),
		Mtime:        h.Mtime,
		FileType:     'x',
		UnixUname:    h.UnixUname,
		UnixGname:    h.UnixGname,
		UnixDevmajor: h.UnixDevmajor,
		UnixDevminor: h.UnixDevminor,
	}
	extRecord, err := encodeUSTARLossy(&extHeader)
	if err != nil {
		return nil, err
	}

	padded := len(extended)
	if rem := padded % recordSize; rem != 0 {
		extended = append(extended, make([]byte, recordSize-rem)...)
	}

	out := make([]byte, 0, len(extRecord)+len(extended)+len(realHeader))
	out = append(out, extRecord...)
	out = append(out, extended...)
	out = append(out, realHeader...)
	return out, nil
}

// encodeUSTARLossy behaves like encodeUSTAR but never fails on an
// unsplittable path: the name/prefix fields get a best-effort,
// possibly-lossy view for legacy readers, since the real name is
// carried in the PAX path= attribute for any reader that understands
// it. Non-file entries (directories, etc.) are forced to size 0 so
// naive extractors (e.g. older 7-Zip builds) don't try to skip bytes
// that were never written, per the teacher's Rust source's pax_header.
func encodeUSTARLossy(h *Header) ([]byte, error) {
	name, prefix, _ := splitPath(h.Path)

	buf := make([]byte, recordSize)
	off := 0
	put := func(b []byte) { off += copy(buf[off:], b) }

	put(name[:])

	mode, err := formatGNUNumeral(uint64(h.UnixMode), 8)
	if err != nil {
		return nil, fmt.Errorf("tarfmt: unix mode %o does not fit: %w", h.UnixMode, err)
	}
	put(mode)
	put(orZeroGNU(uint64(h.UnixUID), 8))
	put(orZeroGNU(uint64(h.UnixGID), 8))

	size := h.FileSize
	if h.FileType != TypeRegular && h.FileType != 'x' {
		size = 0
	}
	sizeField, err := formatGNUNumeral(size, 12)
	if err != nil {
		return nil, fmt.Errorf("tarfmt: file size %d does not fit even in GNU base-256: %w", size, err)
	}
	put(sizeField)

	put(orZeroGNU(uint64(h.Mtime.Unix()), 12))

	put([]byte("        "))
	buf[off] = byte(h.FileType)
	off++

	linkname, _ := formatLinkname(h.SymlinkPath)
	put(linkname[:])

	put([]byte("ustar\x00"))
	put([]byte("00"))
	put(formatString(h.UnixUname, 32))
	put(formatString(h.UnixGname, 32))
	put(orZeroGNU(uint64(h.UnixDevmajor), 8))
	put(orZeroGNU(uint64(h.UnixDevminor), 8))
	put(prefix[:])

	checksumRecord(buf)
	return buf, nil
}

func orZeroGNU(n uint64, fieldSize int) []byte {
	if v, err := formatGNUNumeral(n, fieldSize); err == nil {
		return v
	}
	return make([]byte, fieldSize)
}

