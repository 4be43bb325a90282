// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package tarfmt

import (
	"errors"
	"fmt"
)

// ErrPathTooLong is returned when a path cannot be represented in a
// USTAR header at all (its final component alone exceeds the 100-byte
// name field and there is no split point that fits the 155-byte
// prefix).
var ErrPathTooLong = errors.New("tarfmt: path cannot be represented in USTAR name/prefix fields")

// ErrLinkpathTooLong is returned when a symlink or hardlink target
// cannot be represented in a USTAR header's 100-byte linkname field.
var ErrLinkpathTooLong = errors.New("tarfmt: link target does not fit in USTAR linkname field")

// recordSize is the tar physical record size: a header is always one
// 512-byte block, independent of the device blocking factor used to
// group blocks for I/O.
const recordSize = 512

// encodeUSTAR produces one 512-byte USTAR header record. Grounded on
// _examples/original_source/src/rapidtar/tar/ustar.rs's ustar_header,
// field-for-field, with Go idioms (formatOctal/formatString returning
// nil on overflow instead of Option).
func encodeUSTAR(h *Header) ([]byte, error) {
	name, prefix, truncated := splitPath(h.Path)
	if truncated {
		return nil, ErrPathTooLong
	}

	buf := make([]byte, recordSize)
	off := 0
	put := func(b []byte) { off += copy(buf[off:], b) }

	put(name[:])

	mode := formatOctal(uint64(h.UnixMode), 8)
	if mode == nil {
		return nil, fmt.Errorf("tarfmt: unix mode %o does not fit in USTAR field", h.UnixMode)
	}
	put(mode)
	put(orZeroOctal(uint64(h.UnixUID), 8))
	put(orZeroOctal(uint64(h.UnixGID), 8))

	size := formatOctal(h.FileSize, 12)
	if size == nil {
		return nil, fmt.Errorf("tarfmt: file size %d exceeds the 8GiB USTAR limit", h.FileSize)
	}
	put(size)

	put(orZeroOctal(uint64(h.Mtime.Unix()), 12))

	put([]byte("        ")) // checksum placeholder
	buf[off] = byte(h.FileType)
	off++

	linkname, linkTruncated := formatLinkname(h.SymlinkPath)
	if linkTruncated {
		return nil, ErrLinkpathTooLong
	}
	put(linkname[:])

	put([]byte("ustar\x00"))
	put([]byte("00"))
	put(formatString(h.UnixUname, 32))
	put(formatString(h.UnixGname, 32))
	put(orZeroOctal(uint64(h.UnixDevmajor), 8))
	put(orZeroOctal(uint64(h.UnixDevminor), 8))
	put(prefix[:])
	// remaining 12 bytes of padding are already zero

	checksumRecord(buf)
	return buf, nil
}

func orZeroOctal(n uint64, fieldSize int) []byte {
	if v := formatOctal(n, fieldSize); v != nil {
		return v
	}
	return make([]byte, fieldSize)
}

// checksumRecord fills header[148:156] with the tar checksum: the
// header is summed as unsigned bytes with the checksum field blanked
// to spaces, and the low 18 bits of the sum are written as six octal
// digits followed by NUL and space. Grounded on
// _examples/original_source/src/rapidtar/tar/ustar.rs's
// checksum_header.
func checksumRecord(header []byte) {
	for i := 148; i < 156; i++ {
		header[i] = ' '
	}
	var sum uint64
	for _, b := range header {
		sum += uint64(b)
	}
	digits := formatOctal(sum&0o777777, 7)
	copy(header[148:155], digits)
	header[155] = ' '
}
