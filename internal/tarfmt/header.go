// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package tarfmt encodes the abstract representation of a tar entry
// into USTAR or PAX/POSIX wire bytes. See spec.md §4.7.
package tarfmt

import "time"

// Format selects which on-wire representation headergen produces.
type Format int

const (
	FormatUSTAR Format = iota
	FormatPOSIX
)

// ParseFormat maps the CLI's --format flag value to a Format.
func ParseFormat(s string) (Format, bool) {
	switch s {
	case "ustar":
		return FormatUSTAR, true
	case "posix":
		return FormatPOSIX, true
	default:
		return 0, false
	}
}

// FileType is the abstract USTAR typeflag. There is no separate
// constant for vendor-specific types; any other typeflag byte is
// carried as its raw value.
type FileType byte

const (
	TypeRegular FileType = '0'
	TypeHardlink FileType = '1'
	TypeSymlink  FileType = '2'
	TypeChar     FileType = '3'
	TypeBlock    FileType = '4'
	TypeDir      FileType = '5'
	TypeFIFO     FileType = '6'
)

// Header is the abstract representation of one tar entry, independent
// of its eventual wire encoding. Grounded on
// _examples/original_source/librapidarchive/src/tar/header.rs's
// TarHeader struct; field names are renamed to Go convention but the
// set of fields — including the recovery_* trio used only by
// continuation entries — is unchanged.
type Header struct {
	Path string

	UnixMode uint32
	UnixUID  uint32
	UnixGID  uint32

	FileSize uint64
	Mtime    time.Time
	Atime    time.Time
	Birthtime time.Time

	FileType     FileType
	SymlinkPath  string
	UnixUname    string
	UnixGname    string
	UnixDevmajor uint32
	UnixDevminor uint32

	// Recovery fields: populated only on a continuation entry emitted
	// by the recovery engine after a short write. See spec.md §4.10.
	RecoveryPath       string
	RecoveryTotalSize  uint64
	RecoverySeekOffset uint64
	IsContinuation     bool
}

// EncodedHeader is the result of serializing a Header: the bytes ready
// for direct copy into the archive, and the byte length that the data
// zone's header_length field records (spec.md §4.9's Serialize state
// needs this to verify the cumulative write against header_length +
// file_size, and the recovery engine needs it to compute the
// already-durable content offset on a torn file).
type EncodedHeader struct {
	Bytes        []byte
	HeaderLength int
}

// Encode serializes h per format, computing and filling in the
// checksum field(s).
func Encode(h *Header, format Format) (EncodedHeader, error) {
	var raw []byte
	var err error
	switch format {
	case FormatUSTAR:
		raw, err = encodeUSTAR(h)
	default:
		raw, err = encodePAX(h)
	}
	if err != nil {
		return EncodedHeader{}, err
	}
	return EncodedHeader{Bytes: raw, HeaderLength: len(raw)}, nil
}
