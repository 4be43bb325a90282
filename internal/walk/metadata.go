// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package walk implements parallel traversal and header generation:
// spec.md §4.8's thread pool that walks requested roots, stats each
// entry, builds an abstract tar header, pre-reads a bounded prefix of
// regular files, and feeds HeaderGenResult values into a bounded
// channel for back-pressure.
package walk

import (
	"io/fs"
	"os"

	"github.com/nishisan-dev/spantar/internal/tarfmt"
)

// MetadataSource abstracts the platform-specific parts of turning an
// fs.FileInfo into the abstract header fields spec.md treats as an
// external collaborator (§1's OUT of scope list): unix mode, uid/gid,
// file type, device numbers, and symlink target. The default
// implementation uses whatever the standard library's fs.FileInfo
// exposes; a platform build can substitute a richer one (e.g. reading
// the real uid/gid via syscall.Stat_t) without touching the walker.
type MetadataSource interface {
	Mode(fs.FileInfo) uint32
	UID(fs.FileInfo) uint32
	GID(fs.FileInfo) uint32
	Uname(fs.FileInfo) string
	Gname(fs.FileInfo) string
	FileType(fs.FileInfo) tarfmt.FileType
	DevMajor(fs.FileInfo) uint32
	DevMinor(fs.FileInfo) uint32
	SymlinkTarget(path string, info fs.FileInfo) (string, error)
}

// defaultMetadataSource reports unix_uid/gid as 0 and uname/gname as
// "root", a placeholder matching
// _examples/original_source/librapidarchive/src/tar/header.rs's
// abstract_header_for_file, which carries the same literal //TODO
// comment and leaves these unresolved ("Get plausible IDs for these").
// spec.md §9 discusses the analogous Windows SID limitation but does
// not direct a fix for the Unix uid/gid placeholder, so it is carried
// forward unchanged rather than guessed at.
type defaultMetadataSource struct{}

// NewDefaultMetadataSource returns the baseline MetadataSource used
// when no platform-specific richer source is wired in.
func NewDefaultMetadataSource() MetadataSource { return defaultMetadataSource{} }

func (defaultMetadataSource) Mode(info fs.FileInfo) uint32 {
	return uint32(info.Mode().Perm())
}

func (defaultMetadataSource) UID(fs.FileInfo) uint32 { return 0 }
func (defaultMetadataSource) GID(fs.FileInfo) uint32 { return 0 }
func (defaultMetadataSource) Uname(fs.FileInfo) string { return "root" }
func (defaultMetadataSource) Gname(fs.FileInfo) string { return "root" }

func (defaultMetadataSource) FileType(info fs.FileInfo) tarfmt.FileType {
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		return tarfmt.TypeSymlink
	case info.IsDir():
		return tarfmt.TypeDir
	case info.Mode()&fs.ModeNamedPipe != 0:
		return tarfmt.TypeFIFO
	case info.Mode()&fs.ModeDevice != 0:
		if info.Mode()&fs.ModeCharDevice != 0 {
			return tarfmt.TypeChar
		}
		return tarfmt.TypeBlock
	default:
		return tarfmt.TypeRegular
	}
}

func (defaultMetadataSource) DevMajor(fs.FileInfo) uint32 { return 0 }
func (defaultMetadataSource) DevMinor(fs.FileInfo) uint32 { return 0 }

func (defaultMetadataSource) SymlinkTarget(path string, info fs.FileInfo) (string, error) {
	if info.Mode()&fs.ModeSymlink == 0 {
		return "", nil
	}
	return os.Readlink(path)
}
