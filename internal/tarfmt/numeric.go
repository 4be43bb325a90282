// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package tarfmt

import (
	"errors"
	"fmt"
)

// ErrNumeralTooLarge is returned when a value cannot be represented
// even in GNU base-256 form.
var ErrNumeralTooLarge = errors.New("tarfmt: numeral does not fit in field")

// formatOctal renders n as a null-terminated, zero-padded octal
// numeral in a field of fieldSize bytes, or nil if it doesn't fit.
// Grounded on
// _examples/original_source/src/rapidtar/tar/ustar.rs's
// format_tar_numeral.
func formatOctal(n uint64, fieldSize int) []byte {
	s := fmt.Sprintf("%o", n)
	if len(s)+1 > fieldSize {
		return nil
	}
	out := make([]byte, fieldSize)
	for i := range out {
		out[i] = '0'
	}
	copy(out[fieldSize-1-len(s):fieldSize-1], s)
	out[fieldSize-1] = 0
	return out
}

// formatGNUNumeral renders n as octal if it fits, otherwise as GNU
// base-256 (leading 0x80, big-endian bytes filling the rest of the
// field). Returns an error if n doesn't fit even in base-256.
// Grounded on
// _examples/original_source/src/rapidtar/tar/gnu.rs's
// format_gnu_numeral.
func formatGNUNumeral(n uint64, fieldSize int) ([]byte, error) {
	if oct := formatOctal(n, fieldSize); oct != nil {
		return oct, nil
	}
	if fieldSize < 2 {
		return nil, ErrNumeralTooLarge
	}
	maxBase256 := uint64(1)<<(8*uint(fieldSize-1)) - 1
	if fieldSize >= 9 {
		// avoid overflow in the shift for 8-byte-or-larger fields: any
		// uint64 fits when 8*(fieldSize-1) >= 64.
		maxBase256 = ^uint64(0)
	}
	if n > maxBase256 {
		return nil, ErrNumeralTooLarge
	}
	out := make([]byte, fieldSize)
	out[0] = 0x80
	for i := 0; i < fieldSize-1; i++ {
		shift := uint(fieldSize-2-i) * 8
		out[1+i] = byte(n >> shift)
	}
	return out, nil
}

// formatString null-pads s into a field of fieldSize bytes, truncating
// if too long (UTF-8 safety is not attempted here — tar name fields
// are conventionally ASCII; non-ASCII paths are instead carried via
// the PAX path= attribute per spec.md §4.7).
func formatString(s string, fieldSize int) []byte {
	out := make([]byte, fieldSize)
	copy(out, s)
	return out
}
