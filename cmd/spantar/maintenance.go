// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"strconv"

	"github.com/nishisan-dev/spantar/internal/device"
)

// runMaintenance implements spec.md §6's tape positioning command set:
// fsf, bsf, asf, rewind, eod, weof, tell, setpartition. Each is a thin
// wrapper over the already-built device.TapeDevice capability, opened
// directly against -f <device> with no sink stack or archive driver
// involved — these commands exist to position the medium, not to
// read or write an archive.
func runMaintenance(name string, args []string) error {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	devPath := fs.String("f", "", "device path (e.g. /dev/nst0)")
	recordSize := fs.Int("blocking-factor", 20, "record size in 512-byte blocks")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *devPath == "" {
		return fmt.Errorf("%s: -f <device> is required", name)
	}

	dev, err := device.OpenLinuxTape(*devPath, *recordSize*512)
	if err != nil {
		return fmt.Errorf("%s: opening %s: %w", name, *devPath, err)
	}
	defer dev.Close()

	count, countErr := parseCount(fs.Args())

	switch name {
	case "fsf":
		if countErr != nil {
			return countErr
		}
		return dev.SeekFilemarks(device.SeekCurrent, count)
	case "bsf":
		if countErr != nil {
			return countErr
		}
		return dev.SeekFilemarks(device.SeekCurrent, -count)
	case "asf":
		if countErr != nil {
			return countErr
		}
		return dev.SeekFilemarks(device.SeekStart, count)
	case "rewind":
		return dev.SeekBlocks(device.SeekStart, 0)
	case "eod":
		return dev.SeekFilemarks(device.SeekEnd, 0)
	case "weof":
		n := count
		if countErr != nil {
			n = 1 // "weof" with no count writes a single filemark.
		}
		for i := int64(0); i < n; i++ {
			if err := dev.WriteFilemark(true); err != nil {
				return err
			}
		}
		return nil
	case "tell":
		pos, err := dev.TellBlocks()
		if err != nil {
			return err
		}
		fmt.Printf("%d\n", pos)
		return nil
	case "setpartition":
		if countErr != nil {
			return countErr
		}
		return dev.SeekPartition(uint32(count))
	default:
		return fmt.Errorf("unimplemented maintenance command %q", name)
	}
}

// parseCount reads the single positional integer argument most
// maintenance commands take (filemark/partition count); commands like
// "rewind", "eod", and a bare "tell"/"weof" take none, in which case
// args is empty and callers decide their own default.
func parseCount(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("missing count argument")
	}
	n, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid count %q: %w", args[0], err)
	}
	return n, nil
}
