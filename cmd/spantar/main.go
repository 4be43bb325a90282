// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Command spantar is the CLI front-end spec.md §6 describes as "out of
// scope" for the core: argument parsing, subcommand dispatch, and
// wiring the core packages (archive, walk, device, sink, journal,
// prompt, progress, sysmonitor, mirror, scheduler) into a runnable
// program. Structured like the teacher's cmd/nbackup-agent/main.go: no
// CLI framework, a raw os.Args[1] subcommand check, and flag.FlagSet
// per subcommand.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "create":
		err = runCreate(os.Args[2:])
	case "daemon":
		err = runDaemon(os.Args[2:])
	case "fsf", "bsf", "asf", "rewind", "eod", "weof", "tell", "setpartition":
		err = runMaintenance(os.Args[1], os.Args[2:])
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "spantar: unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "spantar: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `usage: spantar <command> [flags]

commands:
  create        write a tar archive to a device, file, or tape
  daemon        run one or more configured jobs on their cron schedules
  fsf <n>       forward-space n filemarks
  bsf <n>       backward-space n filemarks
  asf <n>       absolute-space to filemark n
  rewind        rewind to beginning of medium
  eod           space to end of recorded data
  weof <n>      write n filemarks
  tell          report the current block position
  setpartition <id>
                switch to partition id

run "spantar <command> -h" for command-specific flags.
`)
}
