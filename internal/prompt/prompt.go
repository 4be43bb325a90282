// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package prompt implements the interactive recovery prompt spec.md §6
// describes: on a short write, the create driver prints "Volume N ran
// out of space" and reads one line of operator input, recognizing
// '?' (help), 'q' (cancel), 'y' (reopen the same path), and
// 'n <path>' (switch to a different path).
package prompt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/nishisan-dev/spantar/internal/archive"
	"github.com/nishisan-dev/spantar/internal/humanize"
	"github.com/nishisan-dev/spantar/internal/zone"
)

const helpText = `Recognized answers:
  y            mount the same path again as the next volume
  n <path>     mount a different path as the next volume
  q            cancel the archive run
  ?            show this help
`

// StdPrompt implements archive.VolumePrompt against an input reader
// (normally os.Stdin) and an output writer (normally os.Stderr, per
// spec.md §6's "standard input / standard error"). A single background
// goroutine owns the scanner so that repeated Ask calls across several
// recovery rounds never race on the same *bufio.Scanner.
type StdPrompt struct {
	out    io.Writer
	volume int
	lines  <-chan string
	errs   <-chan error
}

// NewStdPrompt wraps in/out. The returned StdPrompt is safe to reuse
// across every volume-change prompt of a single CreateDriver run.
func NewStdPrompt(in io.Reader, out io.Writer) *StdPrompt {
	lines := make(chan string)
	errs := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			errs <- err
		} else {
			errs <- io.EOF
		}
		close(lines)
	}()

	return &StdPrompt{out: out, lines: lines, errs: errs}
}

// Ask implements archive.VolumePrompt.
func (p *StdPrompt) Ask(ctx context.Context, uncommitted []zone.Zone) (archive.PromptAction, string, error) {
	p.volume++
	fmt.Fprintf(p.out, "Volume %d ran out of space", p.volume)
	if n := countFiles(uncommitted); n > 0 {
		fmt.Fprintf(p.out, " (%s across %d file(s) awaiting recovery)", humanize.Bytes(int64(uncommittedBytes(uncommitted))), n)
	}
	fmt.Fprintln(p.out)

	for {
		fmt.Fprint(p.out, "mount next volume? [y / n <path> / q / ?] ")

		select {
		case <-ctx.Done():
			return 0, "", ctx.Err()
		case err := <-p.errs:
			return 0, "", fmt.Errorf("prompt: reading operator input: %w", err)
		case line, ok := <-p.lines:
			if !ok {
				return 0, "", io.EOF
			}
			action, path, handled := parseAnswer(strings.TrimSpace(line))
			if !handled {
				fmt.Fprint(p.out, helpText)
				continue
			}
			if action == archive.ActionMountNewPath && path == "" {
				fmt.Fprintln(p.out, "n requires a path, e.g. \"n /dev/nst1\"")
				continue
			}
			return action, path, nil
		}
	}
}

// parseAnswer maps one trimmed line of operator input to a
// PromptAction. handled is false for '?', empty input, or anything
// unrecognized, signalling the caller should reprint help and ask
// again rather than treat it as a decision.
func parseAnswer(line string) (action archive.PromptAction, path string, handled bool) {
	switch {
	case line == "y":
		return archive.ActionMountSamePath, "", true
	case line == "q":
		return archive.ActionAbort, "", true
	case line == "n" || strings.HasPrefix(line, "n "):
		return archive.ActionMountNewPath, strings.TrimSpace(strings.TrimPrefix(line, "n")), true
	default:
		return 0, "", false
	}
}

// countFiles reports how many distinct identified zones (i.e. files,
// not slack padding) appear in uncommitted.
func countFiles(uncommitted []zone.Zone) int {
	n := 0
	for _, z := range uncommitted {
		if z.Identity.Valid {
			n++
		}
	}
	return n
}

// uncommittedBytes sums the Uncommitted field across every identified
// zone, for the operator-facing byte figure the original rapidtar CLI
// quotes at this same point in its recovery flow, formatted with
// internal/humanize to match the original's own wording.
func uncommittedBytes(uncommitted []zone.Zone) uint64 {
	var total uint64
	for _, z := range uncommitted {
		if z.Identity.Valid {
			total += z.Uncommitted
		}
	}
	return total
}
