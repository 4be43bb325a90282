// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package walk

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nishisan-dev/spantar/internal/tarfmt"
)

// entry is one filesystem item discovered during the serial directory
// walk, queued for a headergen worker to turn into a Result.
type entry struct {
	path     string
	archival string
	info     fs.FileInfo
}

// Walker walks a set of root paths and produces HeaderGenResults on a
// bounded output channel, using a fixed pool of workers to parallelize
// the stat/prefix-read/header-encode work per spec.md §4.8. Grounded
// on the teacher's serial
// _examples/nishisan-dev-n-backup/internal/agent/scanner.go (the
// filepath.WalkDir traversal shape and exclude-matching rules),
// generalized from one goroutine calling a callback to a worker pool
// feeding a channel, per spec.md's explicit parallelization
// requirement.
type Walker struct {
	roots    []string
	baseDir  string
	excludes []string
	meta     MetadataSource
	format   tarfmt.Format
	workers  int
}

// New creates a Walker. baseDir anchors the archive paths (the -C
// directory); roots are the paths to archive, each made relative to
// baseDir for its in-archive name.
func New(roots []string, baseDir string, excludes []string, meta MetadataSource, format tarfmt.Format, workers int) *Walker {
	if workers < 1 {
		workers = 1
	}
	return &Walker{roots: roots, baseDir: baseDir, excludes: excludes, meta: meta, format: format, workers: workers}
}

// Walk feeds Results into a channel of the given depth (the back-pressure
// knob spec.md §4.8 and §6's --channel-queue-depth describe) and
// returns it immediately; the channel is closed once every root has
// been fully walked and every worker has drained its queue. Traversal
// runs in the background; callers range over the returned channel.
func (w *Walker) Walk(ctx context.Context, channelDepth int) <-chan Result {
	out := make(chan Result, channelDepth)
	work := make(chan entry, channelDepth)

	var wg sync.WaitGroup
	wg.Add(w.workers)
	for i := 0; i < w.workers; i++ {
		go func() {
			defer wg.Done()
			for e := range work {
				select {
				case out <- headergen(w.meta, w.format, e.path, e.archival, e.info):
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		w.enumerate(ctx, work)
		close(work)
		wg.Wait()
		close(out)
	}()

	return out
}

// enumerate performs the serial directory walk and pushes entries onto
// work; the bounded channel send is itself the back-pressure point —
// once work is full, enumerate blocks, capping in-flight memory.
func (w *Walker) enumerate(ctx context.Context, work chan<- entry) {
	for _, root := range w.roots {
		root = filepath.Clean(root)
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				// Traversal errors are logged and the entry dropped
				// (spec.md §7's propagation policy); the walker itself
				// doesn't own a logger, so the driver is expected to
				// wrap Walk with its own error-visibility layer if it
				// wants these surfaced.
				return nil
			}

			name := d.Name()
			if name == "." || name == ".." {
				return nil
			}

			archival := normalizeArchivePath(w.baseDir, path)

			if w.isExcluded(archival, d.IsDir()) {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return nil
			}

			select {
			case work <- entry{path: path, archival: archival, info: info}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
	}
}

// isExcluded reports whether archival matches one of the configured
// glob exclude patterns. Matching rules are carried over unchanged
// from the teacher's Scanner.isExcluded: trailing-slash patterns match
// directories by name at any depth, "/**" patterns exclude a directory
// and everything under it, and plain patterns match either the full
// path or the basename.
func (w *Walker) isExcluded(archival string, isDir bool) bool {
	base := filepath.Base(archival)
	parts := strings.Split(archival, "/")

	for _, pattern := range w.excludes {
		if strings.HasSuffix(pattern, "/") {
			if isDir {
				dirPattern := strings.TrimPrefix(strings.TrimSuffix(pattern, "/"), "*/")
				for _, part := range parts {
					if matched, _ := filepath.Match(dirPattern, part); matched {
						return true
					}
				}
			}
			continue
		}

		if strings.HasSuffix(pattern, "/**") {
			prefix := strings.TrimSuffix(pattern, "/**")
			for _, part := range parts {
				if matched, _ := filepath.Match(prefix, part); matched {
					return true
				}
			}
			continue
		}

		if matched, _ := filepath.Match(pattern, archival); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

func filepathAbs(path string) (string, error) {
	return filepath.Abs(path)
}
