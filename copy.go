package dat

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/meigma/dat/internal/batch"
	"github.com/meigma/dat/tree"
)

// CopyStats reports what a copy operation did.
type CopyStats = batch.Stats

// CopyTo extracts specific files to a destination directory.
//
// Missing paths and directories are skipped. Parent directories are created
// as needed and existing files are skipped.
func (a *Archive) CopyTo(destDir string, paths ...string) (CopyStats, error) {
	return a.CopyToWithOptions(destDir, paths)
}

// CopyToWithOptions extracts specific files with options.
func (a *Archive) CopyToWithOptions(destDir string, paths []string, opts ...CopyOption) (CopyStats, error) {
	cfg := copyConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	entries := make([]*batch.Entry, 0, len(paths))
	for _, p := range paths {
		n, ok := a.tree.Get(p)
		if !ok || !n.IsFile() {
			a.log().Debug("copy: skipping missing file", "path", p)
			continue
		}
		entry, _ := n.Entry()
		entries = append(entries, &batch.Entry{Path: n.Path(), FileEntry: entry})
	}
	return a.copyEntries(destDir, entries, &cfg)
}

// CopyDir extracts all files under a directory prefix to a destination.
//
// If prefix is "" or ".", all files in the archive are extracted. Files are
// written atomically using temp files and renames, at their lowercase
// slash paths relative to destDir.
//
// By default existing files are skipped (use CopyWithOverwrite to overwrite)
// and decoding runs on GOMAXPROCS workers (use CopyWithWorkers to change).
func (a *Archive) CopyDir(destDir, prefix string, opts ...CopyOption) (CopyStats, error) {
	cfg := copyConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	n, ok := a.tree.Get(prefix)
	if !ok {
		return CopyStats{}, &fs.PathError{Op: "copydir", Path: prefix, Err: fs.ErrNotExist}
	}
	return a.copyEntries(destDir, collect(n), &cfg)
}

// Match returns the paths of all files matching pattern, in tree order.
//
// Patterns use doublestar syntax and are matched against lowercase slash
// paths; the pattern itself is lowercased first.
func (a *Archive) Match(pattern string) ([]string, error) {
	pattern = strings.ToLower(pattern)
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: %q", doublestar.ErrBadPattern, pattern)
	}
	var out []string
	for n := range a.tree.Files() {
		if doublestar.MatchUnvalidated(pattern, n.Path()) {
			out = append(out, n.Path())
		}
	}
	return out, nil
}

// collect returns n itself if it is a file, or every file below it.
func collect(n *tree.Node) []*batch.Entry {
	if entry, ok := n.Entry(); ok {
		return []*batch.Entry{{Path: n.Path(), FileEntry: entry}}
	}
	var entries []*batch.Entry //nolint:prealloc // size unknown until iteration
	for _, c := range n.Children() {
		entries = append(entries, collect(c)...)
	}
	return entries
}

// copyEntries uses the batch processor to copy entries to destDir.
func (a *Archive) copyEntries(destDir string, entries []*batch.Entry, cfg *copyConfig) (CopyStats, error) {
	entries, err := filterEntries(entries, cfg.patterns)
	if err != nil {
		return CopyStats{}, err
	}
	if len(entries) == 0 {
		return CopyStats{}, nil
	}

	sink, err := batch.NewFileSink(destDir, batch.WithOverwrite(cfg.overwrite))
	if err != nil {
		return CopyStats{}, err
	}
	defer sink.Close()

	procOpts := []batch.ProcessorOption{batch.WithWorkers(cfg.workers)}
	if cfg.readAheadBytes > 0 {
		procOpts = append(procOpts, batch.WithReadAheadBytes(cfg.readAheadBytes))
	}
	if a.logger != nil {
		procOpts = append(procOpts, batch.WithProcessorLogger(a.logger))
	}
	proc := batch.NewProcessor(a, procOpts...)
	return proc.Process(context.Background(), entries, sink)
}

// filterEntries keeps entries matching any of patterns. No patterns keeps all.
func filterEntries(entries []*batch.Entry, patterns []string) ([]*batch.Entry, error) {
	if len(patterns) == 0 {
		return entries, nil
	}
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(p)
		if !doublestar.ValidatePattern(lowered[i]) {
			return nil, fmt.Errorf("%w: %q", doublestar.ErrBadPattern, p)
		}
	}
	kept := entries[:0]
	for _, e := range entries {
		for _, p := range lowered {
			if doublestar.MatchUnvalidated(p, e.Path) {
				kept = append(kept, e)
				break
			}
		}
	}
	return kept, nil
}
