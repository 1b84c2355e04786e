// Command readdat lists and extracts the contents of Fallout 1 and 2 DAT archives.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/dat"
	"github.com/meigma/dat/cache/disk"
	"github.com/meigma/dat/cache/memory"
)

type config struct {
	input    string
	file     string
	unpack   bool
	extract  string
	match    string
	workers  int
	cacheDir string
	memCache int
	digest   bool
	verbose  bool
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "readdat: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cfg, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	opts := []dat.Option{dat.WithLogger(logger)}
	if cfg.cacheDir != "" {
		c, err := disk.New(cfg.cacheDir)
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
		opts = append(opts, dat.WithCache(c))
	}
	if cfg.memCache > 0 {
		opts = append(opts, dat.WithCache(memory.New(memory.WithCapacity(cfg.memCache))))
	}

	a, err := dat.OpenFile(cfg.input, opts...)
	if err != nil {
		return err
	}
	defer a.Close()

	switch {
	case cfg.file != "":
		return writeOne(a, cfg, stdout)
	case cfg.extract != "":
		return extractAll(a, cfg, stdout)
	default:
		return list(a, cfg, stdout)
	}
}

func parseFlags(args []string, stderr io.Writer) (config, error) {
	var cfg config
	fset := flag.NewFlagSet("readdat", flag.ContinueOnError)
	fset.SetOutput(stderr)
	fset.Usage = func() {
		fmt.Fprintln(stderr, "usage: readdat [flags] FILE")
		fmt.Fprintln(stderr, "reads Fallout 1/2 DAT archives")
		fmt.Fprintln(stderr)
		fset.PrintDefaults()
	}
	fset.StringVar(&cfg.file, "f", "", "write one entry to stdout")
	fset.BoolVar(&cfg.unpack, "u", false, "decode the entry written by -f")
	fset.StringVar(&cfg.extract, "e", "", "extract all entries into this directory")
	fset.StringVar(&cfg.match, "match", "", "only list or extract entries matching this pattern (e.g. art/**/*.frm)")
	fset.IntVar(&cfg.workers, "workers", 0, "extract workers: <0 serial, 0 auto, >0 fixed")
	fset.StringVar(&cfg.cacheDir, "cache", "", "cache decoded entries in this directory")
	fset.IntVar(&cfg.memCache, "memcache", 0, "cache up to this many decoded entries in memory")
	fset.BoolVar(&cfg.digest, "digest", false, "show the digest of each decoded entry")
	fset.BoolVar(&cfg.verbose, "v", false, "debug logging")
	if err := fset.Parse(args); err != nil {
		return config{}, err
	}
	if fset.NArg() != 1 {
		fset.Usage()
		return config{}, errors.New("expected exactly one archive")
	}
	cfg.input = fset.Arg(0)
	if cfg.file != "" && cfg.extract != "" {
		return config{}, errors.New("-f and -e are mutually exclusive")
	}
	if cfg.cacheDir != "" && cfg.memCache > 0 {
		return config{}, errors.New("-cache and -memcache are mutually exclusive")
	}
	return cfg, nil
}

func writeOne(a *dat.Archive, cfg config, stdout io.Writer) error {
	entry, ok := a.Entry(cfg.file)
	if !ok {
		return &fs.PathError{Op: "read", Path: cfg.file, Err: fs.ErrNotExist}
	}
	read := a.EntryData
	if cfg.unpack {
		read = a.UnpackFile
	}
	data, err := read(entry)
	if err != nil {
		return fmt.Errorf("%s: %w", cfg.file, err)
	}
	_, err = stdout.Write(data)
	return err
}

func extractAll(a *dat.Archive, cfg config, stdout io.Writer) error {
	opts := []dat.CopyOption{dat.CopyWithWorkers(cfg.workers)}
	if cfg.match != "" {
		opts = append(opts, dat.CopyWithMatch(cfg.match))
	}
	stats, err := a.CopyDir(cfg.extract, ".", opts...)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "extracted=%d skipped=%d bytes=%d\n", stats.Processed, stats.Skipped, stats.TotalBytes)
	return nil
}

func list(a *dat.Archive, cfg config, stdout io.Writer) error {
	var keep map[string]bool
	if cfg.match != "" {
		paths, err := a.Match(cfg.match)
		if err != nil {
			return err
		}
		keep = make(map[string]bool, len(paths))
		for _, p := range paths {
			keep[p] = true
		}
	}

	for path, entry := range a.Entries() {
		if keep != nil && !keep[path] {
			continue
		}
		state := "Uncompressed"
		if entry.Compressed {
			state = "Compressed"
		}
		if !cfg.digest {
			fmt.Fprintf(stdout, "%-40s: %s\n", path, state)
			continue
		}
		content, err := a.UnpackFile(entry)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(stdout, "%-40s: %-12s %s\n", path, state, digest.FromBytes(content))
	}
	return nil
}
